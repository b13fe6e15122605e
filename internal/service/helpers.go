package service

import "time"

// isoTimestamp форматирует время как ISO-8601 в UTC с миллисекундами.
// Фиксированная ширина нужна для сортировки по строке.
func isoTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
