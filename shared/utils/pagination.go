package utils

import (
	"encoding/base64"
	"fmt"
)

// EncodeNameCursor кодирует имя последнего элемента страницы в непрозрачный курсор.
func EncodeNameCursor(lastName string) string {
	if lastName == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(lastName))
}

// DecodeNameCursor декодирует курсор. Пустой курсор означает начало списка.
func DecodeNameCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("invalid cursor format: %w", err)
	}
	return string(decoded), nil
}
