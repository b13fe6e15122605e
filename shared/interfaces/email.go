package interfaces

import "context"

// Email - одно исходящее письмо. Bcc используется для рассылок, чтобы
// получатели не видели адреса друг друга.
type Email struct {
	From    string
	To      []string
	Bcc     []string
	Subject string
	HTML    string
	ReplyTo string
	Headers map[string]string
}

// EmailSender отправляет письмо и возвращает идентификатор провайдера.
type EmailSender interface {
	Send(ctx context.Context, email Email) (string, error)
}

// SubscriberSync синхронизирует подписчиков с MailerLite.
// API-ключ передается явно в каждом вызове.
type SubscriberSync interface {
	UpsertSubscriber(ctx context.Context, apiKey, email string, groups []string) (string, error)
	UpdateSubscriberStatus(ctx context.Context, apiKey, idOrEmail, status string) error
}
