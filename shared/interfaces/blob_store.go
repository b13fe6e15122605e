package interfaces

import (
	"context"
	"time"
)

// UploadTicket - короткоживущий подписанный URL для загрузки файла.
type UploadTicket struct {
	Name      string    `json:"name"`
	UploadURL string    `json:"uploadUrl"`
	BlobURL   string    `json:"blobUrl"`
	ExpiresOn time.Time `json:"expiresOn"`
}

// BlobItem - сохраненный файл.
type BlobItem struct {
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

// BlobPage - страница листинга файлов.
type BlobPage struct {
	Items             []BlobItem `json:"items"`
	ContinuationToken string     `json:"continuationToken,omitempty"`
}

// StoredBlob - результат прямой загрузки.
type StoredBlob struct {
	Name    string `json:"name"`
	BlobURL string `json:"blobUrl"`
}

// BlobStore - хранилище медиафайлов.
type BlobStore interface {
	SignUpload(filename, contentType string) (*UploadTicket, error)
	// VerifyUpload проверяет токен загрузки для имени и типа содержимого.
	VerifyUpload(token, name, contentType string) error
	Put(ctx context.Context, name, contentType string, data []byte) (*StoredBlob, error)
	List(ctx context.Context, prefix, continuationToken string, limit int) (*BlobPage, error)
}
