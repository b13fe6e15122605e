package models

// ImageRequest - параметры генерации изображения (/ai/image-generate и
// действие media.generate).
type ImageRequest struct {
	Prompt       string `json:"prompt" binding:"required,min=1"`
	Model        string `json:"model,omitempty"`
	Size         string `json:"size,omitempty"`
	Quality      string `json:"quality,omitempty" binding:"omitempty,oneof=low medium high auto"`
	Background   string `json:"background,omitempty" binding:"omitempty,oneof=transparent opaque auto"`
	OutputFormat string `json:"outputFormat,omitempty" binding:"omitempty,oneof=png jpeg webp"`
	FilenameHint string `json:"filenameHint,omitempty"`
}

// ImageResult - сохраненное сгенерированное изображение.
type ImageResult struct {
	BlobURL string     `json:"blobUrl"`
	Name    string     `json:"name"`
	Model   string     `json:"model"`
	Usage   TokenUsage `json:"usage"`
}
