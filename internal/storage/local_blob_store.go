package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"foundry/shared/interfaces"
	"foundry/shared/models"
	"foundry/shared/utils"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	// UploadTTL - время жизни подписанного URL загрузки.
	UploadTTL = 10 * time.Minute

	DefaultListLimit = 50
	MaxListLimit     = 200

	uploadTokenIssuer = "foundry-media"
	contentTypeSuffix = ".content-type"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Config настройки локального хранилища.
type Config struct {
	Dir           string
	PublicBaseURL string
	UploadBaseURL string
	SigningSecret string
}

// uploadClaims - полезная нагрузка токена загрузки.
type uploadClaims struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	jwt.RegisteredClaims
}

// LocalBlobStore хранит медиафайлы в каталоге на диске. Загрузка идет через
// короткоживущий URL, подписанный HS256 токеном.
type LocalBlobStore struct {
	dir           string
	publicBaseURL string
	uploadBaseURL string
	secret        []byte
	now           func() time.Time
	logger        *zap.Logger
}

var _ interfaces.BlobStore = (*LocalBlobStore)(nil)

// NewLocalBlobStore создает хранилище и каталог для файлов.
func NewLocalBlobStore(cfg Config, logger *zap.Logger) (*LocalBlobStore, error) {
	if cfg.Dir == "" {
		return nil, errors.New("media directory is required")
	}
	if len(cfg.SigningSecret) < 16 {
		return nil, errors.New("media signing secret must be at least 16 characters")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &LocalBlobStore{
		dir:           cfg.Dir,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		uploadBaseURL: strings.TrimRight(cfg.UploadBaseURL, "/"),
		secret:        []byte(cfg.SigningSecret),
		now:           time.Now,
		logger:        logger.Named("LocalBlobStore"),
	}, nil
}

// SafeName строит имя файла "<unixms>-<имя>", заменяя недопустимые символы на "_".
func SafeName(filename string, now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), unsafeNameChars.ReplaceAllString(filename, "_"))
}

func (s *LocalBlobStore) SignUpload(filename, contentType string) (*interfaces.UploadTicket, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, models.NewPublicError(models.ErrBadRequest, "filename is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	now := s.now()
	name := SafeName(filename, now)
	expiresOn := now.Add(UploadTTL)

	claims := uploadClaims{
		Name:        name,
		ContentType: contentType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    uploadTokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresOn),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign upload token: %w", err)
	}

	s.logger.Info("Issued upload URL", zap.String("name", name))
	return &interfaces.UploadTicket{
		Name:      name,
		UploadURL: s.uploadBaseURL + "/" + url.PathEscape(name) + "?token=" + url.QueryEscape(signed),
		BlobURL:   s.blobURL(name),
		ExpiresOn: expiresOn,
	}, nil
}

func (s *LocalBlobStore) VerifyUpload(token, name, contentType string) error {
	claims := &uploadClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(uploadTokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.ErrTokenExpired
		}
		return models.ErrTokenInvalid
	}
	if !parsed.Valid || claims.Name != name {
		return models.ErrTokenInvalid
	}
	if contentType != "" && !sameMediaType(claims.ContentType, contentType) {
		return models.NewPublicError(models.ErrForbidden, "content type does not match the signed upload")
	}
	return nil
}

func (s *LocalBlobStore) Put(ctx context.Context, name, contentType string, data []byte) (*interfaces.StoredBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.pathFor(name)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return nil, fmt.Errorf("write blob %s: %w", name, err)
	}
	if contentType != "" {
		if err := os.WriteFile(path+contentTypeSuffix, []byte(contentType), 0o644); err != nil {
			s.logger.Warn("Failed to store content type", zap.String("name", name), zap.Error(err))
		}
	}
	s.logger.Info("Stored blob", zap.String("name", name), zap.Int("bytes", len(data)))
	return &interfaces.StoredBlob{Name: name, BlobURL: s.blobURL(name)}, nil
}

// List возвращает файлы, отсортированные по имени. Курсор - имя последнего
// элемента предыдущей страницы.
func (s *LocalBlobStore) List(ctx context.Context, prefix, continuationToken string, limit int) (*interfaces.BlobPage, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	after, err := utils.DecodeNameCursor(continuationToken)
	if err != nil {
		return nil, models.NewPublicError(models.ErrBadRequest, "invalid continuationToken")
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read media directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, contentTypeSuffix) || strings.HasPrefix(name, ".") {
			continue
		}
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}
		if after != "" && name <= after {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	page := &interfaces.BlobPage{Items: make([]interfaces.BlobItem, 0, limit)}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(page.Items) == limit {
			page.ContinuationToken = utils.EncodeNameCursor(page.Items[len(page.Items)-1].Name)
			break
		}
		info, err := os.Stat(filepath.Join(s.dir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat blob %s: %w", name, err)
		}
		page.Items = append(page.Items, interfaces.BlobItem{
			Name:         name,
			URL:          s.blobURL(name),
			Size:         info.Size(),
			ContentType:  s.ContentType(name),
			LastModified: info.ModTime().UTC(),
		})
	}
	return page, nil
}

// Open открывает файл для отдачи через /media/files.
func (s *LocalBlobStore) Open(name string) (*os.File, string, error) {
	path, err := s.pathFor(name)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", models.ErrNotFound
		}
		return nil, "", fmt.Errorf("open blob %s: %w", name, err)
	}
	return f, s.ContentType(name), nil
}

// ContentType возвращает сохраненный тип содержимого или тип по расширению.
func (s *LocalBlobStore) ContentType(name string) string {
	if raw, err := os.ReadFile(filepath.Join(s.dir, name+contentTypeSuffix)); err == nil {
		if ct := strings.TrimSpace(string(raw)); ct != "" {
			return ct
		}
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (s *LocalBlobStore) blobURL(name string) string {
	return s.publicBaseURL + "/" + url.PathEscape(name)
}

// pathFor не дает выйти за пределы каталога хранилища.
func (s *LocalBlobStore) pathFor(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." ||
		strings.HasPrefix(name, ".") || strings.HasSuffix(name, contentTypeSuffix) {
		return "", models.NewPublicError(models.ErrBadRequest, "invalid blob name")
	}
	return filepath.Join(s.dir, name), nil
}

func sameMediaType(a, b string) bool {
	ma, _, errA := mime.ParseMediaType(a)
	mb, _, errB := mime.ParseMediaType(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return ma == mb
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
