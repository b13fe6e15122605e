package service

import (
	"context"
	"crypto/subtle"
	"time"

	"foundry/shared/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// TokenSigner выпускает JWT администратора.
type TokenSigner interface {
	Sign(username string, roles []string, ttl time.Duration) (string, time.Time, error)
}

// LoginResult - ответ POST /auth/login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
}

// AuthService - локальный вход администратора (логин + bcrypt-хэш пароля из окружения).
type AuthService struct {
	username     string
	passwordHash []byte
	ttl          time.Duration
	signer       TokenSigner
	logger       *zap.Logger
}

func NewAuthService(username, passwordHash string, ttl time.Duration, signer TokenSigner, logger *zap.Logger) *AuthService {
	return &AuthService{
		username:     username,
		passwordHash: []byte(passwordHash),
		ttl:          ttl,
		signer:       signer,
		logger:       logger.Named("AuthService"),
	}
}

// Login проверяет учетные данные и возвращает токен с ролью administrator.
func (s *AuthService) Login(_ context.Context, username, password string) (*LoginResult, error) {
	if len(s.passwordHash) == 0 || s.signer == nil {
		return nil, models.NewPublicError(models.ErrNotConfigured, "Admin login is not configured.")
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil || !userOK {
		s.logger.Warn("Failed admin login", zap.String("username", username))
		return nil, models.ErrInvalidCredentials
	}

	roles := []string{models.RoleAdministrator, models.RoleAuthenticated}
	token, expiresAt, err := s.signer.Sign(username, roles, s.ttl)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Admin logged in", zap.String("username", username))
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Username: username, Roles: roles}, nil
}
