package middleware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"foundry/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ClientPrincipalHeader - заголовок, который фронтовой прокси заполняет
// base64-JSON описанием аутентифицированного пользователя.
const ClientPrincipalHeader = "x-ms-client-principal"

// TokenVerifier определяет функцию, которая проверяет строку токена и возвращает claims.
// Ошибки могут быть models.ErrTokenInvalid, models.ErrTokenExpired, models.ErrTokenMalformed и т.д.
type TokenVerifier func(ctx context.Context, tokenString string) (*models.Claims, error)

// DecodeClientPrincipal разбирает значение заголовка x-ms-client-principal.
func DecodeClientPrincipal(header string) (*models.Principal, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return nil, models.ErrUnauthorized
	}
	var p models.Principal
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, models.ErrUnauthorized
	}
	return &p, nil
}

// AdminAuth пропускает только пользователей с ролью administrator.
// Принципал берется из x-ms-client-principal, иначе из Bearer JWT (если verifier задан).
// Нет принципала - 401, нет роли - 403.
func AdminAuth(verifier TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.With(zap.String("path", c.Request.URL.Path))

		principal, err := resolvePrincipal(c, verifier)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, models.ErrTokenExpired) {
				log.Debug("Admin token expired")
			} else if !errors.Is(err, models.ErrUnauthorized) && !errors.Is(err, models.ErrTokenInvalid) && !errors.Is(err, models.ErrTokenMalformed) {
				log.Error("Unexpected token verification error", zap.Error(err))
			}
			c.AbortWithStatusJSON(status, models.ErrorResponse{Error: "Unauthorized"})
			return
		}

		if !models.HasRole(principal.UserRoles, models.RoleAdministrator) {
			log.Warn("User does not have required role",
				zap.String("user", principal.UserDetails),
				zap.Strings("userRoles", principal.UserRoles),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{Error: "Forbidden"})
			return
		}

		c.Set(string(models.PrincipalContextKey), principal)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), models.PrincipalContextKey, principal))
		c.Next()
	}
}

func resolvePrincipal(c *gin.Context, verifier TokenVerifier) (*models.Principal, error) {
	if header := c.GetHeader(ClientPrincipalHeader); header != "" {
		return DecodeClientPrincipal(header)
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" || verifier == nil {
		return nil, models.ErrUnauthorized
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, models.ErrUnauthorized
	}

	claims, err := verifier(c.Request.Context(), parts[1])
	if err != nil {
		return nil, err
	}
	return &models.Principal{
		IdentityProvider: "local",
		UserID:           claims.Subject,
		UserDetails:      claims.Username,
		UserRoles:        claims.Roles,
	}, nil
}
