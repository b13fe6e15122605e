package models

import "github.com/golang-jwt/jwt/v5"

// Claims представляет стандартные поля JWT и роли администратора,
// выдаваемые локальным логином (/auth/login).
type Claims struct {
	Username             string   `json:"username"`
	Roles                []string `json:"roles"`
	jwt.RegisteredClaims          // Issuer, Subject, ExpiresAt, IssuedAt, ID (JTI)
}

// Principal - аутентифицированный пользователь запроса, независимо от источника
// (заголовок x-ms-client-principal или Bearer JWT).
type Principal struct {
	IdentityProvider string   `json:"identityProvider"`
	UserID           string   `json:"userId"`
	UserDetails      string   `json:"userDetails"`
	UserRoles        []string `json:"userRoles"`
}
