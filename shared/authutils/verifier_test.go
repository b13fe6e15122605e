package authutils

import (
	"context"
	"testing"
	"time"

	"foundry/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_SignAndVerify(t *testing.T) {
	v, err := NewJWTVerifier("secret", "foundry", nil)
	require.NoError(t, err)

	token, exp, err := v.Sign("admin", []string{models.RoleAdministrator}, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := v.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, []string{models.RoleAdministrator}, claims.Roles)
}

func TestJWTVerifier_Errors(t *testing.T) {
	v, err := NewJWTVerifier("secret", "foundry", nil)
	require.NoError(t, err)

	expired, _, err := v.Sign("admin", nil, -time.Minute)
	require.NoError(t, err)
	_, err = v.VerifyToken(context.Background(), expired)
	assert.ErrorIs(t, err, models.ErrTokenExpired)

	_, err = v.VerifyToken(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, models.ErrTokenMalformed)

	other, err := NewJWTVerifier("other-secret", "foundry", nil)
	require.NoError(t, err)
	foreign, _, err := other.Sign("admin", nil, time.Hour)
	require.NoError(t, err)
	_, err = v.VerifyToken(context.Background(), foreign)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)

	otherIssuer, err := NewJWTVerifier("secret", "someone-else", nil)
	require.NoError(t, err)
	stranger, _, err := otherIssuer.Sign("admin", nil, time.Hour)
	require.NoError(t, err)
	_, err = v.VerifyToken(context.Background(), stranger)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)

	_, err = NewJWTVerifier("", "", nil)
	assert.Error(t, err)
}
