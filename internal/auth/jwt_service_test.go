package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noticeboardhq/noticeboard/internal/models"
)

func TestJWTServiceRoundTrip(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "noticeboard"})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(Identity{UserID: 7, Username: "casey", Role: models.RoleAdmin})
	require.NoError(t, err)

	identity, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, uint(7), identity.UserID)
	require.Equal(t, "casey", identity.Username)
	require.True(t, identity.IsAdmin())
}

func TestJWTServiceRejectsExpiredToken(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := issued

	svc, err := NewJWTService(JWTConfig{
		Secret:         "secret",
		AccessTokenTTL: time.Minute,
		Clock:          func() time.Time { return current },
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(Identity{UserID: 1})
	require.NoError(t, err)

	current = issued.Add(2 * time.Minute)
	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestJWTServiceRejectsWrongSecretAndIssuer(t *testing.T) {
	issuerA, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "a"})
	require.NoError(t, err)
	issuerB, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "b"})
	require.NoError(t, err)
	otherKey, err := NewJWTService(JWTConfig{Secret: "different", Issuer: "a"})
	require.NoError(t, err)

	token, err := issuerA.GenerateAccessToken(Identity{UserID: 1})
	require.NoError(t, err)

	_, err = issuerB.ValidateAccessToken(token)
	require.Error(t, err)
	_, err = otherKey.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestJWTServiceRequiresSecretAndUser(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)

	svc, err := NewJWTService(JWTConfig{Secret: "secret"})
	require.NoError(t, err)
	_, err = svc.GenerateAccessToken(Identity{})
	require.Error(t, err)

	_, err = svc.ValidateAccessToken("")
	require.Error(t, err)
}
