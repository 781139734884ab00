package credential

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainReturnsFirstToken(t *testing.T) {
	calls := 0
	never := ProviderFunc(func() (string, error) {
		calls++
		return "late", nil
	})

	token, err := Chain{Static(""), Static("tok-1"), never}.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Zero(t, calls)
}

func TestChainStopsOnHardError(t *testing.T) {
	boom := errors.New("keyring locked")
	_, err := Chain{
		Static(""),
		ProviderFunc(func() (string, error) { return "", boom }),
		Static("unreached"),
	}.Token()
	assert.ErrorIs(t, err, boom)
}

func TestChainEmpty(t *testing.T) {
	_, err := Chain{Static(" ")}.Token()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestEnvProvider(t *testing.T) {
	t.Setenv(EnvToken, "")
	_, err := EnvProvider{}.Token()
	assert.ErrorIs(t, err, ErrNoToken)

	t.Setenv(EnvToken, "env-token")
	token, err := EnvProvider{}.Token()
	require.NoError(t, err)
	assert.Equal(t, "env-token", token)
}

func TestInspect(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "freelancer-17",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	id := Inspect(signed)
	assert.False(t, id.Opaque)
	assert.Equal(t, "freelancer-17", id.Subject)
	assert.True(t, id.ExpiresAt.Equal(exp))
	assert.False(t, id.Expired(exp.Add(-time.Hour)))
	assert.True(t, id.Expired(exp.Add(time.Hour)))
}

func TestInspectUsernameClaim(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": "ana",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	id := Inspect(signed)
	assert.Equal(t, "ana", id.Subject)
	assert.True(t, id.ExpiresAt.IsZero())
	assert.False(t, id.Expired(time.Now()))
}

func TestInspectOpaqueToken(t *testing.T) {
	id := Inspect("9944b09199c62bcf9418ad846dd0e4bbdfc6ee4b")
	assert.True(t, id.Opaque)
	assert.Empty(t, id.Subject)
}
