package credential

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// EnvToken is the environment variable checked before the keyring.
const EnvToken = "GIGBELL_TOKEN"

// ErrNoToken is returned when no provider holds a bearer token.
var ErrNoToken = errors.New("no API token configured")

// Provider hands out the bearer token used to authenticate the
// notification stream. Connection code receives a Provider (or the token
// itself) instead of reading credentials on its own.
type Provider interface {
	Token() (string, error)
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func() (string, error)

// Token calls f.
func (f ProviderFunc) Token() (string, error) { return f() }

// Static always returns the same token. An empty token yields ErrNoToken.
type Static string

// Token returns the static token.
func (s Static) Token() (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// EnvProvider reads the token from GIGBELL_TOKEN.
type EnvProvider struct{}

// Token returns the environment token or ErrNoToken.
func (EnvProvider) Token() (string, error) {
	return Static(os.Getenv(EnvToken)).Token()
}

// KeyringProvider reads the token from the system keyring.
type KeyringProvider struct{}

// Token returns the stored token or ErrNoToken.
func (KeyringProvider) Token() (string, error) {
	token, err := Get(TokenKey)
	if err != nil {
		return "", err
	}
	return Static(token).Token()
}

// Chain tries each provider in order and returns the first token found.
// Errors other than ErrNoToken stop the search.
type Chain []Provider

// Token walks the chain.
func (c Chain) Token() (string, error) {
	for _, p := range c {
		token, err := p.Token()
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrNoToken) {
			return "", err
		}
	}
	return "", ErrNoToken
}

// DefaultProvider checks the environment, then the keyring.
func DefaultProvider() Provider {
	return Chain{EnvProvider{}, KeyringProvider{}}
}

// Identity is what can be learned from a token without contacting the
// backend.
type Identity struct {
	Subject   string
	ExpiresAt time.Time
	Opaque    bool
}

// Expired reports whether the token carries an expiry in the past.
func (id Identity) Expired(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && now.After(id.ExpiresAt)
}

// Inspect decodes JWT claims without verifying the signature; the backend
// does the verification. Tokens that are not JWTs are reported as opaque.
func Inspect(token string) Identity {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Identity{Opaque: true}
	}

	id := Identity{}
	if sub, err := claims.GetSubject(); err == nil {
		id.Subject = sub
	}
	if id.Subject == "" {
		for _, key := range []string{"username", "email", "user_id"} {
			if v, ok := claims[key]; ok {
				if s, ok := v.(string); ok && s != "" {
					id.Subject = s
					break
				}
			}
		}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id
}
