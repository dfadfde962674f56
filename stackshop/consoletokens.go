package stackshop

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"encore.app/internal/openstack"
)

// consoleTokenClaims is what a console session token carries. The type
// discriminator keeps console tokens from being confused with any other JWT
// signed by the same service secret.
type consoleTokenClaims struct {
	InstanceID  string `json:"instanceId"`
	ConsoleType string `json:"consoleType"`
	TokenType   string `json:"type"`
	jwt.RegisteredClaims
}

const consoleTokenType = "console"

type consoleTokenManager struct {
	secret []byte
	ttl    time.Duration
}

func newConsoleTokenManager(secret string, ttl time.Duration) *consoleTokenManager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &consoleTokenManager{secret: []byte(secret), ttl: ttl}
}

func (m *consoleTokenManager) TTL() time.Duration { return m.ttl }

// Mint issues a signed token for (user, instance, console type) expiring
// TTL from now.
func (m *consoleTokenManager) Mint(userID, instanceID string, consoleType openstack.ConsoleType) (string, time.Time, error) {
	if len(m.secret) == 0 {
		return "", time.Time{}, errors.New("session secret not configured")
	}
	now := time.Now()
	expiresAt := now.Add(m.ttl)
	claims := &consoleTokenClaims{
		InstanceID:  instanceID,
		ConsoleType: string(consoleType),
		TokenType:   consoleTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature, structure, and the type discriminator. It does not
// consult the session table; callers needing liveness must look the session up.
func (m *consoleTokenManager) Verify(token string) (*consoleTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("token is required")
	}
	var claims consoleTokenClaims
	// Expiry lives on the session row, which can be renewed after the token was
	// minted; skip the embedded exp check.
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != consoleTokenType {
		return nil, errors.New("not a console token")
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.InstanceID) == "" {
		return nil, errors.New("token missing subject or instance")
	}
	return &claims, nil
}
