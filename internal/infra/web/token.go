package web

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CallbackTokenManager mints and verifies the signed token embedded in the
// callback URL handed to the provider. The token binds the callback to its
// session; an invalid token only demotes the webhook to job-link resolution,
// it never rejects the request.
type CallbackTokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewCallbackTokenManager(secret string, ttl time.Duration) *CallbackTokenManager {
	return &CallbackTokenManager{secret: []byte(secret), ttl: ttl}
}

type callbackClaims struct {
	jwt.RegisteredClaims
}

func (m *CallbackTokenManager) Mint(sessionID string) (string, error) {
	now := time.Now()
	claims := callbackClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify returns the session id the token was minted for.
func (m *CallbackTokenManager) Verify(tok string) (string, error) {
	claims := &callbackClaims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", errors.New("invalid callback token")
	}
	return claims.Subject, nil
}
