package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long an issued session token stays valid.
const DefaultTokenTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the JWT payload for a Mini App session.
type Claims struct {
	TelegramID int64  `json:"telegram_id"`
	Name       string `json:"name"`
	IsManager  bool   `json:"is_manager"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates session tokens with one HMAC secret.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer builds an issuer. ttl <= 0 falls back to DefaultTokenTTL.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue signs a token for the authenticated student.
func (i *TokenIssuer) Issue(ac AuthContext) (string, error) {
	now := time.Now()
	claims := Claims{
		TelegramID: ac.TelegramID,
		Name:       ac.Name,
		IsManager:  ac.IsManager,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", ac.TelegramID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses a signed token and returns the session it carries.
// Expired or tampered tokens come back as ErrInvalidToken.
func (i *TokenIssuer) Validate(raw string) (AuthContext, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return AuthContext{}, ErrInvalidToken
	}
	if claims.TelegramID == 0 {
		return AuthContext{}, ErrInvalidToken
	}
	return AuthContext{
		TelegramID: claims.TelegramID,
		Name:       claims.Name,
		IsManager:  claims.IsManager,
	}, nil
}

// TTL reports the configured token lifetime.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}
