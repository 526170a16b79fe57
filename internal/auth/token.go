// Package auth issues and verifies the anonymous session credential carried
// by participants in the Authorization header.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type sessionClaims struct {
	jwt.RegisteredClaims
}

// TokenService mints and checks signed session credentials. Sessions are
// self-issued and anonymous: the credential only binds a random identifier,
// never a user.
type TokenService struct {
	secret []byte
}

func NewTokenService(secret string) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// IssueOrPassthrough returns the presented credential untouched, or mints a
// fresh one embedding a new random session identifier when none is presented.
func (s *TokenService) IssueOrPassthrough(credential string) (string, error) {
	if credential != "" {
		return credential, nil
	}
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  newSessionID(),
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}

// Verify checks the credential signature and returns the embedded session
// identifier. Any decoding or signature failure maps to ErrInvalidToken.
func (s *TokenService) Verify(credential string) (string, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(credential, &claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// newSessionID draws 128 bits from crypto/rand, enough that collisions
// between independent sessions are not a practical concern.
func newSessionID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
