package security

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "promptdock"

// ErrInvalidToken reports a token that failed parsing or verification.
var ErrInvalidToken = errors.New("invalid token")

// UserClaims are the JWT claims issued to signed-in users.
type UserClaims struct {
	UserID   uint64 `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// IssueUserToken signs an HS256 token for the user.
func IssueUserToken(secret string, userID uint64, username string, expiry time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("issue token: empty secret")
	}
	claims := UserClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return signed, nil
}

// ParseUserToken verifies token and returns its claims.
func ParseUserToken(secret, token string) (*UserClaims, error) {
	if strings.TrimSpace(secret) == "" || strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	claims := &UserClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
// It returns "" when the header is missing or not a bearer credential.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}

// TokenAuthenticator resolves bearer tokens to user IDs.
type TokenAuthenticator struct {
	Secret string
}

// Authenticate returns the user ID carried by token.
func (a TokenAuthenticator) Authenticate(_ context.Context, token string) (uint64, error) {
	claims, err := ParseUserToken(a.Secret, token)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}
