// Package api holds the request plumbing shared by the HTTP route groups.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/promptdock/internal/models"
	"github.com/router-for-me/promptdock/internal/security"
	"gorm.io/gorm"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "userID"

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (uint64, error)
}

// ErrUserInactive is returned for tokens of disabled or deleted users.
var ErrUserInactive = errors.New("user not found or disabled")

// UserAuthenticator verifies a user token and checks the user is still active.
type UserAuthenticator struct {
	db     *gorm.DB
	tokens security.TokenAuthenticator
}

// NewUserAuthenticator constructs a UserAuthenticator.
func NewUserAuthenticator(db *gorm.DB, jwtSecret string) *UserAuthenticator {
	return &UserAuthenticator{db: db, tokens: security.TokenAuthenticator{Secret: jwtSecret}}
}

// Authenticate implements Authenticator.
func (a *UserAuthenticator) Authenticate(ctx context.Context, token string) (uint64, error) {
	userID, err := a.tokens.Authenticate(ctx, token)
	if err != nil {
		return 0, err
	}
	var user models.User
	if errFind := a.db.WithContext(ctx).Select("id", "active").First(&user, userID).Error; errFind != nil {
		return 0, ErrUserInactive
	}
	if !user.Active {
		return 0, ErrUserInactive
	}
	return user.ID, nil
}

// RequireUser rejects requests without a valid bearer token and stores the user id on the context.
func RequireUser(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		token := security.BearerToken(authHeader)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		userID, errAuth := auth.Authenticate(c.Request.Context(), token)
		if errAuth != nil || userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// UserID returns the id stored by RequireUser.
func UserID(c *gin.Context) (uint64, bool) {
	value, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(uint64)
	return id, ok && id != 0
}
