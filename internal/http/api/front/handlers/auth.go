package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/promptdock/internal/config"
	"github.com/router-for-me/promptdock/internal/http/api"
	"github.com/router-for-me/promptdock/internal/models"
	"github.com/router-for-me/promptdock/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// defaultTokenExpiry applies when the config leaves jwt.expiry unset.
const defaultTokenExpiry = 720 * time.Hour

// AuthHandler signs users in and manages their second factor.
type AuthHandler struct {
	db  *gorm.DB
	jwt config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig) *AuthHandler {
	if jwtCfg.Expiry <= 0 {
		jwtCfg.Expiry = defaultTokenExpiry
	}
	return &AuthHandler{db: db, jwt: jwtCfg}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code"`
}

// Login verifies the password and, when enabled, the TOTP code, then issues a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	var user models.User
	errFind := h.db.WithContext(c.Request.Context()).
		Where("username = ?", strings.TrimSpace(body.Username)).
		First(&user).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			log.WithError(errFind).Error("login: load user failed")
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	if !user.Active || !security.CheckPassword(user.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}

	now := time.Now().UTC()
	if strings.TrimSpace(user.TOTPSecret) != "" {
		if strings.TrimSpace(body.TOTPCode) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "totp code required", "totp_required": true})
			return
		}
		if !security.ValidateTOTP(user.TOTPSecret, body.TOTPCode, now) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid totp code", "totp_required": true})
			return
		}
	}

	token, errIssue := security.IssueUserToken(h.jwt.Secret, user.ID, user.Username, h.jwt.Expiry, now)
	if errIssue != nil {
		log.WithError(errIssue).Error("login: issue token failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": now.Add(h.jwt.Expiry),
		"user": gin.H{
			"id":           user.ID,
			"username":     user.Username,
			"totp_enabled": user.TOTPSecret != "",
		},
	})
}

// PrepareTOTP returns a fresh secret for the caller to enroll in an authenticator app.
// Nothing is stored until ConfirmTOTP succeeds.
func (h *AuthHandler) PrepareTOTP(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	secret, otpURL, errGenerate := security.GenerateTOTPSecret(user.Username)
	if errGenerate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate totp secret failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"secret": secret, "otpauth_url": otpURL})
}

type confirmTOTPRequest struct {
	Secret string `json:"secret" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

// ConfirmTOTP stores the secret once the caller proves they can generate codes for it.
func (h *AuthHandler) ConfirmTOTP(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var body confirmTOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "secret and code are required"})
		return
	}
	if !security.ValidateTOTP(body.Secret, body.Code, time.Now().UTC()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid totp code"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{"totp_secret": strings.TrimSpace(body.Secret), "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enable totp failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"totp_enabled": true})
}

// DisableTOTP removes the caller's second factor.
func (h *AuthHandler) DisableTOTP(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{"totp_secret": "", "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable totp failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"totp_enabled": false})
}

// Me returns the signed-in user.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           user.ID,
		"username":     user.Username,
		"totp_enabled": user.TOTPSecret != "",
		"created_at":   user.CreatedAt,
	})
}

func (h *AuthHandler) currentUser(c *gin.Context) (*models.User, bool) {
	userID, ok := api.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return nil, false
	}
	return &user, true
}
