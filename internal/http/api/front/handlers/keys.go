package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/promptdock/internal/http/api"
	"github.com/router-for-me/promptdock/internal/models"
	"github.com/router-for-me/promptdock/internal/providers"
	"github.com/router-for-me/promptdock/internal/store"
	log "github.com/sirupsen/logrus"
)

// KeyHandler manages the caller's encrypted provider keys.
type KeyHandler struct {
	store *store.GormKeyStore
}

// NewKeyHandler constructs a KeyHandler.
func NewKeyHandler(s *store.GormKeyStore) *KeyHandler {
	return &KeyHandler{store: s}
}

type createKeyRequest struct {
	Provider      string             `json:"provider" binding:"required"`
	APIKey        string             `json:"api_key" binding:"required"`
	ModelDefaults *models.RoleModels `json:"model_defaults"`
}

type updateKeyRequest struct {
	APIKey        *string            `json:"api_key"`
	ModelDefaults *models.RoleModels `json:"model_defaults"`
}

type activateKeyRequest struct {
	Role   string `json:"role"`
	Active *bool  `json:"active"`
}

// List returns the caller's keys. Only the hint of each plaintext key is exposed.
func (h *KeyHandler) List(c *gin.Context) {
	owner, ok := api.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	rows, errList := h.store.List(c.Request.Context(), owner)
	if errList != nil {
		log.WithError(errList).Error("list keys failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list keys failed"})
		return
	}
	if rows == nil {
		rows = []models.ProviderAPIKey{}
	}
	c.JSON(http.StatusOK, gin.H{"keys": rows})
}

// Create stores a new key for a provider the caller has no key for yet.
func (h *KeyHandler) Create(c *gin.Context) {
	owner, ok := api.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body createKeyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider and api_key are required"})
		return
	}
	if strings.TrimSpace(body.APIKey) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key is required"})
		return
	}
	_, errGet := h.findByProvider(c, owner, body.Provider)
	switch {
	case errGet == nil:
		c.JSON(http.StatusConflict, gin.H{"error": "key already exists for provider"})
		return
	case !errors.Is(errGet, store.ErrKeyNotFound):
		log.WithError(errGet).Error("load keys failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load keys failed"})
		return
	}

	row, errSave := h.store.Save(c.Request.Context(), store.SaveInput{
		OwnerID:       owner,
		Provider:      body.Provider,
		APIKey:        body.APIKey,
		ModelDefaults: body.ModelDefaults,
	})
	if errSave != nil {
		writeStoreError(c, errSave, "create key failed")
		return
	}
	c.JSON(http.StatusCreated, row)
}

// Update replaces the key material and/or the default models of one key.
func (h *KeyHandler) Update(c *gin.Context) {
	owner, id, ok := ownerAndID(c)
	if !ok {
		return
	}
	var body updateKeyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.APIKey == nil && body.ModelDefaults == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no updatable fields"})
		return
	}
	if body.APIKey != nil && strings.TrimSpace(*body.APIKey) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key must not be empty"})
		return
	}

	existing, errGet := h.store.Get(c.Request.Context(), owner, id)
	if errGet != nil {
		writeStoreError(c, errGet, "load key failed")
		return
	}
	input := store.SaveInput{
		OwnerID:       owner,
		Provider:      existing.Provider,
		ModelDefaults: body.ModelDefaults,
	}
	if body.APIKey != nil {
		input.APIKey = *body.APIKey
	}
	row, errSave := h.store.Save(c.Request.Context(), input)
	if errSave != nil {
		writeStoreError(c, errSave, "update key failed")
		return
	}
	c.JSON(http.StatusOK, row)
}

// Delete removes one key.
func (h *KeyHandler) Delete(c *gin.Context) {
	owner, id, ok := ownerAndID(c)
	if !ok {
		return
	}
	if errDelete := h.store.Delete(c.Request.Context(), owner, id); errDelete != nil {
		writeStoreError(c, errDelete, "delete key failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// Activate switches a role on (default) or off for one key.
// Activating clears the role on every other key of the caller.
func (h *KeyHandler) Activate(c *gin.Context) {
	owner, id, ok := ownerAndID(c)
	if !ok {
		return
	}
	var body activateKeyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	role, valid := models.ParseRole(strings.TrimSpace(body.Role))
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be one of: gen improve vision"})
		return
	}
	active := true
	if body.Active != nil {
		active = *body.Active
	}
	row, errSet := h.store.SetActive(c.Request.Context(), owner, id, role, active)
	if errSet != nil {
		writeStoreError(c, errSet, "activate key failed")
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *KeyHandler) findByProvider(c *gin.Context, owner uint64, provider string) (*models.ProviderAPIKey, error) {
	rows, errList := h.store.List(c.Request.Context(), owner)
	if errList != nil {
		return nil, errList
	}
	id := providers.Normalize(provider)
	for i := range rows {
		if id != "" && rows[i].Provider == string(id) {
			return &rows[i], nil
		}
	}
	return nil, store.ErrKeyNotFound
}

func ownerAndID(c *gin.Context) (uint64, uint64, bool) {
	owner, ok := api.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return 0, 0, false
	}
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, 0, false
	}
	return owner, id, true
}

func writeStoreError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrKeyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
	case errors.Is(err, store.ErrInvalidProvider):
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider must be one of: openai gemini anthropic openrouter"})
	case errors.Is(err, store.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be one of: gen improve vision"})
	case errors.Is(err, store.ErrMissingKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key is required"})
	case errors.Is(err, store.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "key already exists for provider"})
	default:
		log.WithError(err).Error(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
