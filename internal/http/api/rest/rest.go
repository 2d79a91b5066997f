// Package rest serves the generic table backend: GET/POST /api/:table and GET/PUT/DELETE /api/:table/:id.
package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/router-for-me/promptdock/internal/db"
	"github.com/router-for-me/promptdock/internal/filter"
	"github.com/router-for-me/promptdock/internal/http/api"
	"github.com/router-for-me/promptdock/internal/models"
	"github.com/router-for-me/promptdock/internal/providers"
	"gorm.io/gorm"
)

// table describes one exposed table. A nil create makes the table read-only for POST;
// an empty writable map rejects PUT.
type table struct {
	newRow   func() any
	newRows  func() any
	writable map[string]string
	create   func(owner uint64, payload []byte) (any, error)
}

var errInvalidPayload = errors.New("invalid payload")

type promptInput struct {
	Title    string `json:"title" binding:"required,max=500"`
	Body     string `json:"body"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

var tables = map[string]table{
	"prompts": {
		newRow:  func() any { return &models.Prompt{} },
		newRows: func() any { return &[]models.Prompt{} },
		writable: map[string]string{
			"title":    "title",
			"body":     "body",
			"provider": "provider",
			"model":    "model",
		},
		create: func(owner uint64, payload []byte) (any, error) {
			var in promptInput
			if errUnmarshal := json.Unmarshal(payload, &in); errUnmarshal != nil {
				return nil, errInvalidPayload
			}
			if errValidate := binding.Validator.ValidateStruct(&in); errValidate != nil {
				return nil, errInvalidPayload
			}
			now := time.Now().UTC()
			return &models.Prompt{
				OwnerID:   owner,
				Title:     strings.TrimSpace(in.Title),
				Body:      in.Body,
				Provider:  string(providers.Normalize(in.Provider)),
				Model:     strings.TrimSpace(in.Model),
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		},
	},
	"api_keys": {
		newRow:  func() any { return &models.ProviderAPIKey{} },
		newRows: func() any { return &[]models.ProviderAPIKey{} },
	},
}

// Handler serves the generic table routes.
type Handler struct {
	db *gorm.DB
}

// NewHandler constructs a Handler.
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// Register mounts the table routes on an authenticated group.
func (h *Handler) Register(group gin.IRoutes) {
	group.GET("/api/:table", h.List)
	group.POST("/api/:table", h.Create)
	group.GET("/api/:table/:id", h.Get)
	group.PUT("/api/:table/:id", h.Update)
	group.DELETE("/api/:table/:id", h.Delete)
}

func (h *Handler) resolve(c *gin.Context) (string, table, uint64, bool) {
	owner, ok := api.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", table{}, 0, false
	}
	name := c.Param("table")
	spec, ok := tables[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown table"})
		return "", table{}, 0, false
	}
	return name, spec, owner, true
}

func parseID(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// List returns the caller's rows newest first. A provider query parameter filters with
// the "neq." convention for inequality.
func (h *Handler) List(c *gin.Context) {
	name, spec, owner, ok := h.resolve(c)
	if !ok {
		return
	}
	query := "SELECT * FROM " + name
	params := make([]any, 0, 2)
	if raw, present := c.GetQuery("provider"); present {
		query, params = filter.ApplyProviderFilter(query, params, filter.Parse(raw))
	}
	params = append(params, owner)
	query = "SELECT * FROM (" + query + ") AS scoped WHERE owner_id = $" + strconv.Itoa(len(params)) + " ORDER BY created_at DESC, id DESC"

	rows := spec.newRows()
	if errQuery := h.db.WithContext(c.Request.Context()).Raw(db.Rebind(h.db, query), params...).Scan(rows).Error; errQuery != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Get returns one row.
func (h *Handler) Get(c *gin.Context) {
	_, spec, owner, ok := h.resolve(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	row := spec.newRow()
	errFind := h.db.WithContext(c.Request.Context()).Where("id = ? AND owner_id = ?", id, owner).First(row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, row)
}

// Create inserts a row owned by the caller.
func (h *Handler) Create(c *gin.Context) {
	_, spec, owner, ok := h.resolve(c)
	if !ok {
		return
	}
	if spec.create == nil {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "table is read-only"})
		return
	}
	payload, errRead := c.GetRawData()
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	row, errBuild := spec.create(owner, payload)
	if errBuild != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errBuild.Error()})
		return
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(row).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			c.JSON(http.StatusConflict, gin.H{"error": "row already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, row)
}

// Update applies a partial update; only whitelisted keys present in the body change.
func (h *Handler) Update(c *gin.Context) {
	_, spec, owner, ok := h.resolve(c)
	if !ok {
		return
	}
	if len(spec.writable) == 0 {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "table is read-only"})
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body map[string]any
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	updates := make(map[string]any, len(body)+1)
	for key, value := range body {
		column, allowed := spec.writable[key]
		if !allowed {
			continue
		}
		if _, isString := value.(string); !isString && value != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
			return
		}
		if key == "provider" {
			text, _ := value.(string)
			value = string(providers.Normalize(text))
		}
		updates[column] = value
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no updatable fields"})
		return
	}
	updates["updated_at"] = time.Now().UTC()

	ctx := c.Request.Context()
	res := h.db.WithContext(ctx).Model(spec.newRow()).Where("id = ? AND owner_id = ?", id, owner).Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	row := spec.newRow()
	if errReload := h.db.WithContext(ctx).First(row, id).Error; errReload != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reload failed"})
		return
	}
	c.JSON(http.StatusOK, row)
}

// Delete removes one row.
func (h *Handler) Delete(c *gin.Context) {
	_, spec, owner, ok := h.resolve(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	res := h.db.WithContext(c.Request.Context()).Where("id = ? AND owner_id = ?", id, owner).Delete(spec.newRow())
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
