package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/promptdock/internal/catalog"
	"github.com/router-for-me/promptdock/internal/providers"
	"github.com/router-for-me/promptdock/internal/registry"
	log "github.com/sirupsen/logrus"
)

// ProviderHandler serves the normalized model catalog.
type ProviderHandler struct {
	registry *registry.Registry
}

// NewProviderHandler constructs a ProviderHandler.
func NewProviderHandler(reg *registry.Registry) *ProviderHandler {
	return &ProviderHandler{registry: reg}
}

// Models returns every cached catalog and the state of the last refresh.
func (h *ProviderHandler) Models(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.State().Aggregate())
}

// ProviderModels returns one provider's cached catalog.
func (h *ProviderHandler) ProviderModels(c *gin.Context) {
	id, ok := providerParam(c)
	if !ok {
		return
	}
	models, _ := h.registry.Models(id)
	if models == nil {
		models = []catalog.NormalizedModel{}
	}
	c.JSON(http.StatusOK, registry.ProviderResponse{Models: models})
}

// Refresh refetches one provider synchronously. On failure the cached catalog is kept and 502 is returned.
func (h *ProviderHandler) Refresh(c *gin.Context) {
	id, ok := providerParam(c)
	if !ok {
		return
	}
	models, errRefresh := h.registry.RefreshOne(c.Request.Context(), id)
	if errRefresh != nil {
		log.WithError(errRefresh).Warnf("refresh %s catalog failed", id)
		c.JSON(http.StatusBadGateway, gin.H{"error": "refresh failed", "details": errRefresh.Error()})
		return
	}
	if models == nil {
		models = []catalog.NormalizedModel{}
	}
	c.JSON(http.StatusOK, registry.ProviderResponse{Models: models})
}

// Recommendations ranks the cached models for a task, optionally limited to one provider.
func (h *ProviderHandler) Recommendations(c *gin.Context) {
	task, ok := registry.ParseTask(c.Query("task"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task must be one of: generate improve vision research"})
		return
	}
	var models []catalog.NormalizedModel
	if raw := strings.TrimSpace(c.Query("provider")); raw != "" {
		id := providers.Normalize(raw)
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
			return
		}
		models, _ = h.registry.Models(id)
	} else {
		models = h.registry.Snapshot().All()
	}
	out := registry.Recommend(models, task)
	if out == nil {
		out = []catalog.NormalizedModel{}
	}
	c.JSON(http.StatusOK, gin.H{"task": task, "models": out})
}

func providerParam(c *gin.Context) (providers.ID, bool) {
	id := providers.Normalize(c.Param("provider"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
		return "", false
	}
	return id, true
}
