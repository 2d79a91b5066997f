package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/promptdock/internal/http/api"
	"github.com/router-for-me/promptdock/internal/models"
	"github.com/router-for-me/promptdock/internal/usage"
)

// defaultSummaryWindow is used when the since parameter is absent.
const defaultSummaryWindow = 30 * 24 * time.Hour

// UsageHandler reports the caller's proxied calls.
type UsageHandler struct {
	recorder *usage.GormRecorder
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(recorder *usage.GormRecorder) *UsageHandler {
	return &UsageHandler{recorder: recorder}
}

// List returns recent calls. limit caps the page size.
func (h *UsageHandler) List(c *gin.Context) {
	userID, ok := api.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	rows, errList := h.recorder.List(c.Request.Context(), userID, limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list usage failed"})
		return
	}
	if rows == nil {
		rows = []models.ProxyCall{}
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows})
}

// Summary aggregates calls per provider since an RFC 3339 timestamp (default: last 30 days).
func (h *UsageHandler) Summary(c *gin.Context) {
	userID, ok := api.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	since := time.Now().UTC().Add(-defaultSummaryWindow)
	if raw := c.Query("since"); raw != "" {
		parsed, errParse := time.Parse(time.RFC3339, raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		since = parsed
	}
	summary, errSum := h.recorder.Summarize(c.Request.Context(), userID, since)
	if errSum != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "summarize usage failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since.UTC(), "providers": summary})
}
