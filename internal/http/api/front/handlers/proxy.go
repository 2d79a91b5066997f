package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/promptdock/internal/proxy"
	"github.com/router-for-me/promptdock/internal/ratelimit"
)

// maxProxyBody caps the request body read for a proxy call.
const maxProxyBody = 8 << 20

// ProxyHandler exposes the dispatcher over HTTP.
// It runs outside the user middleware because the dispatcher validates the body before authenticating.
type ProxyHandler struct {
	dispatcher *proxy.Dispatcher
}

// NewProxyHandler constructs a ProxyHandler.
func NewProxyHandler(d *proxy.Dispatcher) *ProxyHandler {
	return &ProxyHandler{dispatcher: d}
}

// Forward relays one call to the upstream provider.
func (h *ProxyHandler) Forward(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxProxyBody)
	raw, errRead := c.GetRawData()
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": "request body could not be read"})
		return
	}

	resp, errDispatch := h.dispatcher.Dispatch(c.Request.Context(), c.GetHeader("Authorization"), raw)
	if errDispatch != nil {
		var perr *proxy.Error
		if errors.As(errDispatch, &perr) {
			writeRateLimit(c, perr.RateLimit)
			c.JSON(perr.Status, perr.Body())
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	writeRateLimit(c, resp.RateLimit)
	c.Data(resp.Status, resp.ContentType, resp.Body)
}

func writeRateLimit(c *gin.Context, res *ratelimit.Result) {
	if res != nil {
		res.WriteHeaders(c.Writer.Header(), time.Now())
	}
}
