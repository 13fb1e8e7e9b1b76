package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

// Fetcher is the slice of app.GatewayService the handler needs.
type Fetcher interface {
	Fetch(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
}

// GatewayHandler proxies reads to the barrage-fly backend.
type GatewayHandler struct {
	fetcher Fetcher
}

// NewGatewayHandler creates a gateway handler. Panics if fetcher is nil.
func NewGatewayHandler(fetcher Fetcher) *GatewayHandler {
	if fetcher == nil {
		panic("handlers: fetcher is required")
	}

	return &GatewayHandler{fetcher: fetcher}
}

// Fetch handles GET /api/*path.
// The backend sees the same path and query. The response body is the unwrapped
// data field, or null when the backend sent none. A payload that is not JSON,
// such as a plain-text body, is sent as a JSON string.
func (h *GatewayHandler) Fetch(c *gin.Context) {
	data, err := h.fetcher.Fetch(c.Request.Context(), c.Param("path"), c.Request.URL.Query())
	if err != nil {
		RespondWithFailure(c, err)
		return
	}

	if len(data) == 0 {
		data = json.RawMessage("null")
	} else if !json.Valid(data) {
		quoted, err := json.Marshal(string(data))
		if err != nil {
			RespondWithFailure(c, err)
			return
		}

		data = quoted
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// RegisterGatewayRoutes registers the passthrough route on rg.
func (h *GatewayHandler) RegisterGatewayRoutes(rg *gin.RouterGroup) {
	rg.GET("/*path", h.Fetch)
}
