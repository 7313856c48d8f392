package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qrtrack/qr-track/internal/model"
	"github.com/qrtrack/qr-track/internal/service"
)

// QRHandler handles HTTP requests for QR tracking operations
type QRHandler struct {
	tracker *service.Tracker
	baseURL string
}

// NewQRHandler creates a new QR handler instance
func NewQRHandler(tracker *service.Tracker, baseURL string) *QRHandler {
	return &QRHandler{
		tracker: tracker,
		baseURL: baseURL,
	}
}

// CreateRequest represents the request body for creating an association
type CreateRequest struct {
	URL      string            `json:"url" binding:"required"`
	Key      string            `json:"key,omitempty"`
	Password string            `json:"password,omitempty"`
	Style    map[string]string `json:"style,omitempty"`
}

// CreateResponse represents the response for a created association
type CreateResponse struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	TargetURL string `json:"target_url"`
	StatsURL  string `json:"stats_url"`
}

// StatsResponse represents the statistics view for a key
type StatsResponse struct {
	Key        string            `json:"key"`
	URL        string            `json:"url"`
	Count      int               `json:"count"`
	Timestamps []string          `json:"timestamps"`
	Style      map[string]string `json:"style"`
	Protected  bool              `json:"protected"`
}

// DataResponse represents the machine-readable impression data for a key
type DataResponse struct {
	Key        string   `json:"key"`
	Count      int      `json:"count"`
	Timestamps []string `json:"timestamps"`
}

// StyleRequest represents the request body for a style update
type StyleRequest struct {
	Style map[string]string `json:"style" binding:"required"`
}

// AccessPasswordHeader carries the password for guarded operations. A
// header keeps the secret out of URLs, which proxies and access logs
// record.
const AccessPasswordHeader = "X-Access-Password"

// Response represents a generic API response
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Create handles POST /api/v1/qr
func (h *QRHandler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code:    http.StatusBadRequest,
			Message: "Invalid request: " + err.Error(),
		})
		return
	}

	assoc, err := h.tracker.Create(c.Request.Context(), service.CreateParams{
		URL:      req.URL,
		Key:      req.Key,
		Password: req.Password,
		Style:    req.Style,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: http.StatusOK,
		Data: CreateResponse{
			Key:       assoc.Key,
			URL:       fmt.Sprintf("%s/qr/%s", h.baseURL, assoc.Key),
			TargetURL: assoc.URL,
			StatsURL:  fmt.Sprintf("%s/qr/%s/stats", h.baseURL, assoc.Key),
		},
	})
}

// Redirect handles GET /qr/:key
func (h *QRHandler) Redirect(c *gin.Context) {
	key := c.Param("key")

	target, err := h.tracker.Resolve(c.Request.Context(), key)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Redirect(http.StatusFound, target)
}

// Stats handles GET /qr/:key/stats
func (h *QRHandler) Stats(c *gin.Context) {
	key := c.Param("key")
	password := c.GetHeader(AccessPasswordHeader)

	view, err := h.tracker.Stats(c.Request.Context(), key, password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: http.StatusOK,
		Data: StatsResponse{
			Key:        view.Key,
			URL:        view.URL,
			Count:      view.Count,
			Timestamps: formatTimestamps(view.Timestamps),
			Style:      view.Style,
			Protected:  view.Protected,
		},
	})
}

// Data handles GET /qr/:key/data
func (h *QRHandler) Data(c *gin.Context) {
	key := c.Param("key")

	data, err := h.tracker.RawData(c.Request.Context(), key)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: http.StatusOK,
		Data: DataResponse{
			Key:        data.Key,
			Count:      data.Count,
			Timestamps: formatTimestamps(data.Timestamps),
		},
	})
}

// UpdateStyle handles PUT /qr/:key/style
func (h *QRHandler) UpdateStyle(c *gin.Context) {
	key := c.Param("key")

	var req StyleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code:    http.StatusBadRequest,
			Message: "Invalid request: " + err.Error(),
		})
		return
	}

	if err := h.tracker.UpdateStyle(c.Request.Context(), key, c.GetHeader(AccessPasswordHeader), req.Style); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "Style updated"})
}

// Reset handles POST /qr/:key/reset
func (h *QRHandler) Reset(c *gin.Context) {
	key := c.Param("key")

	if err := h.tracker.Reset(c.Request.Context(), key, c.GetHeader(AccessPasswordHeader)); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "Impressions reset"})
}

// Delete handles DELETE /qr/:key
func (h *QRHandler) Delete(c *gin.Context) {
	key := c.Param("key")
	password := c.GetHeader(AccessPasswordHeader)

	if err := h.tracker.Delete(c.Request.Context(), key, password); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "Entry deleted"})
}

// HealthCheck handles GET /health
func (h *QRHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "OK",
	})
}

// writeError maps domain result states to HTTP responses. Authentication
// failures deliberately carry a generic message so responses do not leak
// whether a protected resource exists.
func (h *QRHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{
			Code:    http.StatusNotFound,
			Message: "Key not found",
		})
	case errors.Is(err, model.ErrKeyConflict):
		c.JSON(http.StatusConflict, Response{
			Code:    http.StatusConflict,
			Message: "Key already exists",
		})
	case errors.Is(err, model.ErrKeyGenExhausted):
		c.JSON(http.StatusInternalServerError, Response{
			Code:    http.StatusInternalServerError,
			Message: "Failed to generate a key, please try again",
		})
	case errors.Is(err, model.ErrAuthRequired):
		c.JSON(http.StatusUnauthorized, Response{
			Code:    http.StatusUnauthorized,
			Message: "Password required",
		})
	case errors.Is(err, model.ErrAuthRejected):
		c.JSON(http.StatusForbidden, Response{
			Code:    http.StatusForbidden,
			Message: "Authentication failed",
		})
	default:
		c.JSON(http.StatusInternalServerError, Response{
			Code:    http.StatusInternalServerError,
			Message: "Internal error",
		})
	}
}

func formatTimestamps(timestamps []time.Time) []string {
	out := make([]string, len(timestamps))
	for i, ts := range timestamps {
		out[i] = ts.Format(time.RFC3339)
	}
	return out
}
