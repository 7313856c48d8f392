package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrtrack/qr-track/config"
	"github.com/qrtrack/qr-track/internal/filter"
	"github.com/qrtrack/qr-track/internal/keygen"
	"github.com/qrtrack/qr-track/internal/repository"
	"github.com/qrtrack/qr-track/internal/service"
	"github.com/qrtrack/qr-track/internal/utils"
)

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gen, err := keygen.New(config.KeyGenConfig{
		Length:      10,
		Lowercase:   true,
		Uppercase:   true,
		Digits:      true,
		MaxAttempts: 10,
	})
	require.NoError(t, err)

	ids, err := utils.NewIDSource(0, 0)
	require.NoError(t, err)

	tracker := service.NewTracker(
		repository.NewMemory(),
		gen,
		ids,
		nil,
		filter.NewKeyFilter(1000, 0.01),
		map[string]string{"fill_color": "#000000", "back_color": "#ffffff"},
	)
	h := NewQRHandler(tracker, "http://localhost:8080")

	router := gin.New()
	router.GET("/health", h.HealthCheck)
	qr := router.Group("/qr")
	{
		qr.GET("/:key", h.Redirect)
		qr.GET("/:key/stats", h.Stats)
		qr.GET("/:key/data", h.Data)
		qr.PUT("/:key/style", h.UpdateStyle)
		qr.POST("/:key/reset", h.Reset)
		qr.DELETE("/:key", h.Delete)
	}
	router.POST("/api/v1/qr", h.Create)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doAuth(t *testing.T, router *gin.Engine, method, path, password string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if password != "" {
		req.Header.Set(AccessPasswordHeader, password)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp struct {
		Code int                    `json:"code"`
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data
}

func TestCreateAndRedirect(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/qr", CreateRequest{URL: "example.com", Key: "abc123"})
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "abc123", data["key"])
	assert.Equal(t, "http://localhost:8080/qr/abc123", data["url"])

	w = doJSON(t, router, "GET", "/qr/abc123", nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com", w.Header().Get("Location"))

	w = doJSON(t, router, "GET", "/qr/abc123/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeData(t, w)
	assert.Equal(t, float64(1), stats["count"])
}

func TestCreateGeneratesKey(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/qr", CreateRequest{URL: "https://example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Len(t, data["key"], 10)
}

func TestCreateRequiresURL(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/qr", map[string]string{"key": "abc123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateConflict(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/qr", CreateRequest{URL: "example.com", Key: "abc123"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "POST", "/api/v1/qr", CreateRequest{URL: "other.com", Key: "abc123"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRedirectUnknownKey(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "GET", "/qr/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatsAuthFlow(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/qr", CreateRequest{URL: "example.com", Key: "abc123", Password: "secret"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "GET", "/qr/abc123/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// The password travels in a header only; a query parameter is ignored
	// so secrets never land in access logs.
	w = doJSON(t, router, "GET", "/qr/abc123/stats?password=secret", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doAuth(t, router, "GET", "/qr/abc123/stats", "wrong", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doAuth(t, router, "GET", "/qr/abc123/stats", "secret", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeData(t, w)
	assert.Equal(t, true, stats["protected"])
}

func TestDataEndpoint(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/qr", CreateRequest{URL: "example.com", Key: "abc123"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "GET", "/qr/abc123", nil)
	require.Equal(t, http.StatusFound, w.Code)

	w = doJSON(t, router, "GET", "/qr/abc123/data", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(1), data["count"])

	timestamps, ok := data["timestamps"].([]interface{})
	require.True(t, ok)
	require.Len(t, timestamps, 1)
	_, err := time.Parse(time.RFC3339, timestamps[0].(string))
	assert.NoError(t, err)
}

func TestUpdateStyle(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/qr", CreateRequest{URL: "example.com", Key: "abc123"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "PUT", "/qr/abc123/style", StyleRequest{
		Style: map[string]string{"fill_color": "#ff0000"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "GET", "/qr/abc123/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeData(t, w)
	style, ok := stats["style"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "#ff0000", style["fill_color"])
	assert.Equal(t, "#ffffff", style["back_color"])
}

func TestResetAndDelete(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/qr", CreateRequest{URL: "example.com", Key: "abc123", Password: "secret"})
	require.Equal(t, http.StatusOK, w.Code)

	for i := 0; i < 3; i++ {
		w = doJSON(t, router, "GET", "/qr/abc123", nil)
		require.Equal(t, http.StatusFound, w.Code)
	}

	w = doAuth(t, router, "POST", "/qr/abc123/reset", "secret", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doAuth(t, router, "GET", "/qr/abc123/stats", "secret", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeData(t, w)
	assert.Equal(t, float64(0), stats["count"])

	w = doJSON(t, router, "DELETE", "/qr/abc123", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doAuth(t, router, "DELETE", "/qr/abc123", "secret", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "GET", "/qr/abc123", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthCheck(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
