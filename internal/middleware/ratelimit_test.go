package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// setupTestRedis creates a Redis client for testing.
// Make sure Redis is running on localhost:6379.
func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use DB 15 for testing to avoid conflicts
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping test")
	}

	client.FlushDB(ctx)
	return client
}

func setupLimitedRouter(limiter *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(limiter.Middleware())
	router.GET("/qr/:key", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	return router
}

func TestRateLimitAllowsWithinWindow(t *testing.T) {
	redisClient := setupTestRedis(t)
	defer redisClient.Close()

	limiter := NewRateLimiter(redisClient, 5, time.Second)
	router := setupLimitedRouter(limiter)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/qr/abc123", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code, "Request %d should succeed", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	redisClient := setupTestRedis(t)
	defer redisClient.Close()

	limiter := NewRateLimiter(redisClient, 3, 2*time.Second)
	router := setupLimitedRouter(limiter)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/qr/abc123", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "Request %d should succeed", i+1)
	}

	req := httptest.NewRequest("GET", "/qr/abc123", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimitWindowSlides(t *testing.T) {
	redisClient := setupTestRedis(t)
	defer redisClient.Close()

	limiter := NewRateLimiter(redisClient, 2, time.Second)
	router := setupLimitedRouter(limiter)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/qr/abc123", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest("GET", "/qr/abc123", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// After the window passes, requests are allowed again.
	time.Sleep(1100 * time.Millisecond)

	req = httptest.NewRequest("GET", "/qr/abc123", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitFailsOpen(t *testing.T) {
	// Unreachable Redis must not block traffic.
	client := redis.NewClient(&redis.Options{
		Addr:        "localhost:1",
		DialTimeout: 100 * time.Millisecond,
	})
	defer client.Close()

	limiter := NewRateLimiter(client, 1, time.Second)
	router := setupLimitedRouter(limiter)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/qr/abc123", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
