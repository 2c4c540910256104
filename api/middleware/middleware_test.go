package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/statuswatch/config"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(r *gin.Engine, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/", func(c *gin.Context) { seen = c.GetString("request_id") })

	rec := serve(r, "", "")
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	require.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	provided := uuid.NewString()
	rec = serve(r, RequestIDHeader, provided)
	require.Equal(t, provided, rec.Header().Get(RequestIDHeader))

	rec = serve(r, RequestIDHeader, "not-a-uuid")
	require.NotEqual(t, "not-a-uuid", rec.Header().Get(RequestIDHeader))
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"x-api-key", "X-API-Key", "k1", http.StatusOK},
		{"bearer", "Authorization", "Bearer k2", http.StatusOK},
		{"wrong", "X-API-Key", "nope", http.StatusUnauthorized},
		{"basic", "Authorization", "Basic k1", http.StatusUnauthorized},
	}
	r := gin.New()
	r.Use(Auth([]string{"k1", "k2", ""}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, serve(r, tt.header, tt.value).Code)
		})
	}
}

func TestAuth_NoKeysIsOpen(t *testing.T) {
	r := gin.New()
	r.Use(Auth([]string{""}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	require.Equal(t, http.StatusOK, serve(r, "", "").Code)
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.Use(RateLimit(ctx, config.RateLimitConfig{RequestsPerSecond: 0.5, Burst: 2}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	require.Equal(t, http.StatusOK, serve(r, "", "").Code)
	require.Equal(t, http.StatusOK, serve(r, "", "").Code)
	rec := serve(r, "", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "2", rec.Header().Get("Retry-After"))
}
