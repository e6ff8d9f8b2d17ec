package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func adminTestRouter(adminKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin/ping", AdminAuth(adminKey), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pong": true})
	})
	return r
}

func TestAdminAuth(t *testing.T) {
	testCases := []struct {
		name       string
		configured string
		header     string
		wantStatus int
	}{
		{
			name:       "valid key",
			configured: "secret",
			header:     "secret",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header",
			configured: "secret",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong key",
			configured: "secret",
			header:     "guess",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "admin surface disabled",
			configured: "",
			header:     "anything",
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := adminTestRouter(tc.configured)

			req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
			if tc.header != "" {
				req.Header.Set(AdminKeyHeader, tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tc.wantStatus, w.Code)
		})
	}
}

func TestIsOriginAllowed(t *testing.T) {
	allowAll := CORSConfig{AllowAllOrigins: true}
	require.True(t, IsOriginAllowed("https://anything.test", allowAll))

	listed := CORSConfig{AllowedOrigins: []string{"https://app.test"}}
	require.True(t, IsOriginAllowed("https://app.test", listed))
	require.True(t, IsOriginAllowed("https://APP.test", listed))
	require.False(t, IsOriginAllowed("https://evil.test", listed))
}
