package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/auth"
	"taskboard/internal/middleware"
)

const (
	testSecret = "middleware-secret"
	testIssuer = "taskboard"
)

func setupAuthzRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(middleware.AuthzMiddleware(middleware.AuthzConfig{Secret: testSecret, Issuer: testIssuer, Logger: quietLogger()}))
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user":  c.GetString(middleware.UserIDKey),
			"teams": c.GetStringSlice(middleware.TeamsKey),
		})
	})
	return router
}

func request(router http.Handler, header string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthzMiddleware_ValidToken(t *testing.T) {
	token, err := auth.IssueToken(testSecret, testIssuer, "user-42", time.Hour)
	require.NoError(t, err)

	w := request(setupAuthzRouter(), "Bearer "+token)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"user-42","teams":null}`, w.Body.String())
}

func TestAuthzMiddleware_StoresTeams(t *testing.T) {
	token, err := auth.IssueToken(testSecret, testIssuer, "user-42", time.Hour, "team-a")
	require.NoError(t, err)

	w := request(setupAuthzRouter(), "Bearer "+token)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"user-42","teams":["team-a"]}`, w.Body.String())
}

func TestAuthzMiddleware_Rejections(t *testing.T) {
	expired, err := auth.IssueToken(testSecret, testIssuer, "user-42", -time.Minute)
	require.NoError(t, err)
	foreign, err := auth.IssueToken("other-secret", testIssuer, "user-42", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"no header", "", "missing_token"},
		{"not bearer", "Basic abc", "invalid_token_format"},
		{"garbage", "Bearer invalid_token", "invalid_token"},
		{"expired", "Bearer " + expired, "expired_token"},
		{"wrong secret", "Bearer " + foreign, "invalid_token"},
	}

	router := setupAuthzRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := request(router, tt.header)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"`+tt.code+`","message":"Invalid or expired token"}`, w.Body.String())
		})
	}
}
