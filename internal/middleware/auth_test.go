package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/tallerco/shopcore/internal/auth"
)

func newAuthTestRouter(t *testing.T) (*gin.Engine, *iauth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "middleware-test-secret"})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/protected", Auth(jwtSvc), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(CtxUserIDKey)})
	})
	return router, jwtSvc
}

func TestAuthMiddlewareAcceptsHeaderToken(t *testing.T) {
	router, jwtSvc := newAuthTestRouter(t)

	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "user-1")
}

func TestAuthMiddlewareAcceptsQueryToken(t *testing.T) {
	router, jwtSvc := newAuthTestRouter(t)

	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: "user-2"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected?token="+token, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "user-2")
}

func TestAuthMiddlewareRejectsMissingAndInvalidTokens(t *testing.T) {
	router, _ := newAuthTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
