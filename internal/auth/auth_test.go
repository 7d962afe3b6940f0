package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auditflow/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateToken(t *testing.T) {
	svc := NewJWTService("test-secret", "auditflow", nil)
	ctx := context.Background()

	token, err := svc.IssueToken("l1-inspector", []string{"l1"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{UserID: "l1-inspector", Roles: []string{"l1"}}, claims.Actor())

	_, err = NewJWTService("other-secret", "auditflow", nil).ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = NewJWTService("test-secret", "someone-else", nil).ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &TokenClaims{
		UserID: "l1-inspector",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "auditflow",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestExtractTokenFromBearer(t *testing.T) {
	assert.Equal(t, "abc", ExtractTokenFromBearer("Bearer abc"))
	assert.Equal(t, "abc", ExtractTokenFromBearer("abc"))
	assert.Equal(t, "Bearer ", ExtractTokenFromBearer("Bearer "))
}

func newRouter(svc *JWTService, roles ...domain.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(svc), RequireRole(roles...), func(c *gin.Context) {
		actor, _ := GetActor(c)
		fromCtx, _ := ActorFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user": actor.UserID, "ctx_user": fromCtx.UserID})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	svc := NewJWTService("test-secret", "auditflow", nil)
	r := newRouter(svc, domain.RoleL2, domain.RoleAdmin)

	l2, err := svc.IssueToken("l2-approver", []string{"l2"})
	require.NoError(t, err)
	l1, err := svc.IssueToken("l1-inspector", []string{"l1"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		url    string
		header string
		status int
	}{
		{name: "missing token", url: "/me", status: http.StatusUnauthorized},
		{name: "garbage token", url: "/me", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "wrong role", url: "/me", header: "Bearer " + l1, status: http.StatusForbidden},
		{name: "header token", url: "/me", header: "Bearer " + l2, status: http.StatusOK},
		{name: "query token", url: "/me?access_token=" + l2, status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"user":"l2-approver","ctx_user":"l2-approver"}`, w.Body.String())
			}
		})
	}
}
