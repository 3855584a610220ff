package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	tok, err := m.GenerateToken(Principal{UserID: "s-100", Email: "ana@uni.edu", Role: RoleStudent})
	require.NoError(t, err)

	claims, err := m.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "s-100", Email: "ana@uni.edu", Role: RoleStudent}, claims.Principal())
	assert.False(t, claims.Principal().IsAdmin())
}

func TestTokenRejections(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	tok, err := m.GenerateToken(Principal{UserID: "a-1", Role: RoleAdmin})
	require.NoError(t, err)

	_, err = NewJWTManager("other", time.Hour).ValidateToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	late := NewJWTManager("secret", time.Hour)
	late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = late.ValidateToken(tok)
	assert.ErrorIs(t, err, ErrExpiredToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "a-1", Role: RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.ValidateToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.GenerateToken(Principal{UserID: "x", Role: "root"})
	assert.Error(t, err)
}

func TestParsePrincipal(t *testing.T) {
	p, err := ParsePrincipal("dev:admin")
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "dev", Role: RoleAdmin}, p)

	for _, bad := range []string{"", "dev", ":admin", "dev:owner"} {
		_, err := ParsePrincipal(bad)
		assert.Errorf(t, err, "input %q", bad)
	}
}

func TestMiddleware(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	h := server.Default()
	whoami := func(c context.Context, ctx *app.RequestContext) {
		p, _ := FromContext(ctx)
		ctx.String(http.StatusOK, p.UserID)
	}
	h.GET("/me", RequireAuth(m, nil), whoami)
	h.GET("/admin", RequireAuth(m, nil), RequireRole(RoleAdmin), whoami)

	student, _ := m.GenerateToken(Principal{UserID: "s-1", Role: RoleStudent})
	admin, _ := m.GenerateToken(Principal{UserID: "a-1", Role: RoleAdmin})
	bearer := func(tok string) ut.Header { return ut.Header{Key: "Authorization", Value: "Bearer " + tok} }

	w := ut.PerformRequest(h.Engine, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode())

	w = ut.PerformRequest(h.Engine, http.MethodGet, "/me", nil, bearer("garbage"))
	assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode())

	w = ut.PerformRequest(h.Engine, http.MethodGet, "/me", nil, bearer(student))
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
	assert.Equal(t, "s-1", string(w.Result().Body()))

	w = ut.PerformRequest(h.Engine, http.MethodGet, "/admin", nil, bearer(student))
	assert.Equal(t, http.StatusForbidden, w.Result().StatusCode())

	w = ut.PerformRequest(h.Engine, http.MethodGet, "/admin", nil, bearer(admin))
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
}

func TestMiddlewareDevPrincipal(t *testing.T) {
	dev := Principal{UserID: "dev", Role: RoleAdmin}
	h := server.Default()
	h.GET("/admin", RequireAuth(nil, &dev), RequireRole(RoleAdmin), func(c context.Context, ctx *app.RequestContext) {
		ctx.String(http.StatusOK, "ok")
	})
	w := ut.PerformRequest(h.Engine, http.MethodGet, "/admin", nil)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
}
