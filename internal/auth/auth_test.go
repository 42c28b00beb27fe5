package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/comeback-ar/backend/internal/common"
)

var testSecret = []byte("test-jwt-secret")

func issueToken(t *testing.T, mutate func(b *jwt.Builder)) string {
	t.Helper()
	b := jwt.NewBuilder().
		Subject("user-1").
		Issuer("comeback-admin").
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour))
	if mutate != nil {
		mutate(b)
	}
	tok, err := b.Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, testSecret))
	require.NoError(t, err)
	return string(signed)
}

func testVerifier() Verifier {
	return Verifier{Secret: testSecret, Issuer: "comeback-admin", ClockSkew: 30 * time.Second}
}

func TestParseValidToken(t *testing.T) {
	raw := issueToken(t, func(b *jwt.Builder) {
		b.Claim("role", RoleAdmin)
	})

	claims, err := testVerifier().Parse(raw, time.Now())
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, RoleAdmin, claims.Role)
}

func TestParseRoleDefaultsToCashier(t *testing.T) {
	raw := issueToken(t, nil)

	claims, err := testVerifier().Parse(raw, time.Now())
	require.NoError(t, err)
	require.Equal(t, RoleCashier, claims.Role)
}

func TestParseExpiredToken(t *testing.T) {
	raw := issueToken(t, func(b *jwt.Builder) {
		b.Expiration(time.Now().Add(-time.Hour))
	})

	_, err := testVerifier().Parse(raw, time.Now())
	require.Error(t, err)
}

func TestParseWrongSecret(t *testing.T) {
	raw := issueToken(t, nil)

	v := Verifier{Secret: []byte("other-secret"), Issuer: "comeback-admin"}
	_, err := v.Parse(raw, time.Now())
	require.Error(t, err)
}

func TestParseWrongIssuer(t *testing.T) {
	raw := issueToken(t, func(b *jwt.Builder) {
		b.Issuer("someone-else")
	})

	_, err := testVerifier().Parse(raw, time.Now())
	require.Error(t, err)
}

func TestParseMissingSubject(t *testing.T) {
	raw := issueToken(t, func(b *jwt.Builder) {
		b.Subject("")
	})

	_, err := testVerifier().Parse(raw, time.Now())
	require.Error(t, err)
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	m := Middleware{Verifier: testVerifier()}
	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthSetsIdentity(t *testing.T) {
	m := Middleware{Verifier: testVerifier()}
	raw := issueToken(t, func(b *jwt.Builder) {
		b.Claim("role", RoleAdmin)
	})

	var gotID, gotRole string
	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = common.UserID(r.Context())
		gotRole, _ = common.UserRole(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-1", gotID)
	require.Equal(t, RoleAdmin, gotRole)
}

func TestRequireRole(t *testing.T) {
	m := Middleware{Verifier: testVerifier()}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	adminOnly := m.RequireAuth(RequireRole(RoleAdmin)(next))

	cashierToken := issueToken(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+cashierToken)
	rec := httptest.NewRecorder()
	adminOnly.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	adminToken := issueToken(t, func(b *jwt.Builder) {
		b.Claim("role", RoleAdmin)
	})
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	adminOnly.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRoleWithoutAuthContext(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireRole(RoleAdmin)(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
