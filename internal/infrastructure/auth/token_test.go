package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestVerifier(t *testing.T) *TokenVerifier {
	t.Helper()
	v, err := NewTokenVerifier(testSecret, "smart-tracker", time.Hour)
	require.NoError(t, err)
	return v
}

func TestTokenVerifier_IssueAndVerify(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.Issue("user-1", Claims{Email: "user@example.com", FirstName: "Ada"})
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "Ada", claims.FirstName)
}

func TestTokenVerifier_Rejects(t *testing.T) {
	v := newTestVerifier(t)

	other, err := NewTokenVerifier("ffffffffffffffffffffffffffffffff", "smart-tracker", time.Hour)
	require.NoError(t, err)
	foreign, err := other.Issue("user-1", Claims{})
	require.NoError(t, err)

	expiredIssuer, err := NewTokenVerifier(testSecret, "smart-tracker", -time.Minute)
	require.NoError(t, err)
	expired, err := expiredIssuer.Issue("user-1", Claims{})
	require.NoError(t, err)

	wrongIssuer, err := NewTokenVerifier(testSecret, "someone-else", time.Hour)
	require.NoError(t, err)
	misissued, err := wrongIssuer.Issue("user-1", Claims{})
	require.NoError(t, err)

	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)

	for name, token := range map[string]string{
		"garbage":      "not-a-jwt",
		"wrong secret": foreign,
		"expired":      expired,
		"wrong issuer": misissued,
	} {
		_, err := v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestRequireUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := newTestVerifier(t)
	token, err := v.Issue("user-1", Claims{})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", RequireUser(v, "tracker_session"), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "tracker_session", Value: token}) }, http.StatusOK},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=" + token }, http.StatusOK},
		{"none", func(r *http.Request) {}, http.StatusUnauthorized},
		{"bad", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "user-1", rec.Body.String())
			}
		})
	}
}
