package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newCSRFRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CSRF())
	r.GET("/resource", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/resource", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func fetchCSRFPair(t *testing.T, r *gin.Engine) (*http.Cookie, string) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	for _, c := range w.Result().Cookies() {
		if c.Name == CSRFCookieName {
			return c, w.Header().Get(CSRFHeaderName)
		}
	}
	t.Fatalf("csrf cookie not issued")
	return nil, ""
}

func TestCSRFSafeMethodIssuesToken(t *testing.T) {
	cookie, header := fetchCSRFPair(t, newCSRFRouter())
	require.NotEmpty(t, cookie.Value)
	require.Equal(t, cookie.Value, header, "header echo must match the cookie")
	require.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
}

func TestCSRFPostWithValidTokenPasses(t *testing.T) {
	r := newCSRFRouter()
	cookie, token := fetchCSRFPair(t, r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/resource", strings.NewReader("{}"))
	req.AddCookie(cookie)
	req.Header.Set(CSRFHeaderName, token)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestCSRFPostWithoutHeaderIsBadRequest(t *testing.T) {
	r := newCSRFRouter()
	cookie, _ := fetchCSRFPair(t, r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/resource", strings.NewReader("{}"))
	req.AddCookie(cookie)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"error": "Invalid or missing anti-forgery token"}`, w.Body.String())
}

func TestCSRFPostWithMismatchedTokenIsBadRequest(t *testing.T) {
	r := newCSRFRouter()
	cookie, _ := fetchCSRFPair(t, r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/resource", strings.NewReader("{}"))
	req.AddCookie(cookie)
	req.Header.Set(CSRFHeaderName, "attacker-supplied")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCSRFOptionsBypasses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CSRF())
	r.OPTIONS("/resource", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/resource", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestConstantTimeEqual(t *testing.T) {
	require.True(t, constantTimeEqual("abc", "abc"))
	require.False(t, constantTimeEqual("abc", "abd"))
	require.False(t, constantTimeEqual("abc", "abcd"))
	require.False(t, constantTimeEqual("", ""))
}
