package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noticeboardhq/noticeboard/internal/app/maintenance"
	iauth "github.com/noticeboardhq/noticeboard/internal/auth"
	"github.com/noticeboardhq/noticeboard/internal/cache"
	"github.com/noticeboardhq/noticeboard/internal/middleware"
	"github.com/noticeboardhq/noticeboard/internal/models"
)

type cacheTestEnv struct {
	router *gin.Engine
	store  *cache.FileStore
	dir    string
	jwt    *iauth.JWTService
}

func newCacheTestEnv(t *testing.T) cacheTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	store, err := cache.NewFileStore(dir)
	require.NoError(t, err)

	inv := cache.NewInvalidator(store, cache.Rules{
		"post": {"post:{id}", "recent-posts"},
	})

	job, err := maintenance.NewJob(store, maintenance.WithWarmer(maintenance.Warmer{
		Key: "stats:community",
		TTL: time.Hour,
		Produce: func(ctx context.Context) ([]byte, error) {
			return []byte(`{"users":1}`), nil
		},
	}))
	require.NoError(t, err)

	jwt, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)

	h := NewCacheHandler(store, inv, job)

	r := gin.New()
	admin := r.Group("/api/admin", middleware.Auth(jwt), middleware.RequireAdmin(), middleware.CSRF())
	admin.GET("/cache/stats", h.Stats)
	admin.POST("/cache", h.Action)

	return cacheTestEnv{router: r, store: store, dir: dir, jwt: jwt}
}

func (env cacheTestEnv) token(t *testing.T, role string) string {
	t.Helper()
	token, err := env.jwt.GenerateAccessToken(iauth.Identity{UserID: 1, Username: "tester", Role: role})
	require.NoError(t, err)
	return token
}

// csrfHandshake performs a safe request to obtain the anti-forgery pair.
func (env cacheTestEnv) csrfHandshake(t *testing.T, bearer string) (cookie *http.Cookie, header string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/cache/stats", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.CSRFCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "safe request must issue the anti-forgery cookie")
	return cookie, w.Header().Get(middleware.CSRFHeaderName)
}

func (env cacheTestEnv) postAction(t *testing.T, bearer string, body map[string]string, cookie *http.Cookie, csrf string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/cache", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if csrf != "" {
		req.Header.Set(middleware.CSRFHeaderName, csrf)
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestCacheEndpointRejectsNonAdmin(t *testing.T) {
	env := newCacheTestEnv(t)

	w := env.postAction(t, env.token(t, models.RoleMember), map[string]string{"action": "stats"}, nil, "")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.JSONEq(t, `{"error": "Access denied"}`, w.Body.String())

	// Same denial on the read-only stats route.
	req := httptest.NewRequest(http.MethodGet, "/api/admin/cache/stats", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, models.RoleMember))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCacheEndpointRejectsMissingToken(t *testing.T) {
	env := newCacheTestEnv(t)

	w := env.postAction(t, "", map[string]string{"action": "stats"}, nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCacheEndpointRejectsBadCSRF(t *testing.T) {
	env := newCacheTestEnv(t)
	admin := env.token(t, models.RoleAdmin)
	cookie, _ := env.csrfHandshake(t, admin)

	// Missing header.
	w := env.postAction(t, admin, map[string]string{"action": "cleanup"}, cookie, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "anti-forgery")

	// Header does not match the cookie.
	w = env.postAction(t, admin, map[string]string{"action": "cleanup"}, cookie, "forged-token-value")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCacheStatsAction(t *testing.T) {
	env := newCacheTestEnv(t)
	admin := env.token(t, models.RoleAdmin)
	ctx := context.Background()

	require.NoError(t, env.store.Set(ctx, "post:1", []byte("x"), time.Hour))

	cookie, csrf := env.csrfHandshake(t, admin)
	w := env.postAction(t, admin, map[string]string{"action": "stats"}, cookie, csrf)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, true, body["success"])
	stats, ok := body["stats"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 1, stats["total_entries"])
}

func TestCacheCleanupAction(t *testing.T) {
	env := newCacheTestEnv(t)
	admin := env.token(t, models.RoleAdmin)
	ctx := context.Background()

	// One live entry plus one that is already expired on disk.
	require.NoError(t, env.store.Set(ctx, "live", []byte("x"), time.Hour))
	clock := time.Now().Add(-2 * time.Hour)
	expiredStore, err := cache.NewFileStore(env.dir, cache.WithNow(func() time.Time { return clock }))
	require.NoError(t, err)
	require.NoError(t, expiredStore.Set(ctx, "stale", []byte("y"), time.Minute))

	cookie, csrf := env.csrfHandshake(t, admin)
	w := env.postAction(t, admin, map[string]string{"action": "cleanup"}, cookie, csrf)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, true, body["success"])
	require.EqualValues(t, 1, body["cleaned_entries"])
}

func TestCacheClearAction(t *testing.T) {
	env := newCacheTestEnv(t)
	admin := env.token(t, models.RoleAdmin)
	ctx := context.Background()

	require.NoError(t, env.store.Set(ctx, "a", []byte("1"), time.Hour))
	require.NoError(t, env.store.Set(ctx, "b", []byte("2"), time.Hour))

	cookie, csrf := env.csrfHandshake(t, admin)
	w := env.postAction(t, admin, map[string]string{"action": "clear"}, cookie, csrf)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.EqualValues(t, 2, body["cleared_entries"])

	keys, err := env.store.Keys(ctx)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestCacheWarmAction(t *testing.T) {
	env := newCacheTestEnv(t)
	admin := env.token(t, models.RoleAdmin)

	cookie, csrf := env.csrfHandshake(t, admin)
	w := env.postAction(t, admin, map[string]string{"action": "warm"}, cookie, csrf)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, []any{"stats:community"}, body["warmed_keys"])

	value, found, err := env.store.Get(context.Background(), "stats:community")
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `{"users":1}`, string(value))
}

func TestCacheMaintenanceAction(t *testing.T) {
	env := newCacheTestEnv(t)
	admin := env.token(t, models.RoleAdmin)

	cookie, csrf := env.csrfHandshake(t, admin)
	w := env.postAction(t, admin, map[string]string{"action": "maintenance"}, cookie, csrf)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	report, ok := body["report"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "cache_maintenance", report["action"])
	require.Contains(t, report, "initial_stats")
	require.Contains(t, report, "final_stats")
}

func TestCacheInvalidateAction(t *testing.T) {
	env := newCacheTestEnv(t)
	admin := env.token(t, models.RoleAdmin)
	ctx := context.Background()

	require.NoError(t, env.store.Set(ctx, "post:7", []byte("x"), time.Hour))
	require.NoError(t, env.store.Set(ctx, "recent-posts", []byte("y"), time.Hour))
	require.NoError(t, env.store.Set(ctx, "unrelated", []byte("z"), time.Hour))

	cookie, csrf := env.csrfHandshake(t, admin)
	w := env.postAction(t, admin, map[string]string{
		"action":      "invalidate",
		"entity_type": "post",
		"entity_id":   "7",
	}, cookie, csrf)
	require.Equal(t, http.StatusOK, w.Code)

	keys, err := env.store.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"unrelated"}, keys)
}

func TestCacheInvalidateRequiresEntityType(t *testing.T) {
	env := newCacheTestEnv(t)
	admin := env.token(t, models.RoleAdmin)

	cookie, csrf := env.csrfHandshake(t, admin)
	w := env.postAction(t, admin, map[string]string{"action": "invalidate"}, cookie, csrf)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.postAction(t, admin, map[string]string{
		"action":      "invalidate",
		"entity_type": "post",
		"entity_id":   "not-a-number",
	}, cookie, csrf)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCacheUnknownAction(t *testing.T) {
	env := newCacheTestEnv(t)
	admin := env.token(t, models.RoleAdmin)

	cookie, csrf := env.csrfHandshake(t, admin)
	w := env.postAction(t, admin, map[string]string{"action": "explode"}, cookie, csrf)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"success": false, "error": "Unknown action"}`, w.Body.String())
}
