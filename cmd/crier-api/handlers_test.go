package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crier "github.com/matthewjhunter/crier"
	"github.com/matthewjhunter/crier/internal/ai/aitest"
	"github.com/matthewjhunter/crier/internal/config"
	"github.com/matthewjhunter/crier/internal/logging"
	"github.com/matthewjhunter/crier/internal/platform"
	"github.com/matthewjhunter/crier/internal/platform/platformtest"
)

var testSecret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router http.Handler
	engine *crier.Engine
	llm    *aitest.FakeLLM
	x      *platformtest.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")

	llm := &aitest.FakeLLM{Responses: []string{"Launch day: crier now posts for you."}}
	x := platformtest.New("x")
	engine, err := crier.NewEngine(crier.EngineConfig{
		Config:   cfg,
		Logger:   logging.Discard(),
		LLM:      llm,
		Adapters: []platform.Adapter{x, platformtest.New("linkedin")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	return &fixture{
		router: newRouter(engine, testSecret, logging.Discard()),
		engine: engine,
		llm:    llm,
		x:      x,
	}
}

func token(t *testing.T, tenant string) string {
	t.Helper()
	tok, err := signToken(tenant, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends a request as tenant and decodes the JSON response.
func (f *fixture) do(t *testing.T, tenant, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, tenant))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w.Code, out
}

func itemID(t *testing.T, body map[string]any) int64 {
	t.Helper()
	item, ok := body["item"].(map[string]any)
	require.True(t, ok, "response has no item: %v", body)
	return int64(item["id"].(float64))
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "", http.MethodGet, "/autonomy/queue", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "missing bearer token", body["error"])

	req := httptest.NewRequest(http.MethodGet, "/autonomy/queue", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsWrongSecretAndExpired(t *testing.T) {
	f := newFixture(t)

	forged, err := signToken("t1", []byte("other-secret"), time.Hour)
	require.NoError(t, err)
	expired, err := signToken("t1", testSecret, -time.Minute)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{TenantID: "t1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{"forged": forged, "expired": expired, "none": none} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/autonomy/config", nil)
			req.Header.Set("Authorization", "Bearer "+tok)
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	_, err = validateToken(expired, testSecret)
	assert.ErrorIs(t, err, errExpiredToken)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, _ = f.do(t, "t1", http.MethodPost, "/autonomy/post", map[string]any{"platform": "x", "text": "count me"})
	require.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "crier_publish_total")
}

func TestConfigRoundTrip(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "t1", http.MethodGet, "/autonomy/config", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	cfg := body["config"].(map[string]any)
	assert.Equal(t, false, cfg["enabled"])
	assert.Equal(t, true, cfg["require_approval"])

	code, body = f.do(t, "t1", http.MethodPut, "/autonomy/config", map[string]any{
		"tenant_id":             "someone-else",
		"enabled":               true,
		"posting_frequency":     "daily",
		"max_posts_per_day":     2,
		"allowed_content_types": []string{"educational"},
		"require_approval":      false,
	})
	require.Equal(t, http.StatusOK, code, body)
	cfg = body["config"].(map[string]any)
	assert.Equal(t, "t1", cfg["tenant_id"], "tenant comes from the token")
	assert.Equal(t, float64(2), cfg["max_posts_per_day"])

	code, body = f.do(t, "t1", http.MethodPut, "/autonomy/config", map[string]any{
		"posting_frequency": "whenever",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "posting_frequency")
}

func TestGenerateApproveFlow(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "t1", http.MethodPost, "/autonomy/generate", map[string]any{
		"platform":     "x",
		"content_type": "announcement",
		"context":      map[string]string{"topic": "launch"},
	})
	require.Equal(t, http.StatusCreated, code, body)
	id := itemID(t, body)
	assert.Equal(t, "pending", body["item"].(map[string]any)["status"])

	code, _ = f.do(t, "t1", http.MethodPost, fmt.Sprintf("/autonomy/queue/%d/approve", id), nil)
	require.Equal(t, http.StatusOK, code)

	code, body = f.do(t, "t1", http.MethodGet, "/autonomy/queue?status=approved", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	// Approving twice is a state conflict.
	code, _ = f.do(t, "t1", http.MethodPost, fmt.Sprintf("/autonomy/queue/%d/approve", id), nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestGenerateErrors(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, "t1", http.MethodPost, "/autonomy/generate", map[string]any{"platform": "myspace"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, "t1", http.MethodPost, "/autonomy/generate", map[string]any{"platform": "x", "content_type": "meme"})
	assert.Equal(t, http.StatusBadRequest, code)

	f.llm.Err = errors.New("connection refused")
	code, body := f.do(t, "t1", http.MethodPost, "/autonomy/generate", map[string]any{"platform": "x"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.NotEmpty(t, body["error"])
}

func TestQueueIsTenantScoped(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "t1", http.MethodPost, "/autonomy/queue", map[string]any{"platform": "x", "text": "hello"})
	require.Equal(t, http.StatusCreated, code, body)
	id := itemID(t, body)

	code, _ = f.do(t, "t2", http.MethodPost, fmt.Sprintf("/autonomy/queue/%d/approve", id), nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = f.do(t, "t2", http.MethodDelete, fmt.Sprintf("/autonomy/queue/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, "t1", http.MethodDelete, fmt.Sprintf("/autonomy/queue/%d", id), nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, "t1", http.MethodGet, fmt.Sprintf("/autonomy/queue/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, "t1", http.MethodDelete, "/autonomy/queue/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPostImmediately(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "t1", http.MethodPost, "/autonomy/post", map[string]any{"platform": "x", "text": "right now"})
	require.Equal(t, http.StatusOK, code, body)
	res := body["result"].(map[string]any)
	assert.Equal(t, "posted", res["outcome"])
	assert.Equal(t, 1, f.x.PublishCount())

	code, body = f.do(t, "t1", http.MethodGet, "/autonomy/posted", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, body = f.do(t, "t1", http.MethodGet, "/autonomy/dashboard", nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotNil(t, body["dashboard"])

	code, _ = f.do(t, "t1", http.MethodPost, "/autonomy/post", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPostPlatformFailureIsBadGateway(t *testing.T) {
	f := newFixture(t)
	f.x.PublishErr = platformtest.Rejected("x", "duplicate status")

	code, body := f.do(t, "t1", http.MethodPost, "/autonomy/post", map[string]any{"platform": "x", "text": "again"})
	assert.Equal(t, http.StatusBadGateway, code)
	res := body["result"].(map[string]any)
	assert.Equal(t, "failed", res["outcome"])
	assert.Equal(t, "platform_rejected", res["category"])

	code, body = f.do(t, "t1", http.MethodGet, "/autonomy/logs", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])
}

func TestKnowledgeEndpoints(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "t1", http.MethodGet, "/autonomy/knowledge", nil)
	require.Equal(t, http.StatusOK, code)
	seeded := body["count"].(float64)
	assert.Greater(t, seeded, float64(0), "defaults are seeded on first read")

	code, body = f.do(t, "t1", http.MethodPost, "/autonomy/knowledge", map[string]any{
		"category": "product", "key": "pricing", "value": "Free for one channel", "priority": 5,
	})
	require.Equal(t, http.StatusCreated, code, body)
	entry := body["entry"].(map[string]any)
	id := int64(entry["id"].(float64))
	assert.Equal(t, true, entry["active"])

	code, body = f.do(t, "t1", http.MethodPut, fmt.Sprintf("/autonomy/knowledge/%d", id), map[string]any{
		"category": "product", "key": "pricing", "value": "Free for two channels", "active": false,
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "Free for two channels", body["entry"].(map[string]any)["value"])
	assert.Equal(t, false, body["entry"].(map[string]any)["active"])

	code, _ = f.do(t, "t2", http.MethodGet, fmt.Sprintf("/autonomy/knowledge/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, "t1", http.MethodPost, "/autonomy/knowledge", map[string]any{"category": "product"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = f.do(t, "t1", http.MethodPost, "/autonomy/knowledge/import", map[string]any{
		"entries": []map[string]any{
			{"category": "faq", "key": "trial", "value": "14 days"},
			{"category": "faq", "key": "support", "value": "Email us"},
		},
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(2), body["imported"])

	code, _ = f.do(t, "t1", http.MethodDelete, fmt.Sprintf("/autonomy/knowledge/%d", id), nil)
	assert.Equal(t, http.StatusOK, code)

	code, body = f.do(t, "t1", http.MethodPost, "/autonomy/knowledge/reset", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, seeded, body["seeded"])
}

func TestPromptOverrideEndpoints(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "t1", http.MethodPut, "/autonomy/prompts/educational", map[string]any{
		"template": "Teach something about {{.Tone}}",
	})
	require.Equal(t, http.StatusOK, code, body)

	code, body = f.do(t, "t1", http.MethodGet, "/autonomy/prompts/educational", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Teach something about {{.Tone}}", body["template"])

	code, _ = f.do(t, "t1", http.MethodPut, "/autonomy/prompts/educational", map[string]any{"template": "{{.Broken"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, "t1", http.MethodDelete, "/autonomy/prompts/educational", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestPlatformEndpoints(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "t1", http.MethodPost, "/autonomy/platforms", map[string]any{
		"platform": "x", "access_token": "secret-token", "external_user_id": "@acme",
	})
	require.Equal(t, http.StatusCreated, code, body)
	cred := body["platform"].(map[string]any)
	assert.Equal(t, true, cred["enabled"])
	assert.NotContains(t, cred, "access_token")

	code, body = f.do(t, "t1", http.MethodGet, "/autonomy/platforms", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["platforms"], 1)
	assert.ElementsMatch(t, []any{"linkedin", "x"}, body["supported"])

	code, _ = f.do(t, "t1", http.MethodPost, "/autonomy/platforms", map[string]any{"platform": "x"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, "t1", http.MethodDelete, "/autonomy/platforms/x", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, "t1", http.MethodDelete, "/autonomy/platforms/x", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", crier.ErrInvalid), http.StatusBadRequest},
		{fmt.Errorf("%w: gone", crier.ErrNotFound), http.StatusNotFound},
		{crier.ErrConflict, http.StatusConflict},
		{crier.ErrBlockedContent, http.StatusUnprocessableEntity},
		{crier.ErrNearDuplicate, http.StatusUnprocessableEntity},
		{crier.ErrGenerationUnavailable, http.StatusServiceUnavailable},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
