package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-tracking/pkg/simpletracking"
	"github.com/tendant/simple-tracking/pkg/simpletracking/repo/memory"
)

func setupDecoyTest(t *testing.T) (*DecoyHandler, simpletracking.Service, *memory.Repository) {
	t.Helper()
	repo := memory.New()
	service, err := simpletracking.New(simpletracking.WithRepository(repo))
	require.NoError(t, err)
	return NewDecoyHandler(service, nil), service, repo
}

func zeroTime() time.Time { return time.Time{} }

func TestMediaAsset_ServesTransparentPNG(t *testing.T) {
	handler, _, _ := setupDecoyTest(t)
	router := handler.Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/media/logo.png?v=2.4.1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, transparentPNG, rec.Body.Bytes())
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age=31536000")
}

func TestMediaAsset_UnregisteredCIDNotLogged(t *testing.T) {
	handler, _, repo := setupDecoyTest(t)
	router := handler.Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/media/logo.png?cid=unknown", nil))

	// The decoy response succeeds; no event is recorded, no document
	// is implicitly created.
	assert.Equal(t, http.StatusOK, rec.Code)
	total, err := repo.CountEvents(context.Background(), zeroTime())
	require.NoError(t, err)
	assert.Zero(t, total)

	exists, err := repo.DocumentExists(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMediaAsset_RegisteredCIDLogged(t *testing.T) {
	handler, service, repo := setupDecoyTest(t)
	router := handler.Routes()

	_, err := service.RegisterDocument(context.Background(), simpletracking.RegisterDocumentRequest{CID: "doc-1"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/media/logo.png?cid=doc-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	events, total, err := repo.ListEvents(context.Background(), simpletracking.EventFilter{}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, "doc-1", events[0].CID)
	assert.Equal(t, "/assets/media/logo.png", events[0].Endpoint)
}

func TestFontAndTheme_RequireRegisteredCID(t *testing.T) {
	handler, service, repo := setupDecoyTest(t)
	router := handler.Routes()
	ctx := context.Background()

	_, err := service.RegisterDocument(ctx, simpletracking.RegisterDocumentRequest{CID: "doc-1"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fonts/inter-regular.woff2?cid=doc-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "font/woff2", rec.Header().Get("Content-Type"))
	assert.Equal(t, minimalWOFF2, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/themes/default.css?cid=nope", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "--theme: default")

	// Only the registered-cid request was recorded.
	_, total, err := repo.ListEvents(ctx, simpletracking.EventFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestHealthAndConfig_AlwaysLogged(t *testing.T) {
	handler, _, repo := setupDecoyTest(t)
	router := handler.Routes()
	ctx := context.Background()

	paths := []string{
		"/health/ping?cid=doc-a",
		"/status/ready",
		"/prefetch/init",
		"/config/runtime.json?c=doc-b",
		"/config/ui-flags.json",
		"/config/doc-settings.json",
	}
	for _, path := range paths {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	_, total, err := repo.ListEvents(ctx, simpletracking.EventFilter{}, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(len(paths)), total)

	// Unseen identifiers auto-register their documents on this surface.
	for _, cid := range []string{"doc-a", "doc-b"} {
		exists, err := repo.DocumentExists(ctx, cid)
		require.NoError(t, err)
		assert.True(t, exists, cid)
	}
}

func TestHealthPing_HeadRequest(t *testing.T) {
	handler, _, repo := setupDecoyTest(t)
	router := handler.Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/health/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	_, total, err := repo.ListEvents(context.Background(), simpletracking.EventFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestTelemetry_RecordsClientSignal(t *testing.T) {
	handler, _, repo := setupDecoyTest(t)
	router := handler.Routes()

	body, _ := json.Marshal(map[string]interface{}{"client": "Acme Reader", "build": "4.2"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/telemetry/client", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	events, _, err := repo.ListEvents(context.Background(), simpletracking.EventFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Acme Reader", events[0].ClientApp)
	assert.Equal(t, "4.2", events[0].ClientBuild)
	assert.Equal(t, "/telemetry/client", events[0].Endpoint)
}

func TestTelemetry_MalformedBodyStillOK(t *testing.T) {
	handler, _, repo := setupDecoyTest(t)
	router := handler.Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telemetry/metrics", bytes.NewReader([]byte("{not json"))))

	assert.Equal(t, http.StatusOK, rec.Code)
	_, total, err := repo.ListEvents(context.Background(), simpletracking.EventFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
