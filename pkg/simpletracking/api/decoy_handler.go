package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-tracking/pkg/simpletracking"
)

// DecoyHandler serves the camouflage surface: endpoints that look like
// CDN assets, font loading, feature flags and health checks while
// feeding the ingestion pipeline.
//
// Two logging policies apply. Asset, font and theme endpoints only
// record an event when the supplied cid matches a registered document;
// config, health and telemetry endpoints always record. A decoy
// response never fails because of tracking: ingestion errors are
// logged and swallowed.
type DecoyHandler struct {
	service simpletracking.Service
	logger  *slog.Logger
}

// NewDecoyHandler creates a new decoy surface handler.
func NewDecoyHandler(service simpletracking.Service, logger *slog.Logger) *DecoyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DecoyHandler{service: service, logger: logger}
}

// Routes returns the routes for the decoy surface, mounted at the
// server root so the paths read as ordinary site traffic.
func (h *DecoyHandler) Routes() chi.Router {
	r := chi.NewRouter()

	getAndHead(r, "/assets/media/{filename}", h.MediaAsset)
	getAndHead(r, "/assets/static/*", h.StaticAsset)
	getAndHead(r, "/fonts/{fontname}", h.FontFile)
	getAndHead(r, "/themes/{themename}", h.ThemeFile)

	getAndHead(r, "/config/runtime.json", h.RuntimeConfig)
	getAndHead(r, "/config/ui-flags.json", h.UIFlags)
	getAndHead(r, "/config/doc-settings.json", h.DocSettings)

	getAndHead(r, "/health/ping", h.Ping)
	getAndHead(r, "/status/ready", h.Ready)
	getAndHead(r, "/prefetch/init", h.PrefetchInit)

	r.Post("/telemetry/metrics", h.telemetry("/telemetry/metrics"))
	r.Post("/telemetry/client", h.telemetry("/telemetry/client"))
	r.Post("/telemetry/events", h.telemetry("/telemetry/events"))

	return r
}

func getAndHead(r chi.Router, pattern string, handler http.HandlerFunc) {
	r.Get(pattern, handler)
	r.Head(pattern, handler)
}

// MediaAsset serves a "media asset": a transparent PNG for image
// filenames, empty bytes otherwise.
func (h *DecoyHandler) MediaAsset(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	h.trackRegistered(r, "/assets/media/"+filename)

	if isImageFilename(filename) {
		setCacheControl(w, cacheImmutable)
		w.Header().Set("Content-Type", "image/png")
		w.Write(transparentPNG)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
}

// StaticAsset serves any "static asset" path as a transparent PNG.
func (h *DecoyHandler) StaticAsset(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	h.trackRegistered(r, "/assets/static/"+path)

	setCacheControl(w, cacheImmutable)
	w.Header().Set("Content-Type", "image/png")
	w.Write(transparentPNG)
}

// FontFile serves an empty WOFF2 font.
func (h *DecoyHandler) FontFile(w http.ResponseWriter, r *http.Request) {
	fontname := chi.URLParam(r, "fontname")
	h.trackRegistered(r, "/fonts/"+fontname)

	setCacheControl(w, cacheImmutable)
	w.Header().Set("Content-Type", "font/woff2")
	w.Write(minimalWOFF2)
}

// ThemeFile serves a minimal theme stylesheet.
func (h *DecoyHandler) ThemeFile(w http.ResponseWriter, r *http.Request) {
	themename := chi.URLParam(r, "themename")
	h.trackRegistered(r, "/themes/"+themename)

	setCacheControl(w, cacheTheme)
	w.Header().Set("Content-Type", "text/css")
	w.Write([]byte(themeCSS(strings.TrimSuffix(themename, ".css"))))
}

func (h *DecoyHandler) RuntimeConfig(w http.ResponseWriter, r *http.Request) {
	h.trackAlways(r, "/config/runtime.json")
	setCacheControl(w, cacheConfig)
	render.JSON(w, r, configRuntime)
}

func (h *DecoyHandler) UIFlags(w http.ResponseWriter, r *http.Request) {
	h.trackAlways(r, "/config/ui-flags.json")
	setCacheControl(w, cacheConfig)
	render.JSON(w, r, configUIFlags)
}

func (h *DecoyHandler) DocSettings(w http.ResponseWriter, r *http.Request) {
	h.trackAlways(r, "/config/doc-settings.json")
	setCacheControl(w, cacheConfig)
	render.JSON(w, r, configDocSettings)
}

func (h *DecoyHandler) Ping(w http.ResponseWriter, r *http.Request) {
	h.trackAlways(r, "/health/ping")
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (h *DecoyHandler) Ready(w http.ResponseWriter, r *http.Request) {
	h.trackAlways(r, "/status/ready")
	render.JSON(w, r, map[string]interface{}{"status": "ready", "healthy": true})
}

func (h *DecoyHandler) PrefetchInit(w http.ResponseWriter, r *http.Request) {
	h.trackAlways(r, "/prefetch/init")
	render.JSON(w, r, map[string]interface{}{
		"preload": []string{},
		"cache":   true,
		"ttl":     3600,
	})
}

// telemetry builds a POST handler that records the request through the
// client-signal merge path. Malformed bodies are treated as empty.
func (h *DecoyHandler) telemetry(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			payload = map[string]interface{}{}
		}

		_, err := h.service.IngestWithSignal(r.Context(), simpletracking.IngestRequest{
			Endpoint: endpoint,
			Request:  r,
			Body:     payload,
		})
		if err != nil {
			h.logger.Warn("telemetry ingest failed", "endpoint", endpoint, "error", err)
		}

		render.JSON(w, r, map[string]string{"status": "ok"})
	}
}

// trackRegistered records an event only when the request carries a cid
// that matches a registered document. Unknown or absent cids are not
// logged; the decoy response is served either way.
func (h *DecoyHandler) trackRegistered(r *http.Request, endpoint string) {
	cid := r.URL.Query().Get("cid")
	if cid == "" {
		cid = r.URL.Query().Get("c")
	}
	if cid == "" {
		return
	}

	exists, err := h.service.DocumentExists(r.Context(), cid)
	if err != nil {
		h.logger.Warn("document lookup failed", "endpoint", endpoint, "error", err)
		return
	}
	if !exists {
		return
	}

	h.ingest(r, endpoint, cid)
}

// trackAlways records an event regardless of cid validity; an unseen
// cid auto-registers its document.
func (h *DecoyHandler) trackAlways(r *http.Request, endpoint string) {
	h.ingest(r, endpoint, "")
}

func (h *DecoyHandler) ingest(r *http.Request, endpoint, cidHint string) {
	_, err := h.service.Ingest(r.Context(), simpletracking.IngestRequest{
		Endpoint: endpoint,
		Request:  r,
		CIDHint:  cidHint,
	})
	if err != nil {
		h.logger.Warn("ingest failed", "endpoint", endpoint, "error", err)
	}
}

func isImageFilename(name string) bool {
	for _, ext := range []string{".png", ".svg", ".gif", ".jpg", ".jpeg", ".webp"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
