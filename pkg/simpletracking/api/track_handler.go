package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-tracking/pkg/simpletracking"
)

// TrackHandler exposes the non-camouflaged control endpoints: document
// registration and the validated beacon.
type TrackHandler struct {
	service simpletracking.Service
	logger  *slog.Logger
}

// NewTrackHandler creates a new tracking API handler.
func NewTrackHandler(service simpletracking.Service, logger *slog.Logger) *TrackHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackHandler{service: service, logger: logger}
}

// Routes returns the routes for the tracking API.
func (h *TrackHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/documents", h.RegisterDocuments)
	r.Get("/beacon", h.Beacon)
	r.Post("/beacon", h.Beacon)

	return r
}

// registerDocumentPayload accepts both the current field names and the
// legacy ones still emitted by older registration clients.
type registerDocumentPayload struct {
	CID          string                 `json:"cid"`
	UUID         string                 `json:"uuid"`
	Name         string                 `json:"name"`
	DocumentName string                 `json:"document_name"`
	FilePath     string                 `json:"file_path"`
	Metadata     map[string]interface{} `json:"metadata"`
}

func (p registerDocumentPayload) toRequest() simpletracking.RegisterDocumentRequest {
	cid := p.CID
	if cid == "" {
		cid = p.UUID
	}
	name := p.Name
	if name == "" {
		name = p.DocumentName
	}
	return simpletracking.RegisterDocumentRequest{
		CID:      cid,
		Name:     name,
		FilePath: p.FilePath,
		Metadata: p.Metadata,
	}
}

// RegisterDocuments registers one document or an ordered batch. The
// body is either a single JSON object or a JSON array; entries without
// a cid are skipped, and a batch with no acceptable entry is an error.
func (h *TrackHandler) RegisterDocuments(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var payloads []registerDocumentPayload
	if err := json.Unmarshal(body, &payloads); err != nil {
		var single registerDocumentPayload
		if err := json.Unmarshal(body, &single); err != nil {
			renderError(w, r, http.StatusBadRequest, "invalid JSON")
			return
		}
		payloads = []registerDocumentPayload{single}
	}

	reqs := make([]simpletracking.RegisterDocumentRequest, 0, len(payloads))
	for _, p := range payloads {
		reqs = append(reqs, p.toRequest())
	}

	registered, err := h.service.RegisterDocuments(r.Context(), reqs)
	if err != nil {
		if errors.Is(err, simpletracking.ErrEmptyBatch) {
			renderError(w, r, http.StatusBadRequest, "cid is required")
			return
		}
		h.logger.Error("document registration failed", "error", err)
		renderError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status":     "ok",
		"registered": registered,
	})
}

// Beacon records a tracked access for a pre-registered document. The
// resource_id parameter must match a registered document; unknown
// identifiers are a not-found result, never an implicit registration.
// An optional ts parameter (unix seconds or RFC 3339) backdates the
// event; unparseable values fall back to ingestion time.
func (h *TrackHandler) Beacon(w http.ResponseWriter, r *http.Request) {
	resourceID := r.URL.Query().Get("resource_id")
	if resourceID == "" && r.Method == http.MethodPost {
		resourceID = r.PostFormValue("resource_id")
	}
	if resourceID == "" {
		renderError(w, r, http.StatusBadRequest, "resource_id is required")
		return
	}

	exists, err := h.service.DocumentExists(r.Context(), resourceID)
	if err != nil {
		h.logger.Error("document lookup failed", "resource_id", resourceID, "error", err)
		renderError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if !exists {
		renderError(w, r, http.StatusNotFound, "not found")
		return
	}

	_, err = h.service.Ingest(r.Context(), simpletracking.IngestRequest{
		Endpoint:          "/api/v1/beacon",
		Request:           r,
		CIDHint:           resourceID,
		TimestampOverride: r.URL.Query().Get("ts"),
	})
	if err != nil {
		h.logger.Warn("beacon ingest failed", "resource_id", resourceID, "error", err)
	}

	render.JSON(w, r, map[string]string{"status": "ok"})
}

func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": message})
}
