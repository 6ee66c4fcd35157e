package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-tracking/pkg/simpletracking"
)

// DashboardHandler exposes the read-only dashboard API over the
// aggregation engine.
type DashboardHandler struct {
	service simpletracking.Service
	logger  *slog.Logger
}

// NewDashboardHandler creates a new dashboard API handler.
func NewDashboardHandler(service simpletracking.Service, logger *slog.Logger) *DashboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardHandler{service: service, logger: logger}
}

// Routes returns the routes for the dashboard API.
func (h *DashboardHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/overview", h.Overview)

	r.Get("/events", h.ListEvents)
	r.Get("/events/{id}", h.GetEvent)

	r.Get("/documents", h.ListDocuments)
	r.Get("/documents/{cid}", h.GetDocument)

	// Chart feeds: parallel labels/values arrays.
	r.Get("/hourly", h.HourlyActivity)
	r.Get("/endpoints", h.TopEndpoints)
	r.Get("/countries", h.TopCountries)
	r.Get("/clients", h.TopClients)
	r.Get("/isps", h.TopISPs)
	r.Get("/devices", h.DeviceBreakdown)

	return r
}

// Overview returns the landing rollup: totals, windowed counts, unique
// IPs and the most recent events.
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Overview(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, stats)
}

// ListEvents returns one page of events matching the query filters.
// All string filters are case-insensitive substring matches.
func (h *DashboardHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := simpletracking.EventFilter{
		CID:             q.Get("cid"),
		IP:              q.Get("ip"),
		Endpoint:        q.Get("endpoint"),
		Country:         q.Get("country"),
		Client:          q.Get("client"),
		FirstAccessOnly: q.Get("first_access") == "true",
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		filter.Page = page
	}

	result, err := h.service.ListEvents(r.Context(), filter)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// GetEvent returns a single event plus its two related-event sets
// (same cid, same ip).
func (h *DashboardHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}

	event, err := h.service.GetEvent(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	related, err := h.service.RelatedEvents(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"event":          event,
		"related_by_cid": related.ByCID,
		"related_by_ip":  related.ByIP,
	})
}

// ListDocuments returns the per-document leaderboard sorted by event
// count.
func (h *DashboardHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DocumentLeaderboard(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"documents": stats})
}

// GetDocument returns one document with reach statistics and recent
// events.
func (h *DashboardHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.DocumentSummary(r.Context(), chi.URLParam(r, "cid"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, detail)
}

// HourlyActivity returns the hourly histogram over a trailing window
// (hours query parameter, default 24) as a chart feed.
func (h *DashboardHandler) HourlyActivity(w http.ResponseWriter, r *http.Request) {
	hours, _ := strconv.Atoi(r.URL.Query().Get("hours"))

	buckets, err := h.service.HourlyActivity(r.Context(), hours)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	labels := make([]string, 0, len(buckets))
	values := make([]int64, 0, len(buckets))
	for _, b := range buckets {
		labels = append(labels, b.Hour.Format("15:04"))
		values = append(values, b.Count)
	}
	render.JSON(w, r, map[string]interface{}{"labels": labels, "values": values})
}

func (h *DashboardHandler) TopEndpoints(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.TopEndpoints(r.Context(), topNParam(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.renderChart(w, r, counts, maxEndpointLabel)
}

func (h *DashboardHandler) TopCountries(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.TopCountries(r.Context(), topNParam(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.renderChart(w, r, counts, 0)
}

func (h *DashboardHandler) TopClients(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.TopClients(r.Context(), topNParam(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.renderChart(w, r, counts, 0)
}

func (h *DashboardHandler) TopISPs(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.TopISPs(r.Context(), topNParam(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.renderChart(w, r, counts, 0)
}

// DeviceBreakdown returns event counts per device class.
func (h *DashboardHandler) DeviceBreakdown(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DeviceBreakdown(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, stats)
}

// maxEndpointLabel keeps long endpoint paths from wrecking chart axes.
const maxEndpointLabel = 30

func (h *DashboardHandler) renderChart(w http.ResponseWriter, r *http.Request, counts []simpletracking.DimensionCount, truncate int) {
	labels := make([]string, 0, len(counts))
	values := make([]int64, 0, len(counts))
	for _, c := range counts {
		label := c.Value
		if truncate > 0 && len(label) > truncate {
			label = label[:truncate]
		}
		labels = append(labels, label)
		values = append(values, c.Count)
	}
	render.JSON(w, r, map[string]interface{}{"labels": labels, "values": values})
}

func (h *DashboardHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, simpletracking.ErrDocumentNotFound),
		errors.Is(err, simpletracking.ErrEventNotFound):
		renderError(w, r, http.StatusNotFound, "not found")
	default:
		h.logger.Error("dashboard query failed", "path", r.URL.Path, "error", err)
		renderError(w, r, http.StatusInternalServerError, err.Error())
	}
}

func topNParam(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	return n
}
