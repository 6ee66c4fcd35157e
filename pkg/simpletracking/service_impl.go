package simpletracking

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/tendant/simple-tracking/pkg/simpletracking/fingerprint"
)

const defaultIngestTimeout = 5 * time.Second

type service struct {
	repo          Repository
	geo           GeoResolver
	clock         Clock
	sink          EventSink
	ingestTimeout time.Duration
}

// New creates a new tracking service with the given options. A repository
// is required; geo resolver, clock and event sink default to no-op/system
// implementations.
func New(opts ...Option) (Service, error) {
	s := &service{
		geo:           NewNoopGeoResolver(),
		clock:         SystemClock(),
		sink:          NewNoopEventSink(),
		ingestTimeout: defaultIngestTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.repo == nil {
		return nil, ErrMissingRepository
	}
	return s, nil
}

// Ingest records one tracked request as an access event.
//
// Ingestion intentionally outlives the caller: once started it detaches
// from the request's cancellation and runs under its own timeout, so a
// client aborting the decoy response does not lose the event.
func (s *service) Ingest(ctx context.Context, req IngestRequest) (*AccessEvent, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.ingestTimeout)
	defer cancel()

	fp := fingerprint.Extract(req.Request)
	query := queryParams(req.Request)

	cid := req.CIDHint
	if cid == "" {
		cid = query["cid"]
	}
	if cid == "" {
		cid = query["c"]
	}

	now := s.clock.Now().UTC()
	timestamp := now
	if req.TimestampOverride != "" {
		if parsed, ok := parseTimestamp(req.TimestampOverride); ok {
			timestamp = parsed
		}
	}

	if cid != "" {
		if _, err := s.repo.GetOrCreateDocument(ctx, cid, now); err != nil {
			return nil, &EventError{Endpoint: req.Endpoint, Op: "resolve document", Err: err}
		}
	}

	event := &AccessEvent{
		CID:            cid,
		IPAddress:      fp.IPAddress,
		UserAgent:      fp.UserAgent,
		AcceptHeaders:  fp.AcceptHeaders,
		AcceptLanguage: fp.AcceptLanguage,
		OSName:         fp.OSName,
		OSVersion:      fp.OSVersion,
		BrowserName:    fp.BrowserName,
		BrowserVersion: fp.BrowserVersion,
		ClientApp:      fp.ClientApp,
		ClientBuild:    fp.ClientBuild,
		Endpoint:       req.Endpoint,
		Method:         requestMethod(req.Request),
		QueryParams:    query,
		RequestBody:    req.Body,
		Timestamp:      timestamp,
		SessionID:      req.SessionID,
	}

	if fp.IPAddress != "" {
		// Best effort: a failed lookup records the event without facts.
		if facts, err := s.geo.Resolve(ctx, fp.IPAddress); err == nil {
			event.ASN = facts.ASN
			event.ISP = facts.ISP
			event.Country = facts.Country
			event.City = facts.City
			event.IsProxy = facts.IsProxy
			event.IsTor = facts.IsTor
		}
	}

	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return nil, &EventError{Endpoint: req.Endpoint, Op: "create event", Err: err}
	}

	s.sink.EventRecorded(ctx, event)
	return event, nil
}

// IngestWithSignal performs the full ingest flow, then copies "client" and
// "build" values from the payload into the client application fields,
// only where the freshly created event left them empty. This merge is the
// one permitted post-create mutation.
func (s *service) IngestWithSignal(ctx context.Context, req IngestRequest) (*AccessEvent, error) {
	req.CIDHint = ""
	event, err := s.Ingest(ctx, req)
	if err != nil {
		return nil, err
	}

	clientApp, _ := req.Body["client"].(string)
	clientBuild, _ := req.Body["build"].(string)
	if clientApp == "" && clientBuild == "" {
		return event, nil
	}

	merge := func(current, incoming string) string {
		if current == "" {
			return incoming
		}
		return current
	}
	mergedApp := merge(event.ClientApp, clientApp)
	mergedBuild := merge(event.ClientBuild, clientBuild)
	if mergedApp == event.ClientApp && mergedBuild == event.ClientBuild {
		return event, nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.ingestTimeout)
	defer cancel()
	if err := s.repo.MergeClientSignal(ctx, event.ID, clientApp, clientBuild); err != nil {
		return nil, &EventError{Endpoint: req.Endpoint, Op: "merge client signal", Err: err}
	}
	event.ClientApp = mergedApp
	event.ClientBuild = mergedBuild
	return event, nil
}

// RegisterDocument registers or updates a document. Idempotent by CID.
func (s *service) RegisterDocument(ctx context.Context, req RegisterDocumentRequest) (*Document, error) {
	if req.CID == "" {
		return nil, &DocumentError{CID: req.CID, Op: "register", Err: ErrEmptyBatch}
	}
	doc := &Document{
		CID:       req.CID,
		Name:      req.Name,
		FilePath:  req.FilePath,
		Metadata:  req.Metadata,
		CreatedAt: s.clock.Now().UTC(),
	}
	registered, err := s.repo.UpsertDocument(ctx, doc)
	if err != nil {
		return nil, &DocumentError{CID: req.CID, Op: "register", Err: err}
	}
	s.sink.DocumentRegistered(ctx, registered)
	return registered, nil
}

// RegisterDocuments registers a batch of documents in order. Items without
// a CID are skipped; only an all-skipped batch is an error. Returns the
// accepted CIDs.
func (s *service) RegisterDocuments(ctx context.Context, reqs []RegisterDocumentRequest) ([]string, error) {
	accepted := make([]string, 0, len(reqs))
	for _, req := range reqs {
		if req.CID == "" {
			continue
		}
		if _, err := s.RegisterDocument(ctx, req); err != nil {
			return accepted, err
		}
		accepted = append(accepted, req.CID)
	}
	if len(accepted) == 0 {
		return nil, ErrEmptyBatch
	}
	return accepted, nil
}

// ResolveDocument returns the document for cid, creating it when absent.
func (s *service) ResolveDocument(ctx context.Context, cid string) (*Document, error) {
	doc, err := s.repo.GetOrCreateDocument(ctx, cid, s.clock.Now().UTC())
	if err != nil {
		return nil, &DocumentError{CID: cid, Op: "resolve", Err: err}
	}
	return doc, nil
}

func (s *service) DocumentExists(ctx context.Context, cid string) (bool, error) {
	return s.repo.DocumentExists(ctx, cid)
}

func (s *service) GetDocument(ctx context.Context, cid string) (*Document, error) {
	return s.repo.GetDocument(ctx, cid)
}

func (s *service) ListDocuments(ctx context.Context) ([]*Document, error) {
	return s.repo.ListDocuments(ctx)
}

func (s *service) GetEvent(ctx context.Context, id int64) (*AccessEvent, error) {
	return s.repo.GetEvent(ctx, id)
}

// queryParams flattens the request query string, first value wins.
func queryParams(r *http.Request) map[string]string {
	if r == nil {
		return map[string]string{}
	}
	values := r.URL.Query()
	params := make(map[string]string, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			params[key] = vals[0]
		}
	}
	return params
}

func requestMethod(r *http.Request) string {
	if r == nil || r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// parseTimestamp accepts unix seconds or RFC 3339.
func parseTimestamp(raw string) (time.Time, bool) {
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), true
	}
	if unix, err := strconv.ParseFloat(raw, 64); err == nil {
		sec := int64(unix)
		nsec := int64((unix - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC(), true
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), true
	}
	return time.Time{}, false
}
