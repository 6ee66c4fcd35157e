package simpletracking

import "net/http"

// IngestRequest contains parameters for recording one tracked request.
type IngestRequest struct {
	// Endpoint is the label under which the event is recorded.
	Endpoint string

	// Request is the inbound HTTP request the fingerprint is taken from.
	Request *http.Request

	// CIDHint, when non-empty, wins over any CID found in the query
	// string ("cid", then the legacy "c" shorthand).
	CIDHint string

	// TimestampOverride is an optional caller-supplied event time, either
	// unix seconds or RFC 3339. Unparseable values are silently discarded
	// in favor of ingestion time.
	TimestampOverride string

	// Body is the structured request body for POST-style beacons.
	Body map[string]interface{}

	// SessionID is an optional identifier for session stitching.
	SessionID string
}

// RegisterDocumentRequest contains parameters for registering a document.
type RegisterDocumentRequest struct {
	CID      string
	Name     string
	FilePath string
	Metadata map[string]interface{}
}
