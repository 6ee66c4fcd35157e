package simpletracking

import (
	"context"
)

// Service defines the main interface for the simple-tracking library.
//
// Ingest is the only write path; all aggregation operations are read-only
// and safe to run concurrently with ongoing ingestion.
type Service interface {
	// Ingestion pipeline
	Ingest(ctx context.Context, req IngestRequest) (*AccessEvent, error)
	IngestWithSignal(ctx context.Context, req IngestRequest) (*AccessEvent, error)

	// Document registry
	RegisterDocument(ctx context.Context, req RegisterDocumentRequest) (*Document, error)
	RegisterDocuments(ctx context.Context, reqs []RegisterDocumentRequest) ([]string, error)
	ResolveDocument(ctx context.Context, cid string) (*Document, error)
	DocumentExists(ctx context.Context, cid string) (bool, error)
	GetDocument(ctx context.Context, cid string) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)

	// Event access
	GetEvent(ctx context.Context, id int64) (*AccessEvent, error)
	ListEvents(ctx context.Context, filter EventFilter) (*EventPage, error)
	RelatedEvents(ctx context.Context, eventID int64) (*RelatedEvents, error)

	// Aggregation engine
	Overview(ctx context.Context) (*OverviewStats, error)
	HourlyActivity(ctx context.Context, hours int) ([]HourlyBucket, error)
	TopEndpoints(ctx context.Context, n int) ([]DimensionCount, error)
	TopCountries(ctx context.Context, n int) ([]DimensionCount, error)
	TopClients(ctx context.Context, n int) ([]DimensionCount, error)
	TopISPs(ctx context.Context, n int) ([]DimensionCount, error)
	DeviceBreakdown(ctx context.Context) (*DeviceStats, error)
	DocumentLeaderboard(ctx context.Context) ([]DocumentStat, error)
	DocumentSummary(ctx context.Context, cid string) (*DocumentDetail, error)
}
