package simpletracking

import (
	"context"
	"time"
)

// Repository defines the interface for document and access event persistence.
//
// GetOrCreateDocument and CreateEvent are the two operations with atomicity
// requirements: get-or-create must never produce two rows for one CID, and
// CreateEvent must determine the first-access flag and insert the event as a
// single logical unit per CID.
type Repository interface {
	// Document operations
	GetOrCreateDocument(ctx context.Context, cid string, now time.Time) (*Document, error)
	UpsertDocument(ctx context.Context, doc *Document) (*Document, error)
	GetDocument(ctx context.Context, cid string) (*Document, error)
	DocumentExists(ctx context.Context, cid string) (bool, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	CountDocuments(ctx context.Context) (int64, error)

	// Event operations. CreateEvent assigns the event ID and, for events
	// carrying a non-empty CID, computes IsFirstAccess atomically with the
	// insert. MergeClientSignal fills ClientApp/ClientBuild only while the
	// stored fields are empty; it is the sole permitted post-create update.
	CreateEvent(ctx context.Context, event *AccessEvent) error
	GetEvent(ctx context.Context, id int64) (*AccessEvent, error)
	ListEvents(ctx context.Context, filter EventFilter, limit, offset int) ([]*AccessEvent, int64, error)
	ListEventsByCID(ctx context.Context, cid string, excludeID int64, limit int) ([]*AccessEvent, error)
	ListEventsByIP(ctx context.Context, ip string, excludeID int64, limit int) ([]*AccessEvent, error)
	MergeClientSignal(ctx context.Context, id int64, clientApp, clientBuild string) error

	// Aggregation queries. All are read-only and safe to interleave with
	// ongoing ingestion. A zero since means "no lower bound".
	CountEvents(ctx context.Context, since time.Time) (int64, error)
	CountUniqueIPs(ctx context.Context, since time.Time) (int64, error)
	HourlyActivity(ctx context.Context, since time.Time) ([]HourlyBucket, error)
	CountByDimension(ctx context.Context, dim Dimension, limit int, excludeEmpty bool) ([]DimensionCount, error)
	ListClientProfiles(ctx context.Context) ([]ClientProfile, error)
	DocumentStats(ctx context.Context) ([]DocumentStat, error)
	DocumentReach(ctx context.Context, cid string) (uniqueIPs, uniqueCountries int64, err error)
}

// GeoResolver supplies network-level facts for an IP address. Lookup
// failures are treated as "no facts", never as ingestion failures.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) (GeoFacts, error)
}

// Clock abstracts wall-clock time so ingestion is deterministic under test.
type Clock interface {
	Now() time.Time
}

// EventSink defines the interface for observability hooks fired by the
// service after successful writes.
type EventSink interface {
	// EventRecorded is fired after an access event is persisted
	EventRecorded(ctx context.Context, event *AccessEvent)

	// DocumentRegistered is fired after a document is registered or updated
	DocumentRegistered(ctx context.Context, doc *Document)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }
