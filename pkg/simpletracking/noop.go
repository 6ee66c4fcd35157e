package simpletracking

import (
	"context"
	"log/slog"
)

// NoopGeoResolver is a no-operation implementation of GeoResolver.
// Useful when no geolocation provider is configured: every lookup
// yields empty facts.
type NoopGeoResolver struct{}

// NewNoopGeoResolver creates a new no-operation geo resolver
func NewNoopGeoResolver() GeoResolver {
	return &NoopGeoResolver{}
}

// Resolve returns empty facts for any address
func (n *NoopGeoResolver) Resolve(ctx context.Context, ip string) (GeoFacts, error) {
	return GeoFacts{}, nil
}

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// EventRecorded does nothing
func (n *NoopEventSink) EventRecorded(ctx context.Context, event *AccessEvent) {}

// DocumentRegistered does nothing
func (n *NoopEventSink) DocumentRegistered(ctx context.Context, doc *Document) {}

// LoggingEventSink is an event sink that logs writes but takes no other
// action. Useful for development and debugging.
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

// EventRecorded logs the recorded access event
func (l *LoggingEventSink) EventRecorded(ctx context.Context, event *AccessEvent) {
	l.logger.Info("access event recorded",
		"event_id", event.ID,
		"cid", event.CID,
		"endpoint", event.Endpoint,
		"ip", event.IPAddress,
		"first_access", event.IsFirstAccess)
}

// DocumentRegistered logs the document registration
func (l *LoggingEventSink) DocumentRegistered(ctx context.Context, doc *Document) {
	l.logger.Info("document registered", "cid", doc.CID, "name", doc.Name)
}
