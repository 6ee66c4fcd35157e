package simpletracking

import "time"

// Option configures the service created by New.
type Option func(*service)

// WithRepository sets the repository backing the document registry and
// event store. Required.
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repo = repo
	}
}

// WithGeoResolver sets the provider for ASN/ISP/geography facts.
// Defaults to a no-op resolver.
func WithGeoResolver(geo GeoResolver) Option {
	return func(s *service) {
		if geo != nil {
			s.geo = geo
		}
	}
}

// WithClock sets the time source used for event timestamps and trailing
// windows. Defaults to the system clock.
func WithClock(clock Clock) Option {
	return func(s *service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithEventSink sets the observability sink fired after successful writes.
// Defaults to a no-op sink.
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithIngestTimeout bounds each ingestion's store operations. On timeout
// the event is dropped; the triggering decoy response is unaffected.
func WithIngestTimeout(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.ingestTimeout = d
		}
	}
}
