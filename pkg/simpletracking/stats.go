package simpletracking

import (
	"context"
	"strings"
	"time"
)

// Aggregation engine: read-only rollups over the event store for
// dashboard consumption.

const (
	// DefaultTopN bounds top-N rollups.
	DefaultTopN = 10

	// DefaultWindowHours is the trailing window for the hourly histogram.
	DefaultWindowHours = 24

	// EventsPerPage is the fixed page size for event listings.
	EventsPerPage = 50

	relatedEventsLimit  = 10
	recentEventsLimit   = 20
	documentEventsLimit = 50
)

// mobileMarkers is the fixed marker set for the mobile device class.
var mobileMarkers = []string{"Android", "iPhone", "iPad", "Mobile"}

// officeMarkers identify client applications in the office device class.
var officeMarkers = []string{"Office", "Word", "Excel"}

// Overview computes the dashboard landing rollup.
func (s *service) Overview(ctx context.Context) (*OverviewStats, error) {
	now := s.clock.Now().UTC()
	stats := &OverviewStats{}

	var err error
	if stats.TotalDocuments, err = s.repo.CountDocuments(ctx); err != nil {
		return nil, err
	}
	if stats.TotalEvents, err = s.repo.CountEvents(ctx, time.Time{}); err != nil {
		return nil, err
	}
	if stats.Events24h, err = s.repo.CountEvents(ctx, now.Add(-24*time.Hour)); err != nil {
		return nil, err
	}
	if stats.Events7d, err = s.repo.CountEvents(ctx, now.Add(-7*24*time.Hour)); err != nil {
		return nil, err
	}
	if stats.UniqueIPs, err = s.repo.CountUniqueIPs(ctx, time.Time{}); err != nil {
		return nil, err
	}
	if stats.UniqueIPs24h, err = s.repo.CountUniqueIPs(ctx, now.Add(-24*time.Hour)); err != nil {
		return nil, err
	}

	recent, _, err := s.repo.ListEvents(ctx, EventFilter{Page: 1}, recentEventsLimit, 0)
	if err != nil {
		return nil, err
	}
	stats.RecentEvents = recent
	return stats, nil
}

// HourlyActivity buckets events by hour over a trailing window,
// ascending time order. hours defaults to 24 when non-positive.
func (s *service) HourlyActivity(ctx context.Context, hours int) ([]HourlyBucket, error) {
	if hours <= 0 {
		hours = DefaultWindowHours
	}
	since := s.clock.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	return s.repo.HourlyActivity(ctx, since)
}

func (s *service) TopEndpoints(ctx context.Context, n int) ([]DimensionCount, error) {
	return s.repo.CountByDimension(ctx, DimensionEndpoint, topN(n), false)
}

func (s *service) TopCountries(ctx context.Context, n int) ([]DimensionCount, error) {
	return s.repo.CountByDimension(ctx, DimensionCountry, topN(n), true)
}

func (s *service) TopClients(ctx context.Context, n int) ([]DimensionCount, error) {
	return s.repo.CountByDimension(ctx, DimensionClientApp, topN(n), true)
}

func (s *service) TopISPs(ctx context.Context, n int) ([]DimensionCount, error) {
	return s.repo.CountByDimension(ctx, DimensionISP, topN(n), true)
}

// DeviceBreakdown classifies every event into exactly one of office,
// mobile, or desktop in a single pass over (user agent, client app)
// pairs.
func (s *service) DeviceBreakdown(ctx context.Context) (*DeviceStats, error) {
	profiles, err := s.repo.ListClientProfiles(ctx)
	if err != nil {
		return nil, err
	}
	stats := &DeviceStats{}
	for _, p := range profiles {
		switch ClassifyDevice(p) {
		case DeviceClassOffice:
			stats.Office++
		case DeviceClassMobile:
			stats.Mobile++
		default:
			stats.Desktop++
		}
	}
	return stats, nil
}

// DeviceClass is one of the three mutually exclusive device categories.
type DeviceClass string

const (
	DeviceClassOffice  DeviceClass = "office"
	DeviceClassMobile  DeviceClass = "mobile"
	DeviceClassDesktop DeviceClass = "desktop"
)

// ClassifyDevice assigns a profile to exactly one device class: office
// when the client application carries an Office marker, else mobile when
// the user agent carries a mobile marker, else desktop.
func ClassifyDevice(p ClientProfile) DeviceClass {
	for _, marker := range officeMarkers {
		if strings.Contains(p.ClientApp, marker) {
			return DeviceClassOffice
		}
	}
	for _, marker := range mobileMarkers {
		if strings.Contains(p.UserAgent, marker) {
			return DeviceClassMobile
		}
	}
	return DeviceClassDesktop
}

// DocumentLeaderboard returns per-document event counts with first/last
// seen timestamps, sorted descending by event count.
func (s *service) DocumentLeaderboard(ctx context.Context) ([]DocumentStat, error) {
	return s.repo.DocumentStats(ctx)
}

// DocumentSummary returns a document with its access statistics and most
// recent events.
func (s *service) DocumentSummary(ctx context.Context, cid string) (*DocumentDetail, error) {
	doc, err := s.repo.GetDocument(ctx, cid)
	if err != nil {
		return nil, err
	}
	events, total, err := s.repo.ListEvents(ctx, EventFilter{CID: cid, Page: 1}, documentEventsLimit, 0)
	if err != nil {
		return nil, err
	}
	uniqueIPs, uniqueCountries, err := s.repo.DocumentReach(ctx, cid)
	if err != nil {
		return nil, err
	}
	return &DocumentDetail{
		Document:        doc,
		EventCount:      total,
		UniqueIPs:       uniqueIPs,
		UniqueCountries: uniqueCountries,
		RecentEvents:    events,
	}, nil
}

// ListEvents returns one page of filtered events, newest first, plus
// pagination metadata.
func (s *service) ListEvents(ctx context.Context, filter EventFilter) (*EventPage, error) {
	filter.Normalize()
	offset := (filter.Page - 1) * EventsPerPage
	events, total, err := s.repo.ListEvents(ctx, filter, EventsPerPage, offset)
	if err != nil {
		return nil, err
	}
	return &EventPage{
		Events: events,
		Pagination: Pagination{
			Page:       filter.Page,
			PerPage:    EventsPerPage,
			Total:      total,
			TotalPages: (total + EventsPerPage - 1) / EventsPerPage,
		},
	}, nil
}

// RelatedEvents returns up to 10 other events sharing the event's CID and,
// separately, up to 10 sharing its IP address. The two result sets are
// independent, both newest first.
func (s *service) RelatedEvents(ctx context.Context, eventID int64) (*RelatedEvents, error) {
	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	related := &RelatedEvents{}
	if event.CID != "" {
		related.ByCID, err = s.repo.ListEventsByCID(ctx, event.CID, event.ID, relatedEventsLimit)
		if err != nil {
			return nil, err
		}
	}
	if event.IPAddress != "" {
		related.ByIP, err = s.repo.ListEventsByIP(ctx, event.IPAddress, event.ID, relatedEventsLimit)
		if err != nil {
			return nil, err
		}
	}
	return related, nil
}

func topN(n int) int {
	if n <= 0 {
		return DefaultTopN
	}
	return n
}
