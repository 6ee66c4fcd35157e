package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tendant/simple-tracking/pkg/simpletracking"
)

// Repository implements simpletracking.Repository using in-memory storage.
//
// A single mutex serializes writes, which also makes get-or-create and
// the first-access determination atomic per CID. Events keep insertion
// order in the backing slice; listings sort copies by timestamp.
type Repository struct {
	mu          sync.RWMutex
	documents   map[string]*simpletracking.Document
	docOrder    []string
	events      []*simpletracking.AccessEvent
	eventsByCID map[string][]int64
	eventsByIP  map[string][]int64
	nextID      int64
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		documents:   make(map[string]*simpletracking.Document),
		eventsByCID: make(map[string][]int64),
		eventsByIP:  make(map[string][]int64),
		nextID:      1,
	}
}

// Document operations

func (r *Repository) GetOrCreateDocument(ctx context.Context, cid string, now time.Time) (*simpletracking.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if doc, exists := r.documents[cid]; exists {
		docCopy := *doc
		return &docCopy, nil
	}
	doc := &simpletracking.Document{CID: cid, CreatedAt: now}
	r.documents[cid] = doc
	r.docOrder = append(r.docOrder, cid)
	docCopy := *doc
	return &docCopy, nil
}

func (r *Repository) UpsertDocument(ctx context.Context, doc *simpletracking.Document) (*simpletracking.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.documents[doc.CID]
	if !exists {
		docCopy := *doc
		r.documents[doc.CID] = &docCopy
		r.docOrder = append(r.docOrder, doc.CID)
		result := docCopy
		return &result, nil
	}

	// CID and creation time are immutable once assigned.
	existing.Name = doc.Name
	existing.FilePath = doc.FilePath
	if doc.Metadata != nil {
		existing.Metadata = doc.Metadata
	}
	result := *existing
	return &result, nil
}

func (r *Repository) GetDocument(ctx context.Context, cid string) (*simpletracking.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, exists := r.documents[cid]
	if !exists {
		return nil, simpletracking.ErrDocumentNotFound
	}
	docCopy := *doc
	return &docCopy, nil
}

func (r *Repository) DocumentExists(ctx context.Context, cid string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.documents[cid]
	return exists, nil
}

func (r *Repository) ListDocuments(ctx context.Context) ([]*simpletracking.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*simpletracking.Document, 0, len(r.docOrder))
	for _, cid := range r.docOrder {
		docCopy := *r.documents[cid]
		result = append(result, &docCopy)
	}
	return result, nil
}

func (r *Repository) CountDocuments(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return int64(len(r.documents)), nil
}

// Event operations

func (r *Repository) CreateEvent(ctx context.Context, event *simpletracking.AccessEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event.ID = r.nextID
	r.nextID++
	if event.CID != "" {
		event.IsFirstAccess = len(r.eventsByCID[event.CID]) == 0
	}

	eventCopy := *event
	r.events = append(r.events, &eventCopy)
	if event.CID != "" {
		r.eventsByCID[event.CID] = append(r.eventsByCID[event.CID], event.ID)
	}
	if event.IPAddress != "" {
		r.eventsByIP[event.IPAddress] = append(r.eventsByIP[event.IPAddress], event.ID)
	}
	return nil
}

func (r *Repository) GetEvent(ctx context.Context, id int64) (*simpletracking.AccessEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event := r.eventByID(id)
	if event == nil {
		return nil, simpletracking.ErrEventNotFound
	}
	eventCopy := *event
	return &eventCopy, nil
}

func (r *Repository) ListEvents(ctx context.Context, filter simpletracking.EventFilter, limit, offset int) ([]*simpletracking.AccessEvent, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*simpletracking.AccessEvent
	for _, event := range r.events {
		if matchesFilter(event, filter) {
			matched = append(matched, event)
		}
	}
	sortByTimestampDesc(matched)

	total := int64(len(matched))
	if offset >= len(matched) {
		return []*simpletracking.AccessEvent{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}

	page := make([]*simpletracking.AccessEvent, 0, end-offset)
	for _, event := range matched[offset:end] {
		eventCopy := *event
		page = append(page, &eventCopy)
	}
	return page, total, nil
}

func (r *Repository) ListEventsByCID(ctx context.Context, cid string, excludeID int64, limit int) ([]*simpletracking.AccessEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collectByIDs(r.eventsByCID[cid], excludeID, limit), nil
}

func (r *Repository) ListEventsByIP(ctx context.Context, ip string, excludeID int64, limit int) ([]*simpletracking.AccessEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collectByIDs(r.eventsByIP[ip], excludeID, limit), nil
}

func (r *Repository) MergeClientSignal(ctx context.Context, id int64, clientApp, clientBuild string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event := r.eventByID(id)
	if event == nil {
		return simpletracking.ErrEventNotFound
	}
	if event.ClientApp == "" && clientApp != "" {
		event.ClientApp = clientApp
	}
	if event.ClientBuild == "" && clientBuild != "" {
		event.ClientBuild = clientBuild
	}
	return nil
}

// Aggregation queries

func (r *Repository) CountEvents(ctx context.Context, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if since.IsZero() {
		return int64(len(r.events)), nil
	}
	var count int64
	for _, event := range r.events {
		if !event.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *Repository) CountUniqueIPs(ctx context.Context, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, event := range r.events {
		if !since.IsZero() && event.Timestamp.Before(since) {
			continue
		}
		seen[event.IPAddress] = struct{}{}
	}
	return int64(len(seen)), nil
}

func (r *Repository) HourlyActivity(ctx context.Context, since time.Time) ([]simpletracking.HourlyBucket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[time.Time]int64)
	for _, event := range r.events {
		if event.Timestamp.Before(since) {
			continue
		}
		counts[event.Timestamp.UTC().Truncate(time.Hour)]++
	}

	buckets := make([]simpletracking.HourlyBucket, 0, len(counts))
	for hour, count := range counts {
		buckets = append(buckets, simpletracking.HourlyBucket{Hour: hour, Count: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Hour.Before(buckets[j].Hour)
	})
	return buckets, nil
}

func (r *Repository) CountByDimension(ctx context.Context, dim simpletracking.Dimension, limit int, excludeEmpty bool) ([]simpletracking.DimensionCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int64)
	firstSeen := make(map[string]int)
	for i, event := range r.events {
		value := dimensionValue(event, dim)
		if excludeEmpty && value == "" {
			continue
		}
		if _, seen := counts[value]; !seen {
			firstSeen[value] = i
		}
		counts[value]++
	}

	result := make([]simpletracking.DimensionCount, 0, len(counts))
	for value, count := range counts {
		result = append(result, simpletracking.DimensionCount{Value: value, Count: count})
	}
	// Descending count, ties broken by insertion order for stability.
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return firstSeen[result[i].Value] < firstSeen[result[j].Value]
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *Repository) ListClientProfiles(ctx context.Context) ([]simpletracking.ClientProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]simpletracking.ClientProfile, 0, len(r.events))
	for _, event := range r.events {
		profiles = append(profiles, simpletracking.ClientProfile{
			UserAgent: event.UserAgent,
			ClientApp: event.ClientApp,
		})
	}
	return profiles, nil
}

func (r *Repository) DocumentStats(ctx context.Context) ([]simpletracking.DocumentStat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]simpletracking.DocumentStat, 0, len(r.docOrder))
	for _, cid := range r.docOrder {
		doc := r.documents[cid]
		stat := simpletracking.DocumentStat{CID: doc.CID, Name: doc.Name}
		for _, id := range r.eventsByCID[cid] {
			event := r.eventByID(id)
			if event == nil {
				continue
			}
			stat.EventCount++
			ts := event.Timestamp
			if stat.FirstSeen == nil || ts.Before(*stat.FirstSeen) {
				first := ts
				stat.FirstSeen = &first
			}
			if stat.LastSeen == nil || ts.After(*stat.LastSeen) {
				last := ts
				stat.LastSeen = &last
			}
		}
		stats = append(stats, stat)
	}
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].EventCount > stats[j].EventCount
	})
	return stats, nil
}

func (r *Repository) DocumentReach(ctx context.Context, cid string) (int64, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ips := make(map[string]struct{})
	countries := make(map[string]struct{})
	for _, id := range r.eventsByCID[cid] {
		event := r.eventByID(id)
		if event == nil {
			continue
		}
		ips[event.IPAddress] = struct{}{}
		if event.Country != "" {
			countries[event.Country] = struct{}{}
		}
	}
	return int64(len(ips)), int64(len(countries)), nil
}

// Helpers. Callers must hold the lock.

func (r *Repository) eventByID(id int64) *simpletracking.AccessEvent {
	idx := id - 1
	if idx < 0 || idx >= int64(len(r.events)) {
		return nil
	}
	return r.events[idx]
}

func (r *Repository) collectByIDs(ids []int64, excludeID int64, limit int) []*simpletracking.AccessEvent {
	events := make([]*simpletracking.AccessEvent, 0, len(ids))
	for _, id := range ids {
		if id == excludeID {
			continue
		}
		if event := r.eventByID(id); event != nil {
			eventCopy := *event
			events = append(events, &eventCopy)
		}
	}
	sortByTimestampDesc(events)
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}

func sortByTimestampDesc(events []*simpletracking.AccessEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.After(events[j].Timestamp)
		}
		return events[i].ID > events[j].ID
	})
}

func matchesFilter(event *simpletracking.AccessEvent, f simpletracking.EventFilter) bool {
	if f.CID != "" && !containsFold(event.CID, f.CID) {
		return false
	}
	if f.IP != "" && !containsFold(event.IPAddress, f.IP) {
		return false
	}
	if f.Endpoint != "" && !containsFold(event.Endpoint, f.Endpoint) {
		return false
	}
	if f.Country != "" && !containsFold(event.Country, f.Country) {
		return false
	}
	if f.Client != "" && !containsFold(event.ClientApp, f.Client) {
		return false
	}
	if f.FirstAccessOnly && !event.IsFirstAccess {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func dimensionValue(event *simpletracking.AccessEvent, dim simpletracking.Dimension) string {
	switch dim {
	case simpletracking.DimensionEndpoint:
		return event.Endpoint
	case simpletracking.DimensionCountry:
		return event.Country
	case simpletracking.DimensionClientApp:
		return event.ClientApp
	case simpletracking.DimensionISP:
		return event.ISP
	default:
		return ""
	}
}
