package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-tracking/pkg/simpletracking"
)

var baseTime = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "tracking.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newEvent(cid, ip, endpoint string, ts time.Time) *simpletracking.AccessEvent {
	return &simpletracking.AccessEvent{
		CID:       cid,
		IPAddress: ip,
		Endpoint:  endpoint,
		Method:    "GET",
		Timestamp: ts,
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.Migrate(context.Background()))
}

func TestGetOrCreateDocument(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	doc, err := repo.GetOrCreateDocument(ctx, "doc-1", baseTime)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.CID)
	assert.Equal(t, baseTime, doc.CreatedAt)

	// A second call returns the original row untouched.
	again, err := repo.GetOrCreateDocument(ctx, "doc-1", baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, baseTime, again.CreatedAt)
}

func TestUpsertDocument(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.UpsertDocument(ctx, &simpletracking.Document{
		CID: "doc-1", Name: "Deck", CreatedAt: baseTime,
	})
	require.NoError(t, err)

	updated, err := repo.UpsertDocument(ctx, &simpletracking.Document{
		CID: "doc-1", Name: "Deck v2", FilePath: "/srv/deck.pdf",
		Metadata:  map[string]interface{}{"type": "presentation"},
		CreatedAt: baseTime.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "Deck v2", updated.Name)
	assert.Equal(t, "/srv/deck.pdf", updated.FilePath)
	assert.Equal(t, "presentation", updated.Metadata["type"])
	// created_at is not rewritten on conflict.
	assert.Equal(t, baseTime, updated.CreatedAt)

	count, err := repo.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestGetDocument_NotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, simpletracking.ErrDocumentNotFound)

	exists, err := repo.DocumentExists(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateEvent_FirstAccessSequence(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i, wantFirst := range []bool{true, false, false} {
		event := newEvent("doc-1", "1.1.1.1", "/a", baseTime.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.CreateEvent(ctx, event))
		assert.Equal(t, wantFirst, event.IsFirstAccess, "event %d", i)
		assert.NotZero(t, event.ID)
	}

	// A different document starts its own sequence.
	other := newEvent("doc-2", "1.1.1.1", "/a", baseTime)
	require.NoError(t, repo.CreateEvent(ctx, other))
	assert.True(t, other.IsFirstAccess)
}

func TestCreateEvent_NoCIDNeverFirstAccess(t *testing.T) {
	repo := newTestRepository(t)

	event := newEvent("", "1.1.1.1", "/health/ping", baseTime)
	require.NoError(t, repo.CreateEvent(context.Background(), event))
	assert.False(t, event.IsFirstAccess)
}

func TestCreateEvent_RoundTripsStructuredFields(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	skew := -42
	event := newEvent("doc-1", "1.1.1.1", "/assets/media/logo.png", baseTime)
	event.QueryParams = map[string]string{"cid": "doc-1", "v": "2.4.1"}
	event.RequestBody = map[string]interface{}{"client": "Acme Reader"}
	event.ClockSkew = &skew
	event.Country = "Japan"
	require.NoError(t, repo.CreateEvent(ctx, event))

	stored, err := repo.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.QueryParams, stored.QueryParams)
	assert.Equal(t, "Acme Reader", stored.RequestBody["client"])
	require.NotNil(t, stored.ClockSkew)
	assert.Equal(t, -42, *stored.ClockSkew)
	assert.Equal(t, baseTime, stored.Timestamp)
}

func TestGetEvent_NotFound(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.GetEvent(context.Background(), 404)
	assert.ErrorIs(t, err, simpletracking.ErrEventNotFound)
}

func TestListEvents_FilterAndPagination(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.CreateEvent(ctx,
			newEvent("doc-1", "1.1.1.1", "/assets/media/logo.png", baseTime.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, repo.CreateEvent(ctx, newEvent("doc-2", "2.2.2.2", "/health/ping", baseTime)))

	// Substring match is case-insensitive for ASCII.
	events, total, err := repo.ListEvents(ctx, simpletracking.EventFilter{CID: "DOC-1"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, events, 5)
	// Newest first.
	assert.Equal(t, baseTime.Add(4*time.Minute), events[0].Timestamp)

	events, total, err = repo.ListEvents(ctx, simpletracking.EventFilter{CID: "doc-1"}, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, events, 1)

	events, _, err = repo.ListEvents(ctx, simpletracking.EventFilter{Endpoint: "media"}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, events, 5)

	events, _, err = repo.ListEvents(ctx, simpletracking.EventFilter{FirstAccessOnly: true}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestListEventsByCIDAndIP_ExcludesSelf(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	anchor := newEvent("doc-1", "9.9.9.9", "/a", baseTime)
	require.NoError(t, repo.CreateEvent(ctx, anchor))
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.CreateEvent(ctx,
			newEvent("doc-1", "1.1.1.1", "/a", baseTime.Add(time.Duration(i+1)*time.Minute))))
	}
	require.NoError(t, repo.CreateEvent(ctx, newEvent("doc-2", "9.9.9.9", "/b", baseTime.Add(time.Hour))))

	byCID, err := repo.ListEventsByCID(ctx, "doc-1", anchor.ID, 10)
	require.NoError(t, err)
	assert.Len(t, byCID, 3)
	for _, e := range byCID {
		assert.NotEqual(t, anchor.ID, e.ID)
	}

	byIP, err := repo.ListEventsByIP(ctx, "9.9.9.9", anchor.ID, 10)
	require.NoError(t, err)
	assert.Len(t, byIP, 1)
}

func TestMergeClientSignal(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	event := newEvent("", "1.1.1.1", "/telemetry/client", baseTime)
	require.NoError(t, repo.CreateEvent(ctx, event))

	require.NoError(t, repo.MergeClientSignal(ctx, event.ID, "Acme Reader", "4.2"))

	stored, err := repo.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Reader", stored.ClientApp)
	assert.Equal(t, "4.2", stored.ClientBuild)

	// Populated fields are left alone.
	require.NoError(t, repo.MergeClientSignal(ctx, event.ID, "Other App", "9.9"))
	stored, err = repo.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Reader", stored.ClientApp)

	assert.ErrorIs(t, repo.MergeClientSignal(ctx, 404, "App", "1"), simpletracking.ErrEventNotFound)
}

func TestCountEventsAndUniqueIPs(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateEvent(ctx, newEvent("doc-1", "1.1.1.1", "/a", baseTime.Add(-time.Hour))))
	require.NoError(t, repo.CreateEvent(ctx, newEvent("doc-1", "1.1.1.1", "/a", baseTime.Add(-48*time.Hour))))
	require.NoError(t, repo.CreateEvent(ctx, newEvent("doc-1", "2.2.2.2", "/a", baseTime.Add(-49*time.Hour))))

	total, err := repo.CountEvents(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	recent, err := repo.CountEvents(ctx, baseTime.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), recent)

	ips, err := repo.CountUniqueIPs(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), ips)

	recentIPs, err := repo.CountUniqueIPs(ctx, baseTime.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), recentIPs)
}

func TestHourlyActivity(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	hour := baseTime.Truncate(time.Hour)
	require.NoError(t, repo.CreateEvent(ctx, newEvent("doc-1", "1.1.1.1", "/a", hour.Add(5*time.Minute))))
	require.NoError(t, repo.CreateEvent(ctx, newEvent("doc-1", "1.1.1.1", "/a", hour.Add(35*time.Minute))))
	require.NoError(t, repo.CreateEvent(ctx, newEvent("doc-1", "1.1.1.1", "/a", hour.Add(-2*time.Hour))))

	buckets, err := repo.HourlyActivity(ctx, hour.Add(-6*time.Hour))
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, hour.Add(-2*time.Hour), buckets[0].Hour)
	assert.Equal(t, int64(1), buckets[0].Count)
	assert.Equal(t, hour, buckets[1].Hour)
	assert.Equal(t, int64(2), buckets[1].Count)
}

func TestCountByDimension(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i, country := range []string{"Japan", "Japan", "France", ""} {
		event := newEvent("doc-1", "1.1.1.1", "/a", baseTime.Add(time.Duration(i)*time.Minute))
		event.Country = country
		require.NoError(t, repo.CreateEvent(ctx, event))
	}

	counts, err := repo.CountByDimension(ctx, simpletracking.DimensionCountry, 10, true)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, simpletracking.DimensionCount{Value: "Japan", Count: 2}, counts[0])
	assert.Equal(t, simpletracking.DimensionCount{Value: "France", Count: 1}, counts[1])

	all, err := repo.CountByDimension(ctx, simpletracking.DimensionCountry, 10, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := repo.CountByDimension(ctx, simpletracking.DimensionCountry, 1, true)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDocumentStatsAndReach(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.UpsertDocument(ctx, &simpletracking.Document{CID: "doc-1", Name: "Deck", CreatedAt: baseTime})
	require.NoError(t, err)
	_, err = repo.UpsertDocument(ctx, &simpletracking.Document{CID: "doc-2", Name: "Memo", CreatedAt: baseTime})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		event := newEvent("doc-2", []string{"1.1.1.1", "2.2.2.2", "1.1.1.1"}[i], "/a", baseTime.Add(time.Duration(i)*time.Minute))
		event.Country = []string{"Japan", "Japan", ""}[i]
		require.NoError(t, repo.CreateEvent(ctx, event))
	}

	stats, err := repo.DocumentStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "doc-2", stats[0].CID)
	assert.Equal(t, int64(3), stats[0].EventCount)
	require.NotNil(t, stats[0].FirstSeen)
	assert.Equal(t, baseTime, *stats[0].FirstSeen)
	assert.Equal(t, baseTime.Add(2*time.Minute), *stats[0].LastSeen)

	// Event-less documents still appear, with no seen range.
	assert.Equal(t, "doc-1", stats[1].CID)
	assert.Zero(t, stats[1].EventCount)
	assert.Nil(t, stats[1].FirstSeen)

	ips, countries, err := repo.DocumentReach(ctx, "doc-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), ips)
	assert.Equal(t, int64(1), countries)
}
