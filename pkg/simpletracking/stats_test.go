package simpletracking_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-tracking/pkg/simpletracking"
	"github.com/tendant/simple-tracking/pkg/simpletracking/repo/memory"
)

func seedEvent(t *testing.T, repo *memory.Repository, event *simpletracking.AccessEvent) {
	t.Helper()
	if event.Method == "" {
		event.Method = "GET"
	}
	require.NoError(t, repo.CreateEvent(context.Background(), event))
}

func TestClassifyDevice(t *testing.T) {
	tests := []struct {
		name    string
		profile simpletracking.ClientProfile
		want    simpletracking.DeviceClass
	}{
		{"office client app", simpletracking.ClientProfile{ClientApp: "Microsoft Word"}, simpletracking.DeviceClassOffice},
		{"office beats mobile ua", simpletracking.ClientProfile{UserAgent: "Android", ClientApp: "Microsoft Excel"}, simpletracking.DeviceClassOffice},
		{"android", simpletracking.ClientProfile{UserAgent: "Mozilla/5.0 (Linux; Android 14)"}, simpletracking.DeviceClassMobile},
		{"iphone", simpletracking.ClientProfile{UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1)"}, simpletracking.DeviceClassMobile},
		{"desktop fallback", simpletracking.ClientProfile{UserAgent: "Mozilla/5.0 (Windows NT 10.0)"}, simpletracking.DeviceClassDesktop},
		{"empty profile is desktop", simpletracking.ClientProfile{}, simpletracking.DeviceClassDesktop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, simpletracking.ClassifyDevice(tt.profile))
		})
	}
}

func TestDeviceBreakdown_EveryEventInExactlyOneClass(t *testing.T) {
	svc, repo := newTestService(t)

	seedEvent(t, repo, &simpletracking.AccessEvent{Endpoint: "/a", ClientApp: "Microsoft Word", Timestamp: testNow})
	seedEvent(t, repo, &simpletracking.AccessEvent{Endpoint: "/a", UserAgent: "Mozilla/5.0 (iPhone)", Timestamp: testNow})
	seedEvent(t, repo, &simpletracking.AccessEvent{Endpoint: "/a", UserAgent: "Mozilla/5.0 (Windows NT 10.0)", Timestamp: testNow})
	seedEvent(t, repo, &simpletracking.AccessEvent{Endpoint: "/a", Timestamp: testNow})

	stats, err := svc.DeviceBreakdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Office)
	assert.Equal(t, int64(1), stats.Mobile)
	assert.Equal(t, int64(2), stats.Desktop)
	assert.Equal(t, int64(4), stats.Office+stats.Mobile+stats.Desktop)
}

func TestTopEndpoints_GroupsSumToTotal(t *testing.T) {
	svc, repo := newTestService(t)

	// 6 + 3 + 1 events across exactly three endpoints.
	for i := 0; i < 6; i++ {
		seedEvent(t, repo, &simpletracking.AccessEvent{Endpoint: "/assets/media/logo.png", Timestamp: testNow})
	}
	for i := 0; i < 3; i++ {
		seedEvent(t, repo, &simpletracking.AccessEvent{Endpoint: "/health/ping", Timestamp: testNow})
	}
	seedEvent(t, repo, &simpletracking.AccessEvent{Endpoint: "/fonts/inter.woff2", Timestamp: testNow})

	counts, err := svc.TopEndpoints(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, counts, 3)

	var sum int64
	for i, c := range counts {
		sum += c.Count
		if i > 0 {
			assert.GreaterOrEqual(t, counts[i-1].Count, c.Count)
		}
	}
	assert.Equal(t, int64(10), sum)
	assert.Equal(t, "/assets/media/logo.png", counts[0].Value)
}

func TestTopCountries_ExcludesEmpty(t *testing.T) {
	svc, repo := newTestService(t)

	seedEvent(t, repo, &simpletracking.AccessEvent{Endpoint: "/a", Country: "Japan", Timestamp: testNow})
	seedEvent(t, repo, &simpletracking.AccessEvent{Endpoint: "/a", Timestamp: testNow})

	counts, err := svc.TopCountries(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, "Japan", counts[0].Value)
}

func TestOverview(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterDocument(ctx, simpletracking.RegisterDocumentRequest{CID: "doc-1"})
	require.NoError(t, err)

	seedEvent(t, repo, &simpletracking.AccessEvent{CID: "doc-1", IPAddress: "1.1.1.1", Endpoint: "/a", Timestamp: testNow.Add(-time.Hour)})
	seedEvent(t, repo, &simpletracking.AccessEvent{CID: "doc-1", IPAddress: "2.2.2.2", Endpoint: "/a", Timestamp: testNow.Add(-3 * 24 * time.Hour)})
	seedEvent(t, repo, &simpletracking.AccessEvent{CID: "doc-1", IPAddress: "1.1.1.1", Endpoint: "/a", Timestamp: testNow.Add(-10 * 24 * time.Hour)})

	stats, err := svc.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalDocuments)
	assert.Equal(t, int64(3), stats.TotalEvents)
	assert.Equal(t, int64(1), stats.Events24h)
	assert.Equal(t, int64(2), stats.Events7d)
	assert.Equal(t, int64(2), stats.UniqueIPs)
	assert.Equal(t, int64(1), stats.UniqueIPs24h)
	require.NotEmpty(t, stats.RecentEvents)
	// Newest first.
	assert.Equal(t, testNow.Add(-time.Hour), stats.RecentEvents[0].Timestamp)
}

func TestHourlyActivity_WindowDefaultsTo24(t *testing.T) {
	svc, repo := newTestService(t)

	seedEvent(t, repo, &simpletracking.AccessEvent{Endpoint: "/a", Timestamp: testNow.Add(-30 * time.Hour)})
	seedEvent(t, repo, &simpletracking.AccessEvent{Endpoint: "/a", Timestamp: testNow.Add(-2 * time.Hour)})
	seedEvent(t, repo, &simpletracking.AccessEvent{Endpoint: "/a", Timestamp: testNow.Add(-2*time.Hour + 10*time.Minute)})

	buckets, err := svc.HourlyActivity(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, int64(2), buckets[0].Count)

	// A wider window picks up the older event.
	buckets, err = svc.HourlyActivity(context.Background(), 48)
	require.NoError(t, err)
	assert.Len(t, buckets, 2)
}

func TestListEvents_PaginationCeiling(t *testing.T) {
	svc, repo := newTestService(t)

	for i := 0; i < simpletracking.EventsPerPage*2+1; i++ {
		seedEvent(t, repo, &simpletracking.AccessEvent{
			Endpoint:  "/a",
			Timestamp: testNow.Add(time.Duration(i) * time.Second),
		})
	}

	page, err := svc.ListEvents(context.Background(), simpletracking.EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Pagination.Page)
	assert.Equal(t, simpletracking.EventsPerPage, page.Pagination.PerPage)
	assert.Equal(t, int64(simpletracking.EventsPerPage*2+1), page.Pagination.Total)
	assert.Equal(t, int64(3), page.Pagination.TotalPages)
	assert.Len(t, page.Events, simpletracking.EventsPerPage)

	last, err := svc.ListEvents(context.Background(), simpletracking.EventFilter{Page: 3})
	require.NoError(t, err)
	assert.Len(t, last.Events, 1)
}

func TestRelatedEvents_IndependentResultSets(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	anchor := &simpletracking.AccessEvent{CID: "doc-x", IPAddress: "9.9.9.9", Endpoint: "/a", Timestamp: testNow}
	require.NoError(t, repo.CreateEvent(ctx, anchor))

	for i := 0; i < 5; i++ {
		seedEvent(t, repo, &simpletracking.AccessEvent{
			CID: "doc-x", IPAddress: fmt.Sprintf("10.0.0.%d", i), Endpoint: "/a",
			Timestamp: testNow.Add(time.Duration(i+1) * time.Minute),
		})
	}
	for i := 0; i < 2; i++ {
		seedEvent(t, repo, &simpletracking.AccessEvent{
			CID: "doc-other", IPAddress: "9.9.9.9", Endpoint: "/b",
			Timestamp: testNow.Add(time.Duration(i+1) * time.Hour),
		})
	}

	related, err := svc.RelatedEvents(ctx, anchor.ID)
	require.NoError(t, err)
	assert.Len(t, related.ByCID, 5)
	assert.Len(t, related.ByIP, 2)
	for _, e := range related.ByCID {
		assert.NotEqual(t, anchor.ID, e.ID)
	}
}

func TestRelatedEvents_UnknownEvent(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.RelatedEvents(context.Background(), 404)
	assert.ErrorIs(t, err, simpletracking.ErrEventNotFound)
}

func TestDocumentLeaderboardAndSummary(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterDocument(ctx, simpletracking.RegisterDocumentRequest{CID: "doc-1", Name: "Deck"})
	require.NoError(t, err)
	_, err = svc.RegisterDocument(ctx, simpletracking.RegisterDocumentRequest{CID: "doc-2", Name: "Memo"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		seedEvent(t, repo, &simpletracking.AccessEvent{
			CID: "doc-2", IPAddress: fmt.Sprintf("10.0.0.%d", i%2), Country: "Japan", Endpoint: "/a",
			Timestamp: testNow.Add(time.Duration(i) * time.Minute),
		})
	}

	board, err := svc.DocumentLeaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "doc-2", board[0].CID)
	assert.Equal(t, int64(3), board[0].EventCount)

	detail, err := svc.DocumentSummary(ctx, "doc-2")
	require.NoError(t, err)
	assert.Equal(t, "Memo", detail.Document.Name)
	assert.Equal(t, int64(3), detail.EventCount)
	assert.Equal(t, int64(2), detail.UniqueIPs)
	assert.Equal(t, int64(1), detail.UniqueCountries)
	assert.Len(t, detail.RecentEvents, 3)

	_, err = svc.DocumentSummary(ctx, "missing")
	assert.ErrorIs(t, err, simpletracking.ErrDocumentNotFound)
}
