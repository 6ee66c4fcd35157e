package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tendant/simple-tracking/pkg/simpletracking"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with realistic demo data",
	Long: `Seed three demo scenarios into the event store:

  1. an investor pitch deck viewed from VC hubs during business hours,
  2. a leaked internal memo spreading virally across countries,
  3. an enterprise proposal revisited by a few corporate decision makers.

Events are appended through the normal ingestion store, so first-access
flags and aggregations behave exactly as they would in production.`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

type scenario struct {
	doc    simpletracking.Document
	events []seedEvent
}

type seedEvent struct {
	timestamp time.Time
	ip        string
	city      string
	country   string
	isp       string
	asn       string
	clientApp string
	osName    string
	osVersion string
}

func runSeed(cmd *cobra.Command, args []string) error {
	repo, err := buildRepository(cmd.Context())
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	now := time.Now().UTC()

	total := 0
	for _, sc := range []scenario{
		seedInvestorPitch(rng, now),
		seedLeakedMemo(rng, now),
		seedProposal(rng, now),
	} {
		n, err := writeScenario(cmd.Context(), repo, sc.doc, sc.events)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %q: %d events\n", sc.doc.Name, n)
		total += n
	}

	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d events total\n", total)
	return nil
}

func writeScenario(ctx context.Context, repo simpletracking.Repository, doc simpletracking.Document, events []seedEvent) (int, error) {
	doc.CreatedAt = time.Now().UTC()
	if _, err := repo.UpsertDocument(ctx, &doc); err != nil {
		return 0, err
	}

	// Insert in chronological order so the earliest event carries the
	// first-access flag.
	sort.Slice(events, func(i, j int) bool { return events[i].timestamp.Before(events[j].timestamp) })

	for _, e := range events {
		event := &simpletracking.AccessEvent{
			CID:       doc.CID,
			IPAddress: e.ip,
			ASN:       e.asn,
			ISP:       e.isp,
			Country:   e.country,
			City:      e.city,
			OSName:    e.osName,
			OSVersion: e.osVersion,
			Endpoint:  "/assets/media/logo.png",
			Method:    "GET",
			Timestamp: e.timestamp,
		}
		// Office clients are client applications; everything else reads
		// as a browser.
		if isOfficeApp(e.clientApp) {
			event.ClientApp = e.clientApp
		} else {
			event.BrowserName = firstField(e.clientApp)
		}
		switch e.osName {
		case "Android":
			event.UserAgent = "Mozilla/5.0 (Linux; Android 14; Mobile)"
		case "iOS":
			event.UserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)"
		}
		if err := repo.CreateEvent(ctx, event); err != nil {
			return 0, err
		}
	}
	return len(events), nil
}

func isOfficeApp(app string) bool {
	for _, marker := range []string{"Office", "Word", "Excel"} {
		if strings.Contains(app, marker) {
			return true
		}
	}
	return false
}

// seedInvestorPitch models high-value targeted access from VC hubs,
// skewed towards business hours.
func seedInvestorPitch(rng *rand.Rand, now time.Time) (s scenario) {
	s.doc = simpletracking.Document{
		CID:      "pitch-" + shortID(),
		Name:     "Series A Pitch Deck (Confidential)",
		Metadata: map[string]interface{}{"type": "presentation", "version": "v3.1"},
	}

	locations := []struct{ city, country, isp, asn string }{
		{"San Francisco", "United States", "Comcast Cable", "AS7922"},
		{"New York", "United States", "Verizon Fios", "AS701"},
		{"London", "United Kingdom", "British Telecommunications", "AS2856"},
		{"Singapore", "Singapore", "Singtel", "AS7473"},
	}
	clients := []struct{ app, osName, osVersion string }{
		{"Microsoft Office 2021", "Windows", "10"},
		{"Microsoft Word", "macOS", ""},
		{"Chrome 120.0", "macOS", ""},
		{"Safari 17.2", "iOS", ""},
	}

	base := now.AddDate(0, 0, -7)
	for i := 0; i < 45; i++ {
		loc := locations[rng.Intn(len(locations))]
		client := clients[rng.Intn(len(clients))]
		ts := base.AddDate(0, 0, rng.Intn(7)).
			Add(time.Duration(9+rng.Intn(10)) * time.Hour).
			Add(time.Duration(rng.Intn(60)) * time.Minute)
		s.events = append(s.events, seedEvent{
			timestamp: ts,
			ip:        randomIP(rng),
			city:      loc.city,
			country:   loc.country,
			isp:       loc.isp,
			asn:       loc.asn,
			clientApp: client.app,
			osName:    client.osName,
			osVersion: client.osVersion,
		})
	}
	return s
}

// seedLeakedMemo models viral spread: diverse countries, accelerating
// access, many mobile clients.
func seedLeakedMemo(rng *rand.Rand, now time.Time) (s scenario) {
	s.doc = simpletracking.Document{
		CID:      "memo-" + shortID(),
		Name:     "Internal Memo: 2026 Strategy",
		Metadata: map[string]interface{}{"type": "pdf", "sensitivity": "high"},
	}

	base := now.AddDate(0, 0, -2)

	// The initial leak.
	s.events = append(s.events, seedEvent{
		timestamp: base,
		ip:        randomIP(rng),
		city:      "Menlo Park",
		country:   "United States",
		isp:       "Facebook Inc",
		asn:       "AS32934",
		clientApp: "Chrome 120.0",
		osName:    "macOS",
	})

	countries := []struct{ country, isp string }{
		{"United States", "Verizon"},
		{"United Kingdom", "BT"},
		{"Germany", "Deutsche Telekom"},
		{"India", "Jio"},
		{"Japan", "Softbank"},
		{"Brazil", "Vivo"},
	}
	clients := []string{"Chrome Mobile", "Safari Mobile", "Firefox", "Edge"}
	oses := []struct{ name, version string }{
		{"Android", ""}, {"iOS", ""}, {"Windows", "11"}, {"macOS", ""},
	}

	for i := 0; i < 120; i++ {
		ts := base.Add(time.Duration(math.Pow(float64(i), 1.5)) * time.Minute)
		if ts.After(now) {
			break
		}
		c := countries[rng.Intn(len(countries))]
		os := oses[rng.Intn(len(oses))]
		s.events = append(s.events, seedEvent{
			timestamp: ts,
			ip:        randomIP(rng),
			country:   c.country,
			isp:       c.isp,
			asn:       "AS0000",
			clientApp: clients[rng.Intn(len(clients))],
			osName:    os.name,
			osVersion: os.version,
		})
	}
	return s
}

// seedProposal models a corporate evaluation: a handful of decision
// makers returning to the document from fixed addresses.
func seedProposal(rng *rand.Rand, now time.Time) (s scenario) {
	s.doc = simpletracking.Document{
		CID:      "prop-" + shortID(),
		Name:     "Enterprise License Proposal - Acme Corp",
		Metadata: map[string]interface{}{"client": "Acme Corp"},
	}

	base := now.AddDate(0, 0, -14)
	viewers := []struct{ ip, app, osName, osVersion string }{
		{"192.168.1.5", "Chrome 119", "Windows", "10"},
		{"10.0.0.42", "Microsoft Word", "Windows", "11"},
		{"172.16.2.8", "Safari 17", "macOS", ""},
	}

	for _, v := range viewers {
		visits := 3 + rng.Intn(3)
		for i := 0; i < visits; i++ {
			ts := base.AddDate(0, 0, 1+rng.Intn(13)).
				Add(time.Duration(8+rng.Intn(13)) * time.Hour)
			s.events = append(s.events, seedEvent{
				timestamp: ts,
				ip:        v.ip,
				city:      "Austin",
				country:   "United States",
				isp:       "Acme Corp Network",
				asn:       "AS64496",
				clientApp: v.app,
				osName:    v.osName,
				osVersion: v.osVersion,
			})
		}
	}
	return s
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func randomIP(rng *rand.Rand) string {
	return fmt.Sprintf("%d.%d.%d.%d", 1+rng.Intn(255), 1+rng.Intn(255), 1+rng.Intn(255), 1+rng.Intn(255))
}
