package simpletracking

import (
	"time"
)

// Document represents a tracked document keyed by its opaque CID.
// The CID is immutable once assigned; registration is idempotent by CID.
type Document struct {
	CID       string                 `json:"cid"`
	Name      string                 `json:"name,omitempty"`
	FilePath  string                 `json:"file_path,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// AccessEvent is one immutable record of a single tracked request.
//
// The CID string is stored directly on the event even when no Document
// row exists yet, so correlation survives out-of-order registration.
// The only permitted post-create mutation is the client-signal merge
// (ClientApp/ClientBuild, only while empty).
type AccessEvent struct {
	ID  int64  `json:"id"`
	CID string `json:"cid,omitempty"`

	// Network facts
	IPAddress string `json:"ip_address,omitempty"`
	ASN       string `json:"asn,omitempty"`
	ISP       string `json:"isp,omitempty"`
	Country   string `json:"country,omitempty"`
	City      string `json:"city,omitempty"`
	IsProxy   bool   `json:"is_proxy"`
	IsTor     bool   `json:"is_tor"`

	// Application facts
	UserAgent      string `json:"user_agent,omitempty"`
	AcceptHeaders  string `json:"accept_headers,omitempty"`
	AcceptLanguage string `json:"accept_language,omitempty"`
	OSName         string `json:"os_name,omitempty"`
	OSVersion      string `json:"os_version,omitempty"`
	BrowserName    string `json:"browser_name,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
	ClientApp      string `json:"client_app,omitempty"`
	ClientBuild    string `json:"client_build,omitempty"`

	// Request facts
	Endpoint    string                 `json:"endpoint"`
	Method      string                 `json:"method"`
	QueryParams map[string]string      `json:"query_params,omitempty"`
	RequestBody map[string]interface{} `json:"request_body,omitempty"`

	// Timing
	Timestamp time.Time `json:"timestamp"`
	ClockSkew *int      `json:"clock_skew,omitempty"`

	// Correlation facts
	IsFirstAccess bool   `json:"is_first_access"`
	SessionID     string `json:"session_id,omitempty"`
}

// GeoFacts holds network-level facts resolved for an IP address.
type GeoFacts struct {
	ASN     string
	ISP     string
	Country string
	City    string
	IsProxy bool
	IsTor   bool
}

// Dimension identifies a grouping column for top-N rollups.
type Dimension string

// Grouping dimensions (typed).
const (
	DimensionEndpoint  Dimension = "endpoint"
	DimensionCountry   Dimension = "country"
	DimensionClientApp Dimension = "client_app"
	DimensionISP       Dimension = "isp"
)

// DimensionCount is one group in a top-N rollup.
type DimensionCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// HourlyBucket is one hour of activity in a trailing-window histogram.
type HourlyBucket struct {
	Hour  time.Time `json:"hour"`
	Count int64     `json:"count"`
}

// DeviceStats classifies every recorded event into exactly one of
// office, mobile, or desktop. There is no "unknown" bucket.
type DeviceStats struct {
	Office  int64 `json:"office"`
	Mobile  int64 `json:"mobile"`
	Desktop int64 `json:"desktop"`
}

// ClientProfile is the (user agent, client application) pair used for
// device classification.
type ClientProfile struct {
	UserAgent string
	ClientApp string
}

// DocumentStat is one row of the per-document leaderboard.
type DocumentStat struct {
	CID        string     `json:"cid"`
	Name       string     `json:"name,omitempty"`
	EventCount int64      `json:"event_count"`
	FirstSeen  *time.Time `json:"first_seen,omitempty"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
}

// DocumentDetail combines a document with its access statistics.
type DocumentDetail struct {
	Document        *Document      `json:"document"`
	EventCount      int64          `json:"event_count"`
	UniqueIPs       int64          `json:"unique_ips"`
	UniqueCountries int64          `json:"unique_countries"`
	RecentEvents    []*AccessEvent `json:"recent_events"`
}

// RelatedEvents holds the two independent result sets for an event:
// other events sharing its CID and other events sharing its IP.
type RelatedEvents struct {
	ByCID []*AccessEvent `json:"by_cid"`
	ByIP  []*AccessEvent `json:"by_ip"`
}

// OverviewStats is the dashboard landing rollup.
type OverviewStats struct {
	TotalDocuments int64          `json:"total_documents"`
	TotalEvents    int64          `json:"total_events"`
	Events24h      int64          `json:"events_24h"`
	Events7d       int64          `json:"events_7d"`
	UniqueIPs      int64          `json:"unique_ips"`
	UniqueIPs24h   int64          `json:"unique_ips_24h"`
	RecentEvents   []*AccessEvent `json:"recent_events"`
}

// EventFilter narrows an event listing. String fields are substring
// matches, case-insensitive.
type EventFilter struct {
	CID             string
	IP              string
	Endpoint        string
	Country         string
	Client          string
	FirstAccessOnly bool
	Page            int
}

// Normalize applies sane defaults and bounds.
func (f *EventFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
}

// Pagination describes one page of a bounded listing.
type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// EventPage is one page of filtered events plus pagination metadata.
type EventPage struct {
	Events     []*AccessEvent `json:"events"`
	Pagination Pagination     `json:"pagination"`
}
