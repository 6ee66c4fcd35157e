package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-tracking/pkg/simpletracking"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simpletracking.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Migrate creates the tables and indexes the repository depends on.
// Both (cid, timestamp) and (ip_address, timestamp) are indexed so that
// correlation lookups and aggregation stay range scans.
func (r *Repository) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS document (
			cid        TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			file_path  TEXT NOT NULL DEFAULT '',
			metadata   JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS access_event (
			id              BIGSERIAL PRIMARY KEY,
			cid             TEXT NOT NULL DEFAULT '',
			ip_address      TEXT NOT NULL DEFAULT '',
			asn             TEXT NOT NULL DEFAULT '',
			isp             TEXT NOT NULL DEFAULT '',
			country         TEXT NOT NULL DEFAULT '',
			city            TEXT NOT NULL DEFAULT '',
			is_proxy        BOOLEAN NOT NULL DEFAULT FALSE,
			is_tor          BOOLEAN NOT NULL DEFAULT FALSE,
			user_agent      TEXT NOT NULL DEFAULT '',
			accept_headers  TEXT NOT NULL DEFAULT '',
			accept_language TEXT NOT NULL DEFAULT '',
			os_name         TEXT NOT NULL DEFAULT '',
			os_version      TEXT NOT NULL DEFAULT '',
			browser_name    TEXT NOT NULL DEFAULT '',
			browser_version TEXT NOT NULL DEFAULT '',
			client_app      TEXT NOT NULL DEFAULT '',
			client_build    TEXT NOT NULL DEFAULT '',
			endpoint        TEXT NOT NULL,
			method          TEXT NOT NULL DEFAULT 'GET',
			query_params    JSONB NOT NULL DEFAULT '{}',
			request_body    JSONB NOT NULL DEFAULT '{}',
			ts              TIMESTAMPTZ NOT NULL,
			clock_skew      INTEGER,
			is_first_access BOOLEAN NOT NULL DEFAULT FALSE,
			session_id      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_access_event_cid_ts ON access_event (cid, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_access_event_ip_ts ON access_event (ip_address, ts)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Document operations

func (r *Repository) GetOrCreateDocument(ctx context.Context, cid string, now time.Time) (*simpletracking.Document, error) {
	// Conditional insert closes the get-or-create race: concurrent
	// resolvers of an unseen CID race on the insert, and the loser
	// observes the winner's row on the following select.
	query := `INSERT INTO document (cid, created_at) VALUES ($1, $2) ON CONFLICT (cid) DO NOTHING`
	if _, err := r.db.Exec(ctx, query, cid, now); err != nil {
		return nil, fmt.Errorf("get or create document: %w", err)
	}
	return r.GetDocument(ctx, cid)
}

func (r *Repository) UpsertDocument(ctx context.Context, doc *simpletracking.Document) (*simpletracking.Document, error) {
	metadata, err := marshalJSON(doc.Metadata)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO document (cid, name, file_path, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cid) DO UPDATE SET
			name = EXCLUDED.name,
			file_path = EXCLUDED.file_path,
			metadata = EXCLUDED.metadata
		RETURNING cid, name, file_path, metadata, created_at`

	return scanDocument(r.db.QueryRow(ctx, query, doc.CID, doc.Name, doc.FilePath, metadata, doc.CreatedAt))
}

func (r *Repository) GetDocument(ctx context.Context, cid string) (*simpletracking.Document, error) {
	query := `SELECT cid, name, file_path, metadata, created_at FROM document WHERE cid = $1`
	doc, err := scanDocument(r.db.QueryRow(ctx, query, cid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpletracking.ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (r *Repository) DocumentExists(ctx context.Context, cid string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM document WHERE cid = $1)`, cid).Scan(&exists)
	return exists, err
}

func (r *Repository) ListDocuments(ctx context.Context) ([]*simpletracking.Document, error) {
	rows, err := r.db.Query(ctx, `SELECT cid, name, file_path, metadata, created_at FROM document ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*simpletracking.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *Repository) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM document`).Scan(&count)
	return count, err
}

// Event operations

const eventColumns = `id, cid, ip_address, asn, isp, country, city, is_proxy, is_tor,
	user_agent, accept_headers, accept_language, os_name, os_version,
	browser_name, browser_version, client_app, client_build,
	endpoint, method, query_params, request_body, ts, clock_skew,
	is_first_access, session_id`

func (r *Repository) CreateEvent(ctx context.Context, event *simpletracking.AccessEvent) error {
	queryParams, err := marshalJSON(event.QueryParams)
	if err != nil {
		return err
	}
	requestBody, err := marshalJSON(event.RequestBody)
	if err != nil {
		return err
	}

	// The first-access flag is computed inside the insert so the check
	// and the append form one statement per CID.
	query := `
		INSERT INTO access_event (
			cid, ip_address, asn, isp, country, city, is_proxy, is_tor,
			user_agent, accept_headers, accept_language, os_name, os_version,
			browser_name, browser_version, client_app, client_build,
			endpoint, method, query_params, request_body, ts, clock_skew, session_id,
			is_first_access
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24,
			CASE WHEN $1 = '' THEN FALSE
			     ELSE NOT EXISTS (SELECT 1 FROM access_event WHERE cid = $1) END
		)
		RETURNING id, is_first_access`

	return r.db.QueryRow(ctx, query,
		event.CID, event.IPAddress, event.ASN, event.ISP, event.Country, event.City,
		event.IsProxy, event.IsTor,
		event.UserAgent, event.AcceptHeaders, event.AcceptLanguage,
		event.OSName, event.OSVersion,
		event.BrowserName, event.BrowserVersion, event.ClientApp, event.ClientBuild,
		event.Endpoint, event.Method, queryParams, requestBody,
		event.Timestamp, event.ClockSkew, event.SessionID,
	).Scan(&event.ID, &event.IsFirstAccess)
}

func (r *Repository) GetEvent(ctx context.Context, id int64) (*simpletracking.AccessEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM access_event WHERE id = $1`
	event, err := scanEvent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpletracking.ErrEventNotFound
		}
		return nil, err
	}
	return event, nil
}

func (r *Repository) ListEvents(ctx context.Context, filter simpletracking.EventFilter, limit, offset int) ([]*simpletracking.AccessEvent, int64, error) {
	where, args := buildFilter(filter)

	var total int64
	countQuery := `SELECT COUNT(*) FROM access_event` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM access_event%s ORDER BY ts DESC, id DESC LIMIT $%d OFFSET $%d`,
		eventColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	events, err := r.queryEvents(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *Repository) ListEventsByCID(ctx context.Context, cid string, excludeID int64, limit int) ([]*simpletracking.AccessEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM access_event
		WHERE cid = $1 AND id <> $2 ORDER BY ts DESC, id DESC LIMIT $3`
	return r.queryEvents(ctx, query, cid, excludeID, limit)
}

func (r *Repository) ListEventsByIP(ctx context.Context, ip string, excludeID int64, limit int) ([]*simpletracking.AccessEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM access_event
		WHERE ip_address = $1 AND id <> $2 ORDER BY ts DESC, id DESC LIMIT $3`
	return r.queryEvents(ctx, query, ip, excludeID, limit)
}

func (r *Repository) MergeClientSignal(ctx context.Context, id int64, clientApp, clientBuild string) error {
	query := `
		UPDATE access_event SET
			client_app   = CASE WHEN client_app = ''   THEN $2 ELSE client_app END,
			client_build = CASE WHEN client_build = '' THEN $3 ELSE client_build END
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, clientApp, clientBuild)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return simpletracking.ErrEventNotFound
	}
	return nil
}

// Aggregation queries

func (r *Repository) CountEvents(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	if since.IsZero() {
		err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM access_event`).Scan(&count)
		return count, err
	}
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM access_event WHERE ts >= $1`, since).Scan(&count)
	return count, err
}

func (r *Repository) CountUniqueIPs(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	if since.IsZero() {
		err := r.db.QueryRow(ctx, `SELECT COUNT(DISTINCT ip_address) FROM access_event`).Scan(&count)
		return count, err
	}
	err := r.db.QueryRow(ctx, `SELECT COUNT(DISTINCT ip_address) FROM access_event WHERE ts >= $1`, since).Scan(&count)
	return count, err
}

func (r *Repository) HourlyActivity(ctx context.Context, since time.Time) ([]simpletracking.HourlyBucket, error) {
	query := `
		SELECT date_trunc('hour', ts) AS hour, COUNT(*)
		FROM access_event WHERE ts >= $1
		GROUP BY hour ORDER BY hour`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []simpletracking.HourlyBucket
	for rows.Next() {
		var b simpletracking.HourlyBucket
		if err := rows.Scan(&b.Hour, &b.Count); err != nil {
			return nil, err
		}
		b.Hour = b.Hour.UTC()
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func (r *Repository) CountByDimension(ctx context.Context, dim simpletracking.Dimension, limit int, excludeEmpty bool) ([]simpletracking.DimensionCount, error) {
	column, err := dimensionColumn(dim)
	if err != nil {
		return nil, err
	}
	where := ""
	if excludeEmpty {
		where = fmt.Sprintf(" WHERE %s <> ''", column)
	}
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) FROM access_event%s
		GROUP BY %s ORDER BY COUNT(*) DESC, MIN(id) LIMIT $1`, column, where, column)

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []simpletracking.DimensionCount
	for rows.Next() {
		var dc simpletracking.DimensionCount
		if err := rows.Scan(&dc.Value, &dc.Count); err != nil {
			return nil, err
		}
		result = append(result, dc)
	}
	return result, rows.Err()
}

func (r *Repository) ListClientProfiles(ctx context.Context) ([]simpletracking.ClientProfile, error) {
	rows, err := r.db.Query(ctx, `SELECT user_agent, client_app FROM access_event`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []simpletracking.ClientProfile
	for rows.Next() {
		var p simpletracking.ClientProfile
		if err := rows.Scan(&p.UserAgent, &p.ClientApp); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (r *Repository) DocumentStats(ctx context.Context) ([]simpletracking.DocumentStat, error) {
	query := `
		SELECT d.cid, d.name, COUNT(e.id), MIN(e.ts), MAX(e.ts)
		FROM document d
		LEFT JOIN access_event e ON e.cid = d.cid
		GROUP BY d.cid, d.name
		ORDER BY COUNT(e.id) DESC, d.cid`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []simpletracking.DocumentStat
	for rows.Next() {
		var stat simpletracking.DocumentStat
		if err := rows.Scan(&stat.CID, &stat.Name, &stat.EventCount, &stat.FirstSeen, &stat.LastSeen); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

func (r *Repository) DocumentReach(ctx context.Context, cid string) (int64, int64, error) {
	query := `
		SELECT COUNT(DISTINCT ip_address),
		       COUNT(DISTINCT country) FILTER (WHERE country <> '')
		FROM access_event WHERE cid = $1`
	var uniqueIPs, uniqueCountries int64
	err := r.db.QueryRow(ctx, query, cid).Scan(&uniqueIPs, &uniqueCountries)
	return uniqueIPs, uniqueCountries, err
}

// Helpers

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*simpletracking.Document, error) {
	var doc simpletracking.Document
	var metadata []byte
	if err := row.Scan(&doc.CID, &doc.Name, &doc.FilePath, &metadata, &doc.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(metadata, &doc.Metadata); err != nil {
		return nil, err
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	return &doc, nil
}

func scanEvent(row rowScanner) (*simpletracking.AccessEvent, error) {
	var event simpletracking.AccessEvent
	var queryParams, requestBody []byte
	err := row.Scan(
		&event.ID, &event.CID, &event.IPAddress, &event.ASN, &event.ISP,
		&event.Country, &event.City, &event.IsProxy, &event.IsTor,
		&event.UserAgent, &event.AcceptHeaders, &event.AcceptLanguage,
		&event.OSName, &event.OSVersion,
		&event.BrowserName, &event.BrowserVersion, &event.ClientApp, &event.ClientBuild,
		&event.Endpoint, &event.Method, &queryParams, &requestBody,
		&event.Timestamp, &event.ClockSkew, &event.IsFirstAccess, &event.SessionID)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(queryParams, &event.QueryParams); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(requestBody, &event.RequestBody); err != nil {
		return nil, err
	}
	event.Timestamp = event.Timestamp.UTC()
	return &event, nil
}

func (r *Repository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]*simpletracking.AccessEvent, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*simpletracking.AccessEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func buildFilter(filter simpletracking.EventFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	like := func(column, value string) {
		args = append(args, "%"+value+"%")
		clauses = append(clauses, fmt.Sprintf("%s ILIKE $%d", column, len(args)))
	}
	if filter.CID != "" {
		like("cid", filter.CID)
	}
	if filter.IP != "" {
		like("ip_address", filter.IP)
	}
	if filter.Endpoint != "" {
		like("endpoint", filter.Endpoint)
	}
	if filter.Country != "" {
		like("country", filter.Country)
	}
	if filter.Client != "" {
		like("client_app", filter.Client)
	}
	if filter.FirstAccessOnly {
		clauses = append(clauses, "is_first_access")
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func dimensionColumn(dim simpletracking.Dimension) (string, error) {
	switch dim {
	case simpletracking.DimensionEndpoint:
		return "endpoint", nil
	case simpletracking.DimensionCountry:
		return "country", nil
	case simpletracking.DimensionClientApp:
		return "client_app", nil
	case simpletracking.DimensionISP:
		return "isp", nil
	default:
		return "", fmt.Errorf("unknown dimension: %s", dim)
	}
}

func marshalJSON(value interface{}) ([]byte, error) {
	if value == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(value)
}

func unmarshalJSON(data []byte, target interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}
