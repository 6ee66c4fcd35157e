// Package sqlite implements the tracking repository on an embedded
// SQLite database, suitable for single-file deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tendant/simple-tracking/pkg/simpletracking"
)

// Repository implements simpletracking.Repository using SQLite.
//
// Timestamps are stored as unix nanoseconds so range comparisons and
// hour bucketing are plain integer arithmetic.
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(ctx context.Context, path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The driver serializes access per connection; a single connection
	// avoids SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	r := &Repository{db: db}
	if err := r.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// New wraps an existing database handle. Migrate must have been run.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Close closes the underlying database handle.
func (r *Repository) Close() error { return r.db.Close() }

// Migrate creates the tables and indexes the repository depends on.
func (r *Repository) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS document (
			cid        TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			file_path  TEXT NOT NULL DEFAULT '',
			metadata   TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS access_event (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			cid             TEXT NOT NULL DEFAULT '',
			ip_address      TEXT NOT NULL DEFAULT '',
			asn             TEXT NOT NULL DEFAULT '',
			isp             TEXT NOT NULL DEFAULT '',
			country         TEXT NOT NULL DEFAULT '',
			city            TEXT NOT NULL DEFAULT '',
			is_proxy        INTEGER NOT NULL DEFAULT 0,
			is_tor          INTEGER NOT NULL DEFAULT 0,
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
			query_params    TEXT NOT NULL DEFAULT '{}',
			request_body    TEXT NOT NULL DEFAULT '{}',
			ts              INTEGER NOT NULL,
			clock_skew      INTEGER,
			is_first_access INTEGER NOT NULL DEFAULT 0,
			session_id      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_access_event_cid_ts ON access_event (cid, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_access_event_ip_ts ON access_event (ip_address, ts)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Document operations

func (r *Repository) GetOrCreateDocument(ctx context.Context, cid string, now time.Time) (*simpletracking.Document, error) {
	query := `INSERT INTO document (cid, created_at) VALUES (?, ?) ON CONFLICT (cid) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, cid, now.UnixNano()); err != nil {
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
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (cid) DO UPDATE SET
			name = excluded.name,
			file_path = excluded.file_path,
			metadata = excluded.metadata`
	if _, err := r.db.ExecContext(ctx, query, doc.CID, doc.Name, doc.FilePath, metadata, doc.CreatedAt.UnixNano()); err != nil {
		return nil, err
	}
	return r.GetDocument(ctx, doc.CID)
}

func (r *Repository) GetDocument(ctx context.Context, cid string) (*simpletracking.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT cid, name, file_path, metadata, created_at FROM document WHERE cid = ?`, cid)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, simpletracking.ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (r *Repository) DocumentExists(ctx context.Context, cid string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM document WHERE cid = ?)`, cid).Scan(&exists)
	return exists, err
}

func (r *Repository) ListDocuments(ctx context.Context) ([]*simpletracking.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT cid, name, file_path, metadata, created_at FROM document ORDER BY created_at DESC`)
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
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document`).Scan(&count)
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

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// First-access check and insert run in one transaction per CID.
	isFirst := false
	if event.CID != "" {
		var prior int64
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM access_event WHERE cid = ?`, event.CID).Scan(&prior)
		if err != nil {
			return err
		}
		isFirst = prior == 0
	}

	query := `
		INSERT INTO access_event (
			cid, ip_address, asn, isp, country, city, is_proxy, is_tor,
			user_agent, accept_headers, accept_language, os_name, os_version,
			browser_name, browser_version, client_app, client_build,
			endpoint, method, query_params, request_body, ts, clock_skew, session_id,
			is_first_access
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, query,
		event.CID, event.IPAddress, event.ASN, event.ISP, event.Country, event.City,
		event.IsProxy, event.IsTor,
		event.UserAgent, event.AcceptHeaders, event.AcceptLanguage,
		event.OSName, event.OSVersion,
		event.BrowserName, event.BrowserVersion, event.ClientApp, event.ClientBuild,
		event.Endpoint, event.Method, queryParams, requestBody,
		event.Timestamp.UnixNano(), event.ClockSkew, event.SessionID,
		isFirst)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	event.ID = id
	event.IsFirstAccess = isFirst
	return nil
}

func (r *Repository) GetEvent(ctx context.Context, id int64) (*simpletracking.AccessEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM access_event WHERE id = ?`, id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, simpletracking.ErrEventNotFound
		}
		return nil, err
	}
	return event, nil
}

func (r *Repository) ListEvents(ctx context.Context, filter simpletracking.EventFilter, limit, offset int) ([]*simpletracking.AccessEvent, int64, error) {
	where, args := buildFilter(filter)

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_event`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + eventColumns + ` FROM access_event` + where +
		` ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	events, err := r.queryEvents(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *Repository) ListEventsByCID(ctx context.Context, cid string, excludeID int64, limit int) ([]*simpletracking.AccessEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM access_event
		WHERE cid = ? AND id <> ? ORDER BY ts DESC, id DESC LIMIT ?`
	return r.queryEvents(ctx, query, cid, excludeID, limit)
}

func (r *Repository) ListEventsByIP(ctx context.Context, ip string, excludeID int64, limit int) ([]*simpletracking.AccessEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM access_event
		WHERE ip_address = ? AND id <> ? ORDER BY ts DESC, id DESC LIMIT ?`
	return r.queryEvents(ctx, query, ip, excludeID, limit)
}

func (r *Repository) MergeClientSignal(ctx context.Context, id int64, clientApp, clientBuild string) error {
	query := `
		UPDATE access_event SET
			client_app   = CASE WHEN client_app = ''   THEN ? ELSE client_app END,
			client_build = CASE WHEN client_build = '' THEN ? ELSE client_build END
		WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, clientApp, clientBuild, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return simpletracking.ErrEventNotFound
	}
	return nil
}

// Aggregation queries

func (r *Repository) CountEvents(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	if since.IsZero() {
		err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_event`).Scan(&count)
		return count, err
	}
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_event WHERE ts >= ?`, since.UnixNano()).Scan(&count)
	return count, err
}

func (r *Repository) CountUniqueIPs(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	if since.IsZero() {
		err := r.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT ip_address) FROM access_event`).Scan(&count)
		return count, err
	}
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT ip_address) FROM access_event WHERE ts >= ?`, since.UnixNano()).Scan(&count)
	return count, err
}

func (r *Repository) HourlyActivity(ctx context.Context, since time.Time) ([]simpletracking.HourlyBucket, error) {
	hour := int64(time.Hour)
	query := `
		SELECT (ts / ?) * ? AS hour, COUNT(*)
		FROM access_event WHERE ts >= ?
		GROUP BY hour ORDER BY hour`
	rows, err := r.db.QueryContext(ctx, query, hour, hour, since.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []simpletracking.HourlyBucket
	for rows.Next() {
		var ns, count int64
		if err := rows.Scan(&ns, &count); err != nil {
			return nil, err
		}
		buckets = append(buckets, simpletracking.HourlyBucket{
			Hour:  time.Unix(0, ns).UTC(),
			Count: count,
		})
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
		GROUP BY %s ORDER BY COUNT(*) DESC, MIN(id) LIMIT ?`, column, where, column)

	rows, err := r.db.QueryContext(ctx, query, limit)
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
	rows, err := r.db.QueryContext(ctx, `SELECT user_agent, client_app FROM access_event`)
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
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []simpletracking.DocumentStat
	for rows.Next() {
		var stat simpletracking.DocumentStat
		var first, last sql.NullInt64
		if err := rows.Scan(&stat.CID, &stat.Name, &stat.EventCount, &first, &last); err != nil {
			return nil, err
		}
		if first.Valid {
			ts := time.Unix(0, first.Int64).UTC()
			stat.FirstSeen = &ts
		}
		if last.Valid {
			ts := time.Unix(0, last.Int64).UTC()
			stat.LastSeen = &ts
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

func (r *Repository) DocumentReach(ctx context.Context, cid string) (int64, int64, error) {
	query := `
		SELECT COUNT(DISTINCT ip_address),
		       COUNT(DISTINCT CASE WHEN country <> '' THEN country END)
		FROM access_event WHERE cid = ?`
	var uniqueIPs, uniqueCountries int64
	err := r.db.QueryRowContext(ctx, query, cid).Scan(&uniqueIPs, &uniqueCountries)
	return uniqueIPs, uniqueCountries, err
}

// Helpers

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*simpletracking.Document, error) {
	var doc simpletracking.Document
	var metadata string
	var createdAt int64
	if err := row.Scan(&doc.CID, &doc.Name, &doc.FilePath, &metadata, &createdAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(metadata, &doc.Metadata); err != nil {
		return nil, err
	}
	doc.CreatedAt = time.Unix(0, createdAt).UTC()
	return &doc, nil
}

func scanEvent(row rowScanner) (*simpletracking.AccessEvent, error) {
	var event simpletracking.AccessEvent
	var queryParams, requestBody string
	var ts int64
	var clockSkew sql.NullInt64
	err := row.Scan(
		&event.ID, &event.CID, &event.IPAddress, &event.ASN, &event.ISP,
		&event.Country, &event.City, &event.IsProxy, &event.IsTor,
		&event.UserAgent, &event.AcceptHeaders, &event.AcceptLanguage,
		&event.OSName, &event.OSVersion,
		&event.BrowserName, &event.BrowserVersion, &event.ClientApp, &event.ClientBuild,
		&event.Endpoint, &event.Method, &queryParams, &requestBody,
		&ts, &clockSkew, &event.IsFirstAccess, &event.SessionID)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(queryParams, &event.QueryParams); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(requestBody, &event.RequestBody); err != nil {
		return nil, err
	}
	if clockSkew.Valid {
		skew := int(clockSkew.Int64)
		event.ClockSkew = &skew
	}
	event.Timestamp = time.Unix(0, ts).UTC()
	return &event, nil
}

func (r *Repository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]*simpletracking.AccessEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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
		clauses = append(clauses, column+" LIKE ?")
		args = append(args, "%"+value+"%")
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
		clauses = append(clauses, "is_first_access = 1")
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

func marshalJSON(value interface{}) (string, error) {
	if value == nil {
		return "{}", nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalJSON(data string, target interface{}) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), target)
}
