package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

const defaultBatchSize = 1000

// maxBindParams is the PostgreSQL limit on parameters in one statement
const maxBindParams = 65535

// Storage handles all database operations for raw links and aggregates
type Storage struct {
	db        *sql.DB
	driver    string
	batchSize int
}

// NewStorage opens the database, checks connectivity and initializes the schema
func NewStorage(driver, dsn string) (*Storage, error) {
	switch driver {
	case DriverPostgres:
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_synchronous=NORMAL"
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverPostgres {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	storage := New(db, driver)
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// New wraps an already opened database without touching the schema
func New(db *sql.DB, driver string) *Storage {
	return &Storage{db: db, driver: driver, batchSize: defaultBatchSize}
}

// SetBatchSize sets how many rows go into a single multi-row INSERT
func (s *Storage) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS external_links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		link TEXT NOT NULL,
		is_homepage BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS aggregated_links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		primary_link TEXT NOT NULL,
		frequency INTEGER NOT NULL DEFAULT 0,
		subsections TEXT NOT NULL DEFAULT '{}',
		country TEXT NOT NULL DEFAULT 'Unknown',
		category TEXT,
		is_ad_based BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_aggregated_links_run ON aggregated_links(run_id);
	`

	if s.driver == DriverPostgres {
		schema = `
		CREATE TABLE IF NOT EXISTS external_links (
			id BIGSERIAL PRIMARY KEY,
			link TEXT NOT NULL,
			is_homepage BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS aggregated_links (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			primary_link TEXT NOT NULL,
			frequency INTEGER NOT NULL DEFAULT 0,
			subsections JSONB NOT NULL DEFAULT '{}',
			country TEXT NOT NULL DEFAULT 'Unknown',
			category TEXT,
			is_ad_based BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_aggregated_links_run ON aggregated_links(run_id);
		`
	}

	_, err := s.db.Exec(schema)
	return err
}

// rowsPerStatement caps the batch size so that a multi-row INSERT of
// cols parameters per row stays within maxBindParams
func (s *Storage) rowsPerStatement(cols int) int {
	return min(s.batchSize, maxBindParams/cols)
}

// InsertLinks appends raw link observations in batches
func (s *Storage) InsertLinks(ctx context.Context, links []LinkObservation) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	chunk := s.rowsPerStatement(2)
	for start := 0; start < len(links); start += chunk {
		end := min(start+chunk, len(links))
		batch := links[start:end]

		args := make([]any, 0, len(batch)*2)
		for _, link := range batch {
			args = append(args, link.URL, link.IsHomepage)
		}

		query := s.rebind("INSERT INTO external_links (link, is_homepage) VALUES " + placeholders(len(batch), 2))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert links: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit links: %w", err)
	}
	return nil
}

// EachLink streams every stored observation, in insertion order, to fn.
// An error returned by fn stops the scan and is returned as is.
func (s *Storage) EachLink(ctx context.Context, fn func(LinkObservation) error) error {
	rows, err := s.db.QueryContext(ctx, "SELECT link, is_homepage FROM external_links ORDER BY id")
	if err != nil {
		return fmt.Errorf("failed to select links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var link LinkObservation
		if err := rows.Scan(&link.URL, &link.IsHomepage); err != nil {
			return fmt.Errorf("failed to scan link: %w", err)
		}
		if err := fn(link); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating links: %w", err)
	}
	return nil
}

// CountLinks returns the number of stored raw observations
func (s *Storage) CountLinks(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM external_links").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return n, nil
}

// InsertAggregated appends one row per site for the given run. Subsections
// are stored as a JSON object, without the empty path.
func (s *Storage) InsertAggregated(ctx context.Context, runID string, data map[string]SiteAggregate) error {
	if len(data) == 0 {
		return nil
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	chunk := s.rowsPerStatement(7)
	for start := 0; start < len(keys); start += chunk {
		end := min(start+chunk, len(keys))

		args := make([]any, 0, (end-start)*7)
		for _, primaryLink := range keys[start:end] {
			agg := data[primaryLink]
			subsections, err := encodeSubsections(agg.Subsections)
			if err != nil {
				return fmt.Errorf("failed to encode subsections for %s: %w", primaryLink, err)
			}
			args = append(args, runID, primaryLink, agg.Frequency, subsections, agg.Country, nullString(agg.Category), agg.IsAd)
		}

		query := s.rebind(`INSERT INTO aggregated_links (run_id, primary_link, frequency, subsections, country, category, is_ad_based) VALUES ` +
			placeholders(end-start, 7))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert aggregated links: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit aggregated links: %w", err)
	}
	return nil
}

const aggregateColumns = "run_id, primary_link, frequency, subsections, country, category, is_ad_based, created_at"

// FetchAll returns every persisted aggregate row, across runs
func (s *Storage) FetchAll(ctx context.Context) ([]AggregateRow, error) {
	return s.queryAggregates(ctx, "SELECT "+aggregateColumns+" FROM aggregated_links ORDER BY id")
}

// FetchRun returns the aggregate rows written by one run
func (s *Storage) FetchRun(ctx context.Context, runID string) ([]AggregateRow, error) {
	return s.queryAggregates(ctx, s.rebind("SELECT "+aggregateColumns+" FROM aggregated_links WHERE run_id = ? ORDER BY id"), runID)
}

// LatestRunID returns the run that wrote the most recent aggregate row, or
// an empty string when nothing was aggregated yet
func (s *Storage) LatestRunID(ctx context.Context) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, "SELECT run_id FROM aggregated_links ORDER BY id DESC LIMIT 1").Scan(&runID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest run: %w", err)
	}
	return runID, nil
}

func (s *Storage) queryAggregates(ctx context.Context, query string, args ...any) ([]AggregateRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch aggregated links: %w", err)
	}
	defer rows.Close()

	var result []AggregateRow
	for rows.Next() {
		var (
			row         AggregateRow
			subsections []byte
			category    sql.NullString
		)
		if err := rows.Scan(&row.RunID, &row.PrimaryLink, &row.Frequency, &subsections, &row.Country, &category, &row.IsAdBased, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan aggregated link: %w", err)
		}
		if err := json.Unmarshal(subsections, &row.Subsections); err != nil {
			return nil, fmt.Errorf("failed to decode subsections of %s: %w", row.PrimaryLink, err)
		}
		if category.Valid {
			c := category.String
			row.Category = &c
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aggregated links: %w", err)
	}
	return result, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders into $n for PostgreSQL
func (s *Storage) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// placeholders builds "(?, ?), (?, ?)" for rows tuples of cols values
func placeholders(rows, cols int) string {
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", cols), ", ") + ")"
	return strings.TrimSuffix(strings.Repeat(tuple+", ", rows), ", ")
}

func encodeSubsections(subsections map[string]int) (string, error) {
	clean := make(map[string]int, len(subsections))
	for path, count := range subsections {
		if path != "" {
			clean[path] = count
		}
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
