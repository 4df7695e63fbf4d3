package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/metget-build-service/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

// markAccessedChunk bounds the number of ids bound into one UPDATE.
const markAccessedChunk = 500

const recordColumns = "id, cycle, valid_time, tau, filepath, storm, basin, advisory, storm_year, ensemble_member, accessed"

// SQLite implements the catalog on a SQLite database, one table per service.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex // single writer
}

// Open opens (creating if needed) the catalog at path and ensures every
// registered service has its table. path may be a plain file name or a
// file: URI with its own query parameters. Callers must Close it.
func Open(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("catalog: open database: %w", err)
	}

	c := &SQLite{db: db}
	if err := c.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: initialize schema: %w", err)
	}
	return c, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_busy_timeout=5000"
}

func (c *SQLite) initSchema(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, svc := range domain.Services() {
		for _, stmt := range schemaSQL(svc.Table) {
			if _, err := c.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create %s: %w", svc.Table, err)
			}
		}
	}
	return nil
}

func schemaSQL(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle           INTEGER NOT NULL,
			valid_time      INTEGER NOT NULL,
			tau             INTEGER NOT NULL,
			filepath        TEXT    NOT NULL,
			storm           TEXT    NOT NULL DEFAULT '',
			basin           TEXT    NOT NULL DEFAULT '',
			advisory        TEXT    NOT NULL DEFAULT '',
			storm_year      INTEGER NOT NULL DEFAULT 0,
			ensemble_member TEXT    NOT NULL DEFAULT '',
			accessed        INTEGER,
			UNIQUE (cycle, valid_time, storm, basin, advisory, storm_year, ensemble_member)
		)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_valid_time ON %s (valid_time, tau)`, table, table),
	}
}

// table maps a service to its table name. Names come from the registry,
// never from request input.
func table(service domain.ServiceID) (string, error) {
	info, err := domain.LookupService(service)
	if err != nil {
		return "", err
	}
	return info.Table, nil
}

// Ingest upserts rec on its natural key. A replaced row is re-inserted with a
// fresh AUTOINCREMENT id, so the newer ingest wins every latest-id comparison.
func (c *SQLite) Ingest(ctx context.Context, rec domain.CatalogRecord) (int64, error) {
	rec, err := checkRecord(rec)
	if err != nil {
		return 0, err
	}
	t, err := table(rec.Service)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (
			cycle, valid_time, tau, filepath,
			storm, basin, advisory, storm_year, ensemble_member
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, t),
		rec.Cycle.Unix(), rec.ValidTime.Unix(), rec.Tau, rec.Filepath,
		rec.Scope.Storm, rec.Scope.Basin, rec.Scope.Advisory, rec.Scope.StormYear, rec.Scope.EnsembleMember,
	)
	if err != nil {
		return 0, fmt.Errorf("catalog: insert %s record: %w", rec.Service, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("catalog: read ingestion id: %w", err)
	}
	return id, nil
}

// whereClause turns a filter into a parameterized predicate.
func whereClause(f domain.Filter) (string, []any) {
	conds := []string{
		"valid_time BETWEEN ? AND ?",
		"tau >= ?",
		"storm = ?",
		"basin = ?",
		"advisory = ?",
		"storm_year = ?",
		"ensemble_member = ?",
	}
	args := []any{
		f.Start.Unix(), f.End.Unix(),
		f.MinTau,
		f.Scope.Storm, f.Scope.Basin, f.Scope.Advisory, f.Scope.StormYear, f.Scope.EnsembleMember,
	}
	if f.Tau != nil {
		conds = append(conds, "tau = ?")
		args = append(args, *f.Tau)
	}
	if !f.Cycle.IsZero() {
		conds = append(conds, "cycle = ?")
		args = append(args, f.Cycle.Unix())
	}
	if f.ExcludeZeroHour {
		conds = append(conds, "cycle <> valid_time")
	}
	return strings.Join(conds, " AND "), args
}

// Cycles returns the distinct cycles matching f, ascending.
func (c *SQLite) Cycles(ctx context.Context, f domain.Filter) ([]time.Time, error) {
	t, err := table(f.Service)
	if err != nil {
		return nil, err
	}
	where, args := whereClause(f)

	rows, err := c.db.QueryContext(ctx,
		fmt.Sprintf("SELECT DISTINCT cycle FROM %s WHERE %s ORDER BY cycle", t, where), args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: query %s cycles: %w", f.Service, err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var cycle int64
		if err := rows.Scan(&cycle); err != nil {
			return nil, fmt.Errorf("catalog: scan cycle: %w", err)
		}
		out = append(out, time.Unix(cycle, 0).UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate cycles: %w", err)
	}
	return out, nil
}

// LatestByValidTime returns the latest-ingested matching record per valid
// time, ordered by valid time.
func (c *SQLite) LatestByValidTime(ctx context.Context, f domain.Filter) ([]domain.CatalogRecord, error) {
	t, err := table(f.Service)
	if err != nil {
		return nil, err
	}
	where, args := whereClause(f)

	query := fmt.Sprintf(`
		SELECT %s FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY valid_time ORDER BY id DESC) AS rn
			FROM %s
			WHERE %s
		)
		WHERE rn = 1
		ORDER BY valid_time`, recordColumns, t, where)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: query %s records: %w", f.Service, err)
	}
	defer rows.Close()

	var out []domain.CatalogRecord
	for rows.Next() {
		rec, err := scanRecord(rows, f.Service)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate records: %w", err)
	}
	return out, nil
}

// LookupTrack returns the latest-ingested advisory matching scope exactly.
func (c *SQLite) LookupTrack(ctx context.Context, service domain.ServiceID, scope domain.Scope) (domain.CatalogRecord, error) {
	t, err := table(service)
	if err != nil {
		return domain.CatalogRecord{}, err
	}

	row := c.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE storm = ? AND basin = ? AND advisory = ? AND storm_year = ? AND ensemble_member = ?
		ORDER BY id DESC
		LIMIT 1`, recordColumns, t),
		scope.Storm, scope.Basin, scope.Advisory, scope.StormYear, scope.EnsembleMember,
	)
	rec, err := scanRecord(row, service)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CatalogRecord{}, trackNotFound(service, scope)
	}
	return rec, err
}

// MarkAccessed stamps the given records' last-accessed time.
func (c *SQLite) MarkAccessed(ctx context.Context, service domain.ServiceID, ids []int64, at time.Time) error {
	t, err := table(service)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for start := 0; start < len(ids); start += markAccessedChunk {
		end := min(start+markAccessedChunk, len(ids))
		chunk := ids[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, at.Unix())
		for _, id := range chunk {
			args = append(args, id)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		if _, err := c.db.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET accessed = ? WHERE id IN (%s)", t, placeholders), args...); err != nil {
			return fmt.Errorf("catalog: mark %s records accessed: %w", service, err)
		}
	}
	return nil
}

// Ping checks the database connection.
func (c *SQLite) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database.
func (c *SQLite) Close() error {
	return c.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner, service domain.ServiceID) (domain.CatalogRecord, error) {
	var (
		rec              domain.CatalogRecord
		cycle, validTime int64
		accessed         sql.NullInt64
	)
	err := s.Scan(
		&rec.ID, &cycle, &validTime, &rec.Tau, &rec.Filepath,
		&rec.Scope.Storm, &rec.Scope.Basin, &rec.Scope.Advisory, &rec.Scope.StormYear, &rec.Scope.EnsembleMember,
		&accessed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("catalog: scan record: %w", err)
	}

	rec.Service = service
	rec.Cycle = time.Unix(cycle, 0).UTC()
	rec.ValidTime = time.Unix(validTime, 0).UTC()
	if accessed.Valid {
		rec.Accessed = time.Unix(accessed.Int64, 0).UTC()
	}
	return rec, nil
}
