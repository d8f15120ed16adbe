// Package postgres implements registry.Repository against PostgreSQL via
// pgx/pgxpool, storing the manifest as JSONB for flexible querying.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ows4444/pluginforge/internal/registry"
)

// Store implements registry.Repository against a Postgres pool.
type Store struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *Metrics
}

// New creates a Postgres-backed Repository. Run Migrate before first use.
func New(pool *pgxpool.Pool, logger *slog.Logger, reg prometheus.Registerer) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger, metrics: NewMetrics(reg)}
}

var _ registry.Repository = (*Store)(nil)

// Schema is the DDL applied by Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS plugin_records (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL UNIQUE,
	version        TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	author         TEXT NOT NULL DEFAULT '',
	license        TEXT NOT NULL DEFAULT '',
	manifest       JSONB NOT NULL,
	file_path      TEXT NOT NULL,
	file_size      BIGINT NOT NULL,
	checksum       TEXT NOT NULL UNIQUE,
	upload_date    TIMESTAMPTZ NOT NULL,
	last_accessed  TIMESTAMPTZ NOT NULL,
	download_count BIGINT NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	tags           JSONB NOT NULL DEFAULT '[]',
	dependencies   JSONB NOT NULL DEFAULT '[]',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_plugin_records_status ON plugin_records(status);

CREATE TABLE IF NOT EXISTS plugin_downloads (
	id            TEXT PRIMARY KEY,
	plugin_id     TEXT NOT NULL REFERENCES plugin_records(id) ON DELETE CASCADE,
	version       TEXT NOT NULL,
	download_date TIMESTAMPTZ NOT NULL,
	user_agent    TEXT,
	ip_address    TEXT
);

CREATE INDEX IF NOT EXISTS idx_plugin_downloads_plugin_id ON plugin_downloads(plugin_id);
`

// Migrate applies the schema. Safe to call repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("apply registry schema: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, rec *registry.Record) error {
	start := time.Now()
	defer func() { s.metrics.OperationDuration.WithLabelValues("save").Observe(time.Since(start).Seconds()) }()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	deps, err := json.Marshal(rec.Dependencies)
	if err != nil {
		return fmt.Errorf("marshal dependencies: %w", err)
	}

	query := `
		INSERT INTO plugin_records (
			id, name, version, description, author, license, manifest,
			file_path, file_size, checksum, upload_date, last_accessed,
			download_count, status, tags, dependencies, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,0,$13,$14,$15,NOW(),NOW())
		ON CONFLICT (name) DO UPDATE SET
			version = EXCLUDED.version,
			description = EXCLUDED.description,
			author = EXCLUDED.author,
			license = EXCLUDED.license,
			manifest = EXCLUDED.manifest,
			file_path = EXCLUDED.file_path,
			file_size = EXCLUDED.file_size,
			checksum = EXCLUDED.checksum,
			upload_date = EXCLUDED.upload_date,
			status = EXCLUDED.status,
			tags = EXCLUDED.tags,
			dependencies = EXCLUDED.dependencies,
			updated_at = NOW()
	`
	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.Name, rec.Version, rec.Description, rec.Author, rec.License, rec.Manifest,
		rec.FilePath, rec.FileSize, rec.Checksum, rec.UploadDate, rec.LastAccessed,
		rec.Status, tags, deps,
	)
	if err != nil {
		s.metrics.Errors.WithLabelValues("save").Inc()
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return registry.ErrChecksumTaken
		}
		return fmt.Errorf("save plugin record: %w", err)
	}
	s.metrics.Operations.WithLabelValues("save").Inc()
	return nil
}

func scanRecord(row pgx.Row) (*registry.Record, error) {
	var rec registry.Record
	var tags, deps []byte
	err := row.Scan(
		&rec.ID, &rec.Name, &rec.Version, &rec.Description, &rec.Author, &rec.License, &rec.Manifest,
		&rec.FilePath, &rec.FileSize, &rec.Checksum, &rec.UploadDate, &rec.LastAccessed,
		&rec.DownloadCount, &rec.Status, &tags, &deps, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tags, &rec.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal(deps, &rec.Dependencies); err != nil {
		return nil, fmt.Errorf("unmarshal dependencies: %w", err)
	}
	return &rec, nil
}

const selectColumns = `id, name, version, description, author, license, manifest,
	file_path, file_size, checksum, upload_date, last_accessed,
	download_count, status, tags, dependencies, created_at, updated_at`

func (s *Store) GetByName(ctx context.Context, name string) (*registry.Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM plugin_records WHERE name = $1 AND status = $2`,
		name, registry.StatusActive)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		s.metrics.Errors.WithLabelValues("get_by_name").Inc()
		return nil, fmt.Errorf("get plugin record: %w", err)
	}
	return rec, nil
}

func (s *Store) GetByChecksum(ctx context.Context, checksum string) (*registry.Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM plugin_records WHERE checksum = $1`, checksum)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		s.metrics.Errors.WithLabelValues("get_by_checksum").Inc()
		return nil, fmt.Errorf("get plugin record by checksum: %w", err)
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, opts registry.ListOptions) ([]*registry.Record, error) {
	status := opts.Status
	if status == "" {
		status = registry.StatusActive
	}

	orderCol := "name"
	switch opts.SortBy {
	case "uploadDate":
		orderCol = "upload_date"
	case "downloadCount":
		orderCol = "download_count"
	case "version":
		orderCol = "version"
	}
	direction := "ASC"
	if opts.SortDesc {
		direction = "DESC"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	var rows pgx.Rows
	var err error
	query := fmt.Sprintf(`SELECT %s FROM plugin_records WHERE ($1 = 'all' OR status = $1) ORDER BY %s %s OFFSET $2 LIMIT $3`,
		selectColumns, orderCol, direction)
	rows, err = s.pool.Query(ctx, query, string(status), opts.Offset, limit)
	if err != nil {
		s.metrics.Errors.WithLabelValues("list").Inc()
		return nil, fmt.Errorf("list plugin records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]*registry.Record, error) {
	out := []*registry.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plugin record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plugin records: %w", err)
	}
	return out, nil
}

func (s *Store) Search(ctx context.Context, q registry.SearchQuery) ([]*registry.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM plugin_records
		WHERE status = $1 AND (
			name ILIKE $2 OR description ILIKE $2 OR author ILIKE $2 OR tags::text ILIKE $2
		) ORDER BY name ASC`
	rows, err := s.pool.Query(ctx, query, registry.StatusActive, "%"+q.Q+"%")
	if err != nil {
		s.metrics.Errors.WithLabelValues("search").Inc()
		return nil, fmt.Errorf("search plugin records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *Store) RecordDownload(ctx context.Context, name, userAgent, ipAddress string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id, version string
	err = tx.QueryRow(ctx, `UPDATE plugin_records SET download_count = download_count + 1, last_accessed = NOW()
		WHERE name = $1 RETURNING id, version`, name).Scan(&id, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registry.ErrNotFound
		}
		s.metrics.Errors.WithLabelValues("record_download").Inc()
		return fmt.Errorf("update download count: %w", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO plugin_downloads (id, plugin_id, version, download_date, user_agent, ip_address)
		VALUES ($1,$2,$3,NOW(),$4,$5)`, uuid.New().String(), id, version, userAgent, ipAddress)
	if err != nil {
		s.metrics.Errors.WithLabelValues("record_download").Inc()
		return fmt.Errorf("insert download record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit download record: %w", err)
	}
	s.metrics.Operations.WithLabelValues("record_download").Inc()
	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM plugin_records WHERE name = $1`, name)
	if err != nil {
		s.metrics.Errors.WithLabelValues("delete").Inc()
		return fmt.Errorf("delete plugin record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.ErrNotFound
	}
	s.metrics.Operations.WithLabelValues("delete").Inc()
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, name string, status registry.Status) error {
	tag, err := s.pool.Exec(ctx, `UPDATE plugin_records SET status = $1, updated_at = NOW() WHERE name = $2`, status, name)
	if err != nil {
		s.metrics.Errors.WithLabelValues("update_status").Inc()
		return fmt.Errorf("update plugin status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.ErrNotFound
	}
	s.metrics.Operations.WithLabelValues("update_status").Inc()
	return nil
}

func (s *Store) Stats(ctx context.Context) (registry.Stats, error) {
	var stats registry.Stats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(download_count), 0), COALESCE(AVG(file_size), 0)
		FROM plugin_records WHERE status = $1
	`, registry.StatusActive).Scan(&stats.TotalPlugins, &stats.TotalDownloads, &stats.AverageFileSize)
	if err != nil {
		s.metrics.Errors.WithLabelValues("stats").Inc()
		return stats, fmt.Errorf("query stats: %w", err)
	}

	_ = s.pool.QueryRow(ctx, `SELECT name FROM plugin_records WHERE status = $1 ORDER BY download_count DESC LIMIT 1`,
		registry.StatusActive).Scan(&stats.MostPopular)
	_ = s.pool.QueryRow(ctx, `SELECT name FROM plugin_records WHERE status = $1 ORDER BY upload_date ASC LIMIT 1`,
		registry.StatusActive).Scan(&stats.OldestName)
	_ = s.pool.QueryRow(ctx, `SELECT name FROM plugin_records WHERE status = $1 ORDER BY upload_date DESC LIMIT 1`,
		registry.StatusActive).Scan(&stats.NewestName)

	return stats, nil
}

func (s *Store) HealthCheck(ctx context.Context) registry.HealthStatus {
	if err := s.pool.Ping(ctx); err != nil {
		return registry.HealthStatus{Healthy: false, Detail: err.Error()}
	}
	return registry.HealthStatus{Healthy: true, Detail: "connected"}
}
