package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/kwscout/internal/storage"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const selectColumns = `id, owner_id, name, ads_top_count, ads_top_urls, result_urls, fetch_status, fetch_error, created_at, updated_at, fetched_at`

// New creates a new Postgres-backed storage.Backend. The schema is brought up
// to date with the embedded migrations before the pool is returned.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	if err := RunMigrations(dsn); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

// RunMigrations runs all embedded SQL migrations.
func RunMigrations(dsn string) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (b *postgresBackend) Create(ctx context.Context, ownerID, name string) (*storage.Keyword, error) {
	now := time.Now().UTC()
	k := &storage.Keyword{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Name:        name,
		AdsTopURLs:  []string{},
		ResultURLs:  []string{},
		FetchStatus: storage.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := `
	INSERT INTO keywords (id, owner_id, name, fetch_status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := b.pool.Exec(ctx, query, k.ID, k.OwnerID, k.Name, string(k.FetchStatus), k.CreatedAt, k.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert keyword: %w", err)
	}
	return k, nil
}

func (b *postgresBackend) Update(ctx context.Context, id string, outcome storage.Outcome) error {
	now := time.Now().UTC()
	var fetchedAt *time.Time
	if outcome.Status == storage.StatusFetched {
		fetchedAt = &now
	}

	query := `
	UPDATE keywords
	SET ads_top_count = $1, ads_top_urls = $2, result_urls = $3, fetch_status = $4,
		fetch_error = $5, updated_at = $6, fetched_at = $7
	WHERE id = $8 AND fetch_status = 'pending'
	`
	tag, err := b.pool.Exec(ctx, query,
		outcome.AdCount(),
		nonNil(outcome.AdURLs),
		nonNil(outcome.ResultURLs),
		string(outcome.Status),
		outcome.Error,
		now,
		fetchedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update keyword: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := b.Find(ctx, id); err != nil {
		return err
	}
	return storage.ErrNotPending
}

func (b *postgresBackend) Find(ctx context.Context, id string) (*storage.Keyword, error) {
	row := b.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM keywords WHERE id = $1`, id)
	k, err := scanKeyword(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (b *postgresBackend) List(ctx context.Context, ownerID string, page, perPage int) ([]*storage.Keyword, int, error) {
	_, perPage, offset := storage.NormalizePage(page, perPage)

	var total int
	if err := b.pool.QueryRow(ctx, `SELECT COUNT(*) FROM keywords WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count keywords: %w", err)
	}

	query := `SELECT ` + selectColumns + ` FROM keywords WHERE owner_id = $1 ORDER BY seq ASC LIMIT $2 OFFSET $3`
	rows, err := b.pool.Query(ctx, query, ownerID, perPage, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list keywords: %w", err)
	}
	defer rows.Close()

	results := []*storage.Keyword{}
	for rows.Next() {
		k, err := scanKeyword(rows)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, k)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate keywords: %w", err)
	}

	return results, total, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

func scanKeyword(row pgx.Row) (*storage.Keyword, error) {
	var (
		k      storage.Keyword
		status string
	)
	err := row.Scan(
		&k.ID, &k.OwnerID, &k.Name, &k.AdsTopCount, &k.AdsTopURLs, &k.ResultURLs,
		&status, &k.FetchError, &k.CreatedAt, &k.UpdatedAt, &k.FetchedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan keyword: %w", err)
	}
	k.FetchStatus = storage.FetchStatus(status)
	k.AdsTopURLs = nonNil(k.AdsTopURLs)
	k.ResultURLs = nonNil(k.ResultURLs)
	return &k, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
