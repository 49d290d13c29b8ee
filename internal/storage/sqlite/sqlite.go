package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/kwscout/internal/storage"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS keywords (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	ads_top_count INTEGER NOT NULL DEFAULT 0,
	ads_top_urls TEXT NOT NULL DEFAULT '[]',
	result_urls TEXT NOT NULL DEFAULT '[]',
	fetch_status TEXT NOT NULL DEFAULT 'pending',
	fetch_error TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	fetched_at DATETIME
);
CREATE INDEX IF NOT EXISTS keywords_owner_created_idx ON keywords (owner_id, created_at);
`

const selectColumns = `id, owner_id, name, ads_top_count, ads_top_urls, result_urls, fetch_status, fetch_error, created_at, updated_at, fetched_at`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Create(ctx context.Context, ownerID, name string) (*storage.Keyword, error) {
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
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := b.db.ExecContext(ctx, query, k.ID, k.OwnerID, k.Name, string(k.FetchStatus), k.CreatedAt, k.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert keyword: %w", err)
	}
	return k, nil
}

func (b *sqliteBackend) Update(ctx context.Context, id string, outcome storage.Outcome) error {
	adsJSON, err := json.Marshal(nonNil(outcome.AdURLs))
	if err != nil {
		return fmt.Errorf("failed to encode ad urls: %w", err)
	}
	resultsJSON, err := json.Marshal(nonNil(outcome.ResultURLs))
	if err != nil {
		return fmt.Errorf("failed to encode result urls: %w", err)
	}

	now := time.Now().UTC()
	var fetchedAt any
	if outcome.Status == storage.StatusFetched {
		fetchedAt = now
	}

	query := `
	UPDATE keywords
	SET ads_top_count = ?, ads_top_urls = ?, result_urls = ?, fetch_status = ?, fetch_error = ?, updated_at = ?, fetched_at = ?
	WHERE id = ? AND fetch_status = 'pending'
	`
	res, err := b.db.ExecContext(ctx, query,
		outcome.AdCount(),
		string(adsJSON),
		string(resultsJSON),
		string(outcome.Status),
		outcome.Error,
		now,
		fetchedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update keyword: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing matched: either the id is unknown or the record already left pending.
	if _, err := b.Find(ctx, id); err != nil {
		return err
	}
	return storage.ErrNotPending
}

func (b *sqliteBackend) Find(ctx context.Context, id string) (*storage.Keyword, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM keywords WHERE id = ?`, id)
	k, err := scanKeyword(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (b *sqliteBackend) List(ctx context.Context, ownerID string, page, perPage int) ([]*storage.Keyword, int, error) {
	_, perPage, offset := storage.NormalizePage(page, perPage)

	var total int
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM keywords WHERE owner_id = ?`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count keywords: %w", err)
	}

	query := `SELECT ` + selectColumns + ` FROM keywords WHERE owner_id = ? ORDER BY created_at ASC, rowid ASC LIMIT ? OFFSET ?`
	rows, err := b.db.QueryContext(ctx, query, ownerID, perPage, offset)
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

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKeyword(s scanner) (*storage.Keyword, error) {
	var (
		k           storage.Keyword
		status      string
		adsJSON     string
		resultsJSON string
		fetchedAt   sql.NullTime
	)
	err := s.Scan(
		&k.ID, &k.OwnerID, &k.Name, &k.AdsTopCount, &adsJSON, &resultsJSON,
		&status, &k.FetchError, &k.CreatedAt, &k.UpdatedAt, &fetchedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan keyword: %w", err)
	}

	k.FetchStatus = storage.FetchStatus(status)
	if err := json.Unmarshal([]byte(adsJSON), &k.AdsTopURLs); err != nil {
		return nil, fmt.Errorf("failed to decode ad urls: %w", err)
	}
	if err := json.Unmarshal([]byte(resultsJSON), &k.ResultURLs); err != nil {
		return nil, fmt.Errorf("failed to decode result urls: %w", err)
	}
	if fetchedAt.Valid {
		t := fetchedAt.Time
		k.FetchedAt = &t
	}
	return &k, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
