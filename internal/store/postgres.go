package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/i474232898/prism-archive/internal/archive"
	"github.com/i474232898/prism-archive/internal/climate"
)

// PostgresStore keeps the catalog in Postgres so several processes share it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool resources.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS prism;
CREATE TABLE IF NOT EXISTS prism.assets (
    variable     text        NOT NULL,
    tile         text        NOT NULL,
    obs_date     date        NOT NULL,
    product      text        NOT NULL,
    stability    smallint    NOT NULL,
    revision     integer     NOT NULL,
    scale        text        NOT NULL,
    filename     text        NOT NULL,
    location     text        NOT NULL,
    files        jsonb       NOT NULL,
    installed_at timestamptz NOT NULL,
    PRIMARY KEY (variable, tile, obs_date)
)`

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate catalog schema: %w", err)
	}
	return nil
}

const assetColumns = `variable, tile, obs_date, product, stability, revision, scale, filename, location, files, installed_at`

const lookupSQL = `SELECT ` + assetColumns + `
FROM prism.assets
WHERE variable = $1 AND tile = $2 AND obs_date = $3`

// upsertSQL only overwrites a row that the new asset outranks: the row
// comparison orders (stability, revision) lexicographically.
const upsertSQL = `INSERT INTO prism.assets (` + assetColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (variable, tile, obs_date) DO UPDATE
SET product = EXCLUDED.product,
    stability = EXCLUDED.stability,
    revision = EXCLUDED.revision,
    scale = EXCLUDED.scale,
    filename = EXCLUDED.filename,
    location = EXCLUDED.location,
    files = EXCLUDED.files,
    installed_at = EXCLUDED.installed_at
WHERE (prism.assets.stability, prism.assets.revision) < (EXCLUDED.stability, EXCLUDED.revision)`

const listSQL = `SELECT ` + assetColumns + `
FROM prism.assets
WHERE variable = $1 AND obs_date BETWEEN $2 AND $3
ORDER BY obs_date`

const removeSQL = `DELETE FROM prism.assets WHERE variable = $1 AND tile = $2 AND obs_date = $3`

// Lookup returns the current asset for (v, date, tile).
func (s *PostgresStore) Lookup(ctx context.Context, v climate.Variable, date time.Time, tile string) (climate.ResolvedAsset, bool, error) {
	asset, err := scanAsset(s.pool.QueryRow(ctx, lookupSQL, string(v), tile, climate.Day(date)))
	if errors.Is(err, pgx.ErrNoRows) {
		return climate.ResolvedAsset{}, false, nil
	}
	if err != nil {
		return climate.ResolvedAsset{}, false, err
	}
	return asset, true, nil
}

// Put records asset when its key is empty or when it supersedes the current row.
func (s *PostgresStore) Put(ctx context.Context, asset climate.ResolvedAsset) (archive.PutResult, error) {
	d := asset.Descriptor
	files, err := json.Marshal(asset.Files)
	if err != nil {
		return archive.PutResult{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return archive.PutResult{}, err
	}
	defer tx.Rollback(ctx)

	var previous *climate.ResolvedAsset
	prev, err := scanAsset(tx.QueryRow(ctx, lookupSQL+` FOR UPDATE`, string(d.Variable), d.Tile, d.Date))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return archive.PutResult{}, err
	default:
		if !climate.Supersedes(d, prev.Descriptor) {
			return archive.PutResult{Current: prev}, tx.Commit(ctx)
		}
		previous = &prev
	}

	tag, err := tx.Exec(ctx, upsertSQL,
		string(d.Variable), d.Tile, d.Date, d.Product, int(d.Stability), d.Revision,
		d.Scale, d.Filename, asset.Location, files, asset.InstalledAt)
	if err != nil {
		return archive.PutResult{}, err
	}
	if tag.RowsAffected() == 0 {
		// a concurrent insert won with an equal or higher score
		current, err := scanAsset(tx.QueryRow(ctx, lookupSQL, string(d.Variable), d.Tile, d.Date))
		if err != nil {
			return archive.PutResult{}, err
		}
		return archive.PutResult{Current: current}, tx.Commit(ctx)
	}
	if err := tx.Commit(ctx); err != nil {
		return archive.PutResult{}, err
	}
	return archive.PutResult{Stored: true, Current: asset, Previous: previous}, nil
}

// List returns the assets of v dated between from and to (inclusive), oldest first.
func (s *PostgresStore) List(ctx context.Context, v climate.Variable, from, to time.Time) ([]climate.ResolvedAsset, error) {
	rows, err := s.pool.Query(ctx, listSQL, string(v), climate.Day(from), climate.Day(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assets := make([]climate.ResolvedAsset, 0)
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// Remove deletes the row for key.
func (s *PostgresStore) Remove(ctx context.Context, key climate.Key) error {
	_, err := s.pool.Exec(ctx, removeSQL, string(key.Variable), key.Tile, climate.Day(key.Date))
	return err
}

func scanAsset(row pgx.Row) (climate.ResolvedAsset, error) {
	var (
		a         climate.ResolvedAsset
		variable  string
		stability int16
		files     []byte
	)
	if err := row.Scan(
		&variable,
		&a.Descriptor.Tile,
		&a.Descriptor.Date,
		&a.Descriptor.Product,
		&stability,
		&a.Descriptor.Revision,
		&a.Descriptor.Scale,
		&a.Descriptor.Filename,
		&a.Location,
		&files,
		&a.InstalledAt,
	); err != nil {
		return a, err
	}
	a.Descriptor.Variable = climate.Variable(variable)
	a.Descriptor.Stability = climate.Stability(stability)
	a.Descriptor.Date = climate.Day(a.Descriptor.Date)
	if err := json.Unmarshal(files, &a.Files); err != nil {
		return a, fmt.Errorf("decode asset files: %w", err)
	}
	return a, nil
}
