// Package postgres provides a PostgreSQL-backed voice library for
// deployments that share one catalog across server instances.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/voxmorph/voxmorph/internal/catalog"
	"github.com/voxmorph/voxmorph/internal/dsp"
)

// Schema is the SQL DDL for the voices table. Execute it via [Store.Migrate]
// or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS voices (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    category    TEXT NOT NULL DEFAULT 'custom',
    description TEXT NOT NULL DEFAULT '',
    base_params JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_voices_name ON voices(name);
CREATE INDEX IF NOT EXISTS idx_voices_category ON voices(category);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a [catalog.VoiceStore] backed by PostgreSQL. The optional effect
// profile is serialised as JSONB.
type Store struct {
	db DB
}

// Compile-time interface check.
var _ catalog.VoiceStore = (*Store)(nil)

// New creates a store on the given connection or pool. The caller is
// responsible for calling [Store.Migrate] before issuing queries.
func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes the [Schema] DDL, creating the voices table and indexes
// if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

// Put inserts or updates a voice.
func (s *Store) Put(ctx context.Context, v catalog.Voice) error {
	if err := v.Validate(); err != nil {
		return err
	}
	var paramsJSON []byte
	if v.BaseParams != nil {
		var err error
		if paramsJSON, err = json.Marshal(v.BaseParams); err != nil {
			return fmt.Errorf("catalog: marshal base_params: %w", err)
		}
	}
	const query = `
		INSERT INTO voices (id, name, category, description, base_params)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			description = EXCLUDED.description,
			base_params = EXCLUDED.base_params,
			updated_at = now()`
	if _, err := s.db.Exec(ctx, query, v.ID, v.Name, string(v.Category), v.Description, paramsJSON); err != nil {
		return fmt.Errorf("catalog: put voice %q: %w", v.ID, err)
	}
	return nil
}

// Delete removes a voice by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM voices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("catalog: delete voice %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%q: %w", id, catalog.ErrVoiceNotFound)
	}
	return nil
}

// Get returns the voice with the given ID.
func (s *Store) Get(ctx context.Context, id string) (catalog.Voice, error) {
	const query = `
		SELECT id, name, category, description, base_params
		FROM voices WHERE id = $1`
	v, err := scanVoice(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Voice{}, fmt.Errorf("%q: %w", id, catalog.ErrVoiceNotFound)
	}
	if err != nil {
		return catalog.Voice{}, fmt.Errorf("catalog: get voice %q: %w", id, err)
	}
	return v, nil
}

// List returns all voices ordered by name.
func (s *Store) List(ctx context.Context) ([]catalog.Voice, error) {
	const query = `
		SELECT id, name, category, description, base_params
		FROM voices ORDER BY name`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list voices: %w", err)
	}
	defer rows.Close()
	return collectVoices(rows)
}

// Search matches voices by case-insensitive substring on name or category.
// Fuzzy ranking is left to the in-memory store; the SQL path keeps the
// query index-friendly.
func (s *Store) Search(ctx context.Context, query string) ([]catalog.Voice, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return s.List(ctx)
	}
	const stmt = `
		SELECT id, name, category, description, base_params
		FROM voices
		WHERE name ILIKE '%' || $1 || '%' OR category ILIKE '%' || $1 || '%'
		ORDER BY name`
	rows, err := s.db.Query(ctx, stmt, q)
	if err != nil {
		return nil, fmt.Errorf("catalog: search voices: %w", err)
	}
	defer rows.Close()
	return collectVoices(rows)
}

func collectVoices(rows pgx.Rows) ([]catalog.Voice, error) {
	var out []catalog.Voice
	for rows.Next() {
		v, err := scanVoice(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan voice: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate voices: %w", err)
	}
	return out, nil
}

func scanVoice(row pgx.Row) (catalog.Voice, error) {
	var (
		v          catalog.Voice
		category   string
		paramsJSON []byte
	)
	if err := row.Scan(&v.ID, &v.Name, &category, &v.Description, &paramsJSON); err != nil {
		return catalog.Voice{}, err
	}
	v.Category = catalog.Category(category)
	if len(paramsJSON) > 0 {
		var p dsp.Params
		if err := json.Unmarshal(paramsJSON, &p); err != nil {
			return catalog.Voice{}, fmt.Errorf("unmarshal base_params: %w", err)
		}
		p = p.Clamp()
		v.BaseParams = &p
	}
	return v, nil
}
