package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/resilience"
)

// pool is the subset of *pgxpool.Pool the store uses. pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	pgExists = `SELECT EXISTS (SELECT 1 FROM leads WHERE profile_url = $1)`
	pgInsert = `INSERT INTO leads (id, profile_url, first_name, last_name, title, company, enriched_data, personalized_message, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (profile_url) DO NOTHING`
	pgSelect = `SELECT id, profile_url, first_name, last_name, title, company, enriched_data, personalized_message, created_at FROM leads`
)

// NewPostgres creates a PostgresStore with a connection pool. The initial
// ping is retried so the service can start alongside its database.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, ping resilience.Backoff) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	p, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	if err := ping.Run(ctx, p.Ping); err != nil {
		p.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: p, closeFn: p.Close}, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS leads (
	id                   TEXT PRIMARY KEY,
	profile_url          TEXT NOT NULL UNIQUE,
	first_name           TEXT NOT NULL DEFAULT '',
	last_name            TEXT NOT NULL DEFAULT '',
	title                TEXT NOT NULL DEFAULT '',
	company              TEXT NOT NULL DEFAULT '',
	enriched_data        JSONB NOT NULL,
	personalized_message TEXT NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_company ON leads (lower(company));
CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads (created_at DESC);
`

func (s *PostgresStore) Create(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return eris.Wrap(err, "postgres: create schema")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Exists(ctx context.Context, profileURL string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, pgExists, profileURL).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "postgres: exists")
	}
	return exists, nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec *model.LeadRecord) error {
	data, err := json.Marshal(rec.EnrichedData)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal enriched data")
	}

	tag, err := s.pool.Exec(ctx, pgInsert,
		rec.ID, rec.Lead.ProfileURL, rec.Lead.FirstName, rec.Lead.LastName,
		rec.Lead.Title, rec.Lead.Company, data, rec.PersonalizedMessage,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert lead")
	}
	if tag.RowsAffected() == 0 {
		return &DuplicateKeyError{ProfileURL: rec.Lead.ProfileURL}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, profileURL string) (*model.LeadRecord, error) {
	rec, err := scanPgLead(s.pool.QueryRow(ctx, pgSelect+` WHERE profile_url = $1`, profileURL))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get lead")
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]model.LeadRecord, error) {
	query := pgSelect
	var args []any
	argN := 1
	if filter.Company != "" {
		query += fmt.Sprintf(` WHERE lower(company) = lower($%d)`, argN)
		args = append(args, filter.Company)
		argN++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, argN, argN+1)
	args = append(args, filter.limit(), filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var out []model.LeadRecord
	for rows.Next() {
		rec, err := scanPgLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list leads")
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leads`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count leads")
	}
	return n, nil
}

func scanPgLead(row scannable) (*model.LeadRecord, error) {
	var rec model.LeadRecord
	var data []byte

	err := row.Scan(&rec.ID, &rec.Lead.ProfileURL, &rec.Lead.FirstName, &rec.Lead.LastName,
		&rec.Lead.Title, &rec.Lead.Company, &data, &rec.PersonalizedMessage, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &rec.EnrichedData); err != nil {
		return nil, eris.Wrap(err, "unmarshal enriched data")
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}
