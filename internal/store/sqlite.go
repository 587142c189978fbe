package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-enricher/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas apply per connection and SQLite allows one writer.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS leads (
	id                   TEXT PRIMARY KEY,
	profile_url          TEXT NOT NULL UNIQUE,
	first_name           TEXT NOT NULL DEFAULT '',
	last_name            TEXT NOT NULL DEFAULT '',
	title                TEXT NOT NULL DEFAULT '',
	company              TEXT NOT NULL DEFAULT '',
	enriched_data        TEXT NOT NULL,
	personalized_message TEXT NOT NULL,
	created_at           DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_company ON leads(company);
CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at);
`

func (s *SQLiteStore) Create(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return eris.Wrap(err, "sqlite: create schema")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Exists(ctx context.Context, profileURL string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM leads WHERE profile_url = ? LIMIT 1`, profileURL,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: exists")
	}
	return true, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, rec *model.LeadRecord) error {
	data, err := json.Marshal(rec.EnrichedData)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal enriched data")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (id, profile_url, first_name, last_name, title, company, enriched_data, personalized_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(profile_url) DO NOTHING`,
		rec.ID, rec.Lead.ProfileURL, rec.Lead.FirstName, rec.Lead.LastName,
		rec.Lead.Title, rec.Lead.Company, string(data), rec.PersonalizedMessage,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert lead")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return &DuplicateKeyError{ProfileURL: rec.Lead.ProfileURL}
	}
	return nil
}

const sqliteSelect = `SELECT id, profile_url, first_name, last_name, title, company, enriched_data, personalized_message, created_at FROM leads`

func (s *SQLiteStore) Get(ctx context.Context, profileURL string) (*model.LeadRecord, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+` WHERE profile_url = ?`, profileURL)
	rec, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get lead")
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]model.LeadRecord, error) {
	query := sqliteSelect
	var args []any
	if filter.Company != "" {
		query += ` WHERE company = ? COLLATE NOCASE`
		args = append(args, filter.Company)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, filter.limit(), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.LeadRecord
	for rows.Next() {
		rec, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list leads")
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count leads")
	}
	return n, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.LeadRecord, error) {
	var rec model.LeadRecord
	var data string
	var createdAt time.Time

	err := row.Scan(&rec.ID, &rec.Lead.ProfileURL, &rec.Lead.FirstName, &rec.Lead.LastName,
		&rec.Lead.Title, &rec.Lead.Company, &data, &rec.PersonalizedMessage, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &rec.EnrichedData); err != nil {
		return nil, eris.Wrap(err, "unmarshal enriched data")
	}
	rec.CreatedAt = createdAt.UTC()
	return &rec, nil
}
