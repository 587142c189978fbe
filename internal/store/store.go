package store

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/model"
)

// DefaultListLimit applies when ListFilter.Limit is zero.
const DefaultListLimit = 100

// ErrNotFound is returned by Get for an unknown profile URL.
var ErrNotFound = eris.New("store: lead not found")

// DuplicateKeyError is returned by Insert when a record with the same
// profile URL already exists.
type DuplicateKeyError struct {
	ProfileURL string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("store: duplicate profile_url %q", e.ProfileURL)
}

// ListFilter specifies criteria for listing lead records.
type ListFilter struct {
	Company string `json:"company,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Store persists lead records. profile_url is unique for the lifetime of
// the store and records are never updated or deleted.
type Store interface {
	// Create initializes the schema. It is idempotent and runs at every start.
	Create(ctx context.Context) error

	Exists(ctx context.Context, profileURL string) (bool, error)

	// Insert writes a new record. The storage unique constraint decides
	// races: the loser gets *DuplicateKeyError.
	Insert(ctx context.Context, rec *model.LeadRecord) error

	Get(ctx context.Context, profileURL string) (*model.LeadRecord, error)
	List(ctx context.Context, filter ListFilter) ([]model.LeadRecord, error)
	Count(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
	Close() error
}
