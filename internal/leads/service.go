// Package leads is the enrichment entry point. It owns the deduplication
// guarantee: a profile URL is either rejected up front or runs the whole
// pipeline and is persisted exactly once.
package leads

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/pipeline"
	"github.com/sells-group/lead-enricher/internal/store"
)

// Runner executes the enrichment pipeline for one lead.
type Runner interface {
	Run(ctx context.Context, lead model.Lead) (*model.EnrichmentResult, error)
}

// Indexer mirrors new records into the auxiliary lead index.
type Indexer interface {
	Index(ctx context.Context, rec *model.LeadRecord) error
}

// Exporter pushes new records to an external system.
type Exporter interface {
	Name() string
	Export(ctx context.Context, rec *model.LeadRecord) error
}

// Option configures a Service.
type Option func(*Service)

// WithIndexer enables the auxiliary index. A nil indexer leaves it off.
func WithIndexer(ix Indexer) Option {
	return func(s *Service) { s.indexer = ix }
}

// WithExporters appends exporters run after every successful insert.
func WithExporters(exporters ...Exporter) Option {
	return func(s *Service) { s.exporters = append(s.exporters, exporters...) }
}

// Service processes leads against a record store.
type Service struct {
	store     store.Store
	runner    Runner
	indexer   Indexer
	exporters []Exporter
	now       func() time.Time
	newID     func() string
}

// NewService creates a Service.
func NewService(st store.Store, runner Runner, opts ...Option) *Service {
	s := &Service{
		store:  st,
		runner: runner,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, fn := range opts {
		fn(s)
	}
	return s
}

// Process enriches lead. It fails with *InvalidInputError,
// *DuplicateLeadError or *PipelineError; any other error is a store
// failure.
func (s *Service) Process(ctx context.Context, lead model.Lead) (*model.EnrichmentResult, error) {
	lead = lead.Normalize()
	if lead.ProfileURL == "" {
		return nil, &InvalidInputError{Field: "profile_url", Reason: "is required"}
	}
	log := zap.L().With(zap.String("profile_url", lead.ProfileURL))

	exists, err := s.store.Exists(ctx, lead.ProfileURL)
	if err != nil {
		return nil, eris.Wrap(err, "leads: check existing")
	}
	if exists {
		log.Info("leads: already processed, skipping")
		return nil, &DuplicateLeadError{ProfileURL: lead.ProfileURL}
	}

	result, err := s.runner.Run(ctx, lead)
	if err != nil {
		var se *pipeline.StageError
		if errors.As(err, &se) {
			return nil, &PipelineError{Stage: se.Stage, Err: se.Err}
		}
		return nil, &PipelineError{Stage: pipeline.StateStart, Err: err}
	}

	// Nothing is written for a caller that has already gone away.
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "leads: canceled before insert")
	}

	result.EnrichedData.IndexEnabled = s.indexer != nil
	rec := model.NewLeadRecord(s.newID(), result, s.now())
	if err := s.store.Insert(ctx, rec); err != nil {
		var dup *store.DuplicateKeyError
		if errors.As(err, &dup) {
			log.Warn("leads: lost insert race, discarding result")
			return nil, &DuplicateLeadError{ProfileURL: lead.ProfileURL, Race: true}
		}
		return nil, eris.Wrap(err, "leads: insert record")
	}
	log.Info("leads: record stored", zap.String("id", rec.ID))

	s.afterInsert(context.WithoutCancel(ctx), log, rec)

	result.IsNewLead = true
	return result, nil
}

// afterInsert runs the side paths. Their failures never change the
// outcome of Process.
func (s *Service) afterInsert(ctx context.Context, log *zap.Logger, rec *model.LeadRecord) {
	if s.indexer != nil {
		if err := s.indexer.Index(ctx, rec); err != nil {
			log.Warn("leads: index failed", zap.String("reason", "index_unavailable"), zap.Error(err))
		}
	}
	for _, ex := range s.exporters {
		if err := ex.Export(ctx, rec); err != nil {
			log.Warn("leads: export failed",
				zap.String("exporter", ex.Name()),
				zap.String("reason", "export_failed"),
				zap.Error(err),
			)
			continue
		}
		log.Debug("leads: exported", zap.String("exporter", ex.Name()))
	}
}

// Get returns the stored record for profileURL.
func (s *Service) Get(ctx context.Context, profileURL string) (*model.LeadRecord, error) {
	return s.store.Get(ctx, profileURL)
}

// List returns stored records, newest first.
func (s *Service) List(ctx context.Context, filter store.ListFilter) ([]model.LeadRecord, error) {
	return s.store.List(ctx, filter)
}
