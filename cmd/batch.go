package main

import (
	"context"
	"errors"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-enricher/internal/intake"
	"github.com/sells-group/lead-enricher/internal/leads"
	"github.com/sells-group/lead-enricher/internal/model"
)

var (
	batchFile        string
	batchNotion      bool
	batchLimit       int
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Enrich leads from a CSV/XLSX file or the Notion queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		if (batchFile == "") == !batchNotion {
			return eris.New("batch: exactly one of --file or --notion is required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if batchConcurrency > 0 {
			cfg.Batch.MaxConcurrentLeads = batchConcurrency
		}

		env, err := initEnv(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		var (
			items []batchItem
			queue queueWriter
		)
		if batchNotion {
			if env.Notion == nil || cfg.Notion.QueueDB == "" {
				return eris.New("batch: notion.token and notion.queue_db are required for --notion")
			}
			q := intake.NewNotionQueue(env.Notion, cfg.Notion.QueueDB)
			queued, err := q.Pending(ctx, batchLimit)
			if err != nil {
				return err
			}
			for _, ql := range queued {
				items = append(items, batchItem{Lead: ql.Lead, PageID: ql.PageID})
			}
			queue = q
		} else {
			fileLeads, err := intake.ReadFile(batchFile)
			if err != nil {
				return err
			}
			for _, l := range fileLeads {
				items = append(items, batchItem{Lead: l})
			}
		}

		summary, err := processBatch(ctx, items, batchLimit, cfg.Batch.MaxConcurrentLeads, queue, env.Service.Process)
		if err != nil {
			return err
		}
		return writeIndented(summary)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "CSV or XLSX file of leads")
	batchCmd.Flags().BoolVar(&batchNotion, "notion", false, "read leads queued in the Notion queue database")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of leads to process (0 = all)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max leads processed concurrently (default from config)")
	rootCmd.AddCommand(batchCmd)
}

// batchItem is one lead to process. PageID is set for Notion queue leads.
type batchItem struct {
	Lead   model.Lead
	PageID string
}

// processFunc enriches one lead.
type processFunc func(ctx context.Context, lead model.Lead) (*model.EnrichmentResult, error)

// queueWriter records per-lead outcomes back to the intake queue.
type queueWriter interface {
	Complete(ctx context.Context, pageID string) error
	Duplicate(ctx context.Context, pageID string) error
	Fail(ctx context.Context, pageID string, cause error) error
}

// batchSummary counts outcomes of a batch run.
type batchSummary struct {
	Total      int   `json:"total"`
	Processed  int64 `json:"processed"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
}

// processBatch applies limit, then processes items concurrently. A failed
// lead never aborts the batch. queue may be nil.
func processBatch(ctx context.Context, items []batchItem, limit, concurrency int, queue queueWriter, process processFunc) (batchSummary, error) {
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	summary := batchSummary{Total: len(items)}
	if len(items) == 0 {
		zap.L().Info("no leads to process")
		return summary, nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("leads", len(items)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var processed, duplicates, failed atomic.Int64

	for _, item := range items {
		g.Go(func() error {
			log := zap.L().With(zap.String("profile_url", item.Lead.ProfileURL))

			result, err := process(gctx, item.Lead)
			var dup *leads.DuplicateLeadError
			switch {
			case errors.As(err, &dup):
				duplicates.Add(1)
				log.Info("lead already processed")
				writeBack(log, queue, item.PageID, func(q queueWriter) error { return q.Duplicate(gctx, item.PageID) })
			case err != nil:
				failed.Add(1)
				log.Error("enrichment failed", zap.Error(err))
				writeBack(log, queue, item.PageID, func(q queueWriter) error { return q.Fail(gctx, item.PageID, err) })
			default:
				processed.Add(1)
				log.Info("enrichment complete",
					zap.Int("total_tokens", result.EnrichedData.TotalTokens),
					zap.Float64("cost_usd", result.EnrichedData.TotalCost),
				)
				writeBack(log, queue, item.PageID, func(q queueWriter) error { return q.Complete(gctx, item.PageID) })
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, eris.Wrap(err, "batch processing")
	}

	summary.Processed = processed.Load()
	summary.Duplicates = duplicates.Load()
	summary.Failed = failed.Load()

	zap.L().Info("batch complete",
		zap.Int64("processed", summary.Processed),
		zap.Int64("duplicates", summary.Duplicates),
		zap.Int64("failed", summary.Failed),
	)
	if err := ctx.Err(); err != nil {
		return summary, eris.Wrap(err, "batch interrupted")
	}
	return summary, nil
}

func writeBack(log *zap.Logger, queue queueWriter, pageID string, fn func(queueWriter) error) {
	if queue == nil || pageID == "" {
		return
	}
	if err := fn(queue); err != nil {
		log.Warn("failed to update queue status", zap.String("page_id", pageID), zap.Error(err))
	}
}
