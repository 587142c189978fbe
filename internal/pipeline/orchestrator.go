// Package pipeline runs the research → analysis → writing state machine for
// a single lead.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/capability"
	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/stage"
)

// Invoker is the reasoning capability the stages call.
type Invoker interface {
	Invoke(ctx context.Context, task capability.Task, vars capability.Vars) (*capability.Generation, error)
}

// Gatherer pre-fetches public web context for the research stage.
type Gatherer interface {
	Gather(ctx context.Context, lead model.Lead) (*model.WebContext, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGatherer sets the web context gatherer. Without one the research
// stage binds NotAvailable for profile content and news.
func WithGatherer(g Gatherer) Option {
	return func(o *Orchestrator) { o.gatherer = g }
}

// WithObserver registers a callback for every state transition.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, fn) }
}

// Orchestrator sequences the three stages over one lead. It holds no
// per-run state and is safe for concurrent use.
type Orchestrator struct {
	invoker   Invoker
	tasks     stage.Tasks
	gatherer  Gatherer
	observers []Observer
	now       func() time.Time
}

// NewOrchestrator creates an Orchestrator over invoker using tasks.
func NewOrchestrator(invoker Invoker, tasks stage.Tasks, opts ...Option) *Orchestrator {
	o := &Orchestrator{invoker: invoker, tasks: tasks, now: time.Now}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// run carries the state of one execution.
type run struct {
	o      *Orchestrator
	lead   model.Lead
	state  State
	stages []model.StageResult
	log    *zap.Logger
}

func (r *run) advance(to State, cause error) {
	from := r.state
	if !CanTransition(from, to) {
		// Programming error; every call site follows the transition table.
		panic("pipeline: illegal transition " + string(from) + " -> " + string(to))
	}
	r.state = to

	fields := []zap.Field{zap.String("from", string(from)), zap.String("to", string(to))}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	r.log.Debug("pipeline: transition", fields...)

	t := Transition{ProfileURL: r.lead.ProfileURL, From: from, To: to, At: r.o.now(), Err: cause}
	for _, obs := range r.o.observers {
		obs(t)
	}
}

func (r *run) fail(cause error) error {
	failed := r.state
	r.advance(StateFailed, cause)
	return &StageError{Stage: failed, Err: cause}
}

// trackStage invokes the task for the current state, records its metrics
// and hands the generation to parse.
func (r *run) trackStage(ctx context.Context, vars capability.Vars, extraCost float64, parse func(text string) error) error {
	name, _ := r.state.Stage()
	task := r.o.tasks.For(name)

	start := time.Now()
	gen, err := r.o.invoker.Invoke(ctx, task, vars)
	if err == nil {
		err = parse(gen.Text)
	}
	duration := time.Since(start).Milliseconds()

	res := model.StageResult{Name: string(name), Duration: duration}
	if gen != nil {
		res.Provider = gen.Provider
		res.Model = gen.Model
		res.TokenUsage = gen.Usage
	}
	res.TokenUsage.Cost += extraCost

	if err != nil {
		res.Status = model.StageStatusFailed
		res.Error = err.Error()
		r.log.Error("pipeline: stage failed",
			zap.String("stage", string(name)),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
	} else {
		res.Status = model.StageStatusComplete
		r.log.Info("pipeline: stage complete",
			zap.String("stage", string(name)),
			zap.Int64("duration_ms", duration),
			zap.Int("input_tokens", res.TokenUsage.InputTokens),
			zap.Int("output_tokens", res.TokenUsage.OutputTokens),
			zap.Float64("cost_usd", res.TokenUsage.Cost),
		)
	}
	r.stages = append(r.stages, res)
	return err
}

// Run executes the three stages for lead. On failure the returned error is
// a *StageError naming the state that failed; no partial result is
// returned.
func (o *Orchestrator) Run(ctx context.Context, lead model.Lead) (*model.EnrichmentResult, error) {
	r := &run{
		o:     o,
		lead:  lead,
		state: StateStart,
		log:   zap.L().With(zap.String("profile_url", lead.ProfileURL)),
	}
	r.log.Info("pipeline: starting enrichment")

	// Start → Researching
	r.advance(StateResearching, nil)
	web := o.gather(ctx, r.log, lead)
	var findings model.ResearchFindings
	err := r.trackStage(ctx, stage.ResearchInput{
		Lead:           lead,
		ProfileContent: web.ProfileContent,
		RecentNews:     web.RecentNews,
	}.Vars(), web.Cost, func(text string) (perr error) {
		findings, perr = stage.ParseFindings(text)
		return perr
	})
	if err != nil {
		return nil, r.fail(err)
	}

	// Researching → Analyzing
	r.advance(StateAnalyzing, nil)
	var insights model.AnalysisInsights
	err = r.trackStage(ctx, stage.AnalysisInput{Findings: findings}.Vars(), 0, func(text string) (perr error) {
		insights, perr = stage.ParseInsights(text)
		return perr
	})
	if err != nil {
		return nil, r.fail(err)
	}

	// Analyzing → Writing
	r.advance(StateWriting, nil)
	var draft model.DraftMessage
	err = r.trackStage(ctx, stage.WritingInput{Insights: insights, FirstName: lead.FirstName}.Vars(), 0, func(text string) (perr error) {
		draft, perr = stage.ParseDraft(text)
		return perr
	})
	if err != nil {
		return nil, r.fail(err)
	}

	// Writing → Completed
	r.advance(StateCompleted, nil)

	var total model.TokenUsage
	for _, s := range r.stages {
		total.Add(s.TokenUsage)
	}

	r.log.Info("pipeline: enrichment complete",
		zap.Int("total_tokens", total.Total()),
		zap.Float64("total_cost_usd", total.Cost),
		zap.Int("draft_words", draft.WordCount()),
	)

	return &model.EnrichmentResult{
		Lead: lead,
		EnrichedData: model.EnrichedData{
			RawAIOutput:       draft.Body,
			StructuredSummary: insights.Summary,
			ResearchFindings:  findings.Items,
			TalkingPoints:     insights.TalkingPoints,
			Stages:            r.stages,
			TotalTokens:       total.Total(),
			TotalCost:         total.Cost,
		},
		PersonalizedMessage: draft.Body,
	}, nil
}

// gather runs the optional web gatherer. Its failures never fail the run.
func (o *Orchestrator) gather(ctx context.Context, log *zap.Logger, lead model.Lead) model.WebContext {
	if o.gatherer == nil {
		return model.WebContext{}
	}
	web, err := o.gatherer.Gather(ctx, lead)
	if err != nil {
		log.Warn("pipeline: web gathering failed, continuing without it", zap.Error(err))
		return model.WebContext{}
	}
	if web == nil {
		return model.WebContext{}
	}
	return *web
}
