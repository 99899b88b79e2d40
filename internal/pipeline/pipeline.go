package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/dealwatch/internal/collect"
	"github.com/TobiSchelling/dealwatch/internal/config"
	"github.com/TobiSchelling/dealwatch/internal/database"
	"github.com/TobiSchelling/dealwatch/internal/dedup"
	"github.com/TobiSchelling/dealwatch/internal/history"
	"github.com/TobiSchelling/dealwatch/internal/notify"
	"github.com/TobiSchelling/dealwatch/internal/triage"
)

// Source yields the current feed, newest first.
type Source interface {
	Fetch(ctx context.Context) ([]collect.FeedItem, error)
}

// Store persists seen thread ids.
type Store interface {
	Load() history.LoadResult
	Save(ids []string) error
}

// Recorder keeps an audit trail of runs and deliveries.
type Recorder interface {
	InsertRun(r database.Run) error
	InsertDelivery(d database.Delivery) (int64, error)
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of one check.
type Result struct {
	RunID       string
	DryRun      bool
	Steps       []StepResult
	Fetched     int
	New         int
	Delivered   int
	Failed      int
	Suppressed  int
	Dropped     int
	Initialized bool
}

// Fields summarizes the check for a log line.
func (r *Result) Fields() []zap.Field {
	return []zap.Field{
		zap.String("run_id", r.RunID),
		zap.Bool("dry_run", r.DryRun),
		zap.Int("fetched", r.Fetched),
		zap.Int("new", r.New),
		zap.Int("sent", r.Delivered),
		zap.Int("failed", r.Failed),
		zap.Int("ignored", r.Suppressed),
		zap.Int("dropped", r.Dropped),
		zap.Bool("initialized", r.Initialized),
	}
}

// Deps are the collaborators of a Pipeline. Recorder may be nil.
type Deps struct {
	Source     Source
	Store      Store
	Engine     *dedup.Engine
	Classifier *triage.Classifier
	Dispatcher *notify.Dispatcher
	Recorder   Recorder
	Logger     *zap.Logger
}

// Pipeline runs the fetch -> diff -> classify -> notify -> save cycle.
type Pipeline struct {
	source     Source
	store      Store
	engine     *dedup.Engine
	classifier *triage.Classifier
	dispatcher *notify.Dispatcher
	recorder   Recorder
	logger     *zap.Logger
}

// New wires a pipeline from configuration. db may be nil to disable the
// delivery log.
func New(cfg *config.Config, db *database.DB, logger *zap.Logger) *Pipeline {
	deps := Deps{
		Source: collect.NewFeedSource(cfg.Feed.URL, cfg.Feed.UserAgent, cfg.Feed.Timeout, logger),
		Store:  history.NewFileStore(cfg.GetHistoryPath(), cfg.History.MaxEntries, logger),
		Engine: dedup.NewEngine(cfg.Diff.FloodCap, cfg.History.MaxEntries),
		Classifier: triage.NewClassifier(triage.Config{
			DefaultRetailer: cfg.Retailer.Default,
			IgnoreKeywords:  cfg.Keywords.Ignore,
			UrgentKeywords:  cfg.Keywords.Urgent,
			BaseTags:        cfg.Tags.Base,
			UrgentTags:      cfg.Tags.Urgent,
		}),
		Dispatcher: notify.NewDispatcher(
			notify.NewNtfy(cfg.NotifyURL(), cfg.Notify.TokenEnv, cfg.Notify.Timeout),
			cfg.Notify.Pacing,
		),
		Logger: logger,
	}
	if db != nil {
		deps.Recorder = db
	}
	return NewWithDeps(deps)
}

// NewWithDeps creates a pipeline from explicit collaborators.
func NewWithDeps(d Deps) *Pipeline {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		source:     d.Source,
		store:      d.Store,
		engine:     d.Engine,
		classifier: d.Classifier,
		dispatcher: d.Dispatcher,
		recorder:   d.Recorder,
		logger:     logger,
	}
}

// Run executes one check. It never fails: every error is logged and
// reported in the step results.
func (p *Pipeline) Run(ctx context.Context) *Result {
	return p.run(ctx, false)
}

// DryRun fetches and classifies without notifying or saving anything.
func (p *Pipeline) DryRun(ctx context.Context) *Result {
	return p.run(ctx, true)
}

func (p *Pipeline) run(ctx context.Context, dryRun bool) *Result {
	r := &Result{RunID: uuid.NewString(), DryRun: dryRun}
	log := p.logger.With(zap.String("run_id", r.RunID))

	// Step 1: Fetch
	items, err := p.source.Fetch(ctx)
	if err != nil {
		log.Warn("feed fetch failed, nothing to do", zap.Error(err))
		r.Steps = append(r.Steps, StepResult{Name: "Fetch", Err: err})
		return r
	}
	r.Fetched = len(items)
	r.Steps = append(r.Steps, StepResult{Name: "Fetch", Summary: fmt.Sprintf("Fetched %d items", len(items))})
	if len(items) == 0 {
		log.Info("feed is empty, nothing to do")
		return r
	}

	// Step 2: Load history
	loaded := p.store.Load()
	log.Debug("loaded history", zap.Stringer("format", loaded.Format), zap.Int("entries", len(loaded.IDs)))
	if loaded.Empty() {
		log.Info("no history yet, seeding from current feed")
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Load history",
		Summary: fmt.Sprintf("%d known threads (%s)", len(loaded.IDs), loaded.Format),
	})

	// Step 3: Diff
	diff := p.engine.Compute(items, loaded.IDs)
	r.New = len(diff.New)
	r.Dropped = diff.Dropped
	r.Initialized = diff.Initialized
	if diff.Dropped > 0 {
		log.Warn("flood control dropped new items", zap.Int("dropped", diff.Dropped))
	}

	if diff.Initialized {
		r.Steps = append(r.Steps, StepResult{
			Name:    "Diff",
			Summary: fmt.Sprintf("Initialization run, seeding %d threads", len(diff.History)),
		})
		if dryRun {
			return r
		}
		p.save(log, r, diff.History)
		log.Info("initialized history", zap.Int("threads", len(diff.History)))
		p.record(log, r, nil)
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Diff",
		Summary: fmt.Sprintf("%d new threads, %d dropped by flood control", len(diff.New), diff.Dropped),
	})

	// Step 4: Notify, oldest first
	deliveries := make([]database.Delivery, 0, len(diff.New))
	for _, item := range diff.New {
		deliveries = append(deliveries, p.handle(ctx, log, r, item, dryRun))
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Notify",
		Summary: fmt.Sprintf("%d sent, %d failed, %d ignored", r.Delivered, r.Failed, r.Suppressed),
	})

	if dryRun || len(diff.New) == 0 {
		return r
	}

	// Step 5: Save history
	p.save(log, r, diff.History)
	p.record(log, r, deliveries)
	return r
}

// handle classifies and dispatches one new item.
func (p *Pipeline) handle(ctx context.Context, log *zap.Logger, r *Result, item collect.FeedItem, dryRun bool) database.Delivery {
	class := p.classifier.Classify(item.Title)
	d := database.Delivery{
		RunID:    r.RunID,
		ThreadID: item.ThreadID(),
		Title:    item.Title,
		Link:     item.Link,
		Retailer: strPtr(class.Retailer),
		Priority: int(class.Priority),
		Keyword:  strPtr(class.Keyword),
	}
	fields := []zap.Field{zap.String("thread_id", d.ThreadID), zap.String("title", item.Title)}

	if class.Suppress {
		r.Suppressed++
		d.Status = string(notify.StatusSuppressed)
		log.Info("ignored", append(fields, zap.String("keyword", class.Keyword))...)
		return d
	}

	if dryRun {
		d.Status = string(notify.StatusSkipped)
		log.Info("would send", append(fields, zap.String("header", class.Header()))...)
		return d
	}

	out := p.dispatcher.Dispatch(ctx, notify.NewMessage(item, class))
	d.Status = string(out.Status)
	switch out.Status {
	case notify.StatusDelivered:
		r.Delivered++
		log.Info("sent", append(fields, zap.Stringer("priority", class.Priority))...)
	default:
		r.Failed++
		d.Error = strPtr(out.Err.Error())
		log.Warn("send failed", append(fields, zap.Error(out.Err))...)
	}
	return d
}

func (p *Pipeline) save(log *zap.Logger, r *Result, ids []string) {
	if err := p.store.Save(ids); err != nil {
		log.Error("saving history failed", zap.Error(err))
		r.Steps = append(r.Steps, StepResult{Name: "Save history", Err: err})
		return
	}
	r.Steps = append(r.Steps, StepResult{Name: "Save history", Summary: fmt.Sprintf("Saved %d threads", len(ids))})
}

func (p *Pipeline) record(log *zap.Logger, r *Result, deliveries []database.Delivery) {
	if p.recorder == nil {
		return
	}
	err := p.recorder.InsertRun(database.Run{
		ID:          r.RunID,
		Fetched:     r.Fetched,
		NewItems:    r.New,
		Delivered:   r.Delivered,
		Failed:      r.Failed,
		Suppressed:  r.Suppressed,
		Dropped:     r.Dropped,
		Initialized: r.Initialized,
	})
	if err != nil {
		log.Warn("recording run failed", zap.Error(err))
		return
	}
	for _, d := range deliveries {
		if _, err := p.recorder.InsertDelivery(d); err != nil {
			log.Warn("recording delivery failed", zap.String("thread_id", d.ThreadID), zap.Error(err))
		}
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
