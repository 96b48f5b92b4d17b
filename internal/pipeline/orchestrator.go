package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/examlens/constants"
	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
	"github.com/joseph-ayodele/examlens/internal/extract"
	"github.com/joseph-ayodele/examlens/internal/llm"
	"github.com/joseph-ayodele/examlens/internal/notify"
	"github.com/joseph-ayodele/examlens/internal/repository"
)

// Validator checks raw backend text against the result contract.
type Validator interface {
	Validate(raw string, expected []entity.QuestionID) (entity.AnalysisResult, error)
}

// Config controls inference retries.
type Config struct {
	Attempts    int           // total inference calls per run; 1 disables retry
	RetryDelay  time.Duration // pause between attempts
	CallTimeout time.Duration // bound on one inference call
}

// Orchestrator runs one document through extract, compose, infer and
// validate, stores the outcome and signals completion.
type Orchestrator struct {
	Extractor extract.TextExtractor
	Composer  *llm.Composer
	Client    llm.Client
	Validator Validator
	Store     repository.ResultStore
	Notifier  notify.Notifier
	Config    Config
	Logger    *slog.Logger
}

func NewOrchestrator(
	ex extract.TextExtractor,
	client llm.Client,
	validator Validator,
	store repository.ResultStore,
	notifier notify.Notifier,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Orchestrator{
		Extractor: ex,
		Composer:  llm.NewComposer(),
		Client:    client,
		Validator: validator,
		Store:     store,
		Notifier:  notifier,
		Config:    cfg,
		Logger:    logger,
	}
}

// Run processes doc as run runID. Stage failures become a stored error
// record and are not returned; the returned error is non-nil only when the
// outcome could not be stored. Exactly one completion is signalled either way.
func (o *Orchestrator) Run(ctx context.Context, runID string, doc entity.Document) (entity.Outcome, error) {
	ctx = common.WithRunID(ctx, runID)
	r := newRun(runID, o.Logger.With("run_id", runID))
	start := time.Now()

	result, err := o.execute(ctx, r, doc)
	var out entity.Outcome
	if err != nil {
		stage := common.StageOf(err)
		r.advance(constants.RunFailed, "stage", stage, "error", err)
		out = entity.Failure(runID, stage, err.Error())
	} else {
		r.advance(constants.RunCompleted)
		out = entity.Success(runID, result)
	}

	// the outcome is stored even if the run context expired
	storeCtx := context.WithoutCancel(ctx)
	if err := o.Store.Write(storeCtx, out); err != nil {
		r.logger.Error("pipeline.store.failed", "error", err)
		// listeners are still released, with an error record they can act on
		o.signal(storeCtx, r, entity.Failure(runID, common.StageOf(err), "store outcome: "+err.Error()))
		return out, fmt.Errorf("store outcome: %w", err)
	}

	o.signal(storeCtx, r, out)
	r.logger.Info("pipeline.done", "kind", out.Kind(), "duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// signal sends the single completion notification of a run. Failures are
// logged only.
func (o *Orchestrator) signal(ctx context.Context, r *run, out entity.Outcome) {
	if o.Notifier == nil {
		return
	}
	c, err := notify.NewCompletion(out)
	if err == nil {
		err = o.Notifier.Notify(ctx, c)
	}
	if err != nil {
		r.logger.Warn("pipeline.notify.failed", "error", err)
	}
}

func (o *Orchestrator) execute(ctx context.Context, r *run, doc entity.Document) (entity.AnalysisResult, error) {
	r.advance(constants.RunExtracting, "filename", doc.Filename, "bytes", doc.Size())
	text, err := o.Extractor.Extract(ctx, doc)
	if err != nil {
		return entity.AnalysisResult{}, err
	}

	r.advance(constants.RunComposing, "pages", text.PageCount())
	questions := extract.DetectQuestions(text)
	req := o.Composer.Compose(text, questions)

	r.advance(constants.RunInferring, "backend", o.Client.Name(), "questions", len(questions))
	raw, err := o.infer(ctx, r, req)
	if err != nil {
		return entity.AnalysisResult{}, err
	}

	r.advance(constants.RunValidating, "raw_len", len(raw))
	return o.Validator.Validate(raw, questions)
}

// infer calls the backend, retrying retryable transport failures up to
// Config.Attempts total calls.
func (o *Orchestrator) infer(ctx context.Context, r *run, req llm.Request) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= o.Config.Attempts; attempt++ {
		callCtx, cancel := common.WithTimeout(ctx, o.Config.CallTimeout)
		raw, err := o.Client.Complete(callCtx, req)
		cancel()
		if err == nil {
			return raw, nil
		}

		var te *common.TransportError
		if !errors.As(err, &te) {
			te = &common.TransportError{Err: err}
			err = te
		}
		lastErr = err
		if !te.Retryable || attempt == o.Config.Attempts {
			break
		}
		r.logger.Warn("pipeline.infer.retry", "attempt", attempt, "status", te.Status, "error", err)
		if err := sleep(ctx, o.Config.RetryDelay); err != nil {
			break
		}
	}
	return "", lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
