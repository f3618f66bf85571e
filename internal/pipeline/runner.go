package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pagelens/pagelens/internal/generate"
	"github.com/pagelens/pagelens/internal/logger"
	"github.com/pagelens/pagelens/internal/models"
	"github.com/pagelens/pagelens/internal/raster"
	"github.com/pagelens/pagelens/internal/repair"
	"github.com/pagelens/pagelens/internal/store"
)

// RunnerOptions tune the per-run loop.
type RunnerOptions struct {
	// ContextWindow is how many preceding pages feed the generation context.
	ContextWindow int
	// PageDelay is the pause inserted after each freshly generated page to
	// respect the generator's rate limits. Cache hits skip it.
	PageDelay time.Duration
	// MaxRetries bounds local retries of transient generation errors.
	MaxRetries int
	// RetryBackoff is the initial backoff between retries; it doubles on
	// each attempt.
	RetryBackoff time.Duration
}

// Runner executes one document's page sequence: cache check, render,
// context, generate, repair, persist, progress. Pages within a run are
// strictly sequential because each page's context depends on the summaries
// of the pages before it.
type Runner struct {
	store  store.Store
	raster raster.Rasterizer
	gen    generate.Generator
	log    *logger.Logger
	opts   RunnerOptions
}

func NewRunner(st store.Store, rz raster.Rasterizer, gen generate.Generator, baseLog *logger.Logger, opts RunnerOptions) *Runner {
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = DefaultContextWindow
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	return &Runner{
		store:  st,
		raster: rz,
		gen:    gen,
		log:    baseLog.With("component", "runner"),
		opts:   opts,
	}
}

// runAbort wraps errors that must terminate the whole run (the store is
// unavailable), as opposed to per-page errors that only skip one page.
type runAbort struct{ err error }

func (e *runAbort) Error() string { return e.err.Error() }
func (e *runAbort) Unwrap() error { return e.err }

func abort(err error) error {
	if err == nil {
		return nil
	}
	return &runAbort{err: storeFail(err)}
}

func storeFail(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// Run processes the run's pages in order. A page that fails generation is
// logged and skipped; it stays uncached and is retried on the next run. Only
// store failures fail the run as a whole. The document always ends in a
// terminal status.
func (r *Runner) Run(ctx context.Context, doc *models.Document, run *Run, cfg generate.Config) error {
	log := r.log.With("documentId", doc.ID, "executionId", run.ExecutionID)
	log.Info("run starting", "pages", len(run.Pages), "mode", cfg.Mode)

	if err := r.store.SetStatus(ctx, doc.ID, models.StatusProcessing, 0); err != nil {
		return r.fail(ctx, log, doc.ID, fmt.Errorf("failed to mark document processing: %w", storeFail(err)))
	}

	processed := 0
	for i, page := range run.Pages {
		if run.Cancelled() {
			log.Warn("run cancelled", "processed", processed)
			return r.fail(ctx, log, doc.ID, fmt.Errorf("run cancelled after %d pages", processed))
		}

		// Cache first: never re-pay generation for a page we already have.
		if _, err := r.store.GetArtifact(ctx, doc.ID, page); err == nil {
			processed++
			if err := r.store.SetStatus(ctx, doc.ID, models.StatusProcessing, processed); err != nil {
				return r.fail(ctx, log, doc.ID, fmt.Errorf("failed to advance progress: %w", storeFail(err)))
			}
			log.Debug("cache hit", "page", page)
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return r.fail(ctx, log, doc.ID, fmt.Errorf("cache lookup failed: %w", storeFail(err)))
		}

		artifact, err := r.processPage(ctx, log, doc, page, cfg)
		if err != nil {
			var fatal *runAbort
			if errors.As(err, &fatal) {
				return r.fail(ctx, log, doc.ID, err)
			}
			// The page stays uncached and will be retried on the next run.
			log.Warn("page failed, skipping", "page", page, "error", err)
			continue
		}

		if err := r.store.Put(ctx, artifact); err != nil {
			return r.fail(ctx, log, doc.ID, fmt.Errorf("failed to persist artifact: %w", storeFail(err)))
		}
		processed++
		if err := r.store.SetStatus(ctx, doc.ID, models.StatusProcessing, processed); err != nil {
			return r.fail(ctx, log, doc.ID, fmt.Errorf("failed to advance progress: %w", storeFail(err)))
		}
		log.Info("page done", "page", page, "processed", processed)

		if r.opts.PageDelay > 0 && i < len(run.Pages)-1 {
			select {
			case <-time.After(r.opts.PageDelay):
			case <-ctx.Done():
				return r.fail(ctx, log, doc.ID, ctx.Err())
			}
		}
	}

	// Partial success is terminal: skipped pages are visible through the
	// processed count, never silently pretended successful.
	if err := r.store.SetStatus(ctx, doc.ID, models.StatusCompleted, processed); err != nil {
		return r.fail(ctx, log, doc.ID, fmt.Errorf("failed to mark document completed: %w", storeFail(err)))
	}
	log.Info("run completed", "processed", processed, "selected", len(run.Pages))
	return nil
}

// processPage renders, builds context, generates and assembles the artifact
// for one page. Store errors come back wrapped as runAbort; everything else
// is a per-page error.
func (r *Runner) processPage(ctx context.Context, log *logger.Logger, doc *models.Document, page int, cfg generate.Config) (*models.Artifact, error) {
	image, mime, err := r.raster.Render(ctx, doc.Location, page)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}

	contextText, err := BuildContext(ctx, r.store, doc.ID, page, r.opts.ContextWindow)
	if err != nil {
		return nil, abort(err)
	}

	prompt := generate.PromptForPage(cfg.Mode, page)
	raw, err := r.generateWithRetry(ctx, log, image, mime, prompt, contextText, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate page %d: %w", page, err)
	}

	return buildArtifact(doc.ID, page, raw, cfg.Mode), nil
}

// generateWithRetry retries transient generation errors up to the configured
// bound with doubling backoff. Permanent errors return immediately.
func (r *Runner) generateWithRetry(ctx context.Context, log *logger.Logger, image []byte, mime, prompt, contextText string, cfg generate.Config) (string, error) {
	backoff := r.opts.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= r.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn("transient generation error, retrying",
				"attempt", attempt, "backoff", backoff.String(), "error", lastErr)
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		text, err := r.gen.Generate(ctx, image, mime, prompt, contextText, cfg)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !generate.IsTransient(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("generation failed after %d retries: %w", r.opts.MaxRetries, lastErr)
}

// buildArtifact turns raw generator output into a persistable artifact. In
// structured mode the output is parsed (repairing truncation if needed) and
// falls back to wrapping the raw text as free-form content.
func buildArtifact(docID string, page int, raw string, mode string) *models.Artifact {
	artifact := &models.Artifact{
		DocumentID: docID,
		PageNumber: page,
		PageTag:    models.DefaultPageTag,
	}

	if mode == generate.ModeStructured {
		env, _ := repair.ParseEnvelope(raw)
		if env.PageTag != "" {
			artifact.PageTag = env.PageTag
		}
		artifact.Body = env.Content
		artifact.Summary = env.Summary
		if artifact.Summary == "" {
			artifact.Summary = DeriveSummary(artifact.Body, page)
		}
		return artifact
	}

	artifact.Body = repair.StripFences(raw)
	artifact.Summary = DeriveSummary(artifact.Body, page)
	return artifact
}

// fail records the terminal failed status, keeping the last durably written
// processed count, and returns the original error.
func (r *Runner) fail(ctx context.Context, log *logger.Logger, id string, cause error) error {
	log.Error("run failed", "error", cause)
	if err := r.store.SetFailure(ctx, id, cause.Error()); err != nil {
		log.Error("failed to record failed status", "error", err)
	}
	return cause
}
