package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pagelens/pagelens/internal/generate"
	"github.com/pagelens/pagelens/internal/identity"
	"github.com/pagelens/pagelens/internal/logger"
	"github.com/pagelens/pagelens/internal/models"
	"github.com/pagelens/pagelens/internal/pdf"
	"github.com/pagelens/pagelens/internal/store"
)

// Service is the core facade the HTTP layer and CLI talk to: document
// submission, run admission, progress, artifact lookup, export and
// invalidation.
type Service struct {
	store     store.Store
	registry  *Registry
	runner    *Runner
	uploadDir string
	defaults  generate.Config
	log       *logger.Logger

	// prepare validates/optimizes a PDF into place and returns its page
	// count. Swappable so tests do not need real PDF bytes.
	prepare func(srcPath, destPath string) (int, error)
}

func NewService(st store.Store, runner *Runner, uploadDir string, defaults generate.Config, baseLog *logger.Logger) *Service {
	return &Service{
		store:     st,
		registry:  NewRegistry(),
		runner:    runner,
		uploadDir: uploadDir,
		defaults:  defaults,
		log:       baseLog.With("component", "service"),
		prepare:   pdf.Prepare,
	}
}

// SubmitDocument ingests the PDF at srcPath: derives its content identity,
// stores the optimized bytes under the upload directory and records
// metadata. Re-submitting identical bytes returns the existing record
// unchanged unless its stored bytes went missing, in which case the document
// is re-created and starts fresh.
func (s *Service) SubmitDocument(ctx context.Context, srcPath, name string) (*models.SubmitResult, error) {
	id, err := identity.DeriveFile(srcPath)
	if err != nil {
		return nil, fmt.Errorf("failed to derive document identity: %w", err)
	}
	log := s.log.With("documentId", id)

	existing, err := s.store.GetDocument(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if _, statErr := os.Stat(existing.Location); statErr == nil {
			log.Info("duplicate submission, returning existing record")
			return &models.SubmitResult{
				DocumentID: id,
				TotalPages: existing.TotalPages,
				Filename:   existing.OriginalFilename,
				Created:    false,
			}, nil
		}
		log.Warn("stored bytes missing, re-creating document", "location", existing.Location)
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	dest := filepath.Join(s.uploadDir, id+".pdf")
	totalPages, err := s.prepare(srcPath, dest)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:               id,
		OriginalFilename: name,
		TotalPages:       totalPages,
		Location:         dest,
	}
	if err := s.store.Upsert(ctx, doc); err != nil {
		return nil, err
	}
	log.Info("document ingested", "totalPages", totalPages, "filename", name)

	return &models.SubmitResult{
		DocumentID: id,
		TotalPages: totalPages,
		Filename:   name,
		Created:    existing == nil,
	}, nil
}

// StartRun admits and launches a run over the selected pages. It returns
// ErrNotFound for an unknown document, ErrInvalidPages for a bad selection
// and ErrAlreadyRunning when a run is already active. The run itself
// executes on its own goroutine; the returned handle observes it.
func (s *Service) StartRun(ctx context.Context, id string, req models.StartRunRequest) (*Run, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	pages, err := normalizePages(req.Pages, doc.TotalPages)
	if err != nil {
		return nil, err
	}

	cfg := s.defaults
	if req.OutputMode != "" {
		if req.OutputMode != generate.ModeMarkdown && req.OutputMode != generate.ModeStructured {
			return nil, fmt.Errorf("%w: unknown output mode %q", ErrInvalidPages, req.OutputMode)
		}
		cfg.Mode = req.OutputMode
	}
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	if req.MaxOutputTokens != nil {
		cfg.MaxOutputTokens = *req.MaxOutputTokens
	}

	run, err := s.registry.Admit(id, pages)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetSelection(ctx, id, len(pages)); err != nil {
		s.registry.Release(id, run)
		return nil, err
	}

	log := s.log.With("documentId", id, "executionId", run.ExecutionID)
	log.Info("run admitted", "pages", len(pages))

	go func() {
		// Detached from the request context: the run outlives the request
		// that started it.
		runCtx := context.Background()
		defer s.registry.Release(id, run)
		if err := s.runner.Run(runCtx, doc, run, cfg); err != nil {
			log.Error("run ended with error", "error", err)
		}
	}()

	return run, nil
}

// CancelRun flags the active run for id to stop before its next page.
// It reports whether there was a live run to cancel.
func (s *Service) CancelRun(id string) bool {
	run, ok := s.registry.Get(id)
	if !ok {
		return false
	}
	run.Cancel()
	return true
}

// IsActive reports whether a run is currently executing for id.
func (s *Service) IsActive(id string) bool {
	return s.registry.IsActive(id)
}

// Progress reports the current run state for a document.
func (s *Service) Progress(ctx context.Context, id string) (*models.Progress, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	p := &models.Progress{
		DocumentID:    id,
		TotalSelected: doc.SelectedPages,
		Processed:     doc.ProcessedPages,
		Status:        doc.Status,
	}
	if doc.SelectedPages > 0 {
		p.Percent = float64(doc.ProcessedPages) / float64(doc.SelectedPages) * 100
	}
	return p, nil
}

// GetPage returns the artifact for one page, or a pending placeholder when
// it has not been generated (or its generation failed and will be retried).
func (s *Service) GetPage(ctx context.Context, id string, page int) (*models.PageResult, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if page < 1 || page > doc.TotalPages {
		return nil, fmt.Errorf("page %d of document %s (1-%d): %w", page, id, doc.TotalPages, ErrNotFound)
	}

	artifact, err := s.store.GetArtifact(ctx, id, page)
	if errors.Is(err, store.ErrNotFound) {
		return &models.PageResult{DocumentID: id, PageNumber: page, Pending: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.PageResult{DocumentID: id, PageNumber: page, Artifact: artifact}, nil
}

// ExportAll returns every artifact for the document ordered by page number.
// It fails with ErrNotReady unless the document has completed processing.
func (s *Service) ExportAll(ctx context.Context, id string) ([]models.Artifact, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusCompleted {
		return nil, fmt.Errorf("document %s has status %s: %w", id, doc.Status, ErrNotReady)
	}
	return s.store.GetAll(ctx, id)
}

// ExportMarkdown concatenates all artifacts into one markdown document with
// page separators. Same readiness rule as ExportAll.
func (s *Service) ExportMarkdown(ctx context.Context, id string) (string, error) {
	artifacts, err := s.ExportAll(ctx, id)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, a := range artifacts {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		b.WriteString(a.Body)
	}
	return b.String(), nil
}

// Invalidate removes the artifacts for the given pages to force their
// recomputation on the next run. Pages without artifacts count as zero.
func (s *Service) Invalidate(ctx context.Context, id string, pages []int) (int64, error) {
	if _, err := s.store.GetDocument(ctx, id); err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, fmt.Errorf("%w: no pages given", ErrInvalidPages)
	}
	removed, err := s.store.Delete(ctx, id, pages)
	if err != nil {
		return 0, err
	}
	s.log.Info("artifacts invalidated", "documentId", id, "removed", removed)
	return removed, nil
}

// normalizePages validates a selection against the page count and returns it
// sorted ascending with duplicates removed. Processing order must be
// ascending because each page's context depends on the pages before it.
func normalizePages(pages []int, totalPages int) ([]int, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages selected", ErrInvalidPages)
	}
	seen := make(map[int]bool, len(pages))
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if p < 1 || p > totalPages {
			return nil, fmt.Errorf("%w: page %d not in [1, %d]", ErrInvalidPages, p, totalPages)
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out, nil
}
