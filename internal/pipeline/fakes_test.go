package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pagelens/pagelens/internal/generate"
	"github.com/pagelens/pagelens/internal/models"
	"github.com/pagelens/pagelens/internal/store"
)

// fakeStore is an in-memory store.Store with injectable failures.
type fakeStore struct {
	mu        sync.Mutex
	docs      map[string]*models.Document
	artifacts map[string]map[int]*models.Artifact

	putErr       error
	setStatusErr error

	// processedHistory records every processed count written via SetStatus,
	// in order, for monotonicity assertions.
	processedHistory []int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:      make(map[string]*models.Document),
		artifacts: make(map[string]map[int]*models.Artifact),
	}
}

func (s *fakeStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[id]
	return ok, nil
}

func (s *fakeStore) GetDocument(_ context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (s *fakeStore) Upsert(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *doc
	copied.Status = models.StatusPending
	copied.ProcessedPages = 0
	copied.SelectedPages = 0
	copied.ErrorDetails = ""
	s.docs[doc.ID] = &copied
	return nil
}

func (s *fakeStore) SetStatus(_ context.Context, id, status string, processed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setStatusErr != nil {
		return s.setStatusErr
	}
	doc, ok := s.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	doc.Status = status
	doc.ProcessedPages = processed
	s.processedHistory = append(s.processedHistory, processed)
	return nil
}

func (s *fakeStore) SetFailure(_ context.Context, id, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	doc.Status = models.StatusFailed
	doc.ErrorDetails = details
	return nil
}

func (s *fakeStore) SetSelection(_ context.Context, id string, selected int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	doc.SelectedPages = selected
	doc.ProcessedPages = 0
	return nil
}

func (s *fakeStore) GetArtifact(_ context.Context, id string, page int) (*models.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[id][page]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *fakeStore) RangeSummaries(_ context.Context, id string, beforePage, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo := beforePage - limit
	if lo < 1 {
		lo = 1
	}
	var summaries []string
	for page := lo; page < beforePage; page++ {
		if a, ok := s.artifacts[id][page]; ok && a.Summary != "" {
			summaries = append(summaries, a.Summary)
		}
	}
	return summaries, nil
}

func (s *fakeStore) Put(_ context.Context, a *models.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	if s.artifacts[a.DocumentID] == nil {
		s.artifacts[a.DocumentID] = make(map[int]*models.Artifact)
	}
	copied := *a
	s.artifacts[a.DocumentID][a.PageNumber] = &copied
	return nil
}

func (s *fakeStore) GetAll(_ context.Context, id string) ([]models.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pages := make([]int, 0, len(s.artifacts[id]))
	for page := range s.artifacts[id] {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	out := make([]models.Artifact, 0, len(pages))
	for _, page := range pages {
		out = append(out, *s.artifacts[id][page])
	}
	return out, nil
}

func (s *fakeStore) Delete(_ context.Context, id string, pages []int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for _, page := range pages {
		if _, ok := s.artifacts[id][page]; ok {
			delete(s.artifacts[id], page)
			removed++
		}
	}
	return removed, nil
}

// fakeRaster renders a deterministic placeholder image per page.
type fakeRaster struct {
	mu      sync.Mutex
	failFor map[int]error
	renders int
}

func newFakeRaster() *fakeRaster {
	return &fakeRaster{failFor: make(map[int]error)}
}

func (r *fakeRaster) Render(_ context.Context, _ string, page int) ([]byte, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failFor[page]; ok {
		return nil, "", err
	}
	r.renders++
	return []byte(fmt.Sprintf("png-of-page-%d", page)), "image/png", nil
}

// genCall records one Generate invocation for assertions.
type genCall struct {
	Prompt      string
	ContextText string
}

// fakeGen returns scripted outputs in order and records its calls. When the
// script runs out it produces a default markdown body.
type fakeGen struct {
	mu      sync.Mutex
	calls   []genCall
	script  []generation
	started chan struct{} // closed on first call if non-nil
	release chan struct{} // blocks every call until closed if non-nil
}

type generation struct {
	text string
	err  error
}

func (g *fakeGen) Generate(ctx context.Context, _ []byte, _ string, prompt, contextText string, _ generate.Config) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, genCall{Prompt: prompt, ContextText: contextText})
	n := len(g.calls)
	var next *generation
	if len(g.script) > 0 {
		next = &g.script[0]
		g.script = g.script[1:]
	}
	started := g.started
	g.started = nil
	g.mu.Unlock()

	if started != nil {
		close(started)
	}
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if next != nil {
		return next.text, next.err
	}
	return fmt.Sprintf("# Page\n\nGenerated explanation %d.", n), nil
}

func (g *fakeGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
