// Package store persists document metadata and generated page artifacts.
package store

import (
	"context"
	"errors"

	"github.com/pagelens/pagelens/internal/models"
)

// ErrNotFound is returned for lookups of unknown documents or pages.
var ErrNotFound = errors.New("not found")

// DocumentStore persists document metadata. Every write is committed before
// the call returns.
type DocumentStore interface {
	// Exists reports whether a document record exists for id.
	Exists(ctx context.Context, id string) (bool, error)

	// GetDocument returns the document record, or ErrNotFound.
	GetDocument(ctx context.Context, id string) (*models.Document, error)

	// Upsert creates the record if absent; if present it overwrites
	// filename, page count and location and resets status to pending and
	// both counters to zero (re-submission starts fresh).
	Upsert(ctx context.Context, doc *models.Document) error

	// SetStatus records the processing status and processed-page count.
	// Idempotent; repeating the same values is a redundant write, nothing
	// more.
	SetStatus(ctx context.Context, id, status string, processed int) error

	// SetFailure marks the document failed and records the cause, leaving
	// the processed count at whatever was last durably written.
	SetFailure(ctx context.Context, id, details string) error

	// SetSelection records how many pages were chosen for the current run
	// and resets the processed count to zero.
	SetSelection(ctx context.Context, id string, selected int) error
}

// ArtifactCache persists one artifact per (document, page).
type ArtifactCache interface {
	// GetArtifact returns the artifact for (id, page), or ErrNotFound.
	GetArtifact(ctx context.Context, id string, page int) (*models.Artifact, error)

	// RangeSummaries returns the non-empty summaries of pages in
	// [max(1, beforePage-limit), beforePage), ordered by page ascending.
	RangeSummaries(ctx context.Context, id string, beforePage, limit int) ([]string, error)

	// Put stores an artifact; a second write for the same key wins.
	Put(ctx context.Context, a *models.Artifact) error

	// GetAll returns every artifact for id, ordered by page ascending.
	GetAll(ctx context.Context, id string) ([]models.Artifact, error)

	// Delete removes the artifacts for the given pages and returns how
	// many rows were deleted.
	Delete(ctx context.Context, id string, pages []int) (int64, error)
}

// Store is the combined persistence surface the pipeline runs against.
type Store interface {
	DocumentStore
	ArtifactCache
}
