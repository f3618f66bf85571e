package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pagelens/pagelens/internal/logger"
	"github.com/pagelens/pagelens/internal/models"
)

// FirestoreStore implements Store on Firestore for GCP deployments. Documents
// live in one collection keyed by identity; artifacts live in a "pages"
// subcollection keyed by zero-padded page number.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	log        *logger.Logger
}

// OpenFirestore connects to Firestore in the given project and returns the
// store. Close releases the underlying client.
func OpenFirestore(ctx context.Context, projectID, collection string, baseLog *logger.Logger) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("a project ID is required for the firestore store")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return NewFirestoreStore(client, collection, baseLog), nil
}

func NewFirestoreStore(client *firestore.Client, collection string, baseLog *logger.Logger) *FirestoreStore {
	return &FirestoreStore{
		client:     client,
		collection: collection,
		log:        baseLog.With("store", "firestore"),
	}
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) docRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

func (s *FirestoreStore) pageRef(id string, page int) *firestore.DocumentRef {
	return s.docRef(id).Collection("pages").Doc(fmt.Sprintf("%05d", page))
}

func (s *FirestoreStore) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.docRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check document %s: %w", id, err)
	}
	return true, nil
}

func (s *FirestoreStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	snap, err := s.docRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	var doc models.Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	doc.ID = id
	return &doc, nil
}

func (s *FirestoreStore) Upsert(ctx context.Context, doc *models.Document) error {
	doc.Status = models.StatusPending
	doc.ProcessedPages = 0
	doc.SelectedPages = 0
	doc.ErrorDetails = ""
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	doc.UpdatedAt = time.Now()
	if _, err := s.docRef(doc.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *FirestoreStore) SetStatus(ctx context.Context, id, status string, processed int) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
		{Path: "processedPages", Value: processed},
		{Path: "updatedAt", Value: time.Now()},
	}
	if _, err := s.docRef(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to set status for %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) SetFailure(ctx context.Context, id, details string) error {
	updates := []firestore.Update{
		{Path: "status", Value: models.StatusFailed},
		{Path: "errorDetails", Value: details},
		{Path: "updatedAt", Value: time.Now()},
	}
	if _, err := s.docRef(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to record failure for %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) SetSelection(ctx context.Context, id string, selected int) error {
	updates := []firestore.Update{
		{Path: "selectedPages", Value: selected},
		{Path: "processedPages", Value: 0},
		{Path: "updatedAt", Value: time.Now()},
	}
	if _, err := s.docRef(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to set selection for %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) GetArtifact(ctx context.Context, id string, page int) (*models.Artifact, error) {
	snap, err := s.pageRef(id, page).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact %s/%d: %w", id, page, err)
	}
	var a models.Artifact
	if err := snap.DataTo(&a); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s/%d: %w", id, page, err)
	}
	return &a, nil
}

func (s *FirestoreStore) RangeSummaries(ctx context.Context, id string, beforePage, limit int) ([]string, error) {
	lo := beforePage - limit
	if lo < 1 {
		lo = 1
	}
	it := s.docRef(id).Collection("pages").
		Where("pageNumber", ">=", lo).
		Where("pageNumber", "<", beforePage).
		OrderBy("pageNumber", firestore.Asc).
		Documents(ctx)
	defer it.Stop()

	var summaries []string
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load summaries for %s before page %d: %w", id, beforePage, err)
		}
		var a models.Artifact
		if err := snap.DataTo(&a); err != nil {
			return nil, fmt.Errorf("failed to decode artifact in %s: %w", id, err)
		}
		if a.Summary != "" {
			summaries = append(summaries, a.Summary)
		}
	}
	return summaries, nil
}

func (s *FirestoreStore) Put(ctx context.Context, a *models.Artifact) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if _, err := s.pageRef(a.DocumentID, a.PageNumber).Set(ctx, a); err != nil {
		return fmt.Errorf("failed to store artifact %s/%d: %w", a.DocumentID, a.PageNumber, err)
	}
	return nil
}

func (s *FirestoreStore) GetAll(ctx context.Context, id string) ([]models.Artifact, error) {
	it := s.docRef(id).Collection("pages").
		OrderBy("pageNumber", firestore.Asc).
		Documents(ctx)
	defer it.Stop()

	var out []models.Artifact
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list artifacts for %s: %w", id, err)
		}
		var a models.Artifact
		if err := snap.DataTo(&a); err != nil {
			return nil, fmt.Errorf("failed to decode artifact in %s: %w", id, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *FirestoreStore) Delete(ctx context.Context, id string, pages []int) (int64, error) {
	var removed int64
	for _, page := range pages {
		ref := s.pageRef(id, page)
		if _, err := ref.Get(ctx); status.Code(err) == codes.NotFound {
			continue
		} else if err != nil {
			return removed, fmt.Errorf("failed to check artifact %s/%d: %w", id, page, err)
		}
		if _, err := ref.Delete(ctx); err != nil {
			return removed, fmt.Errorf("failed to delete artifact %s/%d: %w", id, page, err)
		}
		removed++
	}
	return removed, nil
}
