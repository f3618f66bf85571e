package models

import "time"

// Status values a document moves through. A document is created as
// StatusPending and reaches exactly one terminal status per run; a new
// run moves it back to StatusProcessing.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DefaultPageTag is the classification recorded for an artifact when the
// generator does not supply one.
const DefaultPageTag = "content"

// Document is the master record for an ingested PDF. Its ID is the content
// hash of the file bytes, so re-uploading identical bytes always resolves to
// the same record.
type Document struct {
	ID               string    `gorm:"primaryKey" firestore:"id" json:"id"`
	OriginalFilename string    `gorm:"not null" firestore:"originalFilename" json:"original_filename"`
	TotalPages       int       `gorm:"not null" firestore:"totalPages" json:"total_pages"`
	Location         string    `gorm:"not null" firestore:"location" json:"location"`
	Status           string    `gorm:"not null;default:pending" firestore:"status" json:"status"`
	ProcessedPages   int       `gorm:"not null;default:0" firestore:"processedPages" json:"processed_pages"`
	SelectedPages    int       `gorm:"not null;default:0" firestore:"selectedPages" json:"selected_pages"`
	ErrorDetails     string    `firestore:"errorDetails,omitempty" json:"error_details,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt" json:"created_at"`
	UpdatedAt        time.Time `firestore:"updatedAt" json:"updated_at"`
}

// Artifact is one persisted AI-generated explanation for a single page.
// (DocumentID, PageNumber) is unique; page numbers are 1-indexed.
type Artifact struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" firestore:"-" json:"-"`
	DocumentID string    `gorm:"index:idx_artifact_page,unique;not null" firestore:"documentId" json:"document_id"`
	PageNumber int       `gorm:"index:idx_artifact_page,unique;not null" firestore:"pageNumber" json:"page_number"`
	PageTag    string    `gorm:"not null;default:content" firestore:"pageTag" json:"page_tag"`
	Body       string    `gorm:"type:text;not null" firestore:"body" json:"body"`
	Summary    string    `gorm:"type:text" firestore:"summary" json:"summary"`
	CreatedAt  time.Time `firestore:"createdAt" json:"created_at"`
}
