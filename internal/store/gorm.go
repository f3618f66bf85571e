package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/clause"

	"github.com/pagelens/pagelens/internal/logger"
	"github.com/pagelens/pagelens/internal/models"
)

// GormStore implements Store on a relational database. SQLite is the
// development default; Postgres is selected by config for deployments.
type GormStore struct {
	db  *gorm.DB
	log *logger.Logger
}

// OpenGorm connects to the database named by driver/dsn, runs migrations and
// returns the store.
func OpenGorm(driver, dsn string, baseLog *logger.Logger) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}
	if err := db.AutoMigrate(&models.Document{}, &models.Artifact{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormStore{db: db, log: baseLog.With("store", "gorm")}, nil
}

// NewGormStore wraps an already-open gorm handle. Used by tests.
func NewGormStore(db *gorm.DB, baseLog *logger.Logger) (*GormStore, error) {
	if err := db.AutoMigrate(&models.Document{}, &models.Artifact{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormStore{db: db, log: baseLog.With("store", "gorm")}, nil
}

func (s *GormStore) Exists(ctx context.Context, id string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check document %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *GormStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	return &doc, nil
}

func (s *GormStore) Upsert(ctx context.Context, doc *models.Document) error {
	doc.Status = models.StatusPending
	doc.ProcessedPages = 0
	doc.SelectedPages = 0
	doc.ErrorDetails = ""
	if err := s.db.WithContext(ctx).Save(doc).Error; err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *GormStore) SetStatus(ctx context.Context, id, status string, processed int) error {
	err := s.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          status,
			"processed_pages": processed,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to set status for %s: %w", id, err)
	}
	return nil
}

func (s *GormStore) SetFailure(ctx context.Context, id, details string) error {
	err := s.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.StatusFailed,
			"error_details": details,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record failure for %s: %w", id, err)
	}
	return nil
}

func (s *GormStore) SetSelection(ctx context.Context, id string, selected int) error {
	err := s.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"selected_pages":  selected,
			"processed_pages": 0,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to set selection for %s: %w", id, err)
	}
	return nil
}

func (s *GormStore) GetArtifact(ctx context.Context, id string, page int) (*models.Artifact, error) {
	var a models.Artifact
	err := s.db.WithContext(ctx).
		First(&a, "document_id = ? AND page_number = ?", id, page).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact %s/%d: %w", id, page, err)
	}
	return &a, nil
}

func (s *GormStore) RangeSummaries(ctx context.Context, id string, beforePage, limit int) ([]string, error) {
	lo := beforePage - limit
	if lo < 1 {
		lo = 1
	}
	var rows []models.Artifact
	err := s.db.WithContext(ctx).
		Select("summary").
		Where("document_id = ? AND page_number >= ? AND page_number < ?", id, lo, beforePage).
		Order("page_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load summaries for %s before page %d: %w", id, beforePage, err)
	}
	summaries := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Summary != "" {
			summaries = append(summaries, row.Summary)
		}
	}
	return summaries, nil
}

func (s *GormStore) Put(ctx context.Context, a *models.Artifact) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}, {Name: "page_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"page_tag", "body", "summary", "created_at"}),
	}).Create(a).Error
	if err != nil {
		return fmt.Errorf("failed to store artifact %s/%d: %w", a.DocumentID, a.PageNumber, err)
	}
	return nil
}

func (s *GormStore) GetAll(ctx context.Context, id string) ([]models.Artifact, error) {
	var rows []models.Artifact
	err := s.db.WithContext(ctx).
		Where("document_id = ?", id).
		Order("page_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load artifacts for %s: %w", id, err)
	}
	return rows, nil
}

func (s *GormStore) Delete(ctx context.Context, id string, pages []int) (int64, error) {
	if len(pages) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("document_id = ? AND page_number IN ?", id, pages).
		Delete(&models.Artifact{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete artifacts for %s: %w", id, res.Error)
	}
	return res.RowsAffected, nil
}
