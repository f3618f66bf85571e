package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/pagelens/pagelens/internal/config"
	"github.com/pagelens/pagelens/internal/gcp"
	"github.com/pagelens/pagelens/internal/generate"
	"github.com/pagelens/pagelens/internal/logger"
	"github.com/pagelens/pagelens/internal/models"
	"github.com/pagelens/pagelens/internal/pipeline"
	"github.com/pagelens/pagelens/internal/raster"
	"github.com/pagelens/pagelens/internal/store"
)

// GCSEvent is the payload of a GCS object-finalized event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// Function processes a PDF dropped into a bucket: it ingests the document,
// runs every page through the pipeline and mirrors the markdown export back
// to the export bucket.
type Function struct {
	svc           *pipeline.Service
	storageClient *storage.Client
	exportBucket  string
	log           *logger.Logger
}

// NewFunction initializes all external clients. Called once per instance.
func NewFunction(ctx context.Context) (*Function, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, err
	}
	if cfg.ExportBucket == "" {
		return nil, fmt.Errorf("EXPORT_BUCKET must be set")
	}

	var st store.Store
	switch cfg.StoreBackend {
	case "firestore":
		st, err = store.OpenFirestore(ctx, cfg.VertexProjectID, cfg.FirestoreCollection, log)
		if err != nil {
			return nil, err
		}
	default:
		st, err = store.OpenGorm(cfg.DatabaseDriver, cfg.DatabaseDSN, log)
		if err != nil {
			return nil, err
		}
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	gen, err := generate.NewVertexGenerator(ctx, cfg.VertexProjectID, cfg.VertexRegion, cfg.ModelName, log)
	if err != nil {
		return nil, err
	}

	runner := pipeline.NewRunner(st, raster.NewFitzRasterizer(cfg.RenderDPI), gen, log, pipeline.RunnerOptions{
		ContextWindow: cfg.ContextWindow,
		PageDelay:     cfg.PageDelay,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff,
	})
	defaults := generate.Config{
		Mode:            cfg.OutputMode,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}

	return &Function{
		svc:           pipeline.NewService(st, runner, cfg.UploadDir, defaults, log),
		storageClient: storageClient,
		exportBucket:  cfg.ExportBucket,
		log:           log.With("component", "ingest"),
	}, nil
}

// Process handles one uploaded object end to end.
func (f *Function) Process(ctx context.Context, e GCSEvent) error {
	log := f.log.With("bucket", e.Bucket, "object", e.Name)
	if !strings.EqualFold(filepath.Ext(e.Name), ".pdf") {
		log.Info("ignoring non-PDF object")
		return nil
	}

	tmp := filepath.Join(os.TempDir(), "pagelens-ingest-"+uuid.NewString()+".pdf")
	if err := gcp.StreamObjectToFile(ctx, f.storageClient, e.Bucket, e.Name, tmp); err != nil {
		log.Error("download failed", "error", err)
		return err
	}
	defer os.Remove(tmp)

	result, err := f.svc.SubmitDocument(ctx, tmp, filepath.Base(e.Name))
	if err != nil {
		log.Error("submission failed", "error", err)
		return err
	}
	log = log.With("documentId", result.DocumentID)

	pages := make([]int, result.TotalPages)
	for i := range pages {
		pages[i] = i + 1
	}
	run, err := f.svc.StartRun(ctx, result.DocumentID, models.StartRunRequest{Pages: pages})
	if err != nil {
		if errors.Is(err, pipeline.ErrAlreadyRunning) {
			log.Warn("run already in flight, leaving it to finish")
			return nil
		}
		log.Error("failed to start run", "error", err)
		return err
	}

	// The function instance must stay alive until the run finishes or the
	// invocation deadline forces a cancel.
	select {
	case <-run.Done():
	case <-ctx.Done():
		run.Cancel()
		<-run.Done()
		return ctx.Err()
	}

	progress, err := f.svc.Progress(ctx, result.DocumentID)
	if err != nil {
		return err
	}
	if progress.Status != models.StatusCompleted {
		return fmt.Errorf("run for %s ended with status %s", result.DocumentID, progress.Status)
	}

	doc, err := f.svc.ExportMarkdown(ctx, result.DocumentID)
	if err != nil {
		return err
	}
	objectName := result.DocumentID + "/master.md"
	bucket := f.storageClient.Bucket(f.exportBucket)
	if err := gcp.SaveToGCSAtomically(ctx, bucket, objectName, doc, f.log); err != nil {
		log.Error("export mirror failed", "error", err)
		return err
	}
	log.Info("export mirrored", "dest", "gs://"+f.exportBucket+"/"+objectName)
	return nil
}
