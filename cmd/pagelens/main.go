package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pagelens/pagelens/internal/config"
	"github.com/pagelens/pagelens/internal/generate"
	"github.com/pagelens/pagelens/internal/logger"
	"github.com/pagelens/pagelens/internal/models"
	"github.com/pagelens/pagelens/internal/pipeline"
	"github.com/pagelens/pagelens/internal/raster"
	"github.com/pagelens/pagelens/internal/server"
	"github.com/pagelens/pagelens/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:           "pagelens",
		Short:         "Content-addressed PDF study-guide pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), processCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// bootstrap wires the configured store backend, rasterizer and generator
// into a pipeline service. The returned cleanup closes external clients.
func bootstrap(ctx context.Context) (*pipeline.Service, *config.Config, *logger.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	var st store.Store
	cleanup := func() { log.Sync() }
	switch cfg.StoreBackend {
	case "firestore":
		fs, err := store.OpenFirestore(ctx, cfg.VertexProjectID, cfg.FirestoreCollection, log)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		st = fs
		cleanup = func() {
			_ = fs.Close()
			log.Sync()
		}
	default:
		st, err = store.OpenGorm(cfg.DatabaseDriver, cfg.DatabaseDSN, log)
		if err != nil {
			return nil, nil, nil, nil, err
		}
	}

	gen, err := generate.NewVertexGenerator(ctx, cfg.VertexProjectID, cfg.VertexRegion, cfg.ModelName, log)
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, err
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
	svc := pipeline.NewService(st, runner, cfg.UploadDir, defaults, log)
	return svc, cfg, log, cleanup, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, log, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			return server.New(svc, cfg, log).Run()
		},
	}
}

func processCmd() *cobra.Command {
	var (
		outDir      string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "process <file.pdf> [more.pdf ...]",
		Short: "Process PDFs end to end and write markdown exports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, log, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}

			// Documents run concurrently; pages within each document stay
			// strictly sequential because later pages consume earlier
			// summaries.
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(concurrency)
			for _, path := range args {
				g.Go(func() error {
					return processOne(ctx, svc, log, path, outDir)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "exports", "directory for markdown exports")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 2, "documents processed in parallel")
	return cmd
}

func processOne(ctx context.Context, svc *pipeline.Service, log *logger.Logger, path, outDir string) error {
	result, err := svc.SubmitDocument(ctx, path, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	log.Info("submitted", "file", path, "documentId", result.DocumentID, "totalPages", result.TotalPages)

	pages := make([]int, result.TotalPages)
	for i := range pages {
		pages[i] = i + 1
	}
	run, err := svc.StartRun(ctx, result.DocumentID, models.StartRunRequest{Pages: pages})
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	select {
	case <-run.Done():
	case <-ctx.Done():
		run.Cancel()
		<-run.Done()
		return ctx.Err()
	}

	doc, err := svc.ExportMarkdown(ctx, result.DocumentID)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".md"
	dest := filepath.Join(outDir, name)
	if err := os.WriteFile(dest, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	log.Info("exported", "file", path, "dest", dest)
	return nil
}
