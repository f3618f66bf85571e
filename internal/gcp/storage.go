package gcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/pagelens/pagelens/internal/logger"
)

// SaveToGCSAtomically writes content to a GCS object only if it doesn't
// already exist, which keeps re-runs of the same document idempotent.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, content string, log *logger.Logger) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)

	if _, err := io.Copy(writer, strings.NewReader(content)); err != nil {
		_ = writer.Close()
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			log.Info("object already exists, skipping write", "object", objectName)
			return nil
		}
		return fmt.Errorf("failed to write to GCS object %s: %w", objectName, err)
	}

	if err := writer.Close(); err != nil {
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			log.Info("object already exists, skipping write", "object", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write for %s: %w", objectName, err)
	}
	return nil
}

// StreamObjectToFile downloads a GCS object to destPath without buffering it
// in memory.
func StreamObjectToFile(ctx context.Context, client *storage.Client, bucket, object, destPath string) error {
	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to open gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()

	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	defer localFile.Close()

	if _, err := io.Copy(localFile, reader); err != nil {
		return fmt.Errorf("failed to download gs://%s/%s: %w", bucket, object, err)
	}
	return nil
}
