package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/pagelens/pagelens/internal/ingest"
)

var (
	instance *ingest.Function
	once     sync.Once
	initErr  error
)

func init() {
	functions.CloudEvent("ProcessDocument", processDocument)
}

// main is required by the Go Functions Framework.
func main() {}

func processDocument(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		instance, initErr = ingest.NewFunction(context.Background())
	})
	if initErr != nil {
		return fmt.Errorf("function initialization failed: %w", initErr)
	}

	var gcsEvent ingest.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	return instance.Process(ctx, gcsEvent)
}
