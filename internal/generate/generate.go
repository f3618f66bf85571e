// Package generate defines the generative-model collaborator and its
// Vertex AI implementation.
package generate

import (
	"context"
	"errors"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Output modes. ModeStructured asks the model for a JSON envelope that the
// repair step can recover; ModeMarkdown persists the raw text.
const (
	ModeMarkdown   = "markdown"
	ModeStructured = "structured"
)

// Config carries per-run generation settings.
type Config struct {
	Mode            string
	Temperature     float32
	MaxOutputTokens int
}

// Generator produces the explanation text for one rendered page. It must not
// fail on content-policy refusals; a refusal surfaces as short or empty text.
type Generator interface {
	Generate(ctx context.Context, image []byte, mime, prompt, contextText string, cfg Config) (string, error)
}

// IsTransient reports whether err looks like a rate-limit or availability
// problem worth retrying. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.Internal:
			return true
		}
	}
	return false
}
