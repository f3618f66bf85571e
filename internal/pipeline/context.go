package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/pagelens/pagelens/internal/store"
)

// DefaultContextWindow is how many preceding pages' summaries are fed to the
// generator for continuity.
const DefaultContextWindow = 3

const contextHeader = "Summary of the preceding pages:"

// BuildContext assembles the prior-page context for page from the cached
// summaries of pages [max(1, page-window), page). It returns an empty string
// when no prior summaries exist; the result is passed verbatim to the
// generator and never re-parsed.
func BuildContext(ctx context.Context, cache store.ArtifactCache, id string, page, window int) (string, error) {
	if window <= 0 {
		window = DefaultContextWindow
	}
	summaries, err := cache.RangeSummaries(ctx, id, page, window)
	if err != nil {
		return "", fmt.Errorf("failed to build context for %s page %d: %w", id, page, err)
	}
	if len(summaries) == 0 {
		return "", nil
	}
	return fmt.Sprintf("%s\n%s\n", contextHeader, strings.Join(summaries, "\n")), nil
}
