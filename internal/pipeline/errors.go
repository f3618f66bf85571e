package pipeline

import (
	"errors"

	"github.com/pagelens/pagelens/internal/store"
)

// ErrNotFound is returned for unknown documents or out-of-range pages.
var ErrNotFound = store.ErrNotFound

// ErrAlreadyRunning is returned when a run is admitted for a document that
// already has an active run. There is no queuing; the caller waits for the
// active run to reach a terminal state.
var ErrAlreadyRunning = errors.New("a run is already active for this document")

// ErrInvalidPages is returned when a page selection is empty or contains
// page numbers outside [1, total pages].
var ErrInvalidPages = errors.New("invalid page selection")

// ErrNotReady is returned by export when the document has not completed
// processing.
var ErrNotReady = errors.New("document processing is not complete")

// ErrStoreUnavailable classifies fatal persistence failures. A run hitting
// one aborts with status failed; it never surfaces as a skipped page.
var ErrStoreUnavailable = errors.New("store unavailable")
