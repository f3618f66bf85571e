package models

// These structs define the JSON payloads exchanged between the HTTP layer
// (or the CLI) and the core service.

// SubmitResult is returned after a document has been ingested.
type SubmitResult struct {
	DocumentID string `json:"document_id"`
	TotalPages int    `json:"total_pages"`
	Filename   string `json:"filename"`
	Created    bool   `json:"created"`
}

// StartRunRequest selects the pages to process and optional generation
// overrides for one run.
type StartRunRequest struct {
	Pages           []int    `json:"pages"`
	OutputMode      string   `json:"output_mode,omitempty"`
	Temperature     *float32 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"max_output_tokens,omitempty"`
}

// Progress reports how far a run has advanced. Percent is 0 when no pages
// have been selected yet.
type Progress struct {
	DocumentID    string  `json:"document_id"`
	TotalSelected int     `json:"total_selected"`
	Processed     int     `json:"processed"`
	Status        string  `json:"status"`
	Percent       float64 `json:"percent"`
}

// PageResult wraps a point artifact lookup. Pending is true when the page
// has not been generated yet (or its generation permanently failed).
type PageResult struct {
	DocumentID string    `json:"document_id"`
	PageNumber int       `json:"page_number"`
	Pending    bool      `json:"pending"`
	Artifact   *Artifact `json:"artifact,omitempty"`
}

// InvalidateRequest names the pages whose artifacts should be removed to
// force recomputation.
type InvalidateRequest struct {
	Pages []int `json:"pages"`
}

// InvalidateResult reports how many artifacts were removed.
type InvalidateResult struct {
	DocumentID string `json:"document_id"`
	Removed    int64  `json:"removed"`
}
