// Package pdf validates and inspects uploaded PDF files.
package pdf

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Prepare validates and optimizes the PDF at srcPath into destPath and
// returns its page count. Relaxed validation accepts the slightly
// out-of-spec files scanners and office exports produce.
func Prepare(srcPath, destPath string) (int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed

	if err := api.OptimizeFile(srcPath, destPath, cfg); err != nil {
		return 0, fmt.Errorf("failed to validate/optimize PDF: %w", err)
	}

	pageCount, err := api.PageCountFile(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	if pageCount == 0 {
		return 0, fmt.Errorf("PDF has no pages")
	}
	return pageCount, nil
}
