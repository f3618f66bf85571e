package raster

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

// FitzRasterizer renders PDF pages through MuPDF at a fixed DPI.
type FitzRasterizer struct {
	dpi float64
}

// NewFitzRasterizer returns a rasterizer rendering at the given DPI; values
// below 72 fall back to 200, which is sharp enough for slide text.
func NewFitzRasterizer(dpi float64) *FitzRasterizer {
	if dpi < 72 {
		dpi = 200
	}
	return &FitzRasterizer{dpi: dpi}
}

// Render renders the 1-indexed page of the PDF at location as a PNG.
func (r *FitzRasterizer) Render(ctx context.Context, location string, page int) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	doc, err := fitz.New(location)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", location, err)
	}
	defer doc.Close()

	if page < 1 || page > doc.NumPage() {
		return nil, "", fmt.Errorf("page %d of %s (1-%d): %w", page, location, doc.NumPage(), ErrPageOutOfRange)
	}

	img, err := doc.ImageDPI(page-1, r.dpi)
	if err != nil {
		return nil, "", fmt.Errorf("failed to render page %d of %s: %w", page, location, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", fmt.Errorf("failed to encode page %d as PNG: %w", page, err)
	}
	return buf.Bytes(), "image/png", nil
}
