// Package raster turns document pages into images for the generator.
package raster

import (
	"context"
	"errors"
)

// ErrPageOutOfRange is returned when the requested page number does not
// exist in the document.
var ErrPageOutOfRange = errors.New("page number out of range")

// Rasterizer renders one page of a stored document into image bytes.
// Implementations return the encoded image and its MIME type.
type Rasterizer interface {
	Render(ctx context.Context, location string, page int) ([]byte, string, error)
}
