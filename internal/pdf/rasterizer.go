package pdf

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// Rasterizer renders PDF pages to raster images at a fixed DPI.
type Rasterizer struct {
	doc *fitz.Document
	dpi float64
}

func OpenRasterizer(pdfPath string, dpi float64) (*Rasterizer, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &Rasterizer{doc: doc, dpi: dpi}, nil
}

func (r *Rasterizer) PageCount() int {
	return r.doc.NumPage()
}

// RenderPage rasterizes the page with the given 1-based number.
func (r *Rasterizer) RenderPage(ctx context.Context, pageNum int) (*image.RGBA, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if pageNum < 1 || pageNum > r.doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (document has %d pages)", pageNum, r.doc.NumPage())
	}

	// Page numbers are zero indexed in the fitz package.
	img, err := r.doc.ImageDPI(pageNum-1, r.dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to rasterize page %d: %w", pageNum, err)
	}
	return img, nil
}

func (r *Rasterizer) Close() error {
	return r.doc.Close()
}
