package pdf

import (
	"context"
	"image"

	"github.com/ocrai/ocrai/pkg/models"
)

type PageRenderer interface {
	PageCount() int
	RenderPage(ctx context.Context, pageNum int) (*image.RGBA, error)
	Close() error
}

type ImageExtractor interface {
	Extract(ctx context.Context, pdfPath string) (map[int][]models.SubImage, error)
}
