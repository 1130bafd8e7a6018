package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/ocrai/ocrai/pkg/logger"
	"github.com/ocrai/ocrai/pkg/models"
)

const (
	// Embedded images below this size are page furniture (bullets,
	// rules, border art) and never carry lesson content.
	minSubImageWidth  = 50
	minSubImageHeight = 50
)

// SubImageExtractor pulls embedded raster images out of a PDF, grouped
// by 1-based page number. Indices within a page follow the order the
// PDF structure lists the images.
type SubImageExtractor struct {
	logger *logger.Logger
}

func NewSubImageExtractor(log *logger.Logger) *SubImageExtractor {
	return &SubImageExtractor{logger: log}
}

func (e *SubImageExtractor) Extract(ctx context.Context, pdfPath string) (map[int][]models.SubImage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	byPage := make(map[int][]models.SubImage)

	digest := func(img model.Image, singleImgPerPage bool, maxPageDigits int) error {
		if img.Thumb {
			return nil
		}

		data, err := io.ReadAll(img)
		if err != nil {
			e.logger.Warn("Could not read embedded image obj=%d on page %d: %v", img.ObjNr, img.PageNr, err)
			return nil
		}
		if len(data) == 0 {
			return nil
		}

		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			// Undecodable payloads cannot be re-encoded to PNG later.
			e.logger.Warn("Skipping embedded image obj=%d on page %d (%s): %v", img.ObjNr, img.PageNr, img.FileType, err)
			return nil
		}
		if cfg.Width < minSubImageWidth || cfg.Height < minSubImageHeight {
			e.logger.Trace("Skipping tiny embedded image obj=%d on page %d (%dx%d)", img.ObjNr, img.PageNr, cfg.Width, cfg.Height)
			return nil
		}

		byPage[img.PageNr] = append(byPage[img.PageNr], models.SubImage{
			Index:  len(byPage[img.PageNr]),
			Data:   data,
			Format: img.FileType,
			Width:  cfg.Width,
			Height: cfg.Height,
		})
		return nil
	}

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractImages(f, nil, digest, conf); err != nil {
		return nil, fmt.Errorf("failed to extract embedded images: %w", err)
	}

	return byPage, nil
}
