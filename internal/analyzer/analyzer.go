// Package analyzer is the boundary to the hosted multimodal model that
// does the actual content understanding: transcription, image
// importance classification, description generation and lesson
// metadata extraction.
package analyzer

import (
	"context"

	"github.com/ocrai/ocrai/pkg/models"
)

// Analyzer is the single synchronous capability the pipeline needs per
// page. Implementations are stateless across pages.
type Analyzer interface {
	Analyze(ctx context.Context, req models.PageRequest) (*models.AnalysisResult, error)
}
