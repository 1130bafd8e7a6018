package pipeline

import (
	"errors"
	"time"

	"github.com/ocrai/ocrai/pkg/logger"
	"github.com/ocrai/ocrai/pkg/models"
)

// Failure records one skipped item with enough context to re-run it by
// hand.
type Failure struct {
	Document string
	Page     int
	Kind     models.ErrorKind
	Err      error
}

// RunReport aggregates the outcome of one run.
type RunReport struct {
	StartTime time.Time
	EndTime   time.Time

	DocumentsProcessed int
	DocumentsSkipped   int
	PagesProcessed     int
	PagesSkipped       int
	ImagesKept         int
	ImagesDiscarded    int

	Failures []Failure
}

func NewRunReport() *RunReport {
	return &RunReport{StartTime: time.Now()}
}

func (r *RunReport) Finish() {
	r.EndTime = time.Now()
}

func (r *RunReport) RecordDocumentFailure(err error) {
	r.DocumentsSkipped++
	r.Failures = append(r.Failures, toFailure(err))
}

func (r *RunReport) RecordPageFailure(err error) {
	r.PagesSkipped++
	r.Failures = append(r.Failures, toFailure(err))
}

func toFailure(err error) Failure {
	var pe *models.PipelineError
	if errors.As(err, &pe) {
		return Failure{Document: pe.Document, Page: pe.Page, Kind: pe.Kind, Err: err}
	}
	return Failure{Err: err}
}

func (r *RunReport) Print(log *logger.Logger) {
	log.Info("Processing complete in %v:", r.EndTime.Sub(r.StartTime).Round(time.Second))
	log.Info("- Documents processed: %d", r.DocumentsProcessed)
	log.Info("- Documents skipped:   %d", r.DocumentsSkipped)
	log.Info("- Pages processed:     %d", r.PagesProcessed)
	log.Info("- Pages skipped:       %d", r.PagesSkipped)
	log.Info("- Images kept:         %d", r.ImagesKept)
	log.Info("- Images discarded:    %d", r.ImagesDiscarded)

	if len(r.Failures) == 0 {
		return
	}

	log.Info("Items to re-run manually:")
	for _, f := range r.Failures {
		if f.Page > 0 {
			log.Info("- %s page %d (%s): %v", f.Document, f.Page, f.Kind, f.Err)
		} else {
			log.Info("- %s (%s): %v", f.Document, f.Kind, f.Err)
		}
	}
}
