package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure by the granularity at which it
// is contained: page-level kinds skip the page, document-level kinds skip
// the rest of the document.
type ErrorKind string

const (
	ErrDocumentUnreadable  ErrorKind = "document_unreadable"
	ErrPreprocessingFailed ErrorKind = "preprocessing_failed"
	ErrAnalysisFailed      ErrorKind = "analysis_failed"
	ErrPersistenceFailed   ErrorKind = "persistence_failed"
)

// PipelineError is a classified failure with enough context (document
// name, page number) to re-run just the failed item by hand.
type PipelineError struct {
	Kind     ErrorKind
	Document string
	Page     int
	Err      error
}

func (e *PipelineError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("[%s] %s page %d: %v", e.Kind, e.Document, e.Page, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Document, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func NewDocumentError(kind ErrorKind, document string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Document: document, Err: err}
}

func NewPageError(kind ErrorKind, document string, page int, err error) *PipelineError {
	return &PipelineError{Kind: kind, Document: document, Page: page, Err: err}
}

// KindOf extracts the ErrorKind from err, or "" if err is not a
// PipelineError.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
