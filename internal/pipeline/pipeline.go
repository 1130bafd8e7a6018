// Package pipeline wires the per-page conversion sequence together:
// rasterize, preprocess, extract sub-images, analyze, write output.
// Failures are contained at page granularity where possible and at
// document granularity otherwise; a single run never aborts because one
// item failed.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/ocrai/ocrai/internal/analyzer"
	"github.com/ocrai/ocrai/internal/config"
	"github.com/ocrai/ocrai/internal/markdown"
	"github.com/ocrai/ocrai/internal/pdf"
	"github.com/ocrai/ocrai/internal/preprocess"
	"github.com/ocrai/ocrai/internal/scanner"
	"github.com/ocrai/ocrai/pkg/logger"
	"github.com/ocrai/ocrai/pkg/models"
)

// RendererFactory opens a page renderer for one document. Tests swap
// this out to avoid needing real PDFs.
type RendererFactory func(pdfPath string, dpi float64) (pdf.PageRenderer, error)

type Pipeline struct {
	cfg          *config.Config
	analyzer     analyzer.Analyzer
	logger       *logger.Logger
	scanner      *scanner.DirectoryScanner
	preprocessor *preprocess.Preprocessor
	extractor    pdf.ImageExtractor
	openRenderer RendererFactory
}

type Option func(*Pipeline)

func WithRendererFactory(f RendererFactory) Option {
	return func(p *Pipeline) {
		p.openRenderer = f
	}
}

func WithImageExtractor(e pdf.ImageExtractor) Option {
	return func(p *Pipeline) {
		p.extractor = e
	}
}

func New(cfg *config.Config, a analyzer.Analyzer, log *logger.Logger, options ...Option) *Pipeline {
	p := &Pipeline{
		cfg:          cfg,
		analyzer:     a,
		logger:       log,
		scanner:      scanner.New(log),
		preprocessor: preprocess.New(log),
		extractor:    pdf.NewSubImageExtractor(log),
		openRenderer: func(pdfPath string, dpi float64) (pdf.PageRenderer, error) {
			return pdf.OpenRasterizer(pdfPath, dpi)
		},
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Run converts every PDF under the configured input directory. The
// returned report is valid even when err is non-nil.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	report := NewRunReport()
	defer report.Finish()

	if p.cfg.ClearOutput {
		p.logger.Info("Clearing previous output directory: %s", p.cfg.OutputDir)
		if err := os.RemoveAll(p.cfg.OutputDir); err != nil {
			return report, fmt.Errorf("failed to clear output directory: %w", err)
		}
	}

	if err := os.MkdirAll(p.cfg.OutputDir, 0755); err != nil {
		return report, fmt.Errorf("failed to create output directory: %w", err)
	}

	pdfs, err := p.scanner.FindPDFs(ctx, p.cfg.PDFSourceDir)
	if err != nil {
		return report, err
	}

	p.logger.Info("Found %d PDF file(s). Starting conversion...", len(pdfs))

	for _, file := range pdfs {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		if err := p.processDocument(ctx, file, report); err != nil {
			if err == context.Canceled || ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.RecordDocumentFailure(err)
			p.logger.Warn("Skipping document %s: %v", file.RelativePath, err)
			continue
		}
		report.DocumentsProcessed++
	}

	return report, nil
}

func (p *Pipeline) processDocument(ctx context.Context, file models.PDFFile, report *RunReport) error {
	docName := strings.TrimSuffix(filepath.Base(file.AbsolutePath), filepath.Ext(file.AbsolutePath))
	p.logger.Info("--- Processing document: %s ---", docName)

	renderer, err := p.openRenderer(file.AbsolutePath, float64(p.cfg.DPI))
	if err != nil {
		return models.NewDocumentError(models.ErrDocumentUnreadable, docName, err)
	}
	defer renderer.Close()

	subsByPage, err := p.extractor.Extract(ctx, file.AbsolutePath)
	if err != nil {
		// Pages can still be transcribed without their embedded
		// images; downgrade to a warning.
		p.logger.Warn("Could not extract embedded images from %s: %v", docName, err)
		subsByPage = nil
	}

	writer := markdown.NewDocumentWriter(p.cfg.OutputDir, docName, p.logger)
	pageCount := renderer.PageCount()

	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p.logger.Info("  - Processing page %d/%d...", pageNum, pageCount)

		err := p.processPage(ctx, renderer, writer, docName, pageNum, subsByPage[pageNum], report)
		if err == nil {
			report.PagesProcessed++
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch models.KindOf(err) {
		case models.ErrDocumentUnreadable, models.ErrPersistenceFailed:
			// Document-level failures; remaining pages are lost too,
			// and Run records the document as skipped.
			return err
		default:
			report.RecordPageFailure(err)
			p.logger.Warn("Skipping page %d of %s: %v", pageNum, docName, err)
		}
	}

	if writer.MarkdownPath() != "" {
		p.logger.Info("Saved markdown for %s to %s", docName, writer.MarkdownPath())
	}

	return nil
}

func (p *Pipeline) processPage(ctx context.Context, renderer pdf.PageRenderer, writer *markdown.DocumentWriter, docName string, pageNum int, subs []models.SubImage, report *RunReport) error {
	pageImage, err := renderer.RenderPage(ctx, pageNum)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return models.NewDocumentError(models.ErrDocumentUnreadable, docName, err)
	}

	cleaned := p.preprocessor.Process(pageImage)

	if p.cfg.SaveProcessedScans {
		if err := writer.SaveProcessedScan(pageNum, cleaned); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, cleaned); err != nil {
		return models.NewPageError(models.ErrPreprocessingFailed, docName, pageNum,
			fmt.Errorf("failed to encode cleaned page: %w", err))
	}

	if len(subs) > 0 {
		p.logger.Debug("Page %d has %d embedded image(s)", pageNum, len(subs))
	}

	result, err := p.analyzer.Analyze(ctx, models.PageRequest{
		DocumentName: docName,
		PageNumber:   pageNum,
		PageImage:    buf.Bytes(),
		SubImages:    subs,
	})
	if err != nil {
		return err
	}

	if err := writer.WritePage(pageNum, result, subs); err != nil {
		return err
	}

	for _, sub := range subs {
		if v := result.Verdict(sub.Index); v != nil && v.Important {
			report.ImagesKept++
		} else {
			report.ImagesDiscarded++
		}
	}

	return nil
}
