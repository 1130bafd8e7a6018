// Package markdown owns the per-document output subtree: the single
// aggregated Markdown file, the retained illustrative images and the
// optional processed-scan dumps.
package markdown

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ocrai/ocrai/pkg/logger"
	"github.com/ocrai/ocrai/pkg/models"
	"github.com/ocrai/ocrai/pkg/utils"
)

const (
	markdownDirName = "markdown_content"
	imagesDirName   = "illustrative_images"
	scansDirName    = "processed_page_scans"
)

var imageRefPattern = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)

// DocumentWriter writes one document's output. It is the sole owner of
// the document's subtree for the document's lifetime; pages must be
// written in page order.
type DocumentWriter struct {
	root         string
	docName      string
	logger       *logger.Logger
	mdPath       string
	pagesWritten int
}

func NewDocumentWriter(outputRoot, docName string, log *logger.Logger) *DocumentWriter {
	return &DocumentWriter{
		root:    filepath.Join(outputRoot, docName),
		docName: docName,
		logger:  log,
	}
}

// MarkdownPath returns the path of the document's Markdown file, or ""
// if no page has been written yet.
func (w *DocumentWriter) MarkdownPath() string {
	return w.mdPath
}

// WritePage persists one analyzed page: retained sub-images as PNG
// under illustrative_images/page_<N>/, then the page's Markdown
// appended to the document file. Sub-images the analyzer marked
// unimportant are discarded and any reference to them is dropped from
// the text. All failures are persistence failures that abort the
// document.
func (w *DocumentWriter) WritePage(pageNum int, result *models.AnalysisResult, subs []models.SubImage) error {
	fail := func(err error) error {
		return models.NewPageError(models.ErrPersistenceFailed, w.docName, pageNum, err)
	}

	retained := make(map[string]string) // canonical ref path -> description
	for _, sub := range subs {
		verdict := result.Verdict(sub.Index)
		if verdict == nil || !verdict.Important {
			w.logger.Debug("Discarding sub-image %d on page %d of %s", sub.Index, pageNum, w.docName)
			continue
		}

		relPath := fmt.Sprintf("../%s/page_%d/img_%d.png", imagesDirName, pageNum, sub.Index)
		absPath := filepath.Join(w.root, imagesDirName, fmt.Sprintf("page_%d", pageNum), fmt.Sprintf("img_%d.png", sub.Index))

		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return fail(fmt.Errorf("failed to create image directory: %w", err))
		}
		if err := writePNG(absPath, sub); err != nil {
			return fail(err)
		}

		retained[relPath] = verdict.Description
	}

	text := w.integrateImageRefs(result.Markdown, pageNum, retained)

	if w.mdPath == "" {
		if err := os.MkdirAll(filepath.Join(w.root, markdownDirName), 0755); err != nil {
			return fail(fmt.Errorf("failed to create markdown directory: %w", err))
		}
		w.mdPath = filepath.Join(w.root, markdownDirName, w.markdownFilename(result))
	}

	f, err := os.OpenFile(w.mdPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fail(fmt.Errorf("failed to open markdown file: %w", err))
	}
	defer f.Close()

	if w.pagesWritten > 0 {
		if _, err := f.WriteString("\n\n"); err != nil {
			return fail(fmt.Errorf("failed to write markdown: %w", err))
		}
	}
	if _, err := f.WriteString(strings.TrimRight(text, "\n") + "\n"); err != nil {
		return fail(fmt.Errorf("failed to write markdown: %w", err))
	}

	w.pagesWritten++
	return nil
}

// integrateImageRefs normalizes the analyzer's image references to the
// ../illustrative_images/ form, drops references to images that were
// not retained, and appends references for retained images the model
// forgot to place inline.
func (w *DocumentWriter) integrateImageRefs(text string, pageNum int, retained map[string]string) string {
	referenced := make(map[string]bool)

	text = imageRefPattern.ReplaceAllStringFunc(text, func(ref string) string {
		m := imageRefPattern.FindStringSubmatch(ref)
		alt, path := m[1], m[2]

		if !strings.Contains(path, imagesDirName+"/") {
			return ref // external or unrelated reference, leave alone
		}

		canonical := "../" + imagesDirName + "/" + strings.TrimPrefix(path[strings.Index(path, imagesDirName+"/")+len(imagesDirName)+1:], "/")
		if _, ok := retained[canonical]; !ok {
			w.logger.Trace("Dropping reference to discarded image %s on page %d", path, pageNum)
			return ""
		}

		referenced[canonical] = true
		return fmt.Sprintf("![%s](%s)", alt, canonical)
	})

	for _, sub := range sortedRefPaths(retained) {
		if !referenced[sub] {
			text = strings.TrimRight(text, "\n") + fmt.Sprintf("\n\n![%s](%s)\n", retained[sub], sub)
		}
	}

	return text
}

// markdownFilename derives the document's Markdown filename from the
// first written page's lesson metadata, falling back to the document
// name when the page carries none.
func (w *DocumentWriter) markdownFilename(result *models.AnalysisResult) string {
	unit := strings.TrimSpace(result.UnitName)
	num := strings.TrimSpace(result.LessonNumber)
	title := strings.TrimSpace(result.LessonTitle)

	if unit == "" && num == "" && title == "" {
		return utils.SanitizeFilename(w.docName) + ".md"
	}

	if unit == "" {
		unit = "UnknownUnit"
	}
	if num == "" {
		num = "Unknown"
	}
	if title == "" {
		title = "Untitled"
	}

	return fmt.Sprintf("Unit_%s_Lesson_%s_%s.md",
		utils.SanitizeFilename(unit),
		utils.SanitizeFilename(num),
		utils.SanitizeFilename(title))
}

// SaveProcessedScan persists the cleaned page scan for manual review.
func (w *DocumentWriter) SaveProcessedScan(pageNum int, img image.Image) error {
	dir := filepath.Join(w.root, scansDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return models.NewPageError(models.ErrPersistenceFailed, w.docName, pageNum,
			fmt.Errorf("failed to create scans directory: %w", err))
	}

	path := filepath.Join(dir, fmt.Sprintf("scan_page_%d.png", pageNum))
	if err := savePNG(img, path); err != nil {
		return models.NewPageError(models.ErrPersistenceFailed, w.docName, pageNum, err)
	}
	return nil
}

func writePNG(path string, sub models.SubImage) error {
	if sub.Format == "png" {
		if err := os.WriteFile(path, sub.Data, 0644); err != nil {
			return fmt.Errorf("failed to write image: %w", err)
		}
		return nil
	}

	img, _, err := image.Decode(bytes.NewReader(sub.Data))
	if err != nil {
		return fmt.Errorf("failed to decode %s sub-image: %w", sub.Format, err)
	}
	return savePNG(img, path)
}

func savePNG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}

func sortedRefPaths(retained map[string]string) []string {
	paths := make([]string, 0, len(retained))
	for p := range retained {
		paths = append(paths, p)
	}
	// img_<index> ordering; lexicographic is enough for single-digit
	// indices and stable beyond that.
	for i := 1; i < len(paths); i++ {
		for j := i; j > 0 && paths[j-1] > paths[j]; j-- {
			paths[j-1], paths[j] = paths[j], paths[j-1]
		}
	}
	return paths
}
