package models

// PDFFile is a single PDF discovered in the input directory.
type PDFFile struct {
	AbsolutePath string
	RelativePath string
}

// Document is one source PDF being converted.
type Document struct {
	Path      string
	Name      string
	PageCount int
}

// SubImage is an image embedded inside a PDF page, distinct from the
// rasterized page scan. Data holds the encoded bytes in Format
// ("png", "jpg", ...). Indices are page-local and zero based, in the
// order the PDF structure lists them.
type SubImage struct {
	Index  int
	Data   []byte
	Format string
	Width  int
	Height int
}

// PageRequest carries everything the content analyzer needs for one page.
// PageImage is the cleaned page scan, PNG encoded.
type PageRequest struct {
	DocumentName string
	PageNumber   int
	PageImage    []byte
	SubImages    []SubImage
}

type ImageVerdict struct {
	Index       int    `json:"index"`
	Important   bool   `json:"important"`
	Description string `json:"description"`
}

// AnalysisResult is the structured response for one page.
type AnalysisResult struct {
	UnitName     string         `json:"unit_name"`
	LessonNumber string         `json:"lesson_number"`
	LessonTitle  string         `json:"lesson_title"`
	Markdown     string         `json:"markdown_text"`
	Images       []ImageVerdict `json:"images"`
}

// Verdict returns the verdict for a sub-image index, or nil if the
// analyzer did not mention it.
func (r *AnalysisResult) Verdict(index int) *ImageVerdict {
	for i := range r.Images {
		if r.Images[i].Index == index {
			return &r.Images[i]
		}
	}
	return nil
}
