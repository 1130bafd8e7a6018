package analyzer

import (
	"fmt"
	"strings"

	"github.com/ocrai/ocrai/pkg/models"
)

// buildPrompt renders the instruction text sent alongside the page
// image and its sub-images.
func buildPrompt(req models.PageRequest) string {
	var b strings.Builder

	b.WriteString("You are an expert AI assistant for converting scanned Arabic educational materials into structured Arabic Markdown. ")
	b.WriteString("You will receive a cleaned scan of one textbook page, followed by the smaller images embedded in that page, in order.\n\n")

	fmt.Fprintf(&b, "The page is page %d of the document %q.\n\n", req.PageNumber, req.DocumentName)

	b.WriteString("Respond with a single JSON object with exactly these keys: " +
		"'unit_name', 'lesson_number', 'lesson_title', 'markdown_text', 'images'.\n\n")

	b.WriteString("Follow these instructions precisely:\n")
	b.WriteString("1. **Transcribe Text**: Transcribe all text on the page into 'markdown_text' as right-to-left Arabic Markdown, preserving headings, lists and tables.\n")
	b.WriteString("2. **Handle Blanks**: Replace dotted lines (`...........`) and other fill-in-the-blank areas with `...`.\n")
	b.WriteString("3. **MOST IMPORTANT - Evaluate Image Importance**: Classify every embedded image:\n")
	b.WriteString("    a. **Top Priority (important)**: annotated diagrams and infographics.\n")
	b.WriteString("    b. **Useful Content (important)**: photos carrying significant visual information relevant to the lesson.\n")
	b.WriteString("    c. **Decorative (not important)**: purely decorative elements, icons, borders, logos.\n")
	b.WriteString("4. **Describe and Integrate Images**: For every important image write a clear Arabic description. " +
		"Insert a reference at the matching position in 'markdown_text' using the exact path listed below, " +
		"in the form `![الوصف العربي](path)`. Never reference an image you marked as not important.\n")
	b.WriteString("5. **Extract Metadata**: Fill 'unit_name', 'lesson_number' and 'lesson_title' from the page. Use an empty string \"\" when a value is not present on the page.\n")
	b.WriteString("6. **Report Verdicts**: 'images' must be an array with one entry per embedded image: " +
		"{\"index\": <number below>, \"important\": true|false, \"description\": \"Arabic description, or empty when not important\"}.\n\n")

	if len(req.SubImages) == 0 {
		b.WriteString("No embedded images were extracted from this page; 'images' must be an empty array.\n")
	} else {
		b.WriteString("Embedded images on this page:\n")
		for _, sub := range req.SubImages {
			fmt.Fprintf(&b, "- index %d, path: illustrative_images/page_%d/img_%d.png\n",
				sub.Index, req.PageNumber, sub.Index)
		}
	}

	return b.String()
}
