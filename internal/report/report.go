// Package report renders aggregated feedback as a paginated PDF.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/pavelanni/ielts/internal/model"
)

// DefaultPath is the file the test-mode report is written to.
const DefaultPath = "IELTS_Feedback_Report.pdf"

// Heading is printed at the top of every page.
const Heading = "IELTS Speaking Test Feedback"

const (
	fontFamily = "Arial"
	fontSize   = 12
	lineHeight = 10
	margin     = 10
)

// Section is one titled page of the report.
type Section struct {
	Title string
	Body  string
}

// Sections maps part feedback to report sections using the fixed part titles.
func Sections(parts []model.PartFeedback) []Section {
	out := make([]Section, 0, len(parts))
	for _, p := range parts {
		out = append(out, Section{Title: p.Part.ReportTitle(), Body: p.Text})
	}
	return out
}

// Renderer writes feedback reports. CreatedAt, when set, is stamped into the
// document metadata so repeated renders of one attempt are identical.
type Renderer struct {
	CreatedAt time.Time
}

// Render writes the PDF for sections to w.
func (r Renderer) Render(w io.Writer, sections []Section) error {
	pdf := r.build(sections)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// RenderFile writes the PDF for sections to path.
func (r Renderer) RenderFile(path string, sections []Section) error {
	pdf := r.build(sections)
	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write pdf %s: %w", path, err)
	}
	return nil
}

func (r Renderer) build(sections []Section) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetLeftMargin(margin)
	pdf.SetRightMargin(margin)
	pdf.SetCatalogSort(true)
	if !r.CreatedAt.IsZero() {
		pdf.SetCreationDate(r.CreatedAt)
		pdf.SetModificationDate(r.CreatedAt)
	}
	pdf.SetTitle(Heading, true)

	// Core fonts are cp1252; transcripts and examiner text are UTF-8.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetHeaderFunc(func() {
		pdf.SetFont(fontFamily, "B", fontSize)
		pdf.CellFormat(0, lineHeight, Heading, "0", 1, "C", false, 0, "")
	})

	for _, s := range sections {
		pdf.AddPage()

		pdf.SetFont(fontFamily, "B", fontSize)
		pdf.CellFormat(0, lineHeight, tr(s.Title), "0", 1, "L", false, 0, "")
		pdf.Ln(lineHeight)

		pdf.SetFont(fontFamily, "", fontSize)
		pdf.MultiCell(0, lineHeight, tr(s.Body), "", "", false)
		pdf.Ln(-1)
	}
	return pdf
}
