// Package report renders the downloadable diagnosis report and optionally
// archives it in object storage.
//
// Only three scalars reach the report: the label, the confidence and the time
// of the analysis. Image bytes never do.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	Title         = "AI Medical Diagnosis Report"
	TimestampForm = "2006-01-02 15:04:05"

	disclaimer = "This automated diagnosis is a decision-support tool only. " +
		"It does not replace the opinion of a qualified healthcare professional. " +
		"Always consult a physician for a definitive diagnosis."
)

var technology = []string{
	"Artificial intelligence based on a convolutional neural network",
	"Model trained on cervical cytology images",
	"Automated analysis of cellular characteristics",
}

// Input is everything the report is allowed to know.
type Input struct {
	Label      string
	Confidence float64
	Timestamp  time.Time
}

// Recommendations returns the follow-up advice printed for label.
func Recommendations(label string) []string {
	switch {
	case strings.Contains(label, "Normal"):
		return []string{
			"Continue regular screening examinations",
			"Maintain a healthy lifestyle",
		}
	case strings.Contains(label, "Precancerous"):
		return []string{
			"See a gynaecologist as soon as possible",
			"Carry out complementary examinations",
			"Reinforced medical follow-up",
		}
	default:
		return []string{
			"URGENT medical consultation required",
			"In-depth examinations needed",
			"Specialist care recommended",
		}
	}
}

type options struct {
	compress bool
}

type Option func(*options)

// WithCompression toggles stream compression. It is on by default.
func WithCompression(on bool) Option {
	return func(o *options) { o.compress = on }
}

// Generate renders in as a single-page PDF.
func Generate(in Input, opts ...Option) ([]byte, error) {
	o := options{compress: true}
	for _, opt := range opts {
		opt(&o)
	}

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetCompression(o.compress)
	pdf.SetTitle(Title, false)
	pdf.SetCreator("cytoguard", false)
	pdf.SetCreationDate(in.Timestamp)
	pdf.SetModificationDate(in.Timestamp)
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 22)
	pdf.SetTextColor(0x4F, 0x46, 0xE5)
	pdf.CellFormat(0, 12, Title, "", 1, "L", false, 0, "")
	pdf.Ln(8)

	pdf.SetTextColor(0, 0, 0)
	field(pdf, "Date and time:", in.Timestamp.Format(TimestampForm))
	field(pdf, "Result:", in.Label)
	field(pdf, "Confidence level:", fmt.Sprintf("%.1f%%", in.Confidence))
	pdf.Ln(8)

	pdf.SetDrawColor(0xDC, 0x26, 0x26)
	pdf.SetTextColor(0xDC, 0x26, 0x26)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "MEDICAL DISCLAIMER:", "LTR", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, disclaimer, "LBR", "L", false)
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(8)

	section(pdf, "Technology used:", technology)
	pdf.Ln(4)
	section(pdf, "Recommendations:", Recommendations(in.Label))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}
	return buf.Bytes(), nil
}

func field(pdf *fpdf.Fpdf, name, value string) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(40, 7, name, "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, value, "", 1, "L", false, 0, "")
}

func section(pdf *fpdf.Fpdf, heading string, items []string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 9, heading, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	for _, it := range items {
		pdf.CellFormat(0, 6, "- "+it, "", 1, "L", false, 0, "")
	}
}
