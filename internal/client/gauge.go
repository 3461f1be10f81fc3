package client

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/cytoguard/internal/inference"
	"golang.org/x/term"
)

const (
	defaultWidth = 80
	minBar       = 10
	maxBar       = 50
)

// terminalSize is a seam for term.GetSize.
var terminalSize = term.GetSize

// TerminalWidth reports the width of f when it is a terminal, or 80.
func TerminalWidth(f *os.File) int {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return defaultWidth
	}
	w, _, err := terminalSize(fd)
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// Severity maps a diagnosis label to the band shown next to the gauge.
func Severity(label string) string {
	switch label {
	case inference.LabelNormal:
		return "low"
	case inference.LabelPrecancerous:
		return "elevated"
	case inference.LabelCancerous:
		return "high"
	default:
		return "unknown"
	}
}

// RenderGauge draws the confidence bar for a diagnosis, fitted to width
// columns:
//
//	Precancerous [##########----------]  51.2%  (elevated)
func RenderGauge(w io.Writer, d *Diagnosis, width int) error {
	pct := d.Confidence
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	suffix := fmt.Sprintf(" %5.1f%%  (%s)", pct, Severity(d.Label))
	bar := width - len(d.Label) - len(suffix) - 3
	if bar > maxBar {
		bar = maxBar
	}
	if bar < minBar {
		bar = minBar
	}

	filled := int(pct/100*float64(bar) + 0.5)
	line := fmt.Sprintf("%s [%s%s]%s\n",
		d.Label,
		strings.Repeat("#", filled),
		strings.Repeat("-", bar-filled),
		suffix,
	)
	_, err := io.WriteString(w, line)
	return err
}
