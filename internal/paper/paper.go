package paper

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// groupSize is the number of characters per block when printing a value.
const groupSize = 16

// Sheet describes a single secret printed for offline escrow.
type Sheet struct {
	// Title heads the page, e.g. "Cluster secret".
	Title string
	// Label names the artifact, usually its file path.
	Label string
	// Value is printed in full, grouped for transcription.
	Value       string
	Fingerprint string
	Created     time.Time
}

// WriteBackupSheet renders the sheet as a one-page A4 PDF.
func WriteBackupSheet(w io.Writer, sheet Sheet) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(sheet.Title, false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, cleanText(sheet.Title), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, "Artifact: "+cleanText(sheet.Label), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Created: "+sheet.Created.UTC().Format(time.RFC3339), "", 1, "L", false, 0, "")
	if sheet.Fingerprint != "" {
		pdf.CellFormat(0, 6, "Fingerprint: "+sheet.Fingerprint, "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Courier", "B", 13)
	for i, group := range groupValue(sheet.Value) {
		pdf.CellFormat(0, 8, fmt.Sprintf("%02d  %s", i+1, group), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(8)

	pdf.SetFont("Arial", "I", 9)
	pdf.MultiCell(0, 5, "Store this sheet offline. Anyone holding this value has access to the private network.", "", "L", false)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render backup sheet: %w", err)
	}
	return nil
}

func groupValue(value string) []string {
	var groups []string
	for len(value) > groupSize {
		groups = append(groups, value[:groupSize])
		value = value[groupSize:]
	}
	if value != "" {
		groups = append(groups, value)
	}
	return groups
}

// cleanText replaces characters the core PDF fonts cannot render.
func cleanText(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0xff {
			return '?'
		}
		return r
	}, s)
}
