// Package pdfreport renders an analysis result as a printable fact sheet.
// The sheet repeats only what the result asserts: display values come from
// the derived header views and the field states, so an overridden field
// prints its user-provided value and nothing echoes a stale copy.
package pdfreport

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/nexodify/periscan/internal/evidence"
	"github.com/nexodify/periscan/internal/fieldstate"
	"github.com/nexodify/periscan/internal/normalize"
	"github.com/nexodify/periscan/internal/report"
)

const maxEvidenceLine = 180

// WriteFactSheet renders res to a PDF file at outPath.
func WriteFactSheet(res *report.Result, outPath string) error {
	return buildFactSheet(res).OutputFileAndClose(outPath)
}

// FactSheetBytes renders res to an in-memory PDF, for serving over HTTP.
func FactSheetBytes(res *report.Result) ([]byte, error) {
	var buf bytes.Buffer
	if err := buildFactSheet(res).Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildFactSheet(res *report.Result) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Helvetica", "", 10)
	pdf.AddPage()

	heading(pdf, tr, 14, "Scheda Perizia")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, tr(fmt.Sprintf("Generata il %s (run %s, rev. %d)",
		res.Run.GeneratedAtUTC.Format("02/01/2006 15:04 UTC"), res.Run.RunID, res.Run.Revision)),
		"", 1, "L", false, 0, "")
	pdf.Ln(3)

	writeHeader(pdf, tr, res)
	writeFieldStates(pdf, tr, res)
	writeMoneyBox(pdf, tr, res)
	writeLegalKillers(pdf, tr, res)
	writeImages(pdf, tr, res)
	writeQA(pdf, tr, res)

	return pdf
}

func heading(pdf *gofpdf.Fpdf, tr func(string) string, size float64, text string) {
	pdf.SetFont("Helvetica", "B", size)
	pdf.CellFormat(0, 8, tr(text), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
}

func labelValue(pdf *gofpdf.Fpdf, tr func(string) string, label, value string) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(55, 6, tr(label), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 6, tr(value), "", "L", false)
}

func writeHeader(pdf *gofpdf.Fpdf, tr func(string) string, res *report.Result) {
	heading(pdf, tr, 12, "Intestazione")
	hdr := res.CaseHeader()
	labelValue(pdf, tr, "Tribunale", hdr["tribunale"])
	labelValue(pdf, tr, "Procedura", hdr["procedure_id"])
	labelValue(pdf, tr, "Lotto", hdr["lotto"])
	labelValue(pdf, tr, "Indirizzo", hdr["address"])
	pdf.Ln(2)
}

func writeFieldStates(pdf *gofpdf.Fpdf, tr func(string) string, res *report.Result) {
	heading(pdf, tr, 12, "Campi decisionali")
	keys := make([]string, 0, len(res.FieldStates))
	for k := range res.FieldStates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fs := res.FieldStates[k]
		value := normalize.Collapse(fs.Value)
		if fs.Status == fieldstate.LowConfidence {
			value = normalize.NeedsVerification
		}
		labelValue(pdf, tr, k, fmt.Sprintf("%s  [%s]", value, fs.Status))
		writeEvidenceLines(pdf, tr, fs.Evidence)
	}
	pdf.Ln(2)
}

func writeMoneyBox(pdf *gofpdf.Fpdf, tr func(string) string, res *report.Result) {
	if len(res.MoneyBox.Items) == 0 {
		return
	}
	heading(pdf, tr, 12, "Quadro economico")
	for _, item := range res.MoneyBox.Items {
		est := normalize.Unspecified
		if v, ok := normalize.ParseMoney(item.Estimate); ok {
			est = normalize.FormatEuro(v)
		} else if item.Estimate != nil {
			est = "TBD"
		}
		line := fmt.Sprintf("%s: %s", item.Label, est)
		if strings.TrimSpace(item.Note) != "" {
			line += " (" + item.Note + ")"
		}
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 6, tr("Totale stimato: "+res.MoneyBox.Total()), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.Ln(2)
}

func writeLegalKillers(pdf *gofpdf.Fpdf, tr func(string) string, res *report.Result) {
	if len(res.LegalKillers) == 0 {
		return
	}
	heading(pdf, tr, 12, "Criticità legali")
	for _, item := range res.LegalKillers {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, tr(fmt.Sprintf("%s: %s", item.Key, report.KillerStatusIT(item.Status))),
			"", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		if strings.TrimSpace(item.Reason) != "" {
			pdf.MultiCell(0, 5, tr(item.Reason), "", "L", false)
		}
		writeEvidenceLines(pdf, tr, item.Evidence)
	}
	pdf.Ln(2)
}

func writeImages(pdf *gofpdf.Fpdf, tr func(string) string, res *report.Result) {
	if res.Images == nil {
		return
	}
	heading(pdf, tr, 12, "Analisi immagini")
	pdf.CellFormat(0, 5, tr(fmt.Sprintf("Immagini esaminate: %d", res.Images.ImageCount)),
		"", 1, "L", false, 0, "")
	for _, f := range res.Images.Findings {
		line := fmt.Sprintf("%s [%s]: %s", f.TitleIT, normalize.RiskLabelIT(f.Severity), f.Detail)
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}
	pdf.Ln(2)
}

func writeQA(pdf *gofpdf.Fpdf, tr func(string) string, res *report.Result) {
	heading(pdf, tr, 12, "Esito controlli")
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 6, tr("Stato complessivo: "+string(res.QA.Status)), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	for _, c := range res.QA.Checks {
		pdf.MultiCell(0, 4.5, tr(fmt.Sprintf("%s  %s  %s", c.Result, c.Code, c.Detail)), "", "L", false)
	}
}

// writeEvidenceLines prints citations as "p.N: quote", truncated so a single
// runaway quote cannot dominate the sheet.
func writeEvidenceLines(pdf *gofpdf.Fpdf, tr func(string) string, evs []evidence.Evidence) {
	pdf.SetFont("Helvetica", "I", 8)
	for _, ev := range evs {
		line := fmt.Sprintf("p.%d: %s", ev.Page, ev.Quote)
		if r := []rune(line); len(r) > maxEvidenceLine {
			line = string(r[:maxEvidenceLine-3]) + "..."
		}
		pdf.MultiCell(0, 4, tr(line), "", "L", false)
	}
	pdf.SetFont("Helvetica", "", 10)
}
