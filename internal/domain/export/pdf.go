package export

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// RenderPDF produces the compliance-report rendition of an export payload
// for admins who need a printable artifact.
func RenderPDF(userID string, payload map[string]any) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Zona Fiscal - Relatório LGPD")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Usuário: %s", userID))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Gerado em: %s", time.Now().Format("02/01/2006 15:04")))
	pdf.Ln(10)

	if user, ok := payload["user"].(map[string]any); ok {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, "Dados cadastrais")
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 10)
		writeKeyValues(pdf, user)
		pdf.Ln(4)
	}

	sections := []struct {
		key   string
		title string
	}{
		{"consents", "Consentimentos"},
		{"auditRecords", "Trilha de auditoria"},
		{"reactivationRequests", "Solicitações de reativação"},
	}
	for _, section := range sections {
		rows, ok := payload[section.key].([]map[string]any)
		if !ok {
			continue
		}
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, fmt.Sprintf("%s (%d)", section.title, len(rows)))
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 10)
		for _, row := range rows {
			writeKeyValues(pdf, row)
			pdf.Ln(2)
		}
		pdf.Ln(4)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeKeyValues(pdf *gofpdf.Fpdf, row map[string]any) {
	keys := make([]string, 0, len(row))
	for key := range row {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := row[key]
		if value == nil {
			continue
		}
		pdf.Cell(0, 6, fmt.Sprintf("%s: %v", key, value))
		pdf.Ln(5)
	}
}
