// Package certificates renders retirement certificates as PDF documents.
package certificates

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/marketplace"
)

// Generator builds certificates from retirement audit entries.
type Generator struct {
	engine *marketplace.Engine
	logger *zap.Logger
}

// NewGenerator creates a new certificate generator.
func NewGenerator(engine *marketplace.Engine, logger *zap.Logger) *Generator {
	return &Generator{
		engine: engine,
		logger: logger,
	}
}

// Build renders the certificate for one retirement. The audit entry id is
// the certificate number; non-retirement entries report ErrNotFound.
func (g *Generator) Build(ctx context.Context, id uuid.UUID) ([]byte, error) {
	entry, err := g.engine.GetAuditEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Kind != marketplace.AuditRetirement {
		return nil, fmt.Errorf("audit entry %s is not a retirement: %w", id, marketplace.ErrNotFound)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.SetAutoPageBreak(true, 25)
	pdf.AddPage()

	pageWidth, _ := pdf.GetPageSize()

	// title block
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(23, 84, 45)
	pdf.CellFormat(0, 12, "Certificate of Carbon Credit Retirement", "", 1, "C", false, 0, "")

	pdf.SetDrawColor(23, 84, 45)
	pdf.SetLineWidth(0.8)
	pdf.Line(40, pdf.GetY()+2, pageWidth-40, pdf.GetY()+2)
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(110, 110, 110)
	pdf.CellFormat(0, 6, fmt.Sprintf("Certificate No. %s", entry.ID), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	// retired quantity, the centerpiece
	pdf.SetFont("Arial", "", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 7, "This certifies the permanent retirement of", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "B", 34)
	pdf.SetTextColor(23, 84, 45)
	pdf.CellFormat(0, 16, fmt.Sprintf("%d", entry.Quantity), "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 7, "verified carbon credit units", "", 1, "C", false, 0, "")
	pdf.Ln(12)

	// detail table
	g.addDetail(pdf, "Retired by", entry.Actor)
	if entry.Beneficiary != "" {
		g.addDetail(pdf, "On behalf of", entry.Beneficiary)
	}
	if entry.Reason != "" {
		g.addDetail(pdf, "Reason", entry.Reason)
	}
	g.addDetail(pdf, "Retirement date", entry.Timestamp.UTC().Format("2 January 2006 15:04 MST"))
	g.addDetail(pdf, "Ledger sequence", fmt.Sprintf("%d", entry.Seq))

	// verification footer
	pdf.SetY(-60)
	pdf.SetDrawColor(180, 180, 180)
	pdf.SetLineWidth(0.3)
	pdf.Line(20, pdf.GetY(), pageWidth-20, pdf.GetY())
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 8)
	pdf.SetTextColor(110, 110, 110)
	pdf.CellFormat(0, 5, "This retirement is recorded in the marketplace audit chain and is irreversible.", "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Entry hash: %s", entry.Hash), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated: %s", time.Now().UTC().Format("2006-01-02 15:04:05 MST")), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render certificate: %w", err)
	}

	g.logger.Info("Retirement certificate generated",
		zap.String("entry_id", entry.ID.String()),
		zap.String("owner", entry.Actor),
		zap.Uint64("quantity", entry.Quantity))
	return buf.Bytes(), nil
}

// addDetail writes one label/value line of the detail block.
func (g *Generator) addDetail(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 11)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(55, 8, label, "", 0, "L", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, value, "", 1, "L", false, 0, "")
}
