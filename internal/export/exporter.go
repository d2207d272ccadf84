// Package export renders the ledger as an Excel workbook.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/marketplace"
)

// Exporter builds ledger workbooks from marketplace state.
type Exporter struct {
	engine *marketplace.Engine
	logger *zap.Logger
}

// NewExporter creates a new ledger exporter.
func NewExporter(engine *marketplace.Engine, logger *zap.Logger) *Exporter {
	return &Exporter{
		engine: engine,
		logger: logger,
	}
}

// sheet is one tab of the ledger workbook.
type sheet struct {
	name    string
	columns []string
	rows    [][]interface{}
}

// BuildWorkbook assembles the full ledger workbook: a summary tab plus one
// tab each for projects, accounts, purchases, retirements and transfers. The
// underlying state is read as one snapshot, so all tabs agree.
func (e *Exporter) BuildWorkbook(ctx context.Context) (*excelize.File, error) {
	snapshot, err := e.engine.GetSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot ledger: %w", err)
	}

	chainErr := marketplace.VerifyChain(snapshot.Audit)

	file := excelize.NewFile()
	sheets := []sheet{
		summarySheet(snapshot, chainErr),
		projectsSheet(snapshot.Projects),
		accountsSheet(snapshot.Accounts),
		purchasesSheet(snapshot.Audit),
		retirementsSheet(snapshot.Audit),
		transfersSheet(snapshot.Audit),
	}

	// reuse the default sheet for the first tab
	file.SetSheetName("Sheet1", sheets[0].name)

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for _, s := range sheets {
		if err := e.writeSheet(file, s, headerStyle); err != nil {
			return nil, err
		}
	}

	e.logger.Info("Ledger workbook built",
		zap.Int("projects", len(snapshot.Projects)),
		zap.Int("accounts", len(snapshot.Accounts)),
		zap.Int("audit_entries", len(snapshot.Audit)))
	return file, nil
}

// writeSheet writes one tab: styled header row, frozen pane, data rows and
// an auto filter.
func (e *Exporter) writeSheet(file *excelize.File, s sheet, headerStyle int) error {
	if idx, _ := file.GetSheetIndex(s.name); idx < 0 {
		if _, err := file.NewSheet(s.name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", s.name, err)
		}
	}

	widths := make([]float64, len(s.columns))
	for i, col := range s.columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		file.SetCellValue(s.name, cell, col)
		file.SetCellStyle(s.name, cell, cell, headerStyle)
		widths[i] = float64(len(col)) * 1.2
	}

	file.SetPanes(s.name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	for rowIdx, row := range s.rows {
		for colIdx, val := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := file.SetCellValue(s.name, cell, val); err != nil {
				return fmt.Errorf("failed to set cell %s!%s: %w", s.name, cell, err)
			}
			if w := float64(len(fmt.Sprintf("%v", val))) * 1.2; w > widths[colIdx] {
				widths[colIdx] = w
			}
		}
	}

	for i, width := range widths {
		if width < 10 {
			width = 10
		}
		if width > 50 {
			width = 50
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		file.SetColWidth(s.name, col, col, width)
	}

	if len(s.rows) > 0 {
		lastCell, _ := excelize.CoordinatesToCellName(len(s.columns), len(s.rows)+1)
		file.AutoFilter(s.name, "A1:"+lastCell, nil)
	}

	return nil
}

func summarySheet(snapshot *marketplace.Snapshot, chainErr error) sheet {
	chainStatus := "valid"
	if chainErr != nil {
		chainStatus = chainErr.Error()
	}
	initialized := "no"
	if snapshot.Config != nil {
		initialized = "yes"
	}

	return sheet{
		name:    "Summary",
		columns: []string{"Metric", "Value"},
		rows: [][]interface{}{
			{"Initialized", initialized},
			{"Total Projects", snapshot.Aggregates.TotalProjects},
			{"Total Credits Issued", snapshot.Aggregates.TotalCreditsIssued},
			{"Total Credits Retired", snapshot.Aggregates.TotalCreditsRetired},
			{"Accounts", len(snapshot.Accounts)},
			{"Audit Entries", len(snapshot.Audit)},
			{"Audit Chain", chainStatus},
			{"Generated At", time.Now().UTC().Format("2006-01-02 15:04:05 MST")},
		},
	}
}

func projectsSheet(projects []*marketplace.Project) sheet {
	rows := make([][]interface{}, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []interface{}{
			p.ID, p.Name, p.ProjectType, p.VerificationStandard, p.VintageYear,
			p.TotalCredits, p.CreditsSold, p.Remaining(), p.PricePerUnit,
			p.RegisteredAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	return sheet{
		name: "Projects",
		columns: []string{
			"ID", "Name", "Type", "Standard", "Vintage",
			"Total Credits", "Credits Sold", "Remaining", "Price Per Unit", "Registered At",
		},
		rows: rows,
	}
}

func accountsSheet(accounts []*marketplace.Account) sheet {
	rows := make([][]interface{}, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, []interface{}{
			a.Address, a.CreditsOwned, a.CreditsRetired,
			a.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	return sheet{
		name:    "Accounts",
		columns: []string{"Address", "Credits Owned", "Credits Retired", "Updated At"},
		rows:    rows,
	}
}

func purchasesSheet(entries []*marketplace.AuditEntry) sheet {
	rows := make([][]interface{}, 0)
	for _, entry := range entries {
		if entry.Kind != marketplace.AuditPurchase {
			continue
		}
		var projectID interface{}
		if entry.ProjectID != nil {
			projectID = *entry.ProjectID
		}
		rows = append(rows, []interface{}{
			entry.Seq, entry.Actor, projectID, entry.Quantity, entry.AmountPaid,
			entry.Timestamp.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	return sheet{
		name:    "Purchases",
		columns: []string{"Seq", "Buyer", "Project ID", "Quantity", "Amount Paid", "Timestamp"},
		rows:    rows,
	}
}

func retirementsSheet(entries []*marketplace.AuditEntry) sheet {
	rows := make([][]interface{}, 0)
	for _, entry := range entries {
		if entry.Kind != marketplace.AuditRetirement {
			continue
		}
		rows = append(rows, []interface{}{
			entry.Seq, entry.Actor, entry.Quantity, entry.Reason, entry.Beneficiary,
			entry.Timestamp.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	return sheet{
		name:    "Retirements",
		columns: []string{"Seq", "Owner", "Quantity", "Reason", "Beneficiary", "Timestamp"},
		rows:    rows,
	}
}

func transfersSheet(entries []*marketplace.AuditEntry) sheet {
	rows := make([][]interface{}, 0)
	for _, entry := range entries {
		if entry.Kind != marketplace.AuditTransfer {
			continue
		}
		rows = append(rows, []interface{}{
			entry.Seq, entry.Actor, entry.Recipient, entry.Quantity,
			entry.Timestamp.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	return sheet{
		name:    "Transfers",
		columns: []string{"Seq", "From", "To", "Quantity", "Timestamp"},
		rows:    rows,
	}
}
