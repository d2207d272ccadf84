package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"carbon-scribe/marketplace/marketplace-backend/internal/marketplace"
)

var auditCSVColumns = []string{
	"seq", "id", "kind", "actor", "recipient", "project_id",
	"quantity", "amount_paid", "reason", "beneficiary",
	"timestamp", "prev_hash", "hash",
}

// WriteAuditCSV streams the audit trail matching the filter as CSV and
// returns the number of rows written.
func (e *Exporter) WriteAuditCSV(ctx context.Context, w io.Writer, filter marketplace.AuditFilter) (int, error) {
	entries, err := e.engine.AuditTrail(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to load audit trail: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(auditCSVColumns); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	for _, entry := range entries {
		projectID := ""
		if entry.ProjectID != nil {
			projectID = strconv.FormatUint(*entry.ProjectID, 10)
		}
		record := []string{
			strconv.FormatUint(entry.Seq, 10),
			entry.ID.String(),
			string(entry.Kind),
			entry.Actor,
			entry.Recipient,
			projectID,
			strconv.FormatUint(entry.Quantity, 10),
			strconv.FormatUint(entry.AmountPaid, 10),
			entry.Reason,
			entry.Beneficiary,
			entry.Timestamp.UTC().Format(time.RFC3339Nano),
			entry.PrevHash,
			entry.Hash,
		}
		if err := writer.Write(record); err != nil {
			return 0, fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, err
	}
	return len(entries), nil
}
