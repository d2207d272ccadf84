// Package reconcile cross-checks the persisted ledger against its own
// invariants: stored aggregates must equal recomputed sums, project ids must
// be contiguous, no project may be oversold, and the audit hash chain must
// verify end to end.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/marketplace"
)

// Drift is one invariant violation found during a run.
type Drift struct {
	Check  string `json:"check"`
	Detail string `json:"detail"`
}

// Reconciler runs the invariant checks against PostgreSQL.
type Reconciler struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *sqlx.DB, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		db:     db,
		logger: logger,
	}
}

// Run executes every check once. The returned drifts are invariant
// violations; the error is reserved for infrastructure failures.
func (r *Reconciler) Run(ctx context.Context) ([]Drift, error) {
	started := time.Now()
	var drifts []Drift

	aggregateDrifts, err := r.checkAggregates(ctx)
	if err != nil {
		return nil, err
	}
	drifts = append(drifts, aggregateDrifts...)

	contiguityDrifts, err := r.checkProjectContiguity(ctx)
	if err != nil {
		return nil, err
	}
	drifts = append(drifts, contiguityDrifts...)

	oversellDrifts, err := r.checkOversell(ctx)
	if err != nil {
		return nil, err
	}
	drifts = append(drifts, oversellDrifts...)

	balanceDrifts, err := r.checkBalances(ctx)
	if err != nil {
		return nil, err
	}
	drifts = append(drifts, balanceDrifts...)

	chainDrifts, err := r.checkAuditChain(ctx)
	if err != nil {
		return nil, err
	}
	drifts = append(drifts, chainDrifts...)

	r.logger.Info("Reconciliation run finished",
		zap.Int("drifts", len(drifts)),
		zap.Duration("duration", time.Since(started)))
	return drifts, nil
}

// checkAggregates recomputes the three global counters and compares them
// with the stored singleton.
func (r *Reconciler) checkAggregates(ctx context.Context) ([]Drift, error) {
	var stored struct {
		TotalProjects       uint64
		TotalCreditsIssued  uint64
		TotalCreditsRetired uint64
	}
	err := r.db.QueryRowContext(ctx, `
		SELECT total_projects, total_credits_issued, total_credits_retired
		FROM global_aggregates
		WHERE id = 1
	`).Scan(&stored.TotalProjects, &stored.TotalCreditsIssued, &stored.TotalCreditsRetired)

	uninitialized := errors.Is(err, sql.ErrNoRows)
	if err != nil && !uninitialized {
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}

	var projectCount, issued uint64
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_credits), 0)
		FROM projects
	`).Scan(&projectCount, &issued); err != nil {
		return nil, fmt.Errorf("failed to sum projects: %w", err)
	}

	var retired uint64
	if err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(credits_retired), 0)
		FROM accounts
	`).Scan(&retired); err != nil {
		return nil, fmt.Errorf("failed to sum retired credits: %w", err)
	}

	if uninitialized {
		// nothing may exist before initialization
		if projectCount != 0 || issued != 0 || retired != 0 {
			return []Drift{{
				Check:  "aggregates",
				Detail: fmt.Sprintf("no aggregates row but found %d projects, %d issued, %d retired", projectCount, issued, retired),
			}}, nil
		}
		return nil, nil
	}

	var drifts []Drift
	if stored.TotalProjects != projectCount {
		drifts = append(drifts, Drift{
			Check:  "total_projects",
			Detail: fmt.Sprintf("stored %d, recomputed %d", stored.TotalProjects, projectCount),
		})
	}
	if stored.TotalCreditsIssued != issued {
		drifts = append(drifts, Drift{
			Check:  "total_credits_issued",
			Detail: fmt.Sprintf("stored %d, recomputed %d", stored.TotalCreditsIssued, issued),
		})
	}
	if stored.TotalCreditsRetired != retired {
		drifts = append(drifts, Drift{
			Check:  "total_credits_retired",
			Detail: fmt.Sprintf("stored %d, recomputed %d", stored.TotalCreditsRetired, retired),
		})
	}
	return drifts, nil
}

// checkProjectContiguity verifies ids form the range [0, count).
func (r *Reconciler) checkProjectContiguity(ctx context.Context) ([]Drift, error) {
	var count, maxID uint64
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MAX(id), 0)
		FROM projects
	`).Scan(&count, &maxID); err != nil {
		return nil, fmt.Errorf("failed to query project ids: %w", err)
	}

	if count > 0 && maxID != count-1 {
		return []Drift{{
			Check:  "project_id_contiguity",
			Detail: fmt.Sprintf("%d projects but max id is %d", count, maxID),
		}}, nil
	}
	return nil, nil
}

// checkOversell verifies no project sold more than it issued.
func (r *Reconciler) checkOversell(ctx context.Context) ([]Drift, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, credits_sold, total_credits
		FROM projects
		WHERE credits_sold > total_credits
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query oversold projects: %w", err)
	}
	defer rows.Close()

	var drifts []Drift
	for rows.Next() {
		var id, sold, total uint64
		if err := rows.Scan(&id, &sold, &total); err != nil {
			return nil, fmt.Errorf("failed to scan oversold project: %w", err)
		}
		drifts = append(drifts, Drift{
			Check:  "oversell",
			Detail: fmt.Sprintf("project %d sold %d of %d credits", id, sold, total),
		})
	}
	return drifts, rows.Err()
}

// checkBalances verifies no account row went negative at the database level.
func (r *Reconciler) checkBalances(ctx context.Context) ([]Drift, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT address, credits_owned, credits_retired
		FROM accounts
		WHERE credits_owned < 0 OR credits_retired < 0
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query account balances: %w", err)
	}
	defer rows.Close()

	var drifts []Drift
	for rows.Next() {
		var address string
		var owned, retired int64
		if err := rows.Scan(&address, &owned, &retired); err != nil {
			return nil, fmt.Errorf("failed to scan account balance: %w", err)
		}
		drifts = append(drifts, Drift{
			Check:  "negative_balance",
			Detail: fmt.Sprintf("account %s has owned=%d retired=%d", address, owned, retired),
		})
	}
	return drifts, rows.Err()
}

// checkAuditChain reloads the full trail and re-verifies the hash chain.
func (r *Reconciler) checkAuditChain(ctx context.Context) ([]Drift, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, seq, kind, actor, recipient, project_id, quantity, amount_paid,
		       reason, beneficiary, "timestamp", prev_hash, hash
		FROM audit_entries
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*marketplace.AuditEntry
	for rows.Next() {
		var entry marketplace.AuditEntry
		var id string
		var projectID sql.NullInt64
		if err := rows.Scan(
			&id,
			&entry.Seq,
			&entry.Kind,
			&entry.Actor,
			&entry.Recipient,
			&projectID,
			&entry.Quantity,
			&entry.AmountPaid,
			&entry.Reason,
			&entry.Beneficiary,
			&entry.Timestamp,
			&entry.PrevHash,
			&entry.Hash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audit entry id %q: %w", id, err)
		}
		entry.ID = parsed
		if projectID.Valid {
			pid := uint64(projectID.Int64)
			entry.ProjectID = &pid
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit entries: %w", err)
	}

	if err := marketplace.VerifyChain(entries); err != nil {
		return []Drift{{
			Check:  "audit_chain",
			Detail: err.Error(),
		}}, nil
	}
	return nil, nil
}
