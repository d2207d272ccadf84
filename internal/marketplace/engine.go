package marketplace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditPublisher receives audit entries after they commit. Implementations
// must not block; delivery is best effort.
type AuditPublisher interface {
	PublishAuditEntry(entry *AuditEntry)
}

// Engine orchestrates the marketplace operations over a Store. Mutating
// operations run one at a time under the engine lock and commit all their
// writes through a single ChangeSet, so a failed operation leaves no trace.
type Engine struct {
	mu        sync.RWMutex
	store     Store
	guard     *Guard
	publisher AuditPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine creates a marketplace engine. publisher may be nil.
func NewEngine(store Store, guard *Guard, publisher AuditPublisher, logger *zap.Logger) *Engine {
	return &Engine{
		store:     store,
		guard:     guard,
		publisher: publisher,
		logger:    logger,
		// timestamps feed the audit hash preimage and postgres stores
		// microseconds, so anything finer would not survive a reload
		now: func() time.Time { return time.Now().Truncate(time.Microsecond) },
	}
}

// =====================================================
// Mutating operations
// =====================================================

// Initialize sets the marketplace configuration and zeroes the aggregates.
// Only the deployer may call it, and only once.
func (e *Engine) Initialize(ctx context.Context, caller string, feeBasisPoints uint64, admin string) (*MarketplaceConfig, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guard.RequireDeployer(caller); err != nil {
		return nil, err
	}

	_, err := e.store.Config(ctx)
	if err == nil {
		return nil, ErrAlreadyInitialized
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	config := &MarketplaceConfig{
		FeeBasisPoints: feeBasisPoints,
		Admin:          admin,
		InitializedAt:  e.now(),
	}
	changes := &ChangeSet{
		Config:     config,
		Aggregates: &GlobalAggregates{},
	}
	if err := e.store.Apply(ctx, changes); err != nil {
		return nil, fmt.Errorf("failed to commit initialization: %w", err)
	}

	e.logger.Info("Marketplace initialized",
		zap.Uint64("fee_basis_points", feeBasisPoints),
		zap.String("admin", admin))
	return config, nil
}

// RegisterProject issues a new project under the next sequential id and adds
// its credits to the issued total. Admin only.
func (e *Engine) RegisterProject(ctx context.Context, caller string, req *RegisterProjectRequest) (*Project, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	config, err := e.activeConfig(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.guard.RequireAdmin(caller, config); err != nil {
		return nil, err
	}

	aggregates, err := e.store.Aggregates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aggregates: %w", err)
	}

	project := &Project{
		ID:                   aggregates.TotalProjects,
		Name:                 req.Name,
		ProjectType:          req.ProjectType,
		VerificationStandard: req.VerificationStandard,
		TotalCredits:         req.TotalCredits,
		PricePerUnit:         req.PricePerUnit,
		VintageYear:          req.VintageYear,
		Metadata:             req.Metadata,
		RegisteredAt:         e.now(),
	}

	totalProjects, err := addUint64(aggregates.TotalProjects, 1)
	if err != nil {
		return nil, err
	}
	issued, err := addUint64(aggregates.TotalCreditsIssued, req.TotalCredits)
	if err != nil {
		return nil, err
	}
	aggregates.TotalProjects = totalProjects
	aggregates.TotalCreditsIssued = issued

	changes := &ChangeSet{
		Aggregates: aggregates,
		Projects:   []*Project{project},
	}
	if err := e.store.Apply(ctx, changes); err != nil {
		return nil, fmt.Errorf("failed to commit project registration: %w", err)
	}

	e.logger.Info("Project registered",
		zap.Uint64("project_id", project.ID),
		zap.String("name", project.Name),
		zap.Uint64("total_credits", project.TotalCredits),
		zap.Uint64("price_per_unit", project.PricePerUnit))
	return project, nil
}

// PurchaseCredits credits the buyer with quantity units of the project after
// checking the payment covers quantity times the unit price. Overpayment is
// accepted and recorded as paid. Purchases beyond the project's remaining
// supply fail with ErrExhausted.
func (e *Engine) PurchaseCredits(ctx context.Context, buyer string, projectID, quantity, payment uint64) (*AuditEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.activeConfig(ctx); err != nil {
		return nil, err
	}

	project, err := e.store.Project(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project %d: %w", projectID, err)
	}

	required, err := mulUint64(quantity, project.PricePerUnit)
	if err != nil {
		// quantity*price exceeds uint64: no payment can cover it
		return nil, ErrInsufficientPayment
	}
	if payment < required {
		return nil, ErrInsufficientPayment
	}
	if quantity > project.Remaining() {
		return nil, ErrExhausted
	}

	account, err := e.loadAccount(ctx, buyer)
	if err != nil {
		return nil, err
	}
	if err := account.Credit(quantity); err != nil {
		return nil, err
	}
	account.UpdatedAt = e.now()
	project.CreditsSold += quantity

	entry := &AuditEntry{
		ID:         uuid.New(),
		Kind:       AuditPurchase,
		Actor:      buyer,
		ProjectID:  &project.ID,
		Quantity:   quantity,
		AmountPaid: payment,
		Timestamp:  e.now(),
	}
	if err := e.chain(ctx, entry); err != nil {
		return nil, err
	}

	changes := &ChangeSet{
		Projects: []*Project{project},
		Accounts: []*Account{account},
		Audit:    []*AuditEntry{entry},
	}
	if err := e.store.Apply(ctx, changes); err != nil {
		return nil, fmt.Errorf("failed to commit purchase: %w", err)
	}
	e.publish(entry)

	e.logger.Info("Credits purchased",
		zap.String("buyer", buyer),
		zap.Uint64("project_id", projectID),
		zap.Uint64("quantity", quantity),
		zap.Uint64("amount_paid", payment))
	return entry, nil
}

// RetireCredits permanently removes quantity units from the owner's balance,
// recording the reason and beneficiary.
func (e *Engine) RetireCredits(ctx context.Context, owner string, quantity uint64, reason, beneficiary string) (*AuditEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.activeConfig(ctx); err != nil {
		return nil, err
	}

	account, err := e.loadAccount(ctx, owner)
	if err != nil {
		return nil, err
	}
	if err := account.Retire(quantity); err != nil {
		return nil, err
	}
	account.UpdatedAt = e.now()

	aggregates, err := e.store.Aggregates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aggregates: %w", err)
	}
	retired, err := addUint64(aggregates.TotalCreditsRetired, quantity)
	if err != nil {
		return nil, err
	}
	aggregates.TotalCreditsRetired = retired

	entry := &AuditEntry{
		ID:          uuid.New(),
		Kind:        AuditRetirement,
		Actor:       owner,
		Quantity:    quantity,
		Reason:      reason,
		Beneficiary: beneficiary,
		Timestamp:   e.now(),
	}
	if err := e.chain(ctx, entry); err != nil {
		return nil, err
	}

	changes := &ChangeSet{
		Aggregates: aggregates,
		Accounts:   []*Account{account},
		Audit:      []*AuditEntry{entry},
	}
	if err := e.store.Apply(ctx, changes); err != nil {
		return nil, fmt.Errorf("failed to commit retirement: %w", err)
	}
	e.publish(entry)

	e.logger.Info("Credits retired",
		zap.String("owner", owner),
		zap.Uint64("quantity", quantity),
		zap.String("beneficiary", beneficiary))
	return entry, nil
}

// TransferCredits moves quantity units from one account to another. The
// debit and credit commit together or not at all.
func (e *Engine) TransferCredits(ctx context.Context, from, to string, quantity uint64) (*AuditEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.activeConfig(ctx); err != nil {
		return nil, err
	}

	sender, err := e.loadAccount(ctx, from)
	if err != nil {
		return nil, err
	}
	if err := sender.Debit(quantity); err != nil {
		return nil, err
	}

	// a self transfer credits the same record, leaving the balance unchanged
	recipient := sender
	if to != from {
		recipient, err = e.loadAccount(ctx, to)
		if err != nil {
			return nil, err
		}
	}
	if err := recipient.Credit(quantity); err != nil {
		return nil, err
	}
	sender.UpdatedAt = e.now()
	recipient.UpdatedAt = sender.UpdatedAt

	entry := &AuditEntry{
		ID:        uuid.New(),
		Kind:      AuditTransfer,
		Actor:     from,
		Recipient: to,
		Quantity:  quantity,
		Timestamp: e.now(),
	}
	if err := e.chain(ctx, entry); err != nil {
		return nil, err
	}

	accounts := []*Account{sender}
	if recipient != sender {
		accounts = append(accounts, recipient)
	}
	changes := &ChangeSet{
		Accounts: accounts,
		Audit:    []*AuditEntry{entry},
	}
	if err := e.store.Apply(ctx, changes); err != nil {
		return nil, fmt.Errorf("failed to commit transfer: %w", err)
	}
	e.publish(entry)

	e.logger.Info("Credits transferred",
		zap.String("from", from),
		zap.String("to", to),
		zap.Uint64("quantity", quantity))
	return entry, nil
}

// =====================================================
// Read operations
// =====================================================

// GetUserCredits returns the owned balance for an address. Unknown addresses
// report zero. Available before initialization.
func (e *Engine) GetUserCredits(ctx context.Context, address string) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	account, err := e.store.Account(ctx, address)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load account: %w", err)
	}
	return account.CreditsOwned, nil
}

// GetMarketplaceStats returns the global counters. Available before
// initialization, reporting zeroes.
func (e *Engine) GetMarketplaceStats(ctx context.Context) (*GlobalAggregates, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	aggregates, err := e.store.Aggregates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aggregates: %w", err)
	}
	return aggregates, nil
}

// GetConfig returns the marketplace configuration.
func (e *Engine) GetConfig(ctx context.Context) (*MarketplaceConfig, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.activeConfig(ctx)
}

// GetProject returns one project by id.
func (e *Engine) GetProject(ctx context.Context, id uint64) (*Project, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	project, err := e.store.Project(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load project %d: %w", id, err)
	}
	return project, nil
}

// ListProjects returns all projects in id order.
func (e *Engine) ListProjects(ctx context.Context) ([]*Project, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	projects, err := e.store.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// GetAccount returns the full balance record for an address. Unknown
// addresses report a zeroed account, not an error.
func (e *Engine) GetAccount(ctx context.Context, address string) (*Account, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	account, err := e.store.Account(ctx, address)
	if errors.Is(err, ErrNotFound) {
		return &Account{Address: address}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return account, nil
}

// AuditTrail returns audit entries matching the filter, in Seq order.
func (e *Engine) AuditTrail(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entries, err := e.store.AuditEntries(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit trail: %w", err)
	}
	return entries, nil
}

// GetAuditEntry returns one audit entry by id.
func (e *Engine) GetAuditEntry(ctx context.Context, id uuid.UUID) (*AuditEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, err := e.store.AuditEntry(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit entry %s: %w", id, err)
	}
	return entry, nil
}

// Snapshot is a consistent view of the whole ledger, taken under one read
// lock. Config is nil while the marketplace is uninitialized.
type Snapshot struct {
	Config     *MarketplaceConfig
	Aggregates *GlobalAggregates
	Projects   []*Project
	Accounts   []*Account
	Audit      []*AuditEntry
}

// GetSnapshot reads the full ledger state in one atomic step.
func (e *Engine) GetSnapshot(ctx context.Context) (*Snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	config, err := e.store.Config(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	aggregates, err := e.store.Aggregates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aggregates: %w", err)
	}
	projects, err := e.store.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	accounts, err := e.store.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	audit, err := e.store.AuditEntries(ctx, AuditFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load audit trail: %w", err)
	}

	return &Snapshot{
		Config:     config,
		Aggregates: aggregates,
		Projects:   projects,
		Accounts:   accounts,
		Audit:      audit,
	}, nil
}

// VerifyAuditChain re-verifies the whole audit hash chain.
func (e *Engine) VerifyAuditChain(ctx context.Context) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entries, err := e.store.AuditEntries(ctx, AuditFilter{})
	if err != nil {
		return 0, fmt.Errorf("failed to load audit trail: %w", err)
	}
	if err := VerifyChain(entries); err != nil {
		return len(entries), err
	}
	return len(entries), nil
}

// =====================================================
// Helpers
// =====================================================

// activeConfig loads the configuration, mapping its absence to
// ErrNotInitialized. Callers must hold the engine lock.
func (e *Engine) activeConfig(ctx context.Context) (*MarketplaceConfig, error) {
	config, err := e.store.Config(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return config, nil
}

// loadAccount fetches an account, lazily creating a zeroed record for
// unknown addresses.
func (e *Engine) loadAccount(ctx context.Context, address string) (*Account, error) {
	account, err := e.store.Account(ctx, address)
	if errors.Is(err, ErrNotFound) {
		now := e.now()
		return &Account{Address: address, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return account, nil
}

// chain assigns the entry's position in the audit chain and seals its hash.
func (e *Engine) chain(ctx context.Context, entry *AuditEntry) error {
	last, err := e.store.LastAuditEntry(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		entry.Seq = 1
		entry.PrevHash = GenesisHash
	case err != nil:
		return fmt.Errorf("failed to load audit head: %w", err)
	default:
		entry.Seq = last.Seq + 1
		entry.PrevHash = last.Hash
	}
	entry.Hash = entry.ComputeHash()
	return nil
}

func (e *Engine) publish(entry *AuditEntry) {
	if e.publisher != nil {
		e.publisher.PublishAuditEntry(entry)
	}
}
