package marketplace

import (
	"context"

	"github.com/google/uuid"
)

// ChangeSet bundles every record one operation writes. A Store commits a
// ChangeSet atomically: after Apply returns nil all of it is visible, after
// an error none of it is.
type ChangeSet struct {
	Config     *MarketplaceConfig
	Aggregates *GlobalAggregates
	Projects   []*Project
	Accounts   []*Account
	Audit      []*AuditEntry
}

// AuditFilter narrows an audit trail read. Zero values mean "no filter".
type AuditFilter struct {
	Kind    AuditKind // match Kind exactly
	Account string    // match Actor or Recipient
	Limit   int       // cap the result, newest first when set
}

// Store is the persistence boundary for marketplace state.
//
// Reads on missing records return ErrNotFound, except Aggregates which
// reports zero counters until the first write. Projects are returned in id
// order, audit entries in Seq order. Apply upserts projects and accounts,
// appends audit entries, and sets the config/aggregates singletons when
// present, all in one atomic commit.
type Store interface {
	Config(ctx context.Context) (*MarketplaceConfig, error)
	Aggregates(ctx context.Context) (*GlobalAggregates, error)
	Project(ctx context.Context, id uint64) (*Project, error)
	Projects(ctx context.Context) ([]*Project, error)
	Account(ctx context.Context, address string) (*Account, error)
	Accounts(ctx context.Context) ([]*Account, error)
	AuditEntry(ctx context.Context, id uuid.UUID) (*AuditEntry, error)
	LastAuditEntry(ctx context.Context) (*AuditEntry, error)
	AuditEntries(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)

	Apply(ctx context.Context, changes *ChangeSet) error
}
