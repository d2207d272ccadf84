// Package memory provides an in-memory marketplace store for tests and
// single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"carbon-scribe/marketplace/marketplace-backend/internal/marketplace"
)

// Store keeps all marketplace state in process memory behind one mutex.
// Reads hand out copies, so callers can mutate results freely before
// committing them back through Apply.
type Store struct {
	mu         sync.RWMutex
	config     *marketplace.MarketplaceConfig
	aggregates marketplace.GlobalAggregates
	projects   map[uint64]*marketplace.Project
	accounts   map[string]*marketplace.Account
	audit      []*marketplace.AuditEntry
	auditByID  map[uuid.UUID]*marketplace.AuditEntry
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		projects:  make(map[uint64]*marketplace.Project),
		accounts:  make(map[string]*marketplace.Account),
		auditByID: make(map[uuid.UUID]*marketplace.AuditEntry),
	}
}

// Config returns the singleton configuration.
func (s *Store) Config(ctx context.Context) (*marketplace.MarketplaceConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.config == nil {
		return nil, marketplace.ErrNotFound
	}
	config := *s.config
	return &config, nil
}

// Aggregates returns the global counters, zeroed until the first write.
func (s *Store) Aggregates(ctx context.Context) (*marketplace.GlobalAggregates, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	aggregates := s.aggregates
	return &aggregates, nil
}

// Project returns one project by id.
func (s *Store) Project(ctx context.Context, id uint64) (*marketplace.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[id]
	if !ok {
		return nil, marketplace.ErrNotFound
	}
	return cloneProject(project), nil
}

// Projects returns all projects in id order.
func (s *Store) Projects(ctx context.Context) ([]*marketplace.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projects := make([]*marketplace.Project, 0, len(s.projects))
	for _, project := range s.projects {
		projects = append(projects, cloneProject(project))
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	return projects, nil
}

// Account returns one account by address.
func (s *Store) Account(ctx context.Context, address string) (*marketplace.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[address]
	if !ok {
		return nil, marketplace.ErrNotFound
	}
	clone := *account
	return &clone, nil
}

// Accounts returns all accounts in address order.
func (s *Store) Accounts(ctx context.Context) ([]*marketplace.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]*marketplace.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		clone := *account
		accounts = append(accounts, &clone)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Address < accounts[j].Address })
	return accounts, nil
}

// AuditEntry returns one audit entry by id.
func (s *Store) AuditEntry(ctx context.Context, id uuid.UUID) (*marketplace.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.auditByID[id]
	if !ok {
		return nil, marketplace.ErrNotFound
	}
	return cloneEntry(entry), nil
}

// LastAuditEntry returns the newest audit entry.
func (s *Store) LastAuditEntry(ctx context.Context) (*marketplace.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.audit) == 0 {
		return nil, marketplace.ErrNotFound
	}
	return cloneEntry(s.audit[len(s.audit)-1]), nil
}

// AuditEntries returns entries matching the filter in Seq order. When Limit
// is set only the newest entries are kept.
func (s *Store) AuditEntries(ctx context.Context, filter marketplace.AuditFilter) ([]*marketplace.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*marketplace.AuditEntry, 0, len(s.audit))
	for _, entry := range s.audit {
		if filter.Kind != "" && entry.Kind != filter.Kind {
			continue
		}
		if filter.Account != "" && entry.Actor != filter.Account && entry.Recipient != filter.Account {
			continue
		}
		matched = append(matched, cloneEntry(entry))
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[len(matched)-filter.Limit:]
	}
	return matched, nil
}

// Apply commits the change set. In-memory writes cannot fail halfway, so the
// whole set becomes visible at once under the write lock.
func (s *Store) Apply(ctx context.Context, changes *marketplace.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if changes.Config != nil {
		config := *changes.Config
		s.config = &config
	}
	if changes.Aggregates != nil {
		s.aggregates = *changes.Aggregates
	}
	for _, project := range changes.Projects {
		s.projects[project.ID] = cloneProject(project)
	}
	for _, account := range changes.Accounts {
		clone := *account
		s.accounts[account.Address] = &clone
	}
	for _, entry := range changes.Audit {
		clone := cloneEntry(entry)
		s.audit = append(s.audit, clone)
		s.auditByID[clone.ID] = clone
	}
	return nil
}

func cloneProject(project *marketplace.Project) *marketplace.Project {
	clone := *project
	if project.Metadata != nil {
		clone.Metadata = append([]byte(nil), project.Metadata...)
	}
	return &clone
}

func cloneEntry(entry *marketplace.AuditEntry) *marketplace.AuditEntry {
	clone := *entry
	if entry.ProjectID != nil {
		id := *entry.ProjectID
		clone.ProjectID = &id
	}
	return &clone
}
