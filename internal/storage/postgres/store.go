// Package postgres persists marketplace state in PostgreSQL through gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"carbon-scribe/marketplace/marketplace-backend/internal/marketplace"
)

// singletonID keys the config and aggregates rows.
const singletonID uint32 = 1

// Store implements marketplace.Store on a PostgreSQL database. Apply runs in
// one database transaction, which carries the all-or-nothing contract.
type Store struct {
	db *gorm.DB
}

// Open connects to the database and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an existing gorm connection, migrating the schema.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&marketplace.MarketplaceConfig{},
		&marketplace.GlobalAggregates{},
		&marketplace.Project{},
		&marketplace.Account{},
		&marketplace.AuditEntry{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying connection for reconciliation tooling.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Config returns the singleton configuration.
func (s *Store) Config(ctx context.Context) (*marketplace.MarketplaceConfig, error) {
	var config marketplace.MarketplaceConfig
	err := s.db.WithContext(ctx).First(&config, "id = ?", singletonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, marketplace.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query config: %w", err)
	}
	return &config, nil
}

// Aggregates returns the global counters, zeroed until the first write.
func (s *Store) Aggregates(ctx context.Context) (*marketplace.GlobalAggregates, error) {
	var aggregates marketplace.GlobalAggregates
	err := s.db.WithContext(ctx).First(&aggregates, "id = ?", singletonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &marketplace.GlobalAggregates{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}
	return &aggregates, nil
}

// Project returns one project by id.
func (s *Store) Project(ctx context.Context, id uint64) (*marketplace.Project, error) {
	var project marketplace.Project
	err := s.db.WithContext(ctx).First(&project, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, marketplace.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query project: %w", err)
	}
	return &project, nil
}

// Projects returns all projects in id order.
func (s *Store) Projects(ctx context.Context) ([]*marketplace.Project, error) {
	var projects []*marketplace.Project
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	return projects, nil
}

// Account returns one account by address.
func (s *Store) Account(ctx context.Context, address string) (*marketplace.Account, error) {
	var account marketplace.Account
	err := s.db.WithContext(ctx).First(&account, "address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, marketplace.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return &account, nil
}

// Accounts returns all accounts in address order.
func (s *Store) Accounts(ctx context.Context) ([]*marketplace.Account, error) {
	var accounts []*marketplace.Account
	if err := s.db.WithContext(ctx).Order("address ASC").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	return accounts, nil
}

// AuditEntry returns one audit entry by id.
func (s *Store) AuditEntry(ctx context.Context, id uuid.UUID) (*marketplace.AuditEntry, error) {
	var entry marketplace.AuditEntry
	err := s.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, marketplace.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entry: %w", err)
	}
	return &entry, nil
}

// LastAuditEntry returns the newest audit entry.
func (s *Store) LastAuditEntry(ctx context.Context) (*marketplace.AuditEntry, error) {
	var entry marketplace.AuditEntry
	err := s.db.WithContext(ctx).Order("seq DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, marketplace.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query audit head: %w", err)
	}
	return &entry, nil
}

// AuditEntries returns entries matching the filter in Seq order. When Limit
// is set only the newest entries are kept.
func (s *Store) AuditEntries(ctx context.Context, filter marketplace.AuditFilter) ([]*marketplace.AuditEntry, error) {
	query := s.db.WithContext(ctx).Model(&marketplace.AuditEntry{})
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.Account != "" {
		query = query.Where("actor = ? OR recipient = ?", filter.Account, filter.Account)
	}

	var entries []*marketplace.AuditEntry
	if filter.Limit > 0 {
		// fetch the newest rows, then restore ascending order
		if err := query.Order("seq DESC").Limit(filter.Limit).Find(&entries).Error; err != nil {
			return nil, fmt.Errorf("failed to query audit entries: %w", err)
		}
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
		return entries, nil
	}

	if err := query.Order("seq ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	return entries, nil
}

// Apply commits the change set in one transaction.
func (s *Store) Apply(ctx context.Context, changes *marketplace.ChangeSet) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if changes.Config != nil {
			config := *changes.Config
			config.ID = singletonID
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&config).Error; err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
		}
		if changes.Aggregates != nil {
			aggregates := *changes.Aggregates
			aggregates.ID = singletonID
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&aggregates).Error; err != nil {
				return fmt.Errorf("failed to write aggregates: %w", err)
			}
		}
		for _, project := range changes.Projects {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(project).Error; err != nil {
				return fmt.Errorf("failed to write project %d: %w", project.ID, err)
			}
		}
		for _, account := range changes.Accounts {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(account).Error; err != nil {
				return fmt.Errorf("failed to write account %s: %w", account.Address, err)
			}
		}
		for _, entry := range changes.Audit {
			if err := tx.Create(entry).Error; err != nil {
				return fmt.Errorf("failed to append audit entry %d: %w", entry.Seq, err)
			}
		}
		return nil
	})
}
