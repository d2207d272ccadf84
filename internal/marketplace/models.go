package marketplace

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MarketplaceConfig is the singleton configuration record. It is written
// exactly once, by Initialize, and is immutable afterwards. Its presence is
// what moves the marketplace from Uninitialized to Active.
type MarketplaceConfig struct {
	ID             uint32    `gorm:"primaryKey" json:"-"`
	FeeBasisPoints uint64    `gorm:"not null" json:"fee_basis_points"`
	Admin          string    `gorm:"not null" json:"admin"`
	InitializedAt  time.Time `gorm:"not null" json:"initialized_at"`
}

// Project is a registered carbon project. All fields except CreditsSold are
// immutable once registered. Ids are assigned sequentially from 0.
type Project struct {
	ID                   uint64         `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name                 string         `gorm:"not null" json:"name"`
	ProjectType          uint64         `json:"project_type"`
	VerificationStandard uint64         `json:"verification_standard"`
	TotalCredits         uint64         `json:"total_credits"`
	PricePerUnit         uint64         `json:"price_per_unit"` // minor currency units
	VintageYear          uint64         `json:"vintage_year"`
	CreditsSold          uint64         `json:"credits_sold"`
	Metadata             datatypes.JSON `json:"metadata,omitempty"` // registry detail: country, methodology, registry URL
	RegisteredAt         time.Time      `gorm:"not null" json:"registered_at"`
}

// Remaining returns the credits still available for purchase.
func (p *Project) Remaining() uint64 {
	return p.TotalCredits - p.CreditsSold
}

// Account holds the credit balances for one identity. Accounts are created
// lazily on first interaction and never deleted.
type Account struct {
	Address        string    `gorm:"primaryKey;size:128" json:"address"`
	CreditsOwned   uint64    `json:"credits_owned"`
	CreditsRetired uint64    `json:"credits_retired"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GlobalAggregates is the singleton of derived marketplace counters.
//
// Invariants after every operation:
//
//	TotalProjects       == number of registered projects
//	TotalCreditsIssued  == sum of TotalCredits over all projects
//	TotalCreditsRetired == sum of CreditsRetired over all accounts
type GlobalAggregates struct {
	ID                  uint32 `gorm:"primaryKey" json:"-"`
	TotalProjects       uint64 `json:"total_projects"`
	TotalCreditsIssued  uint64 `json:"total_credits_issued"`
	TotalCreditsRetired uint64 `json:"total_credits_retired"`
}

// AuditKind discriminates audit entries.
type AuditKind string

const (
	AuditPurchase   AuditKind = "purchase"
	AuditRetirement AuditKind = "retirement"
	AuditTransfer   AuditKind = "transfer"
)

// AuditEntry is one append-only audit record. Actor is the buyer for
// purchases, the owner for retirements and the sender for transfers;
// Recipient is set on transfers only. Entries are hash-chained in Seq order:
// each entry commits to its predecessor through PrevHash.
type AuditEntry struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Seq         uint64    `gorm:"uniqueIndex;not null" json:"seq"`
	Kind        AuditKind `gorm:"not null;index" json:"kind"`
	Actor       string    `gorm:"not null;index" json:"actor"`
	Recipient   string    `gorm:"index" json:"recipient,omitempty"`
	ProjectID   *uint64   `json:"project_id,omitempty"`
	Quantity    uint64    `json:"quantity"`
	AmountPaid  uint64    `json:"amount_paid,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Beneficiary string    `json:"beneficiary,omitempty"`
	Timestamp   time.Time `gorm:"not null" json:"timestamp"`
	PrevHash    string    `gorm:"not null" json:"prev_hash"`
	Hash        string    `gorm:"not null" json:"hash"`
}

// =====================================================
// Request / Response types
// =====================================================

// InitializeRequest is the body for POST /api/v1/marketplace/initialize
type InitializeRequest struct {
	FeeBasisPoints uint64 `json:"fee_basis_points"`
	Admin          string `json:"admin" binding:"required"`
}

// RegisterProjectRequest is the body for POST /api/v1/projects
type RegisterProjectRequest struct {
	Name                 string         `json:"name" binding:"required"`
	ProjectType          uint64         `json:"project_type"`
	VerificationStandard uint64         `json:"verification_standard"`
	TotalCredits         uint64         `json:"total_credits"`
	PricePerUnit         uint64         `json:"price_per_unit"`
	VintageYear          uint64         `json:"vintage_year"`
	Metadata             datatypes.JSON `json:"metadata,omitempty"`
}

// Payment carries the externally verified payment leg of a purchase.
type Payment struct {
	Amount   uint64 `json:"amount"`
	Receiver string `json:"receiver" binding:"required"`
}

// PurchaseRequest is the body for POST /api/v1/credits/purchase
type PurchaseRequest struct {
	ProjectID uint64  `json:"project_id"`
	Quantity  uint64  `json:"quantity"`
	Payment   Payment `json:"payment" binding:"required"`
}

// RetireRequest is the body for POST /api/v1/credits/retire
type RetireRequest struct {
	Quantity    uint64 `json:"quantity"`
	Reason      string `json:"reason"`
	Beneficiary string `json:"beneficiary"`
}

// TransferRequest is the body for POST /api/v1/credits/transfer
type TransferRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Quantity  uint64 `json:"quantity"`
}
