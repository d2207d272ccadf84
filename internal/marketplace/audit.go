package marketplace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// GenesisHash is the PrevHash of the first audit entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// hashPreimage is the canonical layout an entry is hashed over. Hash itself
// is excluded; the timestamp is pinned to Unix nanoseconds so the digest does
// not depend on time zone or formatting.
type hashPreimage struct {
	ID          uuid.UUID `json:"id"`
	Seq         uint64    `json:"seq"`
	Kind        AuditKind `json:"kind"`
	Actor       string    `json:"actor"`
	Recipient   string    `json:"recipient"`
	ProjectID   *uint64   `json:"project_id"`
	Quantity    uint64    `json:"quantity"`
	AmountPaid  uint64    `json:"amount_paid"`
	Reason      string    `json:"reason"`
	Beneficiary string    `json:"beneficiary"`
	Timestamp   int64     `json:"timestamp"`
	PrevHash    string    `json:"prev_hash"`
}

// ComputeHash returns the SHA-256 digest of the entry's canonical form.
func (e *AuditEntry) ComputeHash() string {
	raw, _ := json.Marshal(hashPreimage{
		ID:          e.ID,
		Seq:         e.Seq,
		Kind:        e.Kind,
		Actor:       e.Actor,
		Recipient:   e.Recipient,
		ProjectID:   e.ProjectID,
		Quantity:    e.Quantity,
		AmountPaid:  e.AmountPaid,
		Reason:      e.Reason,
		Beneficiary: e.Beneficiary,
		Timestamp:   e.Timestamp.UnixNano(),
		PrevHash:    e.PrevHash,
	})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// VerifyChain checks a full audit trail in Seq order: sequence numbers must
// be contiguous from 1, every entry must commit to its predecessor's hash,
// and every stored hash must match the recomputed digest. Returns nil for an
// empty trail.
func VerifyChain(entries []*AuditEntry) error {
	prev := GenesisHash
	for i, entry := range entries {
		if want := uint64(i) + 1; entry.Seq != want {
			return fmt.Errorf("audit chain broken: entry %s has seq %d, expected %d", entry.ID, entry.Seq, want)
		}
		if entry.PrevHash != prev {
			return fmt.Errorf("audit chain broken at seq %d: predecessor hash mismatch", entry.Seq)
		}
		if entry.ComputeHash() != entry.Hash {
			return fmt.Errorf("audit chain broken at seq %d: entry hash mismatch", entry.Seq)
		}
		prev = entry.Hash
	}
	return nil
}
