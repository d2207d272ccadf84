package marketplace

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildChain links n purchase entries into a valid chain.
func buildChain(n int) []*AuditEntry {
	entries := make([]*AuditEntry, 0, n)
	prev := GenesisHash
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		projectID := uint64(0)
		entry := &AuditEntry{
			ID:         uuid.New(),
			Seq:        uint64(i) + 1,
			Kind:       AuditPurchase,
			Actor:      "buyer-1",
			ProjectID:  &projectID,
			Quantity:   uint64(i) + 1,
			AmountPaid: (uint64(i) + 1) * 50,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			PrevHash:   prev,
		}
		entry.Hash = entry.ComputeHash()
		prev = entry.Hash
		entries = append(entries, entry)
	}
	return entries
}

func TestComputeHashIsDeterministic(t *testing.T) {
	entries := buildChain(1)
	entry := entries[0]

	assert.Equal(t, entry.ComputeHash(), entry.ComputeHash())
	assert.Len(t, entry.Hash, 64)

	// any field change must change the digest
	tampered := *entry
	tampered.Quantity++
	assert.NotEqual(t, entry.Hash, tampered.ComputeHash())

	tampered = *entry
	tampered.Actor = "someone-else"
	assert.NotEqual(t, entry.Hash, tampered.ComputeHash())

	tampered = *entry
	tampered.Timestamp = tampered.Timestamp.Add(time.Nanosecond)
	assert.NotEqual(t, entry.Hash, tampered.ComputeHash())
}

func TestHashIgnoresTimeZoneRepresentation(t *testing.T) {
	entries := buildChain(1)
	entry := entries[0]

	shifted := *entry
	shifted.Timestamp = entry.Timestamp.In(time.FixedZone("UTC+7", 7*3600))
	assert.Equal(t, entry.Hash, shifted.ComputeHash())
}

func TestVerifyChainEmpty(t *testing.T) {
	assert.NoError(t, VerifyChain(nil))
	assert.NoError(t, VerifyChain([]*AuditEntry{}))
}

func TestVerifyChainValid(t *testing.T) {
	assert.NoError(t, VerifyChain(buildChain(5)))
}

func TestVerifyChainDetectsTamperedField(t *testing.T) {
	entries := buildChain(3)
	entries[1].AmountPaid += 1000

	err := VerifyChain(entries)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seq 2")
}

func TestVerifyChainDetectsRecomputedTamper(t *testing.T) {
	entries := buildChain(3)

	// rewriting the entry and its hash shifts the break to the successor
	entries[1].AmountPaid += 1000
	entries[1].Hash = entries[1].ComputeHash()

	err := VerifyChain(entries)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seq 3")
}

func TestVerifyChainDetectsSequenceGap(t *testing.T) {
	entries := buildChain(3)
	err := VerifyChain([]*AuditEntry{entries[0], entries[2]})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seq 3")
}

func TestVerifyChainDetectsForgedGenesis(t *testing.T) {
	entries := buildChain(2)
	entries[0].PrevHash = strings.Repeat("ab", 32)
	entries[0].Hash = entries[0].ComputeHash()

	err := VerifyChain(entries)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seq 1")
}
