package marketplace

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckedArithmetic(t *testing.T) {
	sum, err := addUint64(2, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), sum)

	_, err = addUint64(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOverflow)

	sum, err = addUint64(math.MaxUint64, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), sum)

	product, err := mulUint64(10, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), product)

	product, err = mulUint64(0, math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), product)

	_, err = mulUint64(math.MaxUint64, 2)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestAccountBalanceOperations(t *testing.T) {
	account := &Account{Address: "buyer-1"}

	require.NoError(t, account.Credit(10))
	assert.Equal(t, uint64(10), account.CreditsOwned)

	assert.ErrorIs(t, account.Debit(11), ErrInsufficientBalance)
	require.NoError(t, account.Debit(4))
	assert.Equal(t, uint64(6), account.CreditsOwned)

	assert.ErrorIs(t, account.Retire(7), ErrInsufficientBalance)
	require.NoError(t, account.Retire(6))
	assert.Equal(t, uint64(0), account.CreditsOwned)
	assert.Equal(t, uint64(6), account.CreditsRetired)

	// overflow on credit leaves the balance untouched
	account.CreditsOwned = math.MaxUint64
	assert.ErrorIs(t, account.Credit(1), ErrOverflow)
	assert.Equal(t, uint64(math.MaxUint64), account.CreditsOwned)
}

func TestRetireOverflowTouchesNothing(t *testing.T) {
	account := &Account{
		Address:        "buyer-1",
		CreditsOwned:   5,
		CreditsRetired: math.MaxUint64,
	}

	assert.ErrorIs(t, account.Retire(1), ErrOverflow)
	assert.Equal(t, uint64(5), account.CreditsOwned)
	assert.Equal(t, uint64(math.MaxUint64), account.CreditsRetired)
}

func TestProjectRemaining(t *testing.T) {
	project := &Project{TotalCredits: 100, CreditsSold: 40}
	assert.Equal(t, uint64(60), project.Remaining())

	project.CreditsSold = 100
	assert.Equal(t, uint64(0), project.Remaining())
}

func TestGuard(t *testing.T) {
	guard := NewGuard("deployer-1")
	config := &MarketplaceConfig{Admin: "admin-1"}

	assert.NoError(t, guard.RequireDeployer("deployer-1"))
	assert.ErrorIs(t, guard.RequireDeployer("admin-1"), ErrUnauthorized)
	assert.ErrorIs(t, guard.RequireDeployer(""), ErrUnauthorized)

	assert.NoError(t, guard.RequireAdmin("admin-1", config))
	assert.ErrorIs(t, guard.RequireAdmin("deployer-1", config), ErrUnauthorized)
	assert.ErrorIs(t, guard.RequireAdmin("", config), ErrUnauthorized)
}
