package marketplace

import "math"

// Credit increases the owned balance. Crediting zero is a no-op that still
// touches the record, so lazily created accounts get persisted.
func (a *Account) Credit(quantity uint64) error {
	owned, err := addUint64(a.CreditsOwned, quantity)
	if err != nil {
		return err
	}
	a.CreditsOwned = owned
	return nil
}

// Debit decreases the owned balance. Fails with ErrInsufficientBalance when
// the balance is short; the record is untouched on failure.
func (a *Account) Debit(quantity uint64) error {
	if a.CreditsOwned < quantity {
		return ErrInsufficientBalance
	}
	a.CreditsOwned -= quantity
	return nil
}

// Retire moves quantity from owned to retired. Both fields update or
// neither does.
func (a *Account) Retire(quantity uint64) error {
	if a.CreditsOwned < quantity {
		return ErrInsufficientBalance
	}
	retired, err := addUint64(a.CreditsRetired, quantity)
	if err != nil {
		return err
	}
	a.CreditsOwned -= quantity
	a.CreditsRetired = retired
	return nil
}

// addUint64 returns a+b or ErrOverflow.
func addUint64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// mulUint64 returns a*b or ErrOverflow.
func mulUint64(a, b uint64) (uint64, error) {
	if a != 0 && b > math.MaxUint64/a {
		return 0, ErrOverflow
	}
	return a * b, nil
}
