package domain

// Amount is a quantity of the pooled fungible asset, in its smallest unit.
// Amounts are unsigned: value never goes negative, callers check sufficiency
// before subtracting.
type Amount uint64

// CanCover reports whether a balance of a covers a withdrawal of amount.
func (a Amount) CanCover(amount Amount) bool {
	return a >= amount
}
