package ledger

// Validate decides accept or reject for a request's combined effects
// against the current aggregate. The projected post-state covers the
// whole batch at once: a batch like [OUT -N, UNRESERVE -N] is
// net-available-neutral and must not fail on the state between its two
// effects. Returns the post-commit level on acceptance.
func Validate(active bool, current StockLevel, effects []Effect) (StockLevel, error) {
	if !active {
		return StockLevel{}, ErrProductInactive
	}
	next := current.Apply(effects)
	if next.OnHand < 0 {
		return StockLevel{}, &ShortfallError{
			Reason:    ErrInsufficientOnHand,
			Current:   current.OnHand,
			Resulting: next.OnHand,
		}
	}
	if next.Reserved < 0 {
		return StockLevel{}, &ShortfallError{
			Reason:    ErrInsufficientReserved,
			Current:   current.Reserved,
			Resulting: next.Reserved,
		}
	}
	if next.Available() < 0 {
		return StockLevel{}, &ShortfallError{
			Reason:    ErrInsufficientAvailable,
			Current:   current.Available(),
			Resulting: next.Available(),
		}
	}
	return next, nil
}
