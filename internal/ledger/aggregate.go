package ledger

// Sum folds a product's ledger into its stock level. Pure and
// deterministic: an empty ledger yields the zero aggregate, and the
// result depends only on the entries given. Any cached or incremental
// aggregation elsewhere must be observably equivalent to this fold.
func Sum(entries []Entry) StockLevel {
	var level StockLevel
	for _, e := range entries {
		switch e.Bucket {
		case BucketOnHand:
			level.OnHand += e.Delta
		case BucketReserved:
			level.Reserved += e.Delta
		}
	}
	return level
}

// Apply projects the combined effect of a whole request onto a level.
// Effects are applied as one unit; intermediate states within the
// batch are deliberately never materialised.
func (s StockLevel) Apply(effects []Effect) StockLevel {
	next := s
	for _, eff := range effects {
		switch eff.Bucket {
		case BucketOnHand:
			next.OnHand += eff.Delta
		case BucketReserved:
			next.Reserved += eff.Delta
		}
	}
	return next
}
