package ledger

import "github.com/google/uuid"

// Operation is a client-facing movement descriptor. Clients supply a
// kind and a positive quantity, never a signed delta, so a client can
// not fabricate a sign or bucket combination.
type Operation struct {
	Kind      Kind
	Qty       int64
	Direction Direction
	Note      string
	RequestID *uuid.UUID
}

// Effect is the ledger-side consequence of one operation: which bucket
// it touches and by how much, sign included.
type Effect struct {
	Bucket Bucket
	Delta  int64
}

// Effect derives the bucket and signed delta for the operation. This
// is the single source of truth for sign and bucket derivation; no
// other component computes it.
func (op Operation) Effect() (Effect, error) {
	if op.Qty < 1 {
		return Effect{}, ErrInvalidMagnitude
	}
	if op.Kind == KindAdjust {
		switch op.Direction {
		case DirectionIncrease:
			return Effect{Bucket: BucketOnHand, Delta: op.Qty}, nil
		case DirectionDecrease:
			return Effect{Bucket: BucketOnHand, Delta: -op.Qty}, nil
		default:
			return Effect{}, ErrInvalidCombination
		}
	}
	if op.Direction != "" {
		return Effect{}, ErrInvalidCombination
	}
	switch op.Kind {
	case KindIn:
		return Effect{Bucket: BucketOnHand, Delta: op.Qty}, nil
	case KindOut:
		return Effect{Bucket: BucketOnHand, Delta: -op.Qty}, nil
	case KindReserve:
		return Effect{Bucket: BucketReserved, Delta: op.Qty}, nil
	case KindUnreserve:
		return Effect{Bucket: BucketReserved, Delta: -op.Qty}, nil
	default:
		return Effect{}, ErrInvalidCombination
	}
}
