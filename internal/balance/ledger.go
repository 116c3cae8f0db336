package balance

import (
	"errors"
	"fmt"

	"github.com/kingrea/streamsynth/internal/graph"
)

// ErrIncompatibleBuffering is returned when one segment would be buffered to
// two different amounts within a single sweep.
var ErrIncompatibleBuffering = errors.New("balance: incompatible buffering")

// Ledger records the in-place amounts applied during one input sweep.
type Ledger struct {
	amounts map[*graph.Segment]int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{amounts: map[*graph.Segment]int{}}
}

// Amount returns the amount recorded for seg, if any.
func (l *Ledger) Amount(seg *graph.Segment) (int, bool) {
	if l == nil {
		return 0, false
	}
	amount, ok := l.amounts[seg]
	return amount, ok
}

// Reserve records amount for seg. It reports whether seg was already
// reserved with the same amount, and fails if a different amount was
// recorded earlier in the sweep.
func (l *Ledger) Reserve(seg *graph.Segment, amount int) (bool, error) {
	if prev, ok := l.amounts[seg]; ok {
		if prev != amount {
			return false, fmt.Errorf("%w: segment %s forwards %d, asked for %d", ErrIncompatibleBuffering, seg.ID, prev, amount)
		}
		return true, nil
	}
	l.amounts[seg] = amount
	return false, nil
}

// Len is the number of reserved segments.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.amounts)
}
