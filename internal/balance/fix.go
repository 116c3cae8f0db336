package balance

import (
	"fmt"

	"github.com/kingrea/streamsynth/internal/graph"
	"github.com/kingrea/streamsynth/internal/rate"
	"github.com/kingrea/streamsynth/internal/ratio"
)

// FixKind names the kind of buffering a fix inserts.
type FixKind string

const (
	// KindOutput trims a producer so its splitter runs whole rounds.
	KindOutput FixKind = "output"
	// KindInPlace appends buffering to the end of the producing segment.
	KindInPlace FixKind = "in_place"
	// KindNewSegment splices a buffering segment into the edge.
	KindNewSegment FixKind = "new_segment"
)

// Fix is a buffering decision for one unbalanced edge: either InPlace or
// NewSegment.
type Fix interface {
	Kind() FixKind
	fix()
}

// InPlace buffers inside the producing segment: a new identity stage at its
// end forwards Amount items to the output port during init.
type InPlace struct {
	Segment *graph.Segment
	Edge    *graph.Edge
	Amount  int
}

// NewSegment splices a buffering segment into Edge that forwards Amount
// items in init and SteadyMult items per steady period.
type NewSegment struct {
	Edge       *graph.Edge
	Amount     int
	SteadyMult int
}

func (InPlace) Kind() FixKind { return KindInPlace }
func (NewSegment) Kind() FixKind { return KindNewSegment }
func (InPlace) fix() {}
func (NewSegment) fix() {}

// Reason explains a legality verdict.
type Reason string

const (
	ReasonLegal           Reason = "legal"
	ReasonDisabled        Reason = "intra-segment buffering disabled"
	ReasonPartialRound    Reason = "splitter would stop mid-round"
	ReasonAlreadyBuffered Reason = "segment already buffered to a different amount"
	ReasonStarved         Reason = "another destination would be starved"
	ReasonOffTarget       Reason = "another edge into the port would fall below the target"
)

// Verdict is the outcome of Legality.
type Verdict struct {
	Reason Reason
	Detail string
}

// Legal reports whether the in-place fix may be applied.
func (v Verdict) Legal() bool { return v.Reason == ReasonLegal }

func (v Verdict) String() string {
	if v.Detail == "" {
		return string(v.Reason)
	}
	return fmt.Sprintf("%s: %s", v.Reason, v.Detail)
}

// Legality decides whether the producing segment of e can absorb the buffering
// needed for e to carry target rounds of its input port in init. It returns
// the candidate in-place fix along with the verdict and does not touch the
// graph.
//
// Only the direct consumers of the producer's other destinations are checked;
// starvation further downstream is caught by the next rate derivation.
func Legality(m *rate.Model, opts Options, ledger *Ledger, e *graph.Edge, target int) (InPlace, Verdict, error) {
	producer := e.Src()
	out := producer.Output
	port := e.Dst().Input
	edgeItems := target * port.Weight(e)
	candidate := InPlace{Segment: producer, Edge: e}
	if !opts.InPlace {
		return candidate, Verdict{Reason: ReasonDisabled}, nil
	}
	weight := out.Weight(e)
	if !ratio.Divides(edgeItems, weight) {
		return candidate, Verdict{
			Reason: ReasonPartialRound,
			Detail: fmt.Sprintf("%d items is not a multiple of output weight %d", edgeItems, weight),
		}, nil
	}
	candidate.Amount = edgeItems / weight * out.TotalWeight()
	if amount, ok := ledger.Amount(producer); ok && amount != candidate.Amount {
		return candidate, Verdict{
			Reason: ReasonAlreadyBuffered,
			Detail: fmt.Sprintf("%s forwards %d, need %d", producer.ID, amount, candidate.Amount),
		}, nil
	}
	for _, dest := range out.Dests() {
		if dest == e {
			continue
		}
		consumer := dest.Dst().First()
		info, err := m.Info(consumer)
		if err != nil {
			return candidate, Verdict{}, err
		}
		in := dest.Dst().Input
		received := out.Share(dest, candidate.Amount)
		if in == port {
			if want := target * in.Weight(dest); received < want {
				return candidate, Verdict{
					Reason: ReasonOffTarget,
					Detail: fmt.Sprintf("%s would carry %d, target is %d", dest.ID, received, want),
				}, nil
			}
		}
		needed := ratio.CeilDiv(info.InitItemsNeeded, in.TotalWeight()) * in.Weight(dest)
		if received < needed {
			return candidate, Verdict{
				Reason: ReasonStarved,
				Detail: fmt.Sprintf("%s would receive %d of %d needed", dest.ID, received, needed),
			}, nil
		}
	}
	return candidate, Verdict{Reason: ReasonLegal}, nil
}
