package rate

import (
	"github.com/kingrea/streamsynth/internal/graph"
)

// Info is the derived rate data of one stage. Single-stage stages are
// described with an empty pre-fire (all Pre* fields zero) and one extra init
// firing, so every stage is treated as running its pre-fire first.
type Info struct {
	Stage *graph.Stage

	Peek, Pop, Push          int
	PrePeek, PrePop, PrePush int
	TwoStage                 bool

	InitMult   int
	SteadyMult int

	// BottomPeek is the peek window left over after the pre-fire.
	BottomPeek int
	// Remaining is the number of received items not needed by the init
	// schedule.
	Remaining int
	// CopyDown is the number of items left on the input tape after init.
	CopyDown int

	InitItemsSent     int
	InitItemsReceived int
	InitItemsNeeded   int
}

// NoBuffer reports whether the stage never peeks and so needs no receive
// buffer.
func (i Info) NoBuffer() bool {
	return i.Peek == 0 && i.PrePeek == 0
}

// IsSimple reports whether a flat, non-circular receive buffer is enough.
func (i Info) IsSimple() bool {
	if i.NoBuffer() {
		return false
	}
	return i.Peek == i.Pop && i.Remaining == 0 && i.PrePop == i.PrePeek
}

// InitItemsPopped is the number of items consumed by the init firings.
func (i Info) InitItemsPopped() int {
	return i.PrePop + (i.initFirings()-1)*i.Pop
}

// Mult returns the number of firings in the given phase. The prime-pump
// phase fires with the steady multiplicity.
func (i Info) Mult(phase graph.Phase) int {
	if phase == graph.PhaseInit {
		return i.InitMult
	}
	return i.SteadyMult
}

// TotalItemsSent is the number of items pushed during one execution of the
// given phase.
func (i Info) TotalItemsSent(phase graph.Phase) int {
	if phase == graph.PhaseInit {
		return i.InitItemsSent
	}
	return i.SteadyMult * i.Push
}

// TotalItemsReceived is the number of items arriving during one execution of
// the given phase.
func (i Info) TotalItemsReceived(phase graph.Phase) int {
	if phase == graph.PhaseInit {
		return i.InitItemsReceived
	}
	return i.SteadyMult * i.Pop
}

// TotalItemsPopped is the number of items consumed during one execution of
// the given phase.
func (i Info) TotalItemsPopped(phase graph.Phase) int {
	if phase == graph.PhaseInit {
		items := i.InitMult * i.Pop
		if i.TwoStage {
			items += i.PrePop - i.Pop
		}
		return items
	}
	return i.SteadyMult * i.Pop
}

// ItemsFiring returns the items produced by firing number exe.
func (i Info) ItemsFiring(exe int, init bool) int {
	if init && exe == 0 && i.TwoStage {
		return i.PrePush
	}
	return i.Push
}

// ItemsNeededToFire returns the items that must be available before firing
// number exe.
func (i Info) ItemsNeededToFire(exe int, init bool) int {
	if init && exe == 0 {
		if i.TwoStage {
			return i.PrePeek
		}
		return i.Peek
	}
	return i.Pop
}

// InitPushTotal bounds the items written to the output buffer during init.
func (i Info) InitPushTotal() int {
	total := i.InitMult * i.Push
	if extra := i.PrePush - i.Push; extra > 0 {
		total += extra
	}
	return total
}

// SteadyPushTotal is the items written per steady period.
func (i Info) SteadyPushTotal() int {
	return i.SteadyMult * i.Push
}

func (i Info) initFirings() int {
	if i.TwoStage {
		return i.InitMult
	}
	return i.InitMult + 1
}
