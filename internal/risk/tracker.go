package risk

import (
	"github.com/devrajweb/delta-bot/internal/domain"
)

// ExitState is the lifecycle stage of a position's exit management.
type ExitState string

const (
	StateArmed   ExitState = "ARMED"
	StatePartial ExitState = "PARTIAL"
	StateClosed  ExitState = "CLOSED"
)

// IntentKind is what an exit intent asks the position owner to do.
type IntentKind string

const (
	IntentPartialClose IntentKind = "partial_close"
	IntentClose        IntentKind = "close"
)

// ExitIntent is a request to realize part or all of a position at Price.
type ExitIntent struct {
	Kind   IntentKind
	Price  float64
	Reason domain.CloseReason
}

// ExitTracker is the per-position TP/SL state machine. It does not mutate the
// position; it emits intents for the caller to apply.
type ExitTracker struct {
	tp1Hit bool
	closed bool
}

// NewExitTracker returns a tracker in the ARMED state.
func NewExitTracker() *ExitTracker {
	return &ExitTracker{}
}

// State returns the current lifecycle stage.
func (t *ExitTracker) State() ExitState {
	switch {
	case t.closed:
		return StateClosed
	case t.tp1Hit:
		return StatePartial
	default:
		return StateArmed
	}
}

// Evaluate checks price against the position's levels. Crossing TP1 while ARMED
// yields a partial close and moves the effective stop to entry for the rest of
// the evaluation. Crossing TP2 or the stop yields a close at that level.
func (t *ExitTracker) Evaluate(pos domain.Position, price float64) []ExitIntent {
	if t.closed {
		return nil
	}
	var intents []ExitIntent
	stop := pos.StopLoss
	if t.tp1Hit {
		stop = pos.EntryPrice
	}

	if !t.tp1Hit && crossedFavorably(pos.Direction, price, pos.TakeProfits.TP1) {
		t.tp1Hit = true
		stop = pos.EntryPrice
		intents = append(intents, ExitIntent{Kind: IntentPartialClose, Price: pos.TakeProfits.TP1, Reason: domain.CloseReasonPartial})
	}

	switch {
	case t.tp1Hit && crossedFavorably(pos.Direction, price, pos.TakeProfits.TP2):
		t.closed = true
		intents = append(intents, ExitIntent{Kind: IntentClose, Price: pos.TakeProfits.TP2, Reason: domain.CloseReasonTakeProfit})
	case crossedAdversely(pos.Direction, price, stop):
		t.closed = true
		intents = append(intents, ExitIntent{Kind: IntentClose, Price: stop, Reason: domain.CloseReasonStopLoss})
	}
	return intents
}

// Reset returns the tracker to ARMED for reuse on the next position.
func (t *ExitTracker) Reset() {
	t.tp1Hit = false
	t.closed = false
}

// Rearm undoes a TP1 transition whose partial close could not be applied.
func (t *ExitTracker) Rearm() {
	t.tp1Hit = false
}

// Reopen undoes a close transition whose order could not be applied.
func (t *ExitTracker) Reopen() {
	t.closed = false
}

func crossedFavorably(dir domain.Direction, price, level float64) bool {
	if dir == domain.DirectionShort {
		return price <= level
	}
	return price >= level
}

func crossedAdversely(dir domain.Direction, price, stop float64) bool {
	if dir == domain.DirectionShort {
		return price >= stop
	}
	return price <= stop
}
