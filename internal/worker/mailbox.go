package worker

import "github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/grid"

// Mailbox is the coordinator's single-slot channel into one worker: the
// coordinator pushes a tuning action each cycle, and a slow worker never
// accumulates a backlog of stale ones, per spec.md §5's "single-slot
// mailbox: overwriting is allowed (latest wins)". Grounded on the
// teacher's Processor.Trigger (internal/work/processor.go), a buffered
// signal channel filled with a non-blocking send-or-drop; here the slot
// carries a payload, so an overwrite drains the stale value first instead
// of dropping the new one.
type Mailbox struct {
	slot chan grid.Action
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{slot: make(chan grid.Action, 1)}
}

// Push deposits action, discarding whatever was previously pending.
func (m *Mailbox) Push(action grid.Action) {
	for {
		select {
		case m.slot <- action:
			return
		default:
			select {
			case <-m.slot:
			default:
			}
		}
	}
}

// TryTake returns the pending action and clears the slot, or
// (ActionNone, false) if nothing is pending.
func (m *Mailbox) TryTake() (grid.Action, bool) {
	select {
	case a := <-m.slot:
		return a, true
	default:
		return grid.ActionNone, false
	}
}
