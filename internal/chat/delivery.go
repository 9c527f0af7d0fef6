package chat

import "slices"

// DeliveryState tracks per-message delivery progress, decoupled from message
// content so it can be updated independently and frequently.
type DeliveryState string

const (
	StatePending   DeliveryState = "pending"
	StateDelivered DeliveryState = "delivered"
	StateRead      DeliveryState = "read"
	StateFailed    DeliveryState = "failed"
)

// validDeliveryTransitions defines allowed delivery state transitions.
// Progress is monotonic along pending → delivered → read; failed is terminal
// until an explicit retry replaces the entry with a fresh pending one.
var validDeliveryTransitions = map[DeliveryState][]DeliveryState{
	StatePending:   {StateDelivered, StateRead, StateFailed},
	StateDelivered: {StateRead},
	StateRead:      {},
	StateFailed:    {},
}

// CanAdvance reports whether a transition between two delivery states is
// allowed under the monotonicity rule.
func CanAdvance(from, to DeliveryState) bool {
	if from == to {
		return false
	}
	return slices.Contains(validDeliveryTransitions[from], to)
}
