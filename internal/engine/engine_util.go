package engine

import "time"

func NewState(bestOf BestOf, now time.Time) State {
	return State{
		Round:     1,
		BestOf:    bestOf,
		StartedAt: now,
	}
}

// SeatOf returns the 0-based seat index held by connID, or -1.
func (s State) SeatOf(connID string) int {
	if connID == "" {
		return -1
	}
	for i, seat := range s.Seats {
		if seat.ConnID == connID {
			return i
		}
	}
	return -1
}

// Seated counts occupied seats.
func (s State) Seated() int {
	n := 0
	for _, seat := range s.Seats {
		if !seat.Empty() {
			n++
		}
	}
	return n
}

func (s State) Full() bool { return s.Seated() >= MaxSeats }

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// FindEvent returns the first event of the given type.
func FindEvent(events []Event, eventType EventType) (Event, bool) {
	for _, event := range events {
		if event.Type == eventType {
			return event, true
		}
	}
	return Event{}, false
}
