package domain

import (
	"fmt"
	"strings"
)

type StopStatus string

const (
	StopPending   StopStatus = "pending"
	StopAssigned  StopStatus = "assigned"
	StopInTransit StopStatus = "in_transit"
	StopDelivered StopStatus = "delivered"
	StopCancelled StopStatus = "cancelled"
)

// Closed reports whether a stop has left route planning for good.
func (s StopStatus) Closed() bool { return s == StopDelivered || s == StopCancelled }

func ParseStopStatus(s string) (StopStatus, error) {
	switch st := StopStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StopPending, StopAssigned, StopInTransit, StopDelivered, StopCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown stop status %q", ErrValidation, s)
}

// Represents one delivery order's destination.
// A Stop with a nil Location has not been geocoded yet and is excluded
// from routing and proximity checks. Sequence is the 1-based position
// within whichever sequence currently owns the stop (an agent's route or
// the pending pool). Notified is scoped to the current assignment.
type Stop struct {
	ID       string
	Address  string
	Phone    string
	Location *Coordinates
	Sequence int
	Notified bool
	Status   StopStatus
	AgentID  string
}

// Clone returns a deep copy so callers never share Location pointers.
func (s Stop) Clone() Stop {
	if s.Location != nil {
		s.Location = s.Location.Ptr()
	}
	return s
}
