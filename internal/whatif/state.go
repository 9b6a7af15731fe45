package whatif

import (
	"fmt"
	"strings"
)

// State is the position of an Engine in the what-if cycle.
type State int32

const (
	Idle State = iota
	QEPFetched
	ModificationsCollected
	OverlayBuilt
	AQPFetched
	Compared
)

var stateNames = [...]string{
	Idle:                   "Idle",
	QEPFetched:             "QEPFetched",
	ModificationsCollected: "ModificationsCollected",
	OverlayBuilt:           "OverlayBuilt",
	AQPFetched:             "AQPFetched",
	Compared:               "Compared",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// StateError is returned when an operation is called out of order.
type StateError struct {
	Op      string
	Current State
	Allowed []State
}

func (e *StateError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = s.String()
	}
	return fmt.Sprintf("cannot %s in state %s (allowed in %s)", e.Op, e.Current, strings.Join(allowed, ", "))
}
