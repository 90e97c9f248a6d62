package session

import "slices"

// Status is the single closed set of session states shared by every consumer
// (orchestrator, API, realtime hub, session log).
type Status string

const (
	StatusRequested  Status = "requested"
	StatusWaiting    Status = "waiting"
	StatusAccepted   Status = "accepted"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusEnding     Status = "ending"
	StatusEnded      Status = "ended"
	StatusDeclined   Status = "declined"
	StatusExpired    Status = "expired"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

var validTransitions = map[Status][]Status{
	StatusRequested:  {StatusWaiting, StatusCancelled, StatusFailed},
	StatusWaiting:    {StatusAccepted, StatusDeclined, StatusExpired, StatusCancelled, StatusFailed},
	StatusAccepted:   {StatusConnecting, StatusCancelled, StatusFailed},
	StatusConnecting: {StatusConnected, StatusCancelled, StatusFailed},
	StatusConnected:  {StatusEnding, StatusFailed},
	StatusEnding:     {StatusEnded},
	StatusEnded:      {},
	StatusDeclined:   {},
	StatusExpired:    {},
	StatusCancelled:  {},
	StatusFailed:     {},
}

// CanTransitionTo checks if a transition from s to next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal returns true for states with no outgoing transitions.
func (s Status) IsTerminal() bool {
	next, ok := validTransitions[s]
	return ok && len(next) == 0
}

// PreConnect lists the states before connected. Sessions that terminate
// from here never produce a debit.
var PreConnect = []Status{StatusRequested, StatusWaiting, StatusAccepted, StatusConnecting}

// IsPreConnect reports whether the session has not yet reached connected.
func (s Status) IsPreConnect() bool {
	return slices.Contains(PreConnect, s)
}
