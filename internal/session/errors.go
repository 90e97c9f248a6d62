package session

import "errors"

var (
	ErrNotFound          = errors.New("session: not found")
	ErrInvalidTransition = errors.New("session: invalid state transition")
	ErrNotParticipant    = errors.New("session: user is not a participant")
	ErrInvalidArgument   = errors.New("session: invalid argument")
	ErrNoShowTimeout     = errors.New("session: callee did not show up")
	ErrMediaJoinFailure  = errors.New("session: media join failed")
	ErrCallerBusy        = errors.New("session: caller already has an active session")
)
