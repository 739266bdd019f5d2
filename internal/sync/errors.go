package sync

import "errors"

// ErrUnreachable reports that the workstation is unreachable. No function
// in this module returns it; offline mutations are queued instead.
var ErrUnreachable = errors.New("sync: workstation unreachable")

// ErrUnknownOperation is returned when a queued operation's Operation
// field does not match one of the known mutating kinds.
var ErrUnknownOperation = errors.New("sync: unknown queued operation kind")
