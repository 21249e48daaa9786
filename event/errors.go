package event

import "errors"

// ErrInvalidArgument marks programmer errors at setup or call time: nil handlers,
// nil events, non-positive rates. Callers match it with errors.Is
var ErrInvalidArgument = errors.New("invalid argument")
