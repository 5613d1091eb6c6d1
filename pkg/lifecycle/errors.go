package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrConflictingBindOptions is returned when more than one mutually
	// exclusive bind option is set. It is a configuration error and should
	// not be retried.
	ErrConflictingBindOptions = errors.New("conflicting bind options: use either --hostname/--port, --bind or --unix-socket")

	// ErrPortOutOfRange is returned when an explicit port lies outside
	// 0-65535. Like ErrConflictingBindOptions it is a configuration error.
	ErrPortOutOfRange = errors.New("port out of range")

	// ErrListenerBind matches any *ListenerBindError via errors.Is.
	ErrListenerBind = errors.New("listener bind failed")

	// ErrLifecycleMisuse reports a programming error in how the coordinator
	// is driven.
	ErrLifecycleMisuse = errors.New("server lifecycle misuse")

	ErrAlreadyStarted        = fmt.Errorf("%w: coordinator already started", ErrLifecycleMisuse)
	ErrNotStarted            = fmt.Errorf("%w: coordinator not started", ErrLifecycleMisuse)
	ErrNotShutDown           = fmt.Errorf("%w: released while running; call Shutdown first", ErrLifecycleMisuse)
	ErrShutdownDuringStartup = fmt.Errorf("%w: shutdown requested while starting", ErrLifecycleMisuse)
)

// ListenerBindError wraps the transport error returned when the listener
// cannot bind its address.
type ListenerBindError struct {
	Network string
	Address string
	Err     error
}

func (e *ListenerBindError) Error() string {
	return fmt.Sprintf("failed to bind %s listener on %s: %v", e.Network, e.Address, e.Err)
}

func (e *ListenerBindError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrListenerBind) match regardless of the cause.
func (e *ListenerBindError) Is(target error) bool { return target == ErrListenerBind }
