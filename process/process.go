// Package process provides the platform-neutral surface for reading another
// process's memory.
package process

import "errors"

var (
	// ErrAddressNotMapped is returned when a memory address is not found within any mapped region of a process.
	ErrAddressNotMapped = errors.New("address not mapped")

	// ErrAccessDenied is returned when the OS refuses the read, usually because
	// the target exited or the caller lacks privileges.
	ErrAccessDenied = errors.New("access denied")

	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully opened or after it has been closed.
	ErrProcessNotOpen = errors.New("process not open")

	ErrNotSupported = errors.New("not supported on this platform")

	ErrPartialRead = errors.New("partial read")

	ErrProcessNotFound = errors.New("process not found")
)

// IsTransient reports whether err is one of the read failures that callers
// should retry on the next tick instead of treating as fatal.
func IsTransient(err error) bool {
	return errors.Is(err, ErrAddressNotMapped) ||
		errors.Is(err, ErrAccessDenied) ||
		errors.Is(err, ErrPartialRead)
}
