package watch

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLocation is returned when a store location cannot be resolved
	// into a filesystem path with a filename and a parent directory.
	ErrInvalidLocation = errors.New("invalid store location")

	// ErrWatchRegistration is returned when a directory subscription cannot be
	// created (missing directory, permission denied, inotify limits).
	ErrWatchRegistration = errors.New("watch registration failed")

	// ErrReloadFailed marks a failed host reload. It is recoverable: the loop
	// logs it and keeps waiting for events.
	ErrReloadFailed = errors.New("reload failed")

	// ErrWatchInterrupted is reported when the event stream ends without a
	// stop request.
	ErrWatchInterrupted = errors.New("watch interrupted")

	// ErrNotRestartable is returned by Start on a watcher that was already
	// started or stopped.
	ErrNotRestartable = errors.New("credential watcher cannot be restarted")
)

// LocationError describes a store location that failed to resolve.
type LocationError struct {
	// Kind is the store the location belongs to
	Kind StoreKind

	// Location is the raw configured value
	Location string

	// Reason explains why the location was rejected
	Reason string

	// Cause is the underlying parse error (if any)
	Cause error
}

// Error implements the error interface.
func (e *LocationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid %s location %q: %s: %v", e.Kind, e.Location, e.Reason, e.Cause)
	}
	return fmt.Sprintf("invalid %s location %q: %s", e.Kind, e.Location, e.Reason)
}

// Unwrap returns the underlying error for error chain support.
func (e *LocationError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrInvalidLocation.
func (e *LocationError) Is(target error) bool {
	return target == ErrInvalidLocation
}

// RegistrationError describes a directory subscription that could not be created.
type RegistrationError struct {
	// Dir is the directory being subscribed ("" when the notifier itself failed)
	Dir string

	// Cause is the error returned by the notifier
	Cause error
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	if e.Dir == "" {
		return fmt.Sprintf("failed to create directory notifier: %v", e.Cause)
	}
	return fmt.Sprintf("failed to watch directory %q: %v", e.Dir, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *RegistrationError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrWatchRegistration.
func (e *RegistrationError) Is(target error) bool {
	return target == ErrWatchRegistration
}

// ReloadError wraps a failure raised by Host.Reload, including panics.
type ReloadError struct {
	// Trigger is the event that caused the reload
	Trigger ReloadTrigger

	// Cause is the reload failure
	Cause error
}

// Error implements the error interface.
func (e *ReloadError) Error() string {
	return fmt.Sprintf("reload triggered by %s %q failed: %v", e.Trigger.Kind, e.Trigger.Path, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ReloadError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrReloadFailed.
func (e *ReloadError) Is(target error) bool {
	return target == ErrReloadFailed
}
