package watch

import (
	"time"

	"github.com/google/uuid"
)

// Host is the TLS context a CredentialWatcher keeps in sync.
//
// Locations are read once, when the watcher is constructed. An empty string
// means the store is not configured. Reload must be safe to call while
// handshakes read the current context.
type Host interface {
	KeyStoreLocation() string
	TrustStoreLocation() string
	Reload() error
}

// StoreKind identifies which store a path belongs to.
type StoreKind string

const (
	// KeyStore holds the local certificate chain and private key.
	KeyStore StoreKind = "key_store"
	// TrustStore holds the CA certificates used to verify peers.
	TrustStore StoreKind = "trust_store"
)

// State is the lifecycle state of a CredentialWatcher.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopRequested
	StateStopped
)

// String returns the lowercase state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop_requested"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Subscription is one watched directory and the stores that live in it.
type Subscription struct {
	Dir    string
	Stores []StoreKind
}

// ReloadTrigger describes the event that caused a reload.
type ReloadTrigger struct {
	// ID correlates the trigger with its log lines
	ID string

	// Kind is the store whose file changed
	Kind StoreKind

	// Path is the event path as reported by the notifier
	Path string

	// Op is the filesystem operation ("WRITE", "CREATE")
	Op string

	// At is when the batch containing the event was processed
	At time.Time
}

func newTrigger(kind StoreKind, path, op string) ReloadTrigger {
	return ReloadTrigger{
		ID:   uuid.NewString(),
		Kind: kind,
		Path: path,
		Op:   op,
		At:   time.Now(),
	}
}

// Recorder receives watcher telemetry. A nil Recorder is replaced by a no-op.
type Recorder interface {
	// RecordEvent is called for every filesystem event the loop inspects.
	RecordEvent(op string, matched bool)

	// RecordReload is called after each reload attempt.
	RecordReload(source string, kind StoreKind, duration time.Duration, err error)

	// SetWatcherState is called on every lifecycle transition.
	SetWatcherState(state State)

	// SetSubscriptions reports the number of watched directories.
	SetSubscriptions(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordEvent(string, bool)                             {}
func (nopRecorder) RecordReload(string, StoreKind, time.Duration, error) {}
func (nopRecorder) SetWatcherState(State)                                {}
func (nopRecorder) SetSubscriptions(int)                                 {}
