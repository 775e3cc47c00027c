package watch

import (
	"github.com/fsnotify/fsnotify"
)

// Notifier multiplexes filesystem events for a set of directories.
//
// The default implementation wraps fsnotify. Tests inject their own through
// WithNotifierFactory to feed synthetic event batches and count registrations.
type Notifier interface {
	// Add subscribes to events for the entries of dir.
	Add(dir string) error

	// Events delivers events for every subscribed directory.
	Events() <-chan fsnotify.Event

	// Errors delivers non-fatal notifier errors such as queue overflow.
	Errors() <-chan error

	// Close releases the OS watch handles and closes both channels.
	Close() error
}

// NotifierFactory creates a Notifier. It is called at most once per watcher,
// and only when at least one store is configured.
type NotifierFactory func() (Notifier, error)

// eventBuffer is the fsnotify channel capacity. One inotify read can carry
// several events for the same rewrite; a buffer lets them queue up behind the
// first instead of being handed over one at a time.
const eventBuffer = 64

// NewFSNotifier returns a Notifier backed by a buffered fsnotify watcher.
func NewFSNotifier() (Notifier, error) {
	w, err := fsnotify.NewBufferedWatcher(eventBuffer)
	if err != nil {
		return nil, err
	}
	return &fsNotifier{watcher: w}, nil
}

type fsNotifier struct {
	watcher *fsnotify.Watcher
}

func (n *fsNotifier) Add(dir string) error          { return n.watcher.Add(dir) }
func (n *fsNotifier) Events() <-chan fsnotify.Event { return n.watcher.Events }
func (n *fsNotifier) Errors() <-chan error          { return n.watcher.Errors }
func (n *fsNotifier) Close() error                  { return n.watcher.Close() }
