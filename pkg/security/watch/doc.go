/*
Package watch keeps a TLS context in sync with the key store and trust store
files it was built from.

A CredentialWatcher resolves the store locations of a Host once, subscribes to
the directories that contain them and reloads the host when one of the store
files is modified. Directories are watched instead of files so that rewrites
performed through a temporary file are still observed; events are filtered by
filename.

# Lifecycle

	w, err := watch.New(host,
		watch.WithLogger(logger),
		watch.WithRecorder(reloadMetrics),
	)
	if err != nil {
		// errors.Is(err, watch.ErrInvalidLocation) or watch.ErrWatchRegistration
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

Start spawns one goroutine. Stop cancels it without waiting; Done is closed
once the goroutine has exited. A stopped watcher cannot be started again.

# Batches

All events queued when the loop wakes up, plus those arriving until the
settle window (WithSettleWindow, DefaultSettleWindow) passes quietly, form a
batch. One in-place rewrite produces several modify events; they land in the
same batch. A batch that contains
at least one modification of a store file reloads the host exactly once.
Reload failures, including panics, are logged as warnings and never stop the
loop: a file that is being rewritten may be unreadable for a moment and the
next event will retry.
*/
package watch
