package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

var errStopRequested = errors.New("stop requested")

// CredentialWatcher reloads a Host whenever its key store or trust store file
// is modified on disk.
//
// It subscribes to the directories holding the stores rather than the files,
// so tools that rewrite a file in place through a temporary file keep being
// observed, and filters events by filename. A watcher runs a single goroutine
// and is not restartable.
type CredentialWatcher struct {
	host     Host
	logger   *slog.Logger
	recorder Recorder
	onReload func(ReloadTrigger)
	ops      fsnotify.Op
	settle   time.Duration

	keyStore   *StoreReference
	trustStore *StoreReference
	subs       []Subscription
	notifier   Notifier

	mu     sync.Mutex
	state  atomic.Int32
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Option configures a CredentialWatcher.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	recorder      Recorder
	onReload      func(ReloadTrigger)
	factory       NotifierFactory
	includeCreate bool
	settle        time.Duration
}

// DefaultSettleWindow is how long a batch stays open after its last event.
// A single in-place rewrite (truncate, then write) produces several modify
// events that fsnotify delivers a few microseconds apart.
const DefaultSettleWindow = 50 * time.Millisecond

// maxSettleRounds bounds a batch under a continuous stream of events.
const maxSettleRounds = 20

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithOnReload registers a callback invoked after every successful reload.
// It runs on the watcher goroutine and must not block.
func WithOnReload(fn func(ReloadTrigger)) Option {
	return func(o *options) {
		o.onReload = fn
	}
}

// WithNotifierFactory replaces the fsnotify-backed notifier.
func WithNotifierFactory(f NotifierFactory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithCreateEvents also treats create events on a store filename as a
// modification. Rotation tools that rename a new file over the old one only
// produce create events.
func WithCreateEvents(enabled bool) Option {
	return func(o *options) {
		o.includeCreate = enabled
	}
}

// WithSettleWindow sets how long a batch keeps collecting events after the
// last one arrived. Zero only takes the events already queued.
func WithSettleWindow(d time.Duration) Option {
	return func(o *options) {
		o.settle = d
	}
}

// New resolves the host's store locations and subscribes to their
// directories. Directories shared by both stores are subscribed once.
//
// Errors wrap ErrInvalidLocation or ErrWatchRegistration. On error no
// subscription is left open.
func New(host Host, opts ...Option) (*CredentialWatcher, error) {
	if host == nil {
		return nil, fmt.Errorf("credential watcher requires a host")
	}

	o := options{factory: NewFSNotifier, settle: DefaultSettleWindow}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}

	keyStore, err := ResolveLocation(KeyStore, host.KeyStoreLocation())
	if err != nil {
		return nil, err
	}
	trustStore, err := ResolveLocation(TrustStore, host.TrustStoreLocation())
	if err != nil {
		return nil, err
	}

	w := &CredentialWatcher{
		host:       host,
		logger:     o.logger.With("component", "credential_watcher"),
		recorder:   o.recorder,
		onReload:   o.onReload,
		ops:        fsnotify.Write,
		settle:     o.settle,
		keyStore:   keyStore,
		trustStore: trustStore,
		subs:       subscriptions(keyStore, trustStore),
		done:       make(chan struct{}),
	}
	if o.includeCreate {
		w.ops |= fsnotify.Create
	}

	if len(w.subs) > 0 {
		if err := w.subscribe(o.factory); err != nil {
			return nil, err
		}
	}

	w.recorder.SetSubscriptions(len(w.subs))
	w.recorder.SetWatcherState(StateCreated)
	return w, nil
}

// subscriptions groups the present references by directory, keeping the
// key store first.
func subscriptions(refs ...*StoreReference) []Subscription {
	var subs []Subscription
	index := make(map[string]int)
	for _, ref := range refs {
		if ref == nil {
			continue
		}
		if i, ok := index[ref.Dir]; ok {
			subs[i].Stores = append(subs[i].Stores, ref.Kind)
			continue
		}
		index[ref.Dir] = len(subs)
		subs = append(subs, Subscription{Dir: ref.Dir, Stores: []StoreKind{ref.Kind}})
	}
	return subs
}

func (w *CredentialWatcher) subscribe(factory NotifierFactory) error {
	notifier, err := factory()
	if err != nil {
		return &RegistrationError{Cause: err}
	}

	for _, sub := range w.subs {
		if err := notifier.Add(sub.Dir); err != nil {
			_ = notifier.Close() // Best effort close on error path
			return &RegistrationError{Dir: sub.Dir, Cause: err}
		}
		w.logger.Debug("Watching store directory", "dir", sub.Dir, "stores", sub.Stores)
	}

	w.notifier = notifier
	return nil
}

// Start launches the watch loop and returns immediately.
func (w *CredentialWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if State(w.state.Load()) != StateCreated {
		return ErrNotRestartable
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	w.cancel = cancel
	w.setState(StateRunning)

	w.logger.Info("Credential watcher started",
		"key_store", pathOf(w.keyStore),
		"trust_store", pathOf(w.trustStore),
		"subscriptions", len(w.subs),
	)

	go w.run(ctx)
	return nil
}

// Stop requests the watch loop to exit. It does not wait for the goroutine;
// use Done for that. Only the first call has an effect.
func (w *CredentialWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch State(w.state.Load()) {
	case StateCreated:
		// Never started: release the subscriptions here.
		w.closeNotifier()
		w.setState(StateStopped)
		close(w.done)
	case StateRunning:
		// The loop may have exited on its own in the meantime; it owns the
		// transition to Stopped.
		if w.state.CompareAndSwap(int32(StateRunning), int32(StateStopRequested)) {
			w.recorder.SetWatcherState(StateStopRequested)
		}
		w.cancel(errStopRequested)
	}
}

// Done is closed once the watch loop has exited.
func (w *CredentialWatcher) Done() <-chan struct{} {
	return w.done
}

// State returns the current lifecycle state.
func (w *CredentialWatcher) State() State {
	return State(w.state.Load())
}

// Subscriptions returns the watched directories.
func (w *CredentialWatcher) Subscriptions() []Subscription {
	out := make([]Subscription, len(w.subs))
	copy(out, w.subs)
	return out
}

func (w *CredentialWatcher) run(ctx context.Context) {
	defer func() {
		w.closeNotifier()
		w.setState(StateStopped)
		close(w.done)
	}()

	// Nil channels block forever, which is what a watcher without stores
	// should do until it is stopped.
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w.notifier != nil {
		events = w.notifier.Events()
		errs = w.notifier.Errors()
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Warn("Credential watcher interrupted", "reason", context.Cause(ctx))
			return

		case event, ok := <-events:
			if !ok {
				w.logger.Warn("Credential watcher interrupted", "error", ErrWatchInterrupted)
				return
			}
			batch := w.collect(ctx, event, events)
			// A stop that raced with the batch wins.
			if ctx.Err() != nil {
				w.logger.Warn("Credential watcher interrupted", "reason", context.Cause(ctx), "discarded_events", len(batch))
				return
			}
			w.processBatch(batch)

		case err, ok := <-errs:
			if !ok {
				w.logger.Warn("Credential watcher interrupted", "error", ErrWatchInterrupted)
				return
			}
			// Overflow and similar errors lose events but do not end the watch.
			w.logger.Warn("Credential watcher error", "error", err)
		}
	}
}

// drain returns first plus every event already queued behind it.
func drain(first fsnotify.Event, events <-chan fsnotify.Event) []fsnotify.Event {
	batch := []fsnotify.Event{first}
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return batch
			}
			batch = append(batch, event)
		default:
			return batch
		}
	}
}

// collect builds a batch: first, everything already queued, then every event
// arriving before the settle window passes without a new one. Stop ends the
// window early.
func (w *CredentialWatcher) collect(ctx context.Context, first fsnotify.Event, events <-chan fsnotify.Event) []fsnotify.Event {
	batch := drain(first, events)
	if w.settle <= 0 {
		return batch
	}

	timer := time.NewTimer(w.settle)
	defer timer.Stop()
	deadline := time.Now().Add(maxSettleRounds * w.settle)

	for {
		select {
		case <-ctx.Done():
			return batch
		case <-timer.C:
			return batch
		case event, ok := <-events:
			if !ok {
				return batch
			}
			batch = append(batch, drain(event, events)...)
			if time.Now().After(deadline) {
				return batch
			}
			timer.Reset(w.settle)
		}
	}
}

// processBatch reloads the host at most once for the batch.
func (w *CredentialWatcher) processBatch(batch []fsnotify.Event) {
	var trigger *ReloadTrigger
	for _, event := range batch {
		if trigger != nil {
			w.recorder.RecordEvent(event.Op.String(), false)
			continue
		}
		kind, ok := w.match(event)
		w.recorder.RecordEvent(event.Op.String(), ok)
		if !ok {
			continue
		}
		t := newTrigger(kind, event.Name, event.Op.String())
		trigger = &t
	}

	if trigger == nil {
		return
	}

	w.logger.Debug("Store file modified",
		"trigger_id", trigger.ID,
		"store", trigger.Kind,
		"path", trigger.Path,
		"op", trigger.Op,
		"batch_size", len(batch),
	)

	start := time.Now()
	err := w.reload(*trigger)
	w.recorder.RecordReload("watch", trigger.Kind, time.Since(start), err)
	if err != nil {
		w.logger.Warn("Error reloading SSL credentials",
			"component", "reload",
			"kind", "ReloadFailed",
			"trigger_id", trigger.ID,
			"store", trigger.Kind,
			"error", err,
		)
		return
	}

	w.logger.Info("Reloaded SSL credentials",
		"trigger_id", trigger.ID,
		"store", trigger.Kind,
		"path", trigger.Path,
	)
	if w.onReload != nil {
		w.onReload(*trigger)
	}
}

// match reports which store an event refers to. Only the filename is
// compared; the key store wins when both stores share a filename.
func (w *CredentialWatcher) match(event fsnotify.Event) (StoreKind, bool) {
	if event.Op&w.ops == 0 {
		return "", false
	}
	name := filepath.Base(event.Name)
	if w.keyStore != nil && name == w.keyStore.Name {
		return KeyStore, true
	}
	if w.trustStore != nil && name == w.trustStore.Name {
		return TrustStore, true
	}
	return "", false
}

// reload calls Host.Reload and converts both errors and panics into a
// ReloadError.
func (w *CredentialWatcher) reload(trigger ReloadTrigger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ReloadError{Trigger: trigger, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	if rerr := w.host.Reload(); rerr != nil {
		return &ReloadError{Trigger: trigger, Cause: rerr}
	}
	return nil
}

func (w *CredentialWatcher) setState(s State) {
	w.state.Store(int32(s))
	w.recorder.SetWatcherState(s)
}

func (w *CredentialWatcher) closeNotifier() {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Close(); err != nil {
		w.logger.Debug("Failed to close notifier", "error", err)
	}
}

func pathOf(ref *StoreReference) string {
	if ref == nil {
		return ""
	}
	return ref.Path
}
