package watch

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/go-cmp/cmp"
)

// fakeHost is a Host whose Reload outcome is controlled by the test.
type fakeHost struct {
	keyStore   string
	trustStore string

	reloads  atomic.Int32
	reloaded chan struct{}

	mu       sync.Mutex
	err      error
	panicMsg string
}

func newFakeHost(keyStore, trustStore string) *fakeHost {
	return &fakeHost{
		keyStore:   keyStore,
		trustStore: trustStore,
		reloaded:   make(chan struct{}, 16),
	}
}

func (h *fakeHost) KeyStoreLocation() string   { return h.keyStore }
func (h *fakeHost) TrustStoreLocation() string { return h.trustStore }

func (h *fakeHost) Reload() error {
	h.reloads.Add(1)
	// Never block the watch loop on a test that stopped listening.
	defer func() {
		select {
		case h.reloaded <- struct{}{}:
		default:
		}
	}()

	h.mu.Lock()
	err, msg := h.err, h.panicMsg
	h.mu.Unlock()

	if msg != "" {
		panic(msg)
	}
	return err
}

func (h *fakeHost) fail(err error, panicMsg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
	h.panicMsg = panicMsg
}

// fakeNotifier records registrations and lets tests queue event batches.
type fakeNotifier struct {
	mu     sync.Mutex
	dirs   []string
	addErr error

	events chan fsnotify.Event
	errs   chan error

	closeOnce sync.Once
	closed    atomic.Bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		events: make(chan fsnotify.Event, 64),
		errs:   make(chan error, 8),
	}
}

func (n *fakeNotifier) Add(dir string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.addErr != nil {
		return n.addErr
	}
	n.dirs = append(n.dirs, dir)
	return nil
}

func (n *fakeNotifier) Events() <-chan fsnotify.Event { return n.events }
func (n *fakeNotifier) Errors() <-chan error          { return n.errs }

func (n *fakeNotifier) Close() error {
	n.closeOnce.Do(func() {
		n.closed.Store(true)
	})
	return nil
}

func (n *fakeNotifier) registered() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.dirs...)
}

func (n *fakeNotifier) factory() NotifierFactory {
	return func() (Notifier, error) { return n, nil }
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWatcher(t *testing.T, host Host, n *fakeNotifier, opts ...Option) *CredentialWatcher {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger()), WithNotifierFactory(n.factory())}, opts...)
	w, err := New(host, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func waitDone(t *testing.T, w *CredentialWatcher) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatalf("watch loop did not exit, state = %s", w.State())
	}
}

func waitReload(t *testing.T, h *fakeHost) {
	t.Helper()
	select {
	case <-h.reloaded:
	case <-time.After(time.Second):
		t.Fatal("Reload not called")
	}
}

// expectNoReload waits long enough for the loop to have processed queued
// events, settle window included.
func expectNoReload(t *testing.T, h *fakeHost) {
	t.Helper()
	select {
	case <-h.reloaded:
		t.Fatal("unexpected Reload call")
	case <-time.After(4 * DefaultSettleWindow):
	}
}

func write(name string) fsnotify.Event {
	return fsnotify.Event{Name: name, Op: fsnotify.Write}
}

func TestNew_NoStores(t *testing.T) {
	host := newFakeHost("", "")
	created := false
	w, err := New(host,
		WithLogger(discardLogger()),
		WithNotifierFactory(func() (Notifier, error) {
			created = true
			return newFakeNotifier(), nil
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if created {
		t.Error("notifier created without any configured store")
	}
	if len(w.Subscriptions()) != 0 {
		t.Errorf("Subscriptions() = %v, want none", w.Subscriptions())
	}

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	w.Stop()
	waitDone(t, w)

	if got := host.reloads.Load(); got != 0 {
		t.Errorf("reloads = %d, want 0", got)
	}
	if w.State() != StateStopped {
		t.Errorf("State() = %s, want stopped", w.State())
	}
}

func TestNew_SharedDirectory(t *testing.T) {
	n := newFakeNotifier()
	w := newTestWatcher(t, newFakeHost("/certs/server.pem", "file:///certs/ca.pem"), n)

	if diff := cmp.Diff([]string{"/certs"}, n.registered()); diff != "" {
		t.Errorf("registered directories mismatch (-want +got):\n%s", diff)
	}

	want := []Subscription{{Dir: "/certs", Stores: []StoreKind{KeyStore, TrustStore}}}
	if diff := cmp.Diff(want, w.Subscriptions()); diff != "" {
		t.Errorf("Subscriptions() mismatch (-want +got):\n%s", diff)
	}
}

func TestNew_DistinctDirectories(t *testing.T) {
	n := newFakeNotifier()
	w := newTestWatcher(t, newFakeHost("/etc/keys/server.pem", "/etc/trust/ca.pem"), n)

	if diff := cmp.Diff([]string{"/etc/keys", "/etc/trust"}, n.registered()); diff != "" {
		t.Errorf("registered directories mismatch (-want +got):\n%s", diff)
	}
	if len(w.Subscriptions()) != 2 {
		t.Errorf("Subscriptions() count = %d, want 2", len(w.Subscriptions()))
	}
}

func TestNew_TrustStoreOnly(t *testing.T) {
	n := newFakeNotifier()
	w := newTestWatcher(t, newFakeHost("", "/etc/trust/ca.pem"), n)

	want := []Subscription{{Dir: "/etc/trust", Stores: []StoreKind{TrustStore}}}
	if diff := cmp.Diff(want, w.Subscriptions()); diff != "" {
		t.Errorf("Subscriptions() mismatch (-want +got):\n%s", diff)
	}
}

func TestNew_InvalidLocation(t *testing.T) {
	n := newFakeNotifier()
	_, err := New(newFakeHost("https://example.com/server.pem", ""),
		WithLogger(discardLogger()),
		WithNotifierFactory(n.factory()),
	)
	if !errors.Is(err, ErrInvalidLocation) {
		t.Fatalf("New() error = %v, want ErrInvalidLocation", err)
	}
	if len(n.registered()) != 0 {
		t.Errorf("registered = %v, want none", n.registered())
	}
}

func TestNew_RegistrationError(t *testing.T) {
	n := newFakeNotifier()
	n.addErr = os.ErrPermission

	w, err := New(newFakeHost("/etc/keys/server.pem", ""),
		WithLogger(discardLogger()),
		WithNotifierFactory(n.factory()),
	)
	if w != nil {
		t.Error("New() returned a watcher on registration failure")
	}
	if !errors.Is(err, ErrWatchRegistration) {
		t.Fatalf("New() error = %v, want ErrWatchRegistration", err)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("New() error = %v, want wrapped os.ErrPermission", err)
	}
	if !n.closed.Load() {
		t.Error("notifier not closed after registration failure")
	}

	var regErr *RegistrationError
	if !errors.As(err, &regErr) || regErr.Dir != "/etc/keys" {
		t.Errorf("RegistrationError = %+v, want Dir /etc/keys", regErr)
	}
}

func TestNew_NotifierFactoryError(t *testing.T) {
	_, err := New(newFakeHost("/etc/keys/server.pem", ""),
		WithLogger(discardLogger()),
		WithNotifierFactory(func() (Notifier, error) { return nil, errors.New("too many open files") }),
	)
	if !errors.Is(err, ErrWatchRegistration) {
		t.Fatalf("New() error = %v, want ErrWatchRegistration", err)
	}
}

func TestNew_MissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing", "server.pem")
	_, err := New(newFakeHost(missing, ""), WithLogger(discardLogger()))
	if !errors.Is(err, ErrWatchRegistration) {
		t.Fatalf("New() error = %v, want ErrWatchRegistration", err)
	}
}

func TestNew_NilHost(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("New(nil) error = nil, want error")
	}
}

func TestWatcher_ReloadOnKeyStoreWrite(t *testing.T) {
	host := newFakeHost("/certs/server.pem", "/certs/ca.pem")
	n := newFakeNotifier()

	var triggers []ReloadTrigger
	var mu sync.Mutex
	w := newTestWatcher(t, host, n, WithOnReload(func(tr ReloadTrigger) {
		mu.Lock()
		triggers = append(triggers, tr)
		mu.Unlock()
	}))

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	n.events <- write("/certs/server.pem")
	waitReload(t, host)
	expectNoReload(t, host)

	if got := host.reloads.Load(); got != 1 {
		t.Errorf("reloads = %d, want 1", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(triggers) != 1 {
		t.Fatalf("OnReload calls = %d, want 1", len(triggers))
	}
	if triggers[0].Kind != KeyStore {
		t.Errorf("trigger kind = %s, want %s", triggers[0].Kind, KeyStore)
	}
	if triggers[0].ID == "" {
		t.Error("trigger ID is empty")
	}
}

func TestWatcher_ReloadOnTrustStoreWrite(t *testing.T) {
	host := newFakeHost("/keys/server.pem", "/trust/ca.pem")
	n := newFakeNotifier()
	w := newTestWatcher(t, host, n)

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	n.events <- write("/trust/ca.pem")
	waitReload(t, host)
}

func TestWatcher_CoalescesBatch(t *testing.T) {
	host := newFakeHost("/certs/server.pem", "/certs/ca.pem")
	n := newFakeNotifier()
	w := newTestWatcher(t, host, n)

	// Queued before Start so the loop sees them as one batch.
	n.events <- write("/certs/server.pem")
	n.events <- write("/certs/server.pem")
	n.events <- write("/certs/ca.pem")

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitReload(t, host)
	expectNoReload(t, host)

	if got := host.reloads.Load(); got != 1 {
		t.Errorf("reloads = %d, want 1", got)
	}
}

func TestWatcher_CoalescesStaggeredEvents(t *testing.T) {
	host := newFakeHost("/certs/server.pem", "/certs/ca.pem")
	n := newFakeNotifier()
	w := newTestWatcher(t, host, n)
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Events of one rewrite trickle in after the loop has woken up.
	n.events <- write("/certs/server.pem")
	time.Sleep(DefaultSettleWindow / 5)
	n.events <- write("/certs/server.pem")
	time.Sleep(DefaultSettleWindow / 5)
	n.events <- write("/certs/ca.pem")

	waitReload(t, host)
	expectNoReload(t, host)

	if got := host.reloads.Load(); got != 1 {
		t.Errorf("reloads = %d, want 1", got)
	}
}

func TestWatcher_StopDuringSettleWindow(t *testing.T) {
	host := newFakeHost("/certs/server.pem", "")
	n := newFakeNotifier()
	w := newTestWatcher(t, host, n, WithSettleWindow(time.Hour))
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	n.events <- write("/certs/server.pem")
	time.Sleep(20 * time.Millisecond)
	w.Stop()
	waitDone(t, w)

	if got := host.reloads.Load(); got != 0 {
		t.Errorf("reloads = %d, want 0 for a batch discarded by Stop", got)
	}
}

func TestWatcher_IgnoresUnrelatedEvents(t *testing.T) {
	host := newFakeHost("/certs/server.pem", "/certs/ca.pem")
	n := newFakeNotifier()
	w := newTestWatcher(t, host, n)

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	n.events <- write("/certs/other.pem")
	n.events <- write("/certs/server.pem.tmp")
	n.events <- fsnotify.Event{Name: "/certs/server.pem", Op: fsnotify.Create}
	n.events <- fsnotify.Event{Name: "/certs/server.pem", Op: fsnotify.Remove}
	n.events <- fsnotify.Event{Name: "/certs/ca.pem", Op: fsnotify.Chmod}

	expectNoReload(t, host)
	if got := host.reloads.Load(); got != 0 {
		t.Errorf("reloads = %d, want 0", got)
	}
}

func TestWatcher_CreateEventsOption(t *testing.T) {
	host := newFakeHost("/certs/server.pem", "")
	n := newFakeNotifier()
	w := newTestWatcher(t, host, n, WithCreateEvents(true))

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	n.events <- fsnotify.Event{Name: "/certs/server.pem", Op: fsnotify.Create}
	waitReload(t, host)
}

func TestWatcher_SurvivesReloadFailure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		panicMsg string
	}{
		{name: "error", err: errors.New("tls: failed to find any PEM data")},
		{name: "panic", panicMsg: "nil key manager"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := newFakeHost("/certs/server.pem", "")
			host.fail(tt.err, tt.panicMsg)
			n := newFakeNotifier()
			rec := newRecordingRecorder()
			w := newTestWatcher(t, host, n, WithRecorder(rec))

			if err := w.Start(); err != nil {
				t.Fatalf("Start() error = %v", err)
			}

			n.events <- write("/certs/server.pem")
			waitReload(t, host)

			host.fail(nil, "")
			n.events <- write("/certs/server.pem")
			waitReload(t, host)

			if got := host.reloads.Load(); got != 2 {
				t.Errorf("reloads = %d, want 2", got)
			}
			if w.State() != StateRunning {
				t.Errorf("State() = %s, want running", w.State())
			}

			// RecordReload runs after Reload returns.
			deadline := time.Now().Add(time.Second)
			for len(rec.reloadErrors()) < 2 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			errs := rec.reloadErrors()
			if len(errs) != 2 {
				t.Fatalf("recorded reloads = %d, want 2", len(errs))
			}
			if !errors.Is(errs[0], ErrReloadFailed) {
				t.Errorf("first reload error = %v, want ErrReloadFailed", errs[0])
			}
			if errs[1] != nil {
				t.Errorf("second reload error = %v, want nil", errs[1])
			}
		})
	}
}

func TestWatcher_NotifierErrorDoesNotStop(t *testing.T) {
	host := newFakeHost("/certs/server.pem", "")
	n := newFakeNotifier()
	w := newTestWatcher(t, host, n)

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	n.errs <- fsnotify.ErrEventOverflow
	n.events <- write("/certs/server.pem")
	waitReload(t, host)
}

func TestWatcher_StopWhileWaiting(t *testing.T) {
	host := newFakeHost("/certs/server.pem", "")
	n := newFakeNotifier()
	w := newTestWatcher(t, host, n)

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	w.Stop()
	waitDone(t, w)

	n.events <- write("/certs/server.pem")
	expectNoReload(t, host)

	if w.State() != StateStopped {
		t.Errorf("State() = %s, want stopped", w.State())
	}
	if !n.closed.Load() {
		t.Error("notifier not closed after stop")
	}
}

func TestWatcher_EventStreamClosed(t *testing.T) {
	host := newFakeHost("/certs/server.pem", "")
	n := newFakeNotifier()
	w := newTestWatcher(t, host, n)

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	close(n.events)
	waitDone(t, w)

	if w.State() != StateStopped {
		t.Errorf("State() = %s, want stopped", w.State())
	}
}

func TestWatcher_StopBeforeStart(t *testing.T) {
	n := newFakeNotifier()
	w := newTestWatcher(t, newFakeHost("/certs/server.pem", ""), n)

	w.Stop()
	w.Stop()
	waitDone(t, w)

	if !n.closed.Load() {
		t.Error("notifier not closed by Stop before Start")
	}
	if err := w.Start(); !errors.Is(err, ErrNotRestartable) {
		t.Errorf("Start() after Stop error = %v, want ErrNotRestartable", err)
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	w := newTestWatcher(t, newFakeHost("", ""), newFakeNotifier())

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	w.Stop()
	w.Stop()
	waitDone(t, w)
}

func TestWatcher_StartTwice(t *testing.T) {
	w := newTestWatcher(t, newFakeHost("", ""), newFakeNotifier())

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := w.Start(); !errors.Is(err, ErrNotRestartable) {
		t.Errorf("second Start() error = %v, want ErrNotRestartable", err)
	}
}

func TestWatcher_StateTransitions(t *testing.T) {
	rec := newRecordingRecorder()
	w := newTestWatcher(t, newFakeHost("/certs/server.pem", ""), newFakeNotifier(), WithRecorder(rec))

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	w.Stop()
	waitDone(t, w)

	want := []State{StateCreated, StateRunning, StateStopRequested, StateStopped}
	if diff := cmp.Diff(want, rec.stateHistory()); diff != "" {
		t.Errorf("state history mismatch (-want +got):\n%s", diff)
	}
	if rec.subscriptions.Load() != 1 {
		t.Errorf("subscriptions = %d, want 1", rec.subscriptions.Load())
	}
}

func TestWatcher_FilesystemIntegration(t *testing.T) {
	dir := t.TempDir()
	keyStore := filepath.Join(dir, "server.pem")
	trustStore := filepath.Join(dir, "ca.pem")
	for _, f := range []string{keyStore, trustStore} {
		if err := os.WriteFile(f, []byte("initial"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	host := newFakeHost(keyStore, "file://"+trustStore)
	w, err := New(host, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(w.Stop)

	if len(w.Subscriptions()) != 1 {
		t.Fatalf("Subscriptions() count = %d, want 1", len(w.Subscriptions()))
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	expectNoReload(t, host)

	if err := os.WriteFile(trustStore, []byte("rotated"), 0600); err != nil {
		t.Fatal(err)
	}
	waitReload(t, host)

	w.Stop()
	waitDone(t, w)
}

func TestWatcher_SingleWriteReloadsOnce(t *testing.T) {
	dir := t.TempDir()
	keyStore := filepath.Join(dir, "server.pem")
	if err := os.WriteFile(keyStore, []byte("initial"), 0600); err != nil {
		t.Fatal(err)
	}

	host := newFakeHost(keyStore, "")
	w, err := New(host, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(w.Stop)
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	const rounds = 10
	for i := 0; i < rounds; i++ {
		// Truncate plus write: two modify events for one rewrite.
		if err := os.WriteFile(keyStore, []byte(fmt.Sprintf("rotation %d", i)), 0600); err != nil {
			t.Fatal(err)
		}
		waitReload(t, host)
		expectNoReload(t, host)
	}

	if got := host.reloads.Load(); got != rounds {
		t.Errorf("reloads = %d, want %d (one per write)", got, rounds)
	}
}

// recordingRecorder captures Recorder calls for assertions.
type recordingRecorder struct {
	mu            sync.Mutex
	states        []State
	errs          []error
	events        int
	subscriptions atomic.Int32
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{}
}

func (r *recordingRecorder) RecordEvent(op string, matched bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events++
}

func (r *recordingRecorder) RecordReload(source string, kind StoreKind, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingRecorder) SetWatcherState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingRecorder) SetSubscriptions(n int) {
	r.subscriptions.Store(int32(n))
}

func (r *recordingRecorder) reloadErrors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recordingRecorder) stateHistory() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}
