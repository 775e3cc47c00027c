package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/certwatch/pkg/security/watch"
)

// Role identifies which side of a connection a context configures.
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// ErrNotLoaded is returned when credentials are requested before Start.
var ErrNotLoaded = errors.New("tls credentials not loaded")

// Material is one consistent load of both stores.
type Material struct {
	// Certificate is nil when no key store is configured.
	Certificate *tls.Certificate
	// Leaf is the parsed first certificate of the key store.
	Leaf *x509.Certificate
	// Roots is nil when no trust store is configured.
	Roots *x509.CertPool
	// TrustAnchors are the certificates of the trust store.
	TrustAnchors []*x509.Certificate
	LoadedAt     time.Time
}

// ExpiryRecorder is implemented by recorders that track the NotAfter of the
// loaded certificates.
type ExpiryRecorder interface {
	SetCertificateExpiry(role string, kind watch.StoreKind, notAfter time.Time)
}

// Status is a point-in-time view of a context.
type Status struct {
	Role         Role
	Running      bool
	WatcherState string
	LastReload   time.Time
	LastError    error
	NotAfter     time.Time
}

// Context holds TLS credentials loaded from a key store and a trust store and
// swaps them atomically whenever the stores change. It implements watch.Host.
//
// Server and client behaviour is provided by ServerContext and ClientContext.
type Context struct {
	role      Role
	cfg       Config
	logger    *slog.Logger
	recorder  watch.Recorder
	watchOpts []watch.Option
	onReload  []func(*Material)

	build func(*Material) *tls.Config
	check func() error

	material atomic.Pointer[Material]
	snapshot atomic.Pointer[tls.Config]

	// reloadMu serializes Reload between the watcher, the scheduler and
	// direct callers.
	reloadMu   sync.Mutex
	lastError  error
	lastReload time.Time

	mu        sync.Mutex
	running   bool
	watcher   *watch.CredentialWatcher
	scheduler *ReloadScheduler
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) {
		c.logger = logger
	}
}

// WithRecorder sets the telemetry recorder shared with the watcher.
func WithRecorder(r watch.Recorder) Option {
	return func(c *Context) {
		c.recorder = r
	}
}

// WithWatchOptions passes extra options to the credential watcher.
func WithWatchOptions(opts ...watch.Option) Option {
	return func(c *Context) {
		c.watchOpts = append(c.watchOpts, opts...)
	}
}

// WithOnReload registers a callback invoked with the new material after
// every successful load, including the initial one.
func WithOnReload(fn func(*Material)) Option {
	return func(c *Context) {
		c.onReload = append(c.onReload, fn)
	}
}

func newContext(role Role, cfg Config, opts ...Option) *Context {
	c := &Context{role: role, cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "tls_context", "role", string(role))
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	return c
}

// KeyStoreLocation implements watch.Host.
func (c *Context) KeyStoreLocation() string { return c.cfg.KeyStore }

// TrustStoreLocation implements watch.Host.
func (c *Context) TrustStoreLocation() string { return c.cfg.TrustStore }

// Role returns the side of the connection this context configures.
func (c *Context) Role() Role { return c.role }

// Reload reads both stores and, when they are valid, replaces the active
// configuration. On error the previous configuration stays in effect.
func (c *Context) Reload() error {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	m, err := c.load()
	if err != nil {
		c.lastError = err
		return err
	}

	c.material.Store(m)
	c.snapshot.Store(c.build(m))
	c.lastError = nil
	c.lastReload = m.LoadedAt

	c.observe(m)
	for _, fn := range c.onReload {
		fn(m)
	}
	return nil
}

func (c *Context) load() (*Material, error) {
	m := &Material{LoadedAt: time.Now()}

	if c.cfg.KeyStore != "" {
		cert, err := LoadKeyStore(c.cfg.KeyStore)
		if err != nil {
			return nil, err
		}
		m.Certificate = cert
		m.Leaf = cert.Leaf
	}

	if c.cfg.TrustStore != "" {
		pool, anchors, err := LoadTrustStore(c.cfg.TrustStore)
		if err != nil {
			return nil, err
		}
		m.Roots = pool
		m.TrustAnchors = anchors
	}

	return m, nil
}

// observe logs and records expiry information for freshly loaded material.
func (c *Context) observe(m *Material) {
	expiry, _ := c.recorder.(ExpiryRecorder)

	if m.Leaf != nil {
		days, warning := CheckCertificateExpiration(m.Leaf, c.cfg.expiryWarning())
		if warning != "" {
			c.logger.Warn("Key store certificate expiring soon",
				"subject", m.Leaf.Subject.String(),
				"days_until_expiry", days,
				"warning", warning,
			)
		}
		c.logger.Debug("Loaded key store",
			"subject", m.Leaf.Subject.String(),
			"not_after", m.Leaf.NotAfter,
			"chain_length", len(m.Certificate.Certificate),
		)
		if expiry != nil {
			expiry.SetCertificateExpiry(string(c.role), watch.KeyStore, m.Leaf.NotAfter)
		}
	}

	if len(m.TrustAnchors) > 0 {
		earliest := m.TrustAnchors[0].NotAfter
		for _, anchor := range m.TrustAnchors[1:] {
			if anchor.NotAfter.Before(earliest) {
				earliest = anchor.NotAfter
			}
		}
		c.logger.Debug("Loaded trust store", "certificates", len(m.TrustAnchors))
		if expiry != nil {
			expiry.SetCertificateExpiry(string(c.role), watch.TrustStore, earliest)
		}
	}
}

// Start loads the stores, then starts the credential watcher and the
// optional reload schedule. It fails when the initial load fails, or when
// the watcher cannot be registered unless the watch is optional.
func (c *Context) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("tls %s context already started", c.role)
	}

	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid tls %s configuration: %w", c.role, err)
	}
	if c.check != nil {
		if err := c.check(); err != nil {
			return err
		}
	}

	start := time.Now()
	err := c.Reload()
	c.recorder.RecordReload("startup", "", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to load tls %s credentials: %w", c.role, err)
	}

	if !c.cfg.Watch.Disabled {
		if err := c.startWatcher(); err != nil {
			if !c.cfg.Watch.Optional {
				return err
			}
			c.logger.Warn("Credential watcher unavailable, continuing without reload on change", "error", err)
		}
	}

	if c.cfg.ReloadSchedule != "" {
		scheduler := NewReloadScheduler(c.cfg.ReloadSchedule, c.scheduledReload, c.logger)
		if err := scheduler.Start(ctx); err != nil {
			c.stopLocked()
			return err
		}
		c.scheduler = scheduler
	}

	c.running = true
	c.logger.Info("TLS context started",
		"key_store", c.cfg.KeyStore,
		"trust_store", c.cfg.TrustStore,
		"watch", c.watcher != nil,
		"reload_schedule", c.cfg.ReloadSchedule,
	)
	return nil
}

func (c *Context) startWatcher() error {
	opts := []watch.Option{
		watch.WithLogger(c.logger),
		watch.WithRecorder(c.recorder),
		watch.WithCreateEvents(c.cfg.Watch.IncludeCreate),
	}
	if c.cfg.Watch.SettleWindow > 0 {
		opts = append(opts, watch.WithSettleWindow(c.cfg.Watch.SettleWindow))
	}
	opts = append(opts, c.watchOpts...)

	w, err := watch.New(c, opts...)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		w.Stop()
		return err
	}
	c.watcher = w
	return nil
}

func (c *Context) scheduledReload() error {
	return c.ReloadFrom("schedule")
}

// ReloadFrom reloads both stores and records the outcome under source, for
// example "signal" when an operator sent SIGHUP.
func (c *Context) ReloadFrom(source string) error {
	start := time.Now()
	err := c.Reload()
	c.recorder.RecordReload(source, "", time.Since(start), err)
	return err
}

// Stop stops the watcher and the schedule. The loaded credentials stay in
// use. A stopped context can be started again.
func (c *Context) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Context) stopLocked() {
	if c.watcher != nil {
		c.watcher.Stop()
		c.watcher = nil
	}
	if c.scheduler != nil {
		c.scheduler.Stop()
		c.scheduler = nil
	}
	if c.running {
		c.logger.Info("TLS context stopped")
	}
	c.running = false
}

// Watcher returns the running credential watcher, or nil.
func (c *Context) Watcher() *watch.CredentialWatcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watcher
}

// Material returns the active credentials, or nil before the first load.
func (c *Context) Material() *Material {
	return c.material.Load()
}

// Current returns the active configuration, or nil before the first load.
// The returned value must not be modified.
func (c *Context) Current() *tls.Config {
	return c.snapshot.Load()
}

// Status reports the lifecycle and last reload outcome.
func (c *Context) Status() Status {
	c.mu.Lock()
	s := Status{Role: c.role, Running: c.running}
	if c.watcher != nil {
		s.WatcherState = c.watcher.State().String()
	}
	c.mu.Unlock()

	c.reloadMu.Lock()
	s.LastReload = c.lastReload
	s.LastError = c.lastError
	c.reloadMu.Unlock()

	if m := c.material.Load(); m != nil && m.Leaf != nil {
		s.NotAfter = m.Leaf.NotAfter
	}
	return s
}

// Check is a readiness probe. It fails before the first load, when the
// watcher has exited on its own, or when the loaded certificate has expired.
func (c *Context) Check(ctx context.Context) error {
	s := c.Status()
	if c.material.Load() == nil {
		return ErrNotLoaded
	}
	if s.Running && !c.cfg.Watch.Disabled && s.WatcherState == watch.StateStopped.String() {
		return fmt.Errorf("credential watcher for tls %s context has stopped", c.role)
	}
	if !s.NotAfter.IsZero() && time.Now().After(s.NotAfter) {
		return fmt.Errorf("tls %s certificate expired on %s", c.role, s.NotAfter.Format(time.RFC3339))
	}
	return nil
}

type nopRecorder struct{}

func (nopRecorder) RecordEvent(string, bool)                                   {}
func (nopRecorder) RecordReload(string, watch.StoreKind, time.Duration, error) {}
func (nopRecorder) SetWatcherState(watch.State)                                {}
func (nopRecorder) SetSubscriptions(int)                                       {}
