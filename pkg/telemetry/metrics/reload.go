package metrics

import (
	"time"

	"mercator-hq/certwatch/pkg/config"
	"mercator-hq/certwatch/pkg/security/watch"

	"github.com/prometheus/client_golang/prometheus"
)

// allStores labels reloads that were not triggered by a single store, such as
// the initial load and scheduled reloads.
const allStores = "all"

// watcherStates are exported as one series each so that dashboards can
// alert on "stopped" without knowing the numeric encoding.
var watcherStates = []watch.State{
	watch.StateCreated,
	watch.StateRunning,
	watch.StateStopRequested,
	watch.StateStopped,
}

// ReloadMetrics tracks credential watching and reloading.
//
// Metrics:
//   - certwatch_tls_watch_events_total: Filesystem events by op and whether they matched a store
//   - certwatch_tls_reloads_total: Reloads by source, store and result
//   - certwatch_tls_reload_duration_seconds: Reload duration histogram
//   - certwatch_tls_last_reload_success_timestamp_seconds: Time of the last successful reload
//   - certwatch_tls_watcher_state: 1 for the current watcher state, 0 otherwise
//   - certwatch_tls_watch_subscriptions: Watched directories
//   - certwatch_tls_certificate_expiry_timestamp_seconds: NotAfter of the loaded certificates
//
// Every series carries a role label ("server" or "client"); use Recorder to
// obtain a watch.Recorder bound to one role.
type ReloadMetrics struct {
	eventsTotal       *prometheus.CounterVec
	reloadsTotal      *prometheus.CounterVec
	reloadDuration    *prometheus.HistogramVec
	lastSuccess       *prometheus.GaugeVec
	watcherState      *prometheus.GaugeVec
	subscriptions     *prometheus.GaugeVec
	certificateExpiry *prometheus.GaugeVec
}

// NewReloadMetrics creates and registers reload metrics with the provided registry.
func NewReloadMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ReloadMetrics {
	rm := &ReloadMetrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "watch_events_total",
				Help:      "Filesystem events observed in store directories",
			},
			[]string{"role", "op", "matched"},
		),

		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "reloads_total",
				Help:      "Credential reloads by trigger source, store and result",
			},
			[]string{"role", "source", "store", "result"},
		),

		reloadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "reload_duration_seconds",
				Help:      "Duration of credential reloads in seconds",
				Buckets:   cfg.ReloadDurationBuckets,
			},
			[]string{"role", "source"},
		),

		lastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "last_reload_success_timestamp_seconds",
				Help:      "Unix time of the last successful credential reload",
			},
			[]string{"role"},
		),

		watcherState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "watcher_state",
				Help:      "Credential watcher lifecycle state (1 for the current state)",
			},
			[]string{"role", "state"},
		),

		subscriptions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "watch_subscriptions",
				Help:      "Number of directories watched for store changes",
			},
			[]string{"role"},
		),

		certificateExpiry: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "certificate_expiry_timestamp_seconds",
				Help:      "NotAfter of the loaded key store leaf and the earliest expiring trust anchor",
			},
			[]string{"role", "store"},
		),
	}

	registry.MustRegister(
		rm.eventsTotal,
		rm.reloadsTotal,
		rm.reloadDuration,
		rm.lastSuccess,
		rm.watcherState,
		rm.subscriptions,
		rm.certificateExpiry,
	)

	return rm
}

// Recorder returns a watch.Recorder that labels everything with role.
// It also records certificate expiry for TLS contexts.
func (rm *ReloadMetrics) Recorder(role string) *RoleRecorder {
	return &RoleRecorder{metrics: rm, role: role}
}

// RoleRecorder is a watch.Recorder bound to one TLS role.
type RoleRecorder struct {
	metrics *ReloadMetrics
	role    string
}

// RecordEvent implements watch.Recorder.
func (r *RoleRecorder) RecordEvent(op string, matched bool) {
	m := "false"
	if matched {
		m = "true"
	}
	r.metrics.eventsTotal.WithLabelValues(r.role, op, m).Inc()
}

// RecordReload implements watch.Recorder.
//
// Parameters:
//   - source: What triggered the reload ("watch", "schedule", "startup")
//   - kind: Store whose change triggered the reload, empty for all stores
//   - duration: Time spent reading and validating the stores
//   - err: Reload outcome
func (r *RoleRecorder) RecordReload(source string, kind watch.StoreKind, duration time.Duration, err error) {
	store := string(kind)
	if store == "" {
		store = allStores
	}
	result := "success"
	if err != nil {
		result = "failure"
	}

	r.metrics.reloadsTotal.WithLabelValues(r.role, source, store, result).Inc()
	r.metrics.reloadDuration.WithLabelValues(r.role, source).Observe(duration.Seconds())
	if err == nil {
		r.metrics.lastSuccess.WithLabelValues(r.role).SetToCurrentTime()
	}
}

// SetWatcherState implements watch.Recorder.
func (r *RoleRecorder) SetWatcherState(state watch.State) {
	for _, s := range watcherStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.metrics.watcherState.WithLabelValues(r.role, s.String()).Set(v)
	}
}

// SetSubscriptions implements watch.Recorder.
func (r *RoleRecorder) SetSubscriptions(n int) {
	r.metrics.subscriptions.WithLabelValues(r.role).Set(float64(n))
}

// SetCertificateExpiry records the NotAfter of a loaded store. The role
// argument is ignored in favour of the recorder's own.
func (r *RoleRecorder) SetCertificateExpiry(_ string, kind watch.StoreKind, notAfter time.Time) {
	r.metrics.certificateExpiry.WithLabelValues(r.role, string(kind)).Set(float64(notAfter.Unix()))
}
