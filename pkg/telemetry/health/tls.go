package health

import (
	"context"
	"strconv"
	"time"

	certtls "mercator-hq/certwatch/pkg/security/tls"
)

// TLSSource is implemented by the server and client TLS contexts.
type TLSSource interface {
	Check(ctx context.Context) error
	Status() certtls.Status
}

// RegisterTLSContext registers a readiness check named "tls_<role>" for a
// TLS context. The result carries the watcher state, the last reload and the
// certificate expiry.
func (c *Checker) RegisterTLSContext(src TLSSource) string {
	name := "tls_" + string(src.Status().Role)
	c.RegisterDetailedCheck(name, src.Check, func() map[string]string {
		return TLSDetails(src.Status(), time.Now())
	})
	return name
}

// TLSDetails renders a TLS context status as health details.
func TLSDetails(s certtls.Status, now time.Time) map[string]string {
	details := map[string]string{
		"role":    string(s.Role),
		"running": strconv.FormatBool(s.Running),
	}
	if s.WatcherState != "" {
		details["watcher_state"] = s.WatcherState
	}
	if !s.LastReload.IsZero() {
		details["last_reload"] = s.LastReload.UTC().Format(time.RFC3339)
	}
	if s.LastError != nil {
		details["last_error"] = s.LastError.Error()
	}
	if !s.NotAfter.IsZero() {
		details["not_after"] = s.NotAfter.UTC().Format(time.RFC3339)
		details["expires_in_days"] = strconv.Itoa(int(s.NotAfter.Sub(now).Hours() / 24))
	}
	return details
}
