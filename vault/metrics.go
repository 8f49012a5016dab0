package vault

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertIntegritySpike AlertType = "integrity_violation_spike"
	AlertDecryptSpike   AlertType = "decrypt_failure_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// metricsCollector tracks sliding window counters of security events.
// Repeated integrity failures usually mean something is rewriting durable
// storage behind the vault.
type metricsCollector struct {
	mu  sync.Mutex
	now func() time.Time

	integrity          []time.Time
	integrityWindow    time.Duration
	integrityThreshold int

	decrypt          []time.Time
	decryptWindow    time.Duration
	decryptThreshold int

	counts  map[AuditEvent]int
	alertFn AlertFunc
	pending []AlertEvent
}

const (
	defaultIntegrityWindow    = 10 * time.Minute
	defaultIntegrityThreshold = 3
	defaultDecryptWindow      = 10 * time.Minute
	defaultDecryptThreshold   = 5
)

func newMetricsCollector(alertFn AlertFunc, now func() time.Time) *metricsCollector {
	return &metricsCollector{
		now:                now,
		integrityWindow:    defaultIntegrityWindow,
		integrityThreshold: defaultIntegrityThreshold,
		decryptWindow:      defaultDecryptWindow,
		decryptThreshold:   defaultDecryptThreshold,
		counts:             make(map[AuditEvent]int),
		alertFn:            alertFn,
	}
}

// recordEvent counts an audit event and updates the sliding windows. Alerts
// it raises are queued until flush.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[event]++
	switch event {
	case AuditIntegrityViolation:
		m.integrity = m.check(m.integrity, m.integrityWindow, m.integrityThreshold,
			AlertIntegritySpike, "integrity violations exceed threshold")
	case AuditDecryptFailed:
		m.decrypt = m.check(m.decrypt, m.decryptWindow, m.decryptThreshold,
			AlertDecryptSpike, "decryption failures exceed threshold")
	}
}

func (m *metricsCollector) check(times []time.Time, window time.Duration, threshold int, typ AlertType, msg string) []time.Time {
	now := m.now()
	times = append(times, now)
	times = trimWindow(times, now, window)
	if len(times) < threshold || m.alertFn == nil {
		return times
	}
	m.pending = append(m.pending, AlertEvent{
		Type:      typ,
		Message:   msg,
		Count:     len(times),
		Threshold: threshold,
		Timestamp: now,
	})
	// Reset to avoid repeated alerts within the same spike.
	return times[:0]
}

// flush delivers queued alerts. It must be called without holding any lock
// the AlertFunc might need.
func (m *metricsCollector) flush() {
	if m == nil {
		return
	}
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, e := range pending {
		m.alertFn(e)
	}
}

// snapshot returns a copy of the per-event counters.
func (m *metricsCollector) snapshot() map[AuditEvent]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[AuditEvent]int, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	if start == 0 {
		return times
	}
	n := copy(times, times[start:])
	return times[:n]
}
