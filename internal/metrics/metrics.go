package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a single counter or histogram slot.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricLoginLocked
	MetricLoginUnverified
	MetricAccountLocked
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricRefreshRateLimited
	MetricSessionCreated
	MetricSessionInvalidated
	MetricLogout
	MetricLogoutAll
	MetricRegisterSuccess
	MetricRegisterDuplicate
	MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidOld
	MetricPasswordResetRequest
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricPasswordResetAttemptsExceeded
	MetricEmailVerificationRequest
	MetricEmailVerificationSuccess
	MetricEmailVerificationFailure
	MetricPermissionDenied
	MetricValidateLatency
	metricIDCount
)

// MetricIDCount is the number of defined metric slots, exported for the
// root package aliases and the exporters.
const MetricIDCount = metricIDCount

var metricNames = [metricIDCount]string{
	MetricLoginSuccess:                  "login_success",
	MetricLoginFailure:                  "login_failure",
	MetricLoginRateLimited:              "login_rate_limited",
	MetricLoginLocked:                   "login_locked",
	MetricLoginUnverified:               "login_unverified",
	MetricAccountLocked:                 "account_locked",
	MetricRefreshSuccess:                "refresh_success",
	MetricRefreshFailure:                "refresh_failure",
	MetricRefreshReuseDetected:          "refresh_reuse_detected",
	MetricRefreshRateLimited:            "refresh_rate_limited",
	MetricSessionCreated:                "session_created",
	MetricSessionInvalidated:            "session_invalidated",
	MetricLogout:                        "logout",
	MetricLogoutAll:                     "logout_all",
	MetricRegisterSuccess:               "register_success",
	MetricRegisterDuplicate:             "register_duplicate",
	MetricPasswordChangeSuccess:         "password_change_success",
	MetricPasswordChangeInvalidOld:      "password_change_invalid_old",
	MetricPasswordResetRequest:          "password_reset_request",
	MetricPasswordResetConfirmSuccess:   "password_reset_confirm_success",
	MetricPasswordResetConfirmFailure:   "password_reset_confirm_failure",
	MetricPasswordResetAttemptsExceeded: "password_reset_attempts_exceeded",
	MetricEmailVerificationRequest:      "email_verification_request",
	MetricEmailVerificationSuccess:      "email_verification_success",
	MetricEmailVerificationFailure:      "email_verification_failure",
	MetricPermissionDenied:              "permission_denied",
	MetricValidateLatency:               "validate_latency",
}

// Name returns the stable snake_case name of id, or "unknown" for ids out
// of range.
func (id MetricID) Name() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// BucketBoundsMS holds the histogram upper bounds in milliseconds; the last
// bucket is +Inf.
var BucketBoundsMS = [histBucketCount - 1]int64{5, 10, 25, 50, 100, 250, 500}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config controls whether metric collection is active.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics holds the counter and histogram storage. The zero value is a
// disabled instance; all methods are nil-safe.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// Snapshot is a point-in-time deep copy of all metric values.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// New creates a Metrics instance. When cfg.Enabled is false, every write is
// a no-op.
func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatency,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc atomically increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the latency histogram for id. Only
// MetricValidateLatency carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot returns a deep copy of all counters and histograms.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	for i, bound := range BucketBoundsMS {
		if ms <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
