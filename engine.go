package authcore

import (
	internalaudit "github.com/tauinbox/client-server-starter-app-sub001/internal/audit"
	"github.com/tauinbox/client-server-starter-app-sub001/internal/rate"
	"github.com/tauinbox/client-server-starter-app-sub001/internal/stores"
	"github.com/tauinbox/client-server-starter-app-sub001/jwt"
	"github.com/tauinbox/client-server-starter-app-sub001/password"
	"github.com/tauinbox/client-server-starter-app-sub001/rbac"
	"github.com/tauinbox/client-server-starter-app-sub001/session"
)

// Engine defines a public type used by authcore APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config            Config
	users             UserStore
	roles             rbac.Store
	resolver          *rbac.Resolver
	sessionStore      *session.Store
	rateLimiter       *rate.Limiter
	resetStore        *stores.PasswordResetStore
	verificationStore *stores.EmailVerificationStore
	audit             *internalaudit.Dispatcher
	metrics           *Metrics
	passwordHash      *password.Argon2
	passwordPolicy    password.Policy
	jwtManager        *jwt.Manager
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}
