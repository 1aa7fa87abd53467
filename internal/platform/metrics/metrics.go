// Package metrics holds all Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the lifecycle counters services increment. All metrics are
// registered on the default registry via promauto.
type Metrics struct {
	AccountsRegistered  prometheus.Counter
	EmailsConfirmed     prometheus.Counter
	LoginSuccesses      prometheus.Counter
	LoginFailures       prometheus.Counter
	LockoutsTriggered   prometheus.Counter
	PasswordResets      prometheus.Counter
	NotificationsFailed prometheus.Counter
	RequestDuration     *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		AccountsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shopcore_accounts_registered_total",
			Help: "Total number of accounts created through registration",
		}),
		EmailsConfirmed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shopcore_emails_confirmed_total",
			Help: "Total number of successful email confirmations",
		}),
		LoginSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shopcore_login_successes_total",
			Help: "Total number of successful logins",
		}),
		LoginFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shopcore_login_failures_total",
			Help: "Total number of failed login attempts",
		}),
		LockoutsTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shopcore_lockouts_triggered_total",
			Help: "Total number of accounts that reached the lockout threshold",
		}),
		PasswordResets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shopcore_password_resets_total",
			Help: "Total number of completed password resets",
		}),
		NotificationsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shopcore_notifications_failed_total",
			Help: "Total number of outbound notifications that could not be delivered",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shopcore_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}
