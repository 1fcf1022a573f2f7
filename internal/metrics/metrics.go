package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	KindUser      = "user"
	KindSuperuser = "superuser"
)

// Metrics holds the account collectors. A nil *Metrics records nothing.
type Metrics struct {
	Registry             *prometheus.Registry
	AccountsCreated      *prometheus.CounterVec
	AccountErrors        *prometheus.CounterVec
	PasswordHashDuration prometheus.Histogram
}

// NewMetrics creates a new Metrics instance on its own registry.
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()

	accountsCreated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "accounts_created_total",
			Help:      "Total number of accounts created, by kind",
		},
		[]string{"kind"},
	)

	accountErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "account_errors_total",
			Help:      "Total number of failed account operations, by operation",
		},
		[]string{"op"},
	)

	hashDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: serviceName,
			Name:      "password_hash_duration_seconds",
			Help:      "Time spent hashing passwords",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	registry.MustRegister(accountsCreated, accountErrors, hashDuration)

	return &Metrics{
		Registry:             registry,
		AccountsCreated:      accountsCreated,
		AccountErrors:        accountErrors,
		PasswordHashDuration: hashDuration,
	}
}

func (m *Metrics) AccountCreated(kind string) {
	if m == nil {
		return
	}
	m.AccountsCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) AccountError(op string) {
	if m == nil {
		return
	}
	m.AccountErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) ObservePasswordHash(started time.Time) {
	if m == nil {
		return
	}
	m.PasswordHashDuration.Observe(time.Since(started).Seconds())
}
