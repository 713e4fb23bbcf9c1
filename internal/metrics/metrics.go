// Package metrics: Prometheus-метрики сервиса (RED для HTTP + сброс пароля).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "skinvault"

var (
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route, and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10),
		},
		[]string{"method", "route"},
	)

	// PasswordResetActionsTotal: action = request|validate|reset, outcome = ok|not_found|invalid_token|weak_password|error.
	PasswordResetActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_reset_actions_total",
			Help:      "Password reset protocol operations by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// EmailDispatchTotal: outcome = ok|rate_limited|error.
	EmailDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_dispatch_total",
			Help:      "Transactional emails handed to a provider, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	ResetTokensSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_reset_tokens_swept_total",
			Help:      "Expired or consumed reset tokens deleted by the sweep.",
		},
	)
)
