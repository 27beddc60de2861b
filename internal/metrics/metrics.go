// Package metrics registers the Prometheus collectors exposed at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PushSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabhub_push_sends_total",
		Help: "Web push delivery attempts by result (ok, rejected, gone, error).",
	}, []string{"result"})

	SubscriptionsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collabhub_push_subscriptions_pruned_total",
		Help: "Push subscriptions removed after the push service reported them gone.",
	})

	PolicyViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collabhub_policy_violations_total",
		Help: "Governance rule matches recorded by the policy engine.",
	})

	ModuleMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabhub_module_messages_total",
		Help: "Module host control messages by disposition (handled, dropped_origin, rejected).",
	}, []string{"disposition"})
)
