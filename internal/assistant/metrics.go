package assistant

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foundry_assistant_actions_total",
			Help: "Total number of assistant actions by type and outcome.",
		},
		[]string{"type", "outcome"},
	)
)
