package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	contentWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foundry_content_writes_total",
			Help: "Total number of content writes from the admin API by kind and operation.",
		},
		[]string{"kind", "op"},
	)

	subscriptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foundry_subscriptions_total",
			Help: "Total number of newsletter subscription changes by result.",
		},
		[]string{"result"},
	)

	contactSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foundry_contact_submissions_total",
			Help: "Total number of contact form submissions by status.",
		},
		[]string{"status"},
	)

	mediaUploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foundry_media_uploads_total",
		Help: "Total number of files stored through signed uploads.",
	})

	chatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foundry_chat_requests_total",
			Help: "Total number of admin assistant chat requests by mode.",
		},
		[]string{"mode"},
	)

	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foundry_admin_logins_total",
			Help: "Total number of admin login attempts by status.",
		},
		[]string{"status"},
	)
)
