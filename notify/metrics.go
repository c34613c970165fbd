package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lendwatch_notifications_sent_total",
		Help: "Notifications delivered and recorded in the ledger, by kind.",
	}, []string{"kind"})
	notificationsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lendwatch_notifications_dropped_total",
		Help: "Notifications suppressed before sending, by kind and reason.",
	}, []string{"kind", "reason"})
	notificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lendwatch_notifications_failed_total",
		Help: "Notifications that failed to deliver, by kind and failure class.",
	}, []string{"kind", "class"})
	deliveryRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lendwatch_delivery_retries_total",
		Help: "Retry attempts against the chat gateway.",
	})
)
