package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartsession_sessions_created_total",
		Help: "Number of permission sessions created.",
	})

	SessionsRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartsession_sessions_revoked_total",
		Help: "Number of permission sessions revoked by their owner.",
	})

	SessionsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartsession_sessions_deleted_total",
		Help: "Number of permission sessions deleted by their owner.",
	})

	RedemptionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartsession_redemptions_recorded_total",
		Help: "Number of redemption attempts recorded, by outcome.",
	}, []string{"status"})

	AuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartsession_auth_failures_total",
		Help: "Number of rejected bearer tokens.",
	})
)
