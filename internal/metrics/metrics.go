package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Auth counters, labelled by outcome ("ok" or a failure reason).
var (
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicwatch",
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})

	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicwatch",
		Subsystem: "auth",
		Name:      "refreshes_total",
		Help:      "Refresh rotations by outcome.",
	}, []string{"outcome"})

	Logouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicwatch",
		Subsystem: "auth",
		Name:      "logouts_total",
		Help:      "Logout calls by kind (single, all).",
	}, []string{"kind"})

	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicwatch",
		Subsystem: "auth",
		Name:      "registrations_total",
		Help:      "Registration attempts by outcome.",
	}, []string{"outcome"})
)
