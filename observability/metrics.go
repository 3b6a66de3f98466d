// Package observability registers Prometheus collectors for the client-side
// state machines. Nothing here is user-facing; counters exist so a host
// application can export what the client absorbed silently (timeouts,
// missing profiles, upload fallbacks).
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	authChangeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "puppylog",
		Subsystem: "session",
		Name:      "auth_changes_total",
		Help:      "Auth-change notifications processed, by event.",
	}, []string{"event"})

	profileFetchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "puppylog",
		Subsystem: "session",
		Name:      "profile_fetches_total",
		Help:      "Profile fetch resolutions, by outcome (ok, not_found, timeout, error, stale).",
	}, []string{"outcome"})

	sessionStateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "puppylog",
		Subsystem: "session",
		Name:      "state",
		Help:      "Current synchronizer state, 1 for the active state and 0 otherwise.",
	}, []string{"state"})

	activityMutationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "puppylog",
		Subsystem: "activities",
		Name:      "mutations_total",
		Help:      "Activity store operations, by operation and status.",
	}, []string{"op", "status"})

	uploadFallbackCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "puppylog",
		Subsystem: "storage",
		Name:      "upload_fallbacks_total",
		Help:      "Photo uploads that degraded to an inline representation.",
	})
)

var sessionStates = []string{"initializing", "unauthenticated", "awaiting_profile", "ready"}

func init() {
	prometheus.MustRegister(
		authChangeCounter,
		profileFetchCounter,
		sessionStateGauge,
		activityMutationCounter,
		uploadFallbackCounter,
	)
}

// RecordAuthChange counts one processed auth-change notification.
func RecordAuthChange(event string) {
	authChangeCounter.WithLabelValues(event).Inc()
}

// RecordProfileFetch counts one profile fetch resolution.
func RecordProfileFetch(outcome string) {
	profileFetchCounter.WithLabelValues(outcome).Inc()
}

// SetSessionState marks state as active and every other known state idle.
func SetSessionState(state string) {
	for _, s := range sessionStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		sessionStateGauge.WithLabelValues(s).Set(v)
	}
}

// RecordActivityMutation counts one store operation outcome.
func RecordActivityMutation(op, status string) {
	activityMutationCounter.WithLabelValues(op, status).Inc()
}

// RecordUploadFallback counts one inline-photo degradation.
func RecordUploadFallback() {
	uploadFallbackCounter.Inc()
}
