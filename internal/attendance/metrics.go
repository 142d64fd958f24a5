package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendx",
		Name:      "submissions_total",
		Help:      "Submission attempts by outcome (accepted or rejection kind).",
	}, []string{"outcome"})

	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendx",
		Name:      "sessions_started_total",
		Help:      "Sessions started by lecturers.",
	})

	sessionsEnded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendx",
		Name:      "sessions_ended_total",
		Help:      "Sessions explicitly ended.",
	})
)

func observeSubmission(err error) {
	if err == nil {
		submissionsTotal.WithLabelValues("accepted").Inc()
		return
	}
	if verr, ok := err.(*ValidationError); ok {
		submissionsTotal.WithLabelValues(string(verr.Kind)).Inc()
		return
	}
	submissionsTotal.WithLabelValues("error").Inc()
}
