package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(jobsReceivedTotal, statusRequestsTotal) }

var jobsReceivedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "stub_jobs_received_total",
		Help: "Total number of jobs submitted to the stub endpoint.",
	},
)

var statusRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "stub_status_requests_total",
		Help: "Total number of status requests served, labeled by reported status.",
	},
	[]string{"status"},
)

func IncJobReceived() {
	jobsReceivedTotal.Inc()
}

func IncStatusRequest(status string) {
	statusRequestsTotal.WithLabelValues(norm(status)).Inc()
}

func norm(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "unknown"
	}
	return s
}
