package agent

import "github.com/prometheus/client_golang/prometheus"

var (
	pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hangar_agent_polls_total",
			Help: "Total queue polls by result.",
		},
		[]string{"result"},
	)

	dispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hangar_agent_dispatches_total",
			Help: "Total dispatched requests by terminal outcome.",
		},
		[]string{"outcome"},
	)

	inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hangar_agent_in_flight_runs",
			Help: "Number of runs currently tracked by the agent.",
		},
	)
)

func init() {
	prometheus.MustRegister(pollsTotal)
	prometheus.MustRegister(dispatchesTotal)
	prometheus.MustRegister(inFlight)
}
