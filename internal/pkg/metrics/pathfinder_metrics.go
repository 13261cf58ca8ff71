package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LabelPops counts stop-state labels popped off the priority queue during
	// the labeling loop, split by query direction.
	LabelPops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bilbopass",
		Subsystem: "pathfinder",
		Name:      "label_pops_total",
		Help:      "Total stop-state labels popped during the labeling loop",
	}, []string{"direction"})

	// LabelRequeues counts stale duplicate entries skipped on pop, and
	// improved labels pushed back onto the queue for an already-seen stop.
	LabelRequeues = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bilbopass",
		Subsystem: "pathfinder",
		Name:      "label_requeues_total",
		Help:      "Total label requeues (improved labels pushed for an already-seen stop)",
	}, []string{"direction"})

	// PathEnumerationAttempts counts calls into path enumeration, and
	// PathEnumerationSuccess the subset that yielded a usable itinerary.
	PathEnumerationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bilbopass",
		Subsystem: "pathfinder",
		Name:      "enumeration_attempts_total",
		Help:      "Total path enumeration attempts",
	}, []string{"mode"})

	PathEnumerationSuccess = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bilbopass",
		Subsystem: "pathfinder",
		Name:      "enumeration_success_total",
		Help:      "Total path enumeration attempts that produced a path",
	}, []string{"mode"})

	// CapacityRejections counts links dropped by the capacity check during
	// trip relaxation.
	CapacityRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bilbopass",
		Subsystem: "pathfinder",
		Name:      "capacity_rejections_total",
		Help:      "Total candidate links rejected by the capacity check",
	}, []string{"route_id"})

	// QueryDuration observes the wall-clock time of a full FindPath call.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bilbopass",
		Subsystem: "pathfinder",
		Name:      "query_duration_seconds",
		Help:      "Duration of a full FindPath query",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"direction", "hyperpath", "outcome"})

	// DistinctPathsFound observes how many distinct itineraries a successful
	// query surfaced.
	DistinctPathsFound = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bilbopass",
		Subsystem: "pathfinder",
		Name:      "distinct_paths_found",
		Help:      "Distinct itineraries returned per successful query",
		Buckets:   []float64{1, 2, 3, 5, 8, 13},
	})
)

// direction renders a query's boolean outbound flag as a metric label.
func direction(outbound bool) string {
	if outbound {
		return "outbound"
	}
	return "inbound"
}

// ObserveQuery records a completed FindPath call's duration and outcome.
func ObserveQuery(outbound, hyperpath bool, outcome string, duration time.Duration) {
	QueryDuration.WithLabelValues(direction(outbound), boolLabel(hyperpath), outcome).Observe(duration.Seconds())
}

// ObserveDistinctPaths records how many itineraries a successful query found.
func ObserveDistinctPaths(n int) {
	DistinctPathsFound.Observe(float64(n))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
