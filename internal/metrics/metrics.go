// Package metrics holds the prometheus collectors shared by the lock,
// index and task layers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var LockAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tablecat",
	Subsystem: "lock",
	Name:      "attempts",
}, []string{"result"})

var IndexOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tablecat",
	Subsystem: "index",
	Name:      "operations",
}, []string{"collection", "op"})

var IndexErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tablecat",
	Subsystem: "index",
	Name:      "errors",
}, []string{"collection", "op"})

var TaskResults = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tablecat",
	Subsystem: "tasks",
	Name:      "results",
}, []string{"name", "status"})

var TaskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "tablecat",
	Subsystem: "tasks",
	Name:      "duration_seconds",
	Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
}, []string{"name"})

var TasksRunning = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "tablecat",
	Subsystem: "tasks",
	Name:      "running",
})

// Lock attempt results.
const (
	LockAcquired = "acquired"
	LockBusy     = "busy"
	LockRaced    = "raced"
	LockError    = "error"
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		LockAttempts,
		IndexOperations,
		IndexErrors,
		TaskResults,
		TaskDuration,
		TasksRunning,
	}
}

// Register adds every collector to reg. Already registered collectors are
// skipped so tests can build several servers in one process.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}
