package orm

import "github.com/prometheus/client_golang/prometheus"

// SaveCount counts Save calls by entity type and result.
var SaveCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kvorm",
	Subsystem: "repository",
	Name:      "saves_total",
	Help:      "Number of Save calls by entity type and result.",
}, []string{"type", "result"})

// FindCount counts Find calls by entity type and result ("miss" when the
// record does not exist).
var FindCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kvorm",
	Subsystem: "repository",
	Name:      "finds_total",
	Help:      "Number of Find calls by entity type and result.",
}, []string{"type", "result"})

// IndexOps counts index writes by entity type, index name and command.
var IndexOps = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kvorm",
	Subsystem: "repository",
	Name:      "index_ops_total",
	Help:      "Number of index writes by entity type, index and command.",
}, []string{"type", "index", "op"})

// SaveDuration observes how long each Save takes.
var SaveDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "kvorm",
	Subsystem: "repository",
	Name:      "save_duration_seconds",
	Help:      "Duration of Save calls in seconds.",
	Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
}, []string{"type"})

// Collectors returns every repository metric for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{SaveCount, FindCount, IndexOps, SaveDuration}
}

// result labels
const (
	resultOK    = "ok"
	resultError = "error"
	resultMiss  = "miss"
)

// index op labels
const (
	opSAdd = "sadd"
	opSRem = "srem"
	opZAdd = "zadd"
	opZRem = "zrem"
)
