package nosql

import (
	"github.com/prometheus/client_golang/prometheus"
)

// brokenReferenceCounter counts composite-query rows dropped because a
// parent record referenced by a hop no longer exists.
var brokenReferenceCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "acmed",
		Subsystem: "storage",
		Name:      "broken_references_total",
		Help:      "Number of composite-query rows dropped due to a missing parent record",
	},
	[]string{"entity", "hop"},
)

func init() {
	prometheus.MustRegister(brokenReferenceCounter)
}

func (db *DB) countBrokenReference(entity, hop string) {
	brokenReferenceCounter.WithLabelValues(entity, hop).Inc()
	db.logger.Warn("broken reference during composite query",
		"entity", entity, "hop", hop)
}
