package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudpath",
		Name:      "operations_total",
		Help:      "File service operations by backend, operation and outcome.",
	}, []string{"backend", "op", "outcome"})
	Plans = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudpath",
		Name:      "plans_total",
		Help:      "Bulk plans finished, by backend, operation and status.",
	}, []string{"backend", "operation", "status"})
	ObjectsCopied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudpath",
		Name:      "objects_copied_total",
		Help:      "Objects copied by the bulk engine.",
	}, []string{"backend"})
	ObjectsDeleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudpath",
		Name:      "objects_deleted_total",
		Help:      "Objects deleted by the bulk engine.",
	}, []string{"backend"})
)

var once sync.Once

// Init registers collectors; safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(Operations, Plans, ObjectsCopied, ObjectsDeleted)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Outcome labels an operation result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
