// Package observability owns the Prometheus metric vectors shared by the
// HTTP layer and the collaborators around the core.
package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/harmony-core/internal/core/errs"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"method", "route", "status"},
	)

	serializeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operation_serialize_total",
			Help: "Data operation serializations by wire version and outcome.",
		},
		[]string{"version", "outcome"},
	)

	docCacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stac_doc_cache_results_total",
			Help: "Rendered STAC document cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	storeOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_store_op_total",
			Help: "Job store operations by result.",
		},
		[]string{"op", "result"},
	)

	storeOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_store_op_duration_seconds",
			Help:    "Latency of job store operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_messages_total",
			Help: "Serialized operations sent to workers by result.",
		},
		[]string{"result"},
	)

	publishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stac_publish_objects_total",
			Help: "STAC documents written to the publish bucket by result.",
		},
		[]string{"result"},
	)

	jobUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_updates_consumed_total",
			Help: "Job update messages consumed from Kafka by result.",
		},
		[]string{"result"},
	)

	pollTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workitems_polls_total",
			Help: "Work-items table fetches by phase and result.",
		},
		[]string{"phase", "result"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, serializeTotal, docCacheResults,
		storeOpTotal, storeOpDuration, dispatchTotal, publishTotal, pollTotal, jobUpdatesTotal,
	}
}

func init() {
	Init(prometheus.DefaultRegisterer)
}

// Init registers every vector on reg. Registering twice on the same registry
// is a no-op.
func Init(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveSerialize classifies err by error kind.
func ObserveSerialize(version string, err error) {
	if version == "" {
		version = "latest"
	}
	serializeTotal.WithLabelValues(version, Outcome(err)).Inc()
}

// Outcome maps an error to a short metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errs.ErrUnsupportedVersion):
		return "unsupported_version"
	case errors.Is(err, errs.ErrSchemaValidation):
		return "invalid"
	case errors.Is(err, errs.ErrMalformedInput):
		return "malformed"
	case errors.Is(err, errs.ErrGeometry):
		return "geometry"
	default:
		return "error"
	}
}

func IncDocCache(outcome string) {
	docCacheResults.WithLabelValues(outcome).Inc()
}

func ObserveStoreOp(op string, err error, durationSeconds float64) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	storeOpTotal.WithLabelValues(op, res).Inc()
	storeOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func IncDispatch(result string) {
	dispatchTotal.WithLabelValues(result).Inc()
}

func IncPublish(result string) {
	publishTotal.WithLabelValues(result).Inc()
}

func IncPoll(phase, result string) {
	pollTotal.WithLabelValues(phase, result).Inc()
}

func IncJobUpdate(result string) {
	jobUpdatesTotal.WithLabelValues(result).Inc()
}
