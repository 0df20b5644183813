package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolConns, cacheLookupsTotal, storageUploadsTotal) }

var (
	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pool_conns",
			Help:      "Postgres pool connections by state.",
		},
		[]string{"state"}, // total, idle, acquired
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Redis cache lookups by cache and result.",
		},
		[]string{"cache", "result"},
	)

	storageUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "uploads_total",
			Help:      "Result images copied to object storage, by driver and outcome.",
		},
		[]string{"driver", "status"},
	)
)

func SetDBPoolStats(total, idle, acquired int32) {
	dbPoolConns.WithLabelValues("total").Set(float64(total))
	dbPoolConns.WithLabelValues("idle").Set(float64(idle))
	dbPoolConns.WithLabelValues("acquired").Set(float64(acquired))
}

// IncCacheRequest counts one lookup; result is "hit" or "miss".
func IncCacheRequest(cache, result string) {
	cacheLookupsTotal.WithLabelValues(norm(cache), norm(result)).Inc()
}

func IncStorageUpload(driver string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	storageUploadsTotal.WithLabelValues(norm(driver), status).Inc()
}
