package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(promptsQueuedTotal, progressQueriesTotal, fetchResultsTotal, imagesCleanedTotal)
}

var (
	promptsQueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompts_queued_total",
			Help:      "Prompts submitted to the backend, labeled by workflow kind and status.",
		},
		[]string{"kind", "status"}, // kind: 'text', 'image'; status: 'ok', 'error'
	)

	progressQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_queries_total",
			Help:      "Progress queries, labeled by result.",
		},
		[]string{"result"}, // 'absent', 'running', 'completed', 'error'
	)

	fetchResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_results_total",
			Help:      "Image fetch attempts, labeled by result.",
		},
		[]string{"result"}, // 'stored', 'not_ready', 'storage_error', 'error'
	)

	imagesCleanedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_images_cleaned_total",
			Help:      "Local output images removed by the janitor.",
		},
	)
)

func IncPromptQueued(kind, status string) {
	promptsQueuedTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func IncProgressQuery(result string) {
	progressQueriesTotal.WithLabelValues(norm(result)).Inc()
}

func IncFetchResult(result string) {
	fetchResultsTotal.WithLabelValues(norm(result)).Inc()
}

func AddImagesCleaned(n int) {
	imagesCleanedTotal.Add(float64(n))
}
