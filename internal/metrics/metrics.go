// Package metrics exposes Prometheus counters for the extraction pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithRegistry sets a custom Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// Manager owns the pipeline metrics and the registry they live in. Each
// Manager gets its own registry so tests can build as many as they like.
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	fragmentsSeen       prometheus.Counter
	fragmentsDuplicate  prometheus.Counter
	fragmentsSuppressed prometheus.Counter
	fragmentsUnparsed   prometheus.Counter
	candidates          prometheus.Counter
	gridCorrections     prometheus.Counter
	identityMatches     *prometheus.CounterVec
	provisional         prometheus.Counter
	upsertResults       *prometheus.CounterVec
	batchDuration       prometheus.Histogram
	batchFragments      prometheus.Histogram
}

func New(opts ...Option) *Manager {
	m := &Manager{
		namespace: "gridkeeper",
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}

	auto := promauto.With(m.registry)

	m.fragmentsSeen = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "pipeline",
		Name:      "fragments_seen_total",
		Help:      "Fragments entering the pipeline",
	})
	m.fragmentsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "pipeline",
		Name:      "fragments_duplicate_total",
		Help:      "Fragments skipped because an earlier run already processed them",
	})
	m.fragmentsSuppressed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "pipeline",
		Name:      "fragments_suppressed_total",
		Help:      "Reaction echoes suppressed before extraction",
	})
	m.fragmentsUnparsed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "pipeline",
		Name:      "fragments_unparsed_total",
		Help:      "Fragments that yielded no score candidates",
	})
	m.candidates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "pipeline",
		Name:      "score_candidates_total",
		Help:      "Score candidates extracted from fragments",
	})
	m.gridCorrections = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "pipeline",
		Name:      "grid_corrections_total",
		Help:      "Candidates whose declared outcome was corrected by grid evidence",
	})
	m.identityMatches = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "pipeline",
			Name:      "identity_matches_total",
			Help:      "Resolved identities by match confidence",
		},
		[]string{"confidence"},
	)
	m.provisional = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "pipeline",
		Name:      "provisional_identities_total",
		Help:      "Candidates that failed identity resolution",
	})
	m.upsertResults = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "pipeline",
			Name:      "upsert_results_total",
			Help:      "Ledger upsert outcomes",
		},
		[]string{"result"},
	)
	m.batchDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "pipeline",
		Name:      "batch_duration_seconds",
		Help:      "Time spent processing one fragment batch",
		Buckets:   prometheus.DefBuckets,
	})
	m.batchFragments = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "pipeline",
		Name:      "batch_fragments",
		Help:      "Fragments per batch",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
	})

	return m
}

// Registry returns the registry this Manager's metrics are registered on.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Manager) FragmentSeen()       { m.fragmentsSeen.Inc() }
func (m *Manager) FragmentDuplicate()  { m.fragmentsDuplicate.Inc() }
func (m *Manager) FragmentSuppressed() { m.fragmentsSuppressed.Inc() }
func (m *Manager) FragmentUnparsed()   { m.fragmentsUnparsed.Inc() }

func (m *Manager) CandidatesExtracted(n int) { m.candidates.Add(float64(n)) }
func (m *Manager) GridCorrection()           { m.gridCorrections.Inc() }

func (m *Manager) IdentityMatch(confidence string) {
	m.identityMatches.WithLabelValues(confidence).Inc()
}
func (m *Manager) ProvisionalIdentity() { m.provisional.Inc() }

func (m *Manager) UpsertResult(result string) {
	m.upsertResults.WithLabelValues(result).Inc()
}

func (m *Manager) ObserveBatch(fragments int, d time.Duration) {
	m.batchFragments.Observe(float64(fragments))
	m.batchDuration.Observe(d.Seconds())
}
