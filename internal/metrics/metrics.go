package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector records ingestion and generation activity.
type Collector interface {
	ItemsIngested(source string, n int)
	DuplicatesSkipped(source string, n int)
	RecordsMalformed(source string, n int)
	SourceFailed(source string)
	ItemClaimed()
	ItemCompleted()
	ItemReleased(reason string)
	TargetFailed(target string)
	ObserveCompletion(target string, seconds float64)
}

// Nop is a Collector that records nothing.
type Nop struct{}

var _ Collector = Nop{}

func (Nop) ItemsIngested(string, int) {}
func (Nop) DuplicatesSkipped(string, int) {}
func (Nop) RecordsMalformed(string, int) {}
func (Nop) SourceFailed(string) {}
func (Nop) ItemClaimed() {}
func (Nop) ItemCompleted() {}
func (Nop) ItemReleased(string) {}
func (Nop) TargetFailed(string) {}
func (Nop) ObserveCompletion(string, float64) {}

// Prometheus implements Collector. Vectors are registered once on construction.
type Prometheus struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	ingested      *prometheus.CounterVec
	duplicates    *prometheus.CounterVec
	malformed     *prometheus.CounterVec
	sourceFailure *prometheus.CounterVec
	claims        prometheus.Counter
	completions   prometheus.Counter
	releases      *prometheus.CounterVec
	targetFailure *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

var _ Collector = (*Prometheus)(nil)

// NewPrometheus uses prometheus.DefaultRegisterer when reg is nil and
// "trendforge" when namespace is empty.
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "trendforge"
	}
	p := &Prometheus{reg: reg, namespace: namespace}
	p.ensureRegistered()
	return p
}

func (p *Prometheus) ensureRegistered() {
	p.once.Do(func() {
		p.ingested = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "ingest",
			Name:      "items_total",
			Help:      "New items persisted per source.",
		}, []string{"source"})
		p.duplicates = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "ingest",
			Name:      "duplicates_total",
			Help:      "Records skipped because they were already stored.",
		}, []string{"source"})
		p.malformed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "ingest",
			Name:      "malformed_total",
			Help:      "Records dropped for lacking a stable identifier.",
		}, []string{"source"})
		p.sourceFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "ingest",
			Name:      "source_failures_total",
			Help:      "Sources that could not be fetched or stored during a run.",
		}, []string{"source"})
		p.claims = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "generation",
			Name:      "claims_total",
			Help:      "Items claimed by a generation worker.",
		})
		p.completions = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "generation",
			Name:      "completions_total",
			Help:      "Items moved to Completed.",
		})
		p.releases = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "generation",
			Name:      "releases_total",
			Help:      "Claims given back to the queue by reason.",
		}, []string{"reason"})
		p.targetFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "generation",
			Name:      "target_failures_total",
			Help:      "Targets that failed after exhausting retries.",
		}, []string{"target"})
		p.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "generation",
			Name:      "completion_seconds",
			Help:      "Completion service call duration per target.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 90},
		}, []string{"target"})

		p.reg.MustRegister(
			p.ingested, p.duplicates, p.malformed, p.sourceFailure,
			p.claims, p.completions, p.releases, p.targetFailure, p.latency,
		)
	})
}

func (p *Prometheus) ItemsIngested(source string, n int) {
	p.ensureRegistered()
	p.ingested.WithLabelValues(source).Add(float64(n))
}

func (p *Prometheus) DuplicatesSkipped(source string, n int) {
	p.ensureRegistered()
	p.duplicates.WithLabelValues(source).Add(float64(n))
}

func (p *Prometheus) RecordsMalformed(source string, n int) {
	p.ensureRegistered()
	p.malformed.WithLabelValues(source).Add(float64(n))
}

func (p *Prometheus) SourceFailed(source string) {
	p.ensureRegistered()
	p.sourceFailure.WithLabelValues(source).Inc()
}

func (p *Prometheus) ItemClaimed() {
	p.ensureRegistered()
	p.claims.Inc()
}

func (p *Prometheus) ItemCompleted() {
	p.ensureRegistered()
	p.completions.Inc()
}

func (p *Prometheus) ItemReleased(reason string) {
	p.ensureRegistered()
	p.releases.WithLabelValues(reason).Inc()
}

func (p *Prometheus) TargetFailed(target string) {
	p.ensureRegistered()
	p.targetFailure.WithLabelValues(target).Inc()
}

func (p *Prometheus) ObserveCompletion(target string, seconds float64) {
	p.ensureRegistered()
	p.latency.WithLabelValues(target).Observe(seconds)
}
