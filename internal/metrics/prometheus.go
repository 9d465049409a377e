package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AssessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accred_assessments_total",
			Help: "Total assessments by terminal status",
		},
		[]string{"status"},
	)

	AssessmentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accred_assessment_duration_seconds",
			Help:    "End-to-end assessment run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"scope_type"},
	)

	ActiveAssessments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "accred_active_assessments",
			Help: "Assessments currently in processing state",
		},
	)

	JudgmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accred_judgments_total",
			Help: "Element judgments by verdict",
		},
		[]string{"verdict"},
	)

	JudgmentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accred_judgment_duration_seconds",
			Help:    "Per-element judgment latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	JudgmentParseFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accred_judgment_parse_failures_total",
			Help: "Judgments coerced to non-compliant because the response could not be parsed",
		},
	)

	ProviderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accred_provider_failures_total",
			Help: "Judgment provider call failures",
		},
		[]string{"provider"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accred_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accred_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	ChapterScores = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accred_chapter_score",
			Help:    "Distribution of computed chapter compliance scores",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	ActionsUpserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accred_corrective_actions_upserted_total",
			Help: "Corrective action upserts by priority",
		},
		[]string{"priority"},
	)

	OverridesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accred_reviewer_overrides_total",
			Help: "Reviewer verdict overrides applied",
		},
	)

	EvidenceIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accred_evidence_ingested_total",
			Help: "Evidence documents registered by document type",
		},
		[]string{"doc_type"},
	)
)

func Init() {
	prometheus.MustRegister(AssessmentsTotal)
	prometheus.MustRegister(AssessmentDuration)
	prometheus.MustRegister(ActiveAssessments)
	prometheus.MustRegister(JudgmentsTotal)
	prometheus.MustRegister(JudgmentDuration)
	prometheus.MustRegister(JudgmentParseFailures)
	prometheus.MustRegister(ProviderFailures)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(ChapterScores)
	prometheus.MustRegister(ActionsUpserted)
	prometheus.MustRegister(OverridesTotal)
	prometheus.MustRegister(EvidenceIngested)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
