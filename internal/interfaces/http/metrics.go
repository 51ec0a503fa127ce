package http

import (
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/seoscope/keywordrun/internal/cache"
	"github.com/seoscope/keywordrun/internal/optimize"
	"github.com/seoscope/keywordrun/internal/pipeline"
)

// Metrics is the Prometheus registry for the service: batch and keyword
// counters, per-stage duration histograms, cache and queue gauges, and
// optimizer cycle counts. Everything lives on a private registry so
// tests can build as many instances as they need.
type Metrics struct {
	registry *prometheus.Registry

	StageDuration   *prometheus.HistogramVec
	StageErrors     *prometheus.CounterVec
	Batches         *prometheus.CounterVec
	Keywords        *prometheus.CounterVec
	NicheDetections *prometheus.CounterVec
	OptimizerCycles *prometheus.CounterVec
	CacheHitRatio   prometheus.Gauge
	CacheEntries    prometheus.Gauge
	QueueDepth      prometheus.Gauge
}

// NewMetrics builds and registers the full metric set.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keywordrun_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"stage"},
		),

		StageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keywordrun_stage_errors_total",
				Help: "Total degraded candidates per stage",
			},
			[]string{"stage"},
		),

		Batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keywordrun_batches_total",
				Help: "Total processed batches by outcome and strategy",
			},
			[]string{"status", "strategy"},
		),

		Keywords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keywordrun_keywords_total",
				Help: "Total validated keywords by disposition",
			},
			[]string{"disposition"},
		),

		NicheDetections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keywordrun_niche_detections_total",
				Help: "Total batches resolved per niche",
			},
			[]string{"niche"},
		),

		OptimizerCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keywordrun_optimizer_cycles_total",
				Help: "Total optimizer cycles by outcome",
			},
			[]string{"status"},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "keywordrun_cache_hit_ratio",
				Help: "Current cache hit ratio (0.0 to 1.0)",
			},
		),

		CacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "keywordrun_cache_entries",
				Help: "Entries currently held by the result cache",
			},
		),

		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "keywordrun_queue_depth",
				Help: "Stage tasks waiting in the worker pool queue",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.StageDuration,
		m.StageErrors,
		m.Batches,
		m.Keywords,
		m.NicheDetections,
		m.OptimizerCycles,
		m.CacheHitRatio,
		m.CacheEntries,
		m.QueueDepth,
	)

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBatch folds one finished batch into the counters: batch and
// keyword totals, stage durations and error counts, and the resolved
// niche.
func (m *Metrics) ObserveBatch(res *pipeline.BatchResult) {
	if res == nil {
		return
	}
	m.Batches.WithLabelValues(string(res.Status), string(res.Strategy)).Inc()
	if res.Niche != "" {
		m.NicheDetections.WithLabelValues(res.Niche).Inc()
	}
	for _, v := range res.Validations {
		m.Keywords.WithLabelValues(string(v.Status)).Inc()
	}
	for _, st := range res.Stages {
		m.StageDuration.WithLabelValues(st.Stage).Observe(st.ElapsedMs / 1000)
		if st.Errors > 0 {
			m.StageErrors.WithLabelValues(st.Stage).Add(float64(st.Errors))
		}
	}
}

// ObserveCycle counts one optimizer cycle by its outcome status.
func (m *Metrics) ObserveCycle(res *optimize.CycleResult) {
	if res == nil {
		return
	}
	m.OptimizerCycles.WithLabelValues(string(res.Status)).Inc()
}

// SetCacheStats refreshes the cache gauges from a stats probe.
func (m *Metrics) SetCacheStats(st cache.Stats) {
	m.CacheHitRatio.Set(st.HitRate)
	m.CacheEntries.Set(float64(st.Entries))
}

// SetQueueDepth refreshes the worker pool backlog gauge.
func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

// StageAverage is one stage's aggregate over the process lifetime.
type StageAverage struct {
	Stage string  `json:"stage"`
	Count uint64  `json:"count"`
	AvgMs float64 `json:"avg_ms"`
}

// Snapshot is the dashboard view of the registry: process-lifetime
// totals read back through the client_model gathering path.
type Snapshot struct {
	Batches       map[string]float64 `json:"batches"`
	Keywords      map[string]float64 `json:"keywords"`
	Cycles        map[string]float64 `json:"optimizer_cycles"`
	Niches        map[string]float64 `json:"niches"`
	Stages        []StageAverage     `json:"stages"`
	CacheHitRatio float64            `json:"cache_hit_ratio"`
	CacheEntries  float64            `json:"cache_entries"`
	QueueDepth    float64            `json:"queue_depth"`
}

// Snapshot gathers the registry into a dashboard-shaped summary.
// Counter vectors are folded over their first label; histograms report
// sample count and mean.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Batches:  map[string]float64{},
		Keywords: map[string]float64{},
		Cycles:   map[string]float64{},
		Niches:   map[string]float64{},
	}

	families, err := m.registry.Gather()
	if err != nil {
		return snap
	}

	for _, family := range families {
		switch family.GetName() {
		case "keywordrun_batches_total":
			foldCounter(family, "status", snap.Batches)
		case "keywordrun_keywords_total":
			foldCounter(family, "disposition", snap.Keywords)
		case "keywordrun_optimizer_cycles_total":
			foldCounter(family, "status", snap.Cycles)
		case "keywordrun_niche_detections_total":
			foldCounter(family, "niche", snap.Niches)
		case "keywordrun_stage_duration_seconds":
			snap.Stages = stageAverages(family)
		case "keywordrun_cache_hit_ratio":
			snap.CacheHitRatio = gaugeValue(family)
		case "keywordrun_cache_entries":
			snap.CacheEntries = gaugeValue(family)
		case "keywordrun_queue_depth":
			snap.QueueDepth = gaugeValue(family)
		}
	}
	return snap
}

func foldCounter(family *dto.MetricFamily, label string, out map[string]float64) {
	for _, metric := range family.GetMetric() {
		key := ""
		for _, pair := range metric.GetLabel() {
			if pair.GetName() == label {
				key = pair.GetValue()
				break
			}
		}
		out[key] += metric.GetCounter().GetValue()
	}
}

func stageAverages(family *dto.MetricFamily) []StageAverage {
	out := make([]StageAverage, 0, len(family.GetMetric()))
	for _, metric := range family.GetMetric() {
		stage := ""
		for _, pair := range metric.GetLabel() {
			if pair.GetName() == "stage" {
				stage = pair.GetValue()
				break
			}
		}
		hist := metric.GetHistogram()
		avg := 0.0
		if hist.GetSampleCount() > 0 {
			avg = hist.GetSampleSum() / float64(hist.GetSampleCount()) * 1000
		}
		out = append(out, StageAverage{Stage: stage, Count: hist.GetSampleCount(), AvgMs: avg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

func gaugeValue(family *dto.MetricFamily) float64 {
	metrics := family.GetMetric()
	if len(metrics) == 0 {
		return 0
	}
	return metrics[0].GetGauge().GetValue()
}
