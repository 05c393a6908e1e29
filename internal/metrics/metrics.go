package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "salonindex"

var (
	enrichmentUnits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrichment_units_total",
		Help:      "Enrichment units processed by outcome",
	}, []string{"outcome"})

	enrichmentRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrichment_runs_total",
		Help:      "Enrichment runs finished by terminal status",
	}, []string{"status"})

	indexBuildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "index_build_duration_seconds",
		Help:      "Time spent scanning partitions for a review-tier index",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	indexPartitionsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "index_partitions_failed_total",
		Help:      "Partitions skipped during index builds because their scan failed",
	})

	stopSignals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stop_signals_total",
		Help:      "Stop signals issued by severity",
	}, []string{"severity"})

	indexQueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "index_query_duration_seconds",
		Help:      "Index query latency by query kind",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
)

var progressDesc = prometheus.NewDesc(
	namespace+"_enrichment_progress",
	"Current enrichment job counters read from the progress record on each scrape",
	[]string{"counter"},
	nil,
)

var runningDesc = prometheus.NewDesc(
	namespace+"_enrichment_running",
	"1 while an enrichment job holds the running flag",
	nil,
	nil,
)

// ProgressSnapshot is the subset of job progress exported as gauges.
type ProgressSnapshot struct {
	Running   bool
	Processed int
	Total     int
	Succeeded int
	Failed    int
}

type ProgressSource func(ctx context.Context) (ProgressSnapshot, error)

// ProgressCollector reads the shared progress record on each scrape.
type ProgressCollector struct {
	source ProgressSource
}

func NewProgressCollector(source ProgressSource) *ProgressCollector {
	return &ProgressCollector{source: source}
}

func (c *ProgressCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- progressDesc
	ch <- runningDesc
}

func (c *ProgressCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap, err := c.source(ctx)
	if err != nil {
		slog.Error("failed to collect enrichment progress metrics", "error", err)
		return
	}

	running := 0.0
	if snap.Running {
		running = 1
	}
	ch <- prometheus.MustNewConstMetric(runningDesc, prometheus.GaugeValue, running)
	for label, v := range map[string]int{
		"processed": snap.Processed,
		"total":     snap.Total,
		"succeeded": snap.Succeeded,
		"failed":    snap.Failed,
	} {
		ch <- prometheus.MustNewConstMetric(progressDesc, prometheus.GaugeValue, float64(v), label)
	}
}

var initOnce sync.Once

// Init registers every collector with the default registry.
// Must be called once at startup; later calls are ignored.
func Init(source ProgressSource) {
	initOnce.Do(func() {
		prometheus.MustRegister(
			enrichmentUnits,
			enrichmentRuns,
			indexBuildDuration,
			indexPartitionsFailed,
			stopSignals,
			indexQueryDuration,
		)
		if source != nil {
			prometheus.MustRegister(NewProgressCollector(source))
		}
	})
}

func RecordUnit(outcome string) {
	enrichmentUnits.WithLabelValues(outcome).Inc()
}

func RecordRun(status string) {
	enrichmentRuns.WithLabelValues(status).Inc()
}

func ObserveIndexBuild(d time.Duration, failedPartitions int) {
	indexBuildDuration.Observe(d.Seconds())
	if failedPartitions > 0 {
		indexPartitionsFailed.Add(float64(failedPartitions))
	}
}

func RecordStopSignal(severity string) {
	stopSignals.WithLabelValues(severity).Inc()
}

func ObserveQuery(kind string, d time.Duration) {
	indexQueryDuration.WithLabelValues(kind).Observe(d.Seconds())
}
