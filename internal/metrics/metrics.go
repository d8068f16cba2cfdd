package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pogoda_upstream_calls_total",
			Help: "Total Open-Meteo API calls",
		},
		[]string{"endpoint", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pogoda_upstream_latency_seconds",
			Help:    "Open-Meteo API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	UpstreamCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pogoda_upstream_cache_hits_total",
			Help: "Upstream responses served from the local cache",
		},
		[]string{"endpoint"},
	)

	ReadingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pogoda_readings_ingested_total",
			Help: "Total readings successfully written by ingestion cycles",
		},
		[]string{"city"},
	)

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pogoda_ingest_cycles_total",
			Help: "Ingestion cycles by outcome (run or skipped)",
		},
		[]string{"outcome"},
	)

	AggregatesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pogoda_monthly_aggregates_written_total",
			Help: "Monthly aggregate rows written",
		},
		[]string{"city"},
	)
)
