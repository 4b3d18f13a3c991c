// Package metrics holds the Prometheus collectors exported by Trove.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "trove"

type Metrics struct {
	TransfersTotal      *prometheus.CounterVec
	ChunkAttemptsTotal  *prometheus.CounterVec
	BytesDownloaded     *prometheus.CounterVec
	ChunksInFlight      *prometheus.GaugeVec
	ChunkDuration       *prometheus.HistogramVec
	FinalizedFileSize   prometheus.Histogram
	ProcessingJobsTotal *prometheus.CounterVec
	ProcessingDuration  *prometheus.HistogramVec
	ScanItemsTotal      *prometheus.CounterVec
	IndexPublishTotal   *prometheus.CounterVec
	IndexQueueDepth     prometheus.Gauge
}

// New constructs the Trove collectors and registers them, along with the
// standard Go and process collectors, against the registerer given.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Transfers which reached a terminal status, by status.",
		}, []string{"status"}),
		ChunkAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_attempts_total",
			Help:      "Chunk download attempts by registrable domain and outcome.",
		}, []string{"domain", "outcome"}),
		BytesDownloaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes written to chunk part files, by registrable domain.",
		}, []string{"domain"}),
		ChunksInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunks_in_flight",
			Help:      "Chunks currently being downloaded by this process, by registrable domain.",
		}, []string{"domain"}),
		ChunkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Time taken to run a claimed chunk to an outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"domain"}),
		FinalizedFileSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "finalized_file_size_bytes",
			Help:      "Size of files published by the finalizer.",
			Buckets:   []float64{1024, 10240, 102400, 1048576, 10485760, 104857600, 1073741824},
		}),
		ProcessingJobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processing_jobs_total",
			Help:      "Processing jobs which reached an outcome, by media family and outcome.",
		}, []string{"family", "outcome"}),
		ProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_seconds",
			Help:      "Time taken by a processor to handle a single file.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"family"}),
		ScanItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_items_total",
			Help:      "Items enumerated by scans, by routing decision.",
		}, []string{"route"}),
		IndexPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_publish_total",
			Help:      "Index notifications published, by outcome.",
		}, []string{"outcome"}),
		IndexQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_queue_depth",
			Help:      "Index notifications waiting to be published.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TransfersTotal,
		m.ChunkAttemptsTotal,
		m.BytesDownloaded,
		m.ChunksInFlight,
		m.ChunkDuration,
		m.FinalizedFileSize,
		m.ProcessingJobsTotal,
		m.ProcessingDuration,
		m.ScanItemsTotal,
		m.IndexPublishTotal,
		m.IndexQueueDepth,
	)

	return m
}
