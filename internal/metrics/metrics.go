package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingester metrics
var (
	ChainHead = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingester_chain_head",
		Help: "The latest block number reported by the node",
	})

	Checkpoint = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ingester_checkpoint_block",
		Help: "The last fully ingested block number per table",
	}, []string{"table"})

	RowsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingester_rows_committed_total",
		Help: "The total number of rows committed per table",
	}, []string{"table"})

	SuccessfulCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingester_successful_commits_total",
		Help: "The total number of successful sub-range commits",
	})

	ReorgCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingester_reorg_refetches_total",
		Help: "The number of sub-range re-fetches caused by a detected reorg",
	})

	RetryCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingester_retries_total",
		Help: "The number of retried node or store operations",
	})

	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingester_fetch_duration_seconds",
		Help:    "Time taken to fetch one sub-range from the node",
		Buckets: prometheus.DefBuckets,
	})

	CommitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingester_commit_duration_seconds",
		Help:    "Time taken to commit one sub-range to the store",
		Buckets: prometheus.DefBuckets,
	})
)

// Exporter metrics
var (
	ExportedFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exporter_files_written_total",
		Help: "The total number of export files written",
	})

	LastExportedBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "exporter_last_exported_block",
		Help: "The last block number written to an export file",
	})
)
