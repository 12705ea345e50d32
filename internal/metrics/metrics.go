// Package metrics exposes Prometheus metrics for a virtual disk.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

// DiskMetrics holds all Prometheus metrics for one disk.
type DiskMetrics struct {
	// Occupancy
	BlocksTotal    prometheus.Gauge // blockalloc_blocks_total
	BlocksUsed     prometheus.Gauge // blockalloc_blocks_used
	BlocksFree     prometheus.Gauge // blockalloc_blocks_free
	OrphanBlocks   prometheus.Gauge // blockalloc_orphan_blocks
	Files          prometheus.Gauge // blockalloc_files
	Fragmentation  prometheus.Gauge // blockalloc_fragmentation_percent
	LargestFreeRun prometheus.Gauge // blockalloc_largest_free_run_blocks

	// Operations
	OperationsTotal   *prometheus.CounterVec   // blockalloc_operations_total{operation,status}
	OperationDuration *prometheus.HistogramVec // blockalloc_operation_duration_seconds{operation}
}

// NewDiskMetrics registers the disk metrics with registry, or with the
// default registerer when registry is nil.
func NewDiskMetrics(registry prometheus.Registerer) *DiskMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &DiskMetrics{
		BlocksTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "blockalloc_blocks_total",
			Help: "Number of blocks on the disk",
		}),
		BlocksUsed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "blockalloc_blocks_used",
			Help: "Number of owned blocks, orphans included",
		}),
		BlocksFree: factory.NewGauge(prometheus.GaugeOpts{
			Name: "blockalloc_blocks_free",
			Help: "Number of free blocks",
		}),
		OrphanBlocks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "blockalloc_orphan_blocks",
			Help: "Blocks owned by files that no longer exist",
		}),
		Files: factory.NewGauge(prometheus.GaugeOpts{
			Name: "blockalloc_files",
			Help: "Number of files on the disk",
		}),
		Fragmentation: factory.NewGauge(prometheus.GaugeOpts{
			Name: "blockalloc_fragmentation_percent",
			Help: "Share of free space outside the largest free run",
		}),
		LargestFreeRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "blockalloc_largest_free_run_blocks",
			Help: "Length of the longest run of free blocks",
		}),
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "blockalloc_operations_total",
			Help: "Disk operations by operation and status",
		}, []string{"operation", "status"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blockalloc_operation_duration_seconds",
			Help:    "Disk operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// Observe updates the occupancy gauges from a stats reading.
func (m *DiskMetrics) Observe(stats vdisk.DiskStats) {
	m.BlocksTotal.Set(float64(stats.Geometry.TotalBlocks))
	m.BlocksUsed.Set(float64(stats.UsedBlocks))
	m.BlocksFree.Set(float64(stats.FreeBlocks))
	m.OrphanBlocks.Set(float64(stats.OrphanBlocks))
	m.Files.Set(float64(stats.Files))
	m.Fragmentation.Set(stats.Fragmentation)
	m.LargestFreeRun.Set(float64(stats.LargestFreeRun))
}

// RecordOperation records one operation and how long it took.
func (m *DiskMetrics) RecordOperation(operation, status string, elapsed time.Duration) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}
