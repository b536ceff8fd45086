// Package indexmetrics exposes the index's byte accounting as prometheus
// metrics.
//
// A Collector implements the index's accounting hooks; plug it into the
// configuration and register it with a prometheus registry:
//
//	col := indexmetrics.New(prometheus.DefaultRegisterer)
//	ix, err := cchindex.New[*Blob](cchindex.Config[*Blob]{
//		...
//		Accounting: col,
//	})
package indexmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector counts entry allocations and frees and tracks the bytes the
// index currently owns.
type Collector struct {
	liveBytes  prometheus.Gauge
	allocs     prometheus.Counter
	frees      prometheus.Counter
	allocBytes prometheus.Counter
	freedBytes prometheus.Counter
}

// New builds a Collector registered with reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		liveBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cch_index_live_bytes",
			Help: "Bytes currently owned by index entries.",
		}),
		allocs: factory.NewCounter(prometheus.CounterOpts{
			Name: "cch_index_entry_allocs_total",
			Help: "Total index entries allocated.",
		}),
		frees: factory.NewCounter(prometheus.CounterOpts{
			Name: "cch_index_entry_frees_total",
			Help: "Total index entries freed.",
		}),
		allocBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "cch_index_entry_alloc_bytes_total",
			Help: "Total bytes allocated for index entries.",
		}),
		freedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "cch_index_entry_freed_bytes_total",
			Help: "Total bytes returned by freed index entries.",
		}),
	}
}

// OnEntryAlloc implements the accounting hooks.
func (c *Collector) OnEntryAlloc(delta, total int) {
	c.allocs.Inc()
	c.allocBytes.Add(float64(delta))
	c.liveBytes.Set(float64(total))
}

// OnEntryFree implements the accounting hooks.
func (c *Collector) OnEntryFree(delta, total int) {
	c.frees.Inc()
	c.freedBytes.Add(float64(delta))
	c.liveBytes.Set(float64(total))
}
