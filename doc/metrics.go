package doc

import (
	"github.com/prometheus/client_golang/prometheus"
)

var OpsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "verdoc",
	Subsystem: "doc",
	Name:      "ops_applied",
}, []string{"kind", "origin"})

// Collector reports the state of one replica and its pebble store.
type Collector struct {
	doc *Doc

	ops      *prometheus.Desc
	replicas *prometheus.Desc
	fields   *prometheus.Desc

	memtableSize    *prometheus.Desc
	memtableCount   *prometheus.Desc
	walSize         *prometheus.Desc
	walBytesWritten *prometheus.Desc
}

func NewCollector(d *Doc) *Collector {
	labels := prometheus.Labels{"replica": d.Name()}
	return &Collector{
		doc: d,
		ops: prometheus.NewDesc(
			"verdoc_doc_ops",
			"Number of ops in the causal frontier",
			nil, labels,
		),
		replicas: prometheus.NewDesc(
			"verdoc_doc_replicas",
			"Number of replicas that contributed ops",
			nil, labels,
		),
		fields: prometheus.NewDesc(
			"verdoc_doc_fields",
			"Number of sequences in the document",
			nil, labels,
		),
		memtableSize: prometheus.NewDesc(
			"verdoc_pebble_memtable_size_bytes",
			"Current size of the memtable in bytes",
			nil, labels,
		),
		memtableCount: prometheus.NewDesc(
			"verdoc_pebble_memtable_count_total",
			"Current count of memtables",
			nil, labels,
		),
		walSize: prometheus.NewDesc(
			"verdoc_pebble_wal_size_bytes",
			"Size of live WAL data in bytes",
			nil, labels,
		),
		walBytesWritten: prometheus.NewDesc(
			"verdoc_pebble_wal_bytes_written_total",
			"Total physical bytes written to the WAL",
			nil, labels,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ops
	ch <- c.replicas
	ch <- c.fields

	ch <- c.memtableSize
	ch <- c.memtableCount
	ch <- c.walSize
	ch <- c.walBytesWritten
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	d := c.doc
	d.lock.RLock()
	defer d.lock.RUnlock()
	var ops uint64
	for _, n := range d.vv {
		ops += n
	}
	ch <- prometheus.MustNewConstMetric(c.ops, prometheus.GaugeValue, float64(ops))
	ch <- prometheus.MustNewConstMetric(c.replicas, prometheus.GaugeValue, float64(len(d.vv)))
	ch <- prometheus.MustNewConstMetric(c.fields, prometheus.GaugeValue, float64(len(d.seqs)))
	if d.db == nil {
		return
	}
	metrics := d.db.Metrics()
	ch <- prometheus.MustNewConstMetric(
		c.memtableSize,
		prometheus.GaugeValue,
		float64(metrics.MemTable.Size),
	)
	ch <- prometheus.MustNewConstMetric(
		c.memtableCount,
		prometheus.GaugeValue,
		float64(metrics.MemTable.Count),
	)
	ch <- prometheus.MustNewConstMetric(
		c.walSize,
		prometheus.GaugeValue,
		float64(metrics.WAL.Size),
	)
	ch <- prometheus.MustNewConstMetric(
		c.walBytesWritten,
		prometheus.CounterValue,
		float64(metrics.WAL.BytesWritten),
	)
}
