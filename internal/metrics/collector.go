// Package metrics exports pool sizes and activity counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/yuku/connpool/internal/pool"
	"go.uber.org/zap"
)

// Source lists the pools to export. *registry.Registry satisfies it.
type Source interface {
	Pools() []*pool.Pool
}

// Collector reads every pool of a Source at scrape time.
type Collector struct {
	source Source
	logger *zap.Logger

	size      *prometheus.Desc
	free      *prometheus.Desc
	maxSize   *prometheus.Desc
	boundary  *prometheus.Desc
	connected *prometheus.Desc
	counters  []counterDesc
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(pool.Stats) int64
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for the pools of source. Metric names
// are prefixed with namespace.
func NewCollector(namespace string, source Source, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	labels := []string{"pool"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", name), help, labels, nil)
	}
	counter := func(name, help string, value func(pool.Stats) int64) counterDesc {
		return counterDesc{desc: desc(name+"_total", help), value: value}
	}

	return &Collector{
		source:    source,
		logger:    logger.With(zap.String("component", "metrics")),
		size:      desc("connections", "Connections owned by the pool, borrowed or free."),
		free:      desc("free_connections", "Connections ready to be borrowed."),
		maxSize:   desc("max_connections", "Current max capacity of the pool."),
		boundary:  desc("resize_boundary", "Hard ceiling on the pool capacity."),
		connected: desc("connected", "Whether the pool is connected (1) or not (0)."),
		counters: []counterDesc{
			counter("borrows", "Successful borrows.", func(s pool.Stats) int64 { return s.Borrows }),
			counter("waits", "Borrows that waited for a returned connection.", func(s pool.Stats) int64 { return s.Waits }),
			counter("grows", "Connections added to the pool.", func(s pool.Stats) int64 { return s.Grows }),
			counter("grow_failures", "Connections that could not be created.", func(s pool.Stats) int64 { return s.GrowFailures }),
			counter("resizes", "Raises of the max capacity.", func(s pool.Stats) int64 { return s.Resizes }),
			counter("ping_failures", "Borrows failed by a dead connection.", func(s pool.Stats) int64 { return s.PingFailures }),
			counter("returns", "Accepted returns.", func(s pool.Stats) int64 { return s.Returns }),
			counter("rejected_returns", "Rejected returns.", func(s pool.Stats) int64 { return s.RejectedReturns }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.free
	ch <- c.maxSize
	ch <- c.boundary
	ch <- c.connected
	for _, cd := range c.counters {
		ch <- cd.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	pools := c.source.Pools()
	c.logger.Debug("collecting pool metrics", zap.Int("pools", len(pools)))

	for _, p := range pools {
		name := p.Name()
		gauge := func(desc *prometheus.Desc, v int) {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(v), name)
		}
		gauge(c.size, p.Size())
		gauge(c.free, p.FreeSize())
		gauge(c.maxSize, p.MaxSize())
		gauge(c.boundary, p.Boundary())
		connected := 0
		if p.State() == pool.StateConnected {
			connected = 1
		}
		gauge(c.connected, connected)

		stats := p.Stats()
		for _, cd := range c.counters {
			ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.value(stats)), name)
		}
	}
}
