package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// LiveStats provides the metrics collector access to live feed state.
type LiveStats interface {
	QueueLength() int
	IsConnected() bool
	Reconnects() int64
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	pool  *pgxpool.Pool
	stats LiveStats

	queueLength     *prometheus.Desc
	wsConnected     *prometheus.Desc
	wsReconnects    *prometheus.Desc
	dbTotalConns    *prometheus.Desc
	dbAcquiredConns *prometheus.Desc
	dbIdleConns     *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// pool may be nil when the call log is disabled (metrics will report 0).
func NewCollector(pool *pgxpool.Pool, stats LiveStats) *Collector {
	return &Collector{
		pool:  pool,
		stats: stats,
		queueLength: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "queue_length"),
			"Calls waiting to be played.",
			nil, nil,
		),
		wsConnected: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ws", "connected"),
			"1 when the websocket to the scanner server is up.",
			nil, nil,
		),
		wsReconnects: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ws", "reconnects_total"),
			"Times the websocket was re-established.",
			nil, nil,
		),
		dbTotalConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "total_conns"),
			"Total database pool connections.",
			nil, nil,
		),
		dbAcquiredConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "acquired_conns"),
			"Database pool connections currently in use.",
			nil, nil,
		),
		dbIdleConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "idle_conns"),
			"Database pool idle connections.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueLength
	ch <- c.wsConnected
	ch <- c.wsReconnects
	ch <- c.dbTotalConns
	ch <- c.dbAcquiredConns
	ch <- c.dbIdleConns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var queue, connected, reconnects float64
	if c.stats != nil {
		queue = float64(c.stats.QueueLength())
		if c.stats.IsConnected() {
			connected = 1
		}
		reconnects = float64(c.stats.Reconnects())
	}
	ch <- prometheus.MustNewConstMetric(c.queueLength, prometheus.GaugeValue, queue)
	ch <- prometheus.MustNewConstMetric(c.wsConnected, prometheus.GaugeValue, connected)
	ch <- prometheus.MustNewConstMetric(c.wsReconnects, prometheus.CounterValue, reconnects)

	if c.pool != nil {
		stat := c.pool.Stat()
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, float64(stat.TotalConns()))
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, float64(stat.AcquiredConns()))
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, float64(stat.IdleConns()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, 0)
	}
}
