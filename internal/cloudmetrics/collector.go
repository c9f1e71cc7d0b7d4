package cloudmetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const collectTimeout = 5 * time.Second

// ConnectionCollector reports bank connection and staging backlog gauges,
// read from the database at scrape or push time.
type ConnectionCollector struct {
	db  *gorm.DB
	log *zap.Logger

	connections *prometheus.Desc
	staged      *prometheus.Desc
}

func NewConnectionCollector(db *gorm.DB, log *zap.Logger) *ConnectionCollector {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConnectionCollector{
		db:  db,
		log: log.Named("cloudmetrics"),
		connections: prometheus.NewDesc(
			"regnskap_bank_connections",
			"Bank connections by status.",
			[]string{"status"}, nil,
		),
		staged: prometheus.NewDesc(
			"regnskap_bank_transactions_staged",
			"Staged bank transactions by import status.",
			[]string{"import_status"}, nil,
		),
	}
}

func (c *ConnectionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connections
	ch <- c.staged
}

func (c *ConnectionCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	c.collectGrouped(ctx, ch, c.connections, "bank_connections", "status")
	c.collectGrouped(ctx, ch, c.staged, "bank_transactions", "import_status")
}

type groupCount struct {
	Label string
	Total int64
}

func (c *ConnectionCollector) collectGrouped(ctx context.Context, ch chan<- prometheus.Metric, desc *prometheus.Desc, table, column string) {
	var rows []groupCount
	err := c.db.WithContext(ctx).
		Table(table).
		Select(column + " AS label, COUNT(*) AS total").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		c.log.Warn("collect metrics failed", zap.String("table", table), zap.Error(err))
		return
	}
	for _, row := range rows {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(row.Total), row.Label)
	}
}
