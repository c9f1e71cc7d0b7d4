package cloudmetrics

import (
	"testing"
	"time"

	banksyncdomain "github.com/anoteng/regnskap/internal/banksync/domain"
	"github.com/anoteng/regnskap/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConnectionCollector(t *testing.T) {
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	for _, status := range []banksyncdomain.ConnectionStatus{
		banksyncdomain.ConnectionActive,
		banksyncdomain.ConnectionActive,
		banksyncdomain.ConnectionExpired,
	} {
		conn := banksyncdomain.Connection{
			ID:                 node.Generate(),
			LedgerID:           node.Generate(),
			BankAccountID:      node.Generate(),
			ProviderID:         node.Generate(),
			ExternalAccountID:  node.Generate().String(),
			Status:             status,
			SyncFrequencyHours: 24,
			CreatedBy:          node.Generate(),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		require.NoError(t, db.Create(&conn).Error)
	}

	collector := NewConnectionCollector(db, zap.NewNop())
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	assert.Equal(t, 2, promtestutil.CollectAndCount(collector, "regnskap_bank_connections"))
	assert.Equal(t, 0, promtestutil.CollectAndCount(collector, "regnskap_bank_transactions_staged"))

	families, err := registry.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "regnskap_bank_connections" {
			continue
		}
		for _, metric := range family.GetMetric() {
			values[metric.GetLabel()[0].GetValue()] = metric.GetGauge().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"ACTIVE": 2, "EXPIRED": 1}, values)
}
