package main

import (
	"github.com/anoteng/regnskap/internal/clock"
	"github.com/anoteng/regnskap/internal/cloudmetrics"
	"github.com/anoteng/regnskap/internal/config"
	"github.com/anoteng/regnskap/internal/ledger"
	"github.com/anoteng/regnskap/internal/observability"
	"github.com/anoteng/regnskap/internal/scheduler"
	"github.com/anoteng/regnskap/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by the bank sync job.
		ledger.Module,
		cloudmetrics.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

// Each process needs its own node id when they share a database.
func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
