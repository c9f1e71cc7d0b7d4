package main

import (
	"github.com/anoteng/regnskap/internal/clock"
	"github.com/anoteng/regnskap/internal/config"
	"github.com/anoteng/regnskap/internal/migration"
	"github.com/anoteng/regnskap/internal/observability"
	"github.com/anoteng/regnskap/internal/scheduler"
	"github.com/anoteng/regnskap/internal/server"
	"github.com/anoteng/regnskap/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

// The monolith serves the API and runs the auto-sync scheduler in one
// process. apps/api and apps/scheduler split the two.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
