package main

import (
	"github.com/anoteng/regnskap/internal/clock"
	"github.com/anoteng/regnskap/internal/config"
	"github.com/anoteng/regnskap/internal/migration"
	"github.com/anoteng/regnskap/internal/observability"
	"github.com/anoteng/regnskap/internal/server"
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
		migration.Module,

		// No scheduler; apps/scheduler runs auto-sync.
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
