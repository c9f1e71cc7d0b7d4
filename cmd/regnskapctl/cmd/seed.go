package cmd

import (
	"context"

	"github.com/anoteng/regnskap/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert missing chart templates and bank providers",
	Long: `Insert the bundled chart-of-accounts templates and the bank providers.
Provider credentials are read from the environment. Existing rows are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var conn *gorm.DB
		var log *zap.Logger
		return runApp(cmd.Context(), func(ctx context.Context) error {
			return seed.Run(ctx, conn, log)
		}, fx.Populate(&conn, &log))
	},
}
