package cmd

import (
	"context"
	"encoding/json"

	banksyncdomain "github.com/anoteng/regnskap/internal/banksync/domain"
	"github.com/anoteng/regnskap/internal/clock"
	"github.com/anoteng/regnskap/internal/ledger"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var syncDueCmd = &cobra.Command{
	Use:   "sync-due",
	Short: "Sync every bank connection whose auto-sync interval has elapsed",
	Long: `Run one auto-sync pass, the same work the scheduler does on each tick,
and print the summary as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var svc banksyncdomain.Service
		var c clock.Clock
		return runApp(cmd.Context(), func(ctx context.Context) error {
			result, err := svc.SyncDue(ctx, c.Now())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}, ledger.Module, fx.Populate(&svc, &c))
	},
}
