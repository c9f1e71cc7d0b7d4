package cmd

import (
	"errors"
	"fmt"

	"github.com/anoteng/regnskap/internal/config"
	"github.com/anoteng/regnskap/internal/migration"
	"github.com/spf13/cobra"
)

var (
	upSteps   int
	downSteps int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back postgres schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations (all unless --steps is set)",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := postgresURL()
		if err != nil {
			return err
		}
		if upSteps > 0 {
			err = migration.Steps(url, upSteps)
		} else {
			err = migration.Up(url)
		}
		if err != nil {
			return err
		}
		return printVersion(cmd, url)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back --steps migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if downSteps <= 0 {
			return errors.New("--steps must be positive")
		}
		url, err := postgresURL()
		if err != nil {
			return err
		}
		if err := migration.Steps(url, -downSteps); err != nil {
			return err
		}
		return printVersion(cmd, url)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := postgresURL()
		if err != nil {
			return err
		}
		return printVersion(cmd, url)
	},
}

func init() {
	migrateUpCmd.Flags().IntVar(&upSteps, "steps", 0, "number of migrations to apply")
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

func postgresURL() (string, error) {
	cfg := config.Load()
	if cfg.DB.Type != "postgres" {
		return "", fmt.Errorf("migrations run against postgres only, DATABASE_TYPE is %q", cfg.DB.Type)
	}
	return cfg.DB.PostgresURL(), nil
}

func printVersion(cmd *cobra.Command, url string) error {
	version, dirty, err := migration.Version(url)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
	return nil
}
