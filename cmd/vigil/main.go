package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/cmd/vigil/commands"
	"github.com/vigilhq/vigil/logger"
)

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Vigil - recurring client-intelligence monitoring",
	Long: `Vigil - automated monitoring of tracked clients.

Vigil runs recurring collection schedules against tracked clients, turns raw
findings into classified events, and notifies subscribers per their
preferences.

Available commands:
  serve    - Run the scheduler daemon until interrupted
  run      - Trigger a manual run for a schedule or an ad-hoc client set
  migrate  - Apply pending database migrations

Examples:
  vigil serve                              # Start the scheduling daemon
  vigil run --schedule <id>                # Fire one schedule now
  vigil run --clients id1,id2              # Ad-hoc run over explicit clients
  vigil migrate                            # Bring the schema up to date`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.MigrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
