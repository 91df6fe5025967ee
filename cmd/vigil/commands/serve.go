package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/monitor/schedule"
)

// ServeCmd runs the scheduler daemon.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Vigil scheduling daemon",
	Long: `Run the scheduling daemon: polls for due schedules, executes their
monitoring runs, and dispatches notifications until interrupted.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := schedule.NewTicker(ctx, s.registry, s.runner, schedule.TickerConfig{
		Interval: time.Duration(s.cfg.Monitor.TickerIntervalSeconds) * time.Second,
	}, s.log)
	ticker.Start()

	s.log.Infow("Vigil daemon started",
		"ticker_interval_seconds", s.cfg.Monitor.TickerIntervalSeconds,
		"workers", s.cfg.Monitor.Workers)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	s.log.Infow("Shutting down, waiting for in-flight runs")
	ticker.Stop()
	cancel()
	s.runner.Wait()
	s.log.Infow("Vigil daemon stopped")

	return nil
}
