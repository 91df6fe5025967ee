package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/errors"
	"github.com/vigilhq/vigil/monitor/run"
)

// RunCmd triggers a manual monitoring run.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Trigger a manual monitoring run",
	Long: `Trigger one monitoring run outside the schedule poller.

Either fire an existing schedule immediately, or run over an explicit
client set with no schedule at all.

Examples:
  vigil run --schedule 6f1c...        # Fire one schedule now
  vigil run --clients id1,id2,id3     # Ad-hoc run over explicit clients`,
	RunE: runManual,
}

var (
	runScheduleFlag string
	runClientsFlag  string
)

func init() {
	RunCmd.Flags().StringVar(&runScheduleFlag, "schedule", "", "Schedule ID to fire")
	RunCmd.Flags().StringVar(&runClientsFlag, "clients", "", "Comma-separated client IDs for an ad-hoc run")
}

func runManual(cmd *cobra.Command, args []string) error {
	if (runScheduleFlag == "") == (runClientsFlag == "") {
		return errors.New("exactly one of --schedule or --clients is required")
	}

	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.close()

	ctx := context.Background()
	var jobRun *run.Run

	if runScheduleFlag != "" {
		sched, err := s.registry.Get(runScheduleFlag)
		if err != nil {
			return err
		}
		jobRun, err = s.runner.RunSchedule(ctx, sched)
		if err != nil {
			return err
		}
	} else {
		clientIDs := strings.Split(runClientsFlag, ",")
		for i := range clientIDs {
			clientIDs[i] = strings.TrimSpace(clientIDs[i])
		}
		jobRun, err = s.runner.RunEntities(ctx, clientIDs)
		if err != nil {
			return err
		}
	}

	printRunSummary(jobRun)
	return nil
}

func printRunSummary(r *run.Run) {
	if r == nil {
		fmt.Println("run did not produce a result")
		return
	}

	fmt.Printf("Run %s: %s\n", r.ID, r.Status)
	fmt.Printf("  entities processed:  %d\n", r.Counters.EntitiesProcessed)
	fmt.Printf("  signals found:       %d\n", r.Counters.SignalsFound)
	fmt.Printf("  new events:          %d\n", r.Counters.SignalsNew)
	fmt.Printf("  notifications sent:  %d\n", r.Counters.NotificationsSent)
	if r.ErrorMessage != "" {
		fmt.Printf("  error: %s\n", r.ErrorMessage)
	}
}
