package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dusseau-dev/mission-control/internal/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run <agent> [task...]",
	Short: "Run one agent turn now",
	Long: `Run a single autonomous turn for one agent outside the schedule.
With a task the agent works on it directly; without one it checks the
coordination store for assigned tasks and unread messages.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidConfig()
	if err != nil {
		return err
	}

	rt, closeRuntime, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer closeRuntime()

	a, err := rt.NewAgent(args[0])
	if err != nil {
		return err
	}

	ctx := tracing.WithTrigger(context.Background(), "cli")
	result, err := a.Run(ctx, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n%s\n", a.Name(), result.Action, result.Message)
	return nil
}
