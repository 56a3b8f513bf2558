package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dusseau-dev/mission-control/internal/daemon"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Mission Control scheduler",
	Long: `Start the Mission Control scheduler in the foreground.
Every roster agent wakes once per interval at its stagger offset. SIGINT or
SIGTERM stops the scheduler, waiting for in-flight runs up to the grace period.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidConfig()
	if err != nil {
		return err
	}

	if isRunning(cfg.PIDFile) {
		return fmt.Errorf("mission control is already running (PID file: %s)", cfg.PIDFile)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}

	if err := writePIDFile(cfg.PIDFile); err != nil {
		return err
	}
	defer os.Remove(cfg.PIDFile)

	if err := d.Start(); err != nil {
		return err
	}
	return d.Wait()
}
