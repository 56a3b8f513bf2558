package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dusseau-dev/mission-control/internal/config"
	"github.com/dusseau-dev/mission-control/pkg/agent"
	"github.com/dusseau-dev/mission-control/pkg/guardrail"
	"github.com/dusseau-dev/mission-control/pkg/memory"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scheduler and agent status",
	Long: `Show whether the scheduler is running and, for every roster agent, how
many exchanges it remembers and when it last ran.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if err := printProcessStatus(out, cfg.PIDFile); err != nil {
		return err
	}
	fmt.Fprintln(out)
	return printAgentStatus(out, cfg, time.Now())
}

func printProcessStatus(out io.Writer, pidFile string) error {
	if !isRunning(pidFile) {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}

	pid, err := readPID(pidFile)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Status: running\n")
	fmt.Fprintf(out, "PID: %d\n", pid)
	// PID file mtime approximates the start time
	if info, err := os.Stat(pidFile); err == nil {
		fmt.Fprintf(out, "Uptime: %s\n", formatDuration(time.Since(info.ModTime())))
	}
	return nil
}

// printAgentStatus reads each agent's memory file without touching the audit log
func printAgentStatus(out io.Writer, cfg *config.Config, now time.Time) error {
	guard, err := guardrail.New(guardrail.Config{
		Paths: guardrail.DefaultPathPolicy(cfg.Root),
	})
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", cfg.Root, err)
	}
	defer guard.Close()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tTITLE\tMEMORY\tLAST RUN")
	for _, m := range agent.Roster {
		store, err := memory.NewStore(guard, m.Name, zerolog.Nop())
		if err != nil {
			fmt.Fprintf(w, "%s\t%s\t-\t%v\n", m.Name, m.Title, err)
			continue
		}
		mem := store.Load()
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", m.Name, m.Title, mem.Len(), formatLastRun(mem.LastRun, now))
	}
	return w.Flush()
}

func formatLastRun(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	return formatDuration(now.Sub(*t)) + " ago"
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
