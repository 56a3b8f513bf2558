package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dusseau-dev/mission-control/internal/config"
	"github.com/dusseau-dev/mission-control/internal/daemon"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the install directory and a default config",
	Long: `Create the install root with its agents, memory, logs, and workspace
directories, and write a config file with defaults. Credentials are taken
from the environment and are never written unless already configured.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := daemon.EnsureLayout(cfg.Root); err != nil {
		return err
	}

	loader := config.NewLoader(cfgFile)
	path := loader.GetConfigPath()
	if _, err := os.Stat(path); err == nil && !initForce {
		fmt.Fprintf(cmd.OutOrStdout(), "Config already exists at %s (use --force to overwrite)\n", path)
		return nil
	}

	// Profiles folded in from the environment stay there
	out := *cfg
	out.AI.Profiles = nil
	for _, p := range cfg.AI.Profiles {
		if !strings.HasSuffix(p.ID, "-env") {
			out.AI.Profiles = append(out.AI.Profiles, p)
		}
	}
	if err := loader.Save(&out); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\nConfig written to %s\n", cfg.Root, path)
	return nil
}
