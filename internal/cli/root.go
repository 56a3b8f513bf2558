package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dusseau-dev/mission-control/internal/config"
	"github.com/dusseau-dev/mission-control/internal/daemon"
	"github.com/dusseau-dev/mission-control/internal/logger"
	"github.com/dusseau-dev/mission-control/pkg/guardrail"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mission-control",
	Short: "Mission Control - a squad of scheduled AI agents",
	Long: `Mission Control runs a fixed squad of AI agents that wake on a staggered
schedule, pick up tasks and messages from a shared coordination store, and
report back. Every file access, outbound write, and model call passes through
a guardrail layer.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mission-control/mission-control.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig loads the configuration and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// loadValidConfig is loadConfig for commands that reach a model or store
func loadValidConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger; every sink is redacted
func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:    cfg.Logging.Level,
		File:     cfg.Logging.File,
		Console:  true,
		Pretty:   cfg.Logging.Pretty,
		Redactor: guardrail.NewSecretFilter(),
		MaxSize:  cfg.Logging.MaxSize,
		MaxAge:   cfg.Logging.MaxAge,
		Compress: cfg.Logging.Compress,
		Output:   os.Stderr,
	})
}

// openRuntime builds the logger and shared runtime for one-shot commands.
// The returned func releases both.
func openRuntime(cfg *config.Config) (*daemon.Runtime, func(), error) {
	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	rt, err := daemon.NewRuntime(cfg, log.GetZerolog())
	if err != nil {
		log.Close()
		return nil, nil, err
	}

	return rt, func() {
		if err := rt.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close runtime")
		}
		log.Close()
	}, nil
}
