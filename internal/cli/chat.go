package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dusseau-dev/mission-control/internal/tracing"
)

var chatCmd = &cobra.Command{
	Use:   "chat <agent> <message...>",
	Short: "Send one message to an agent",
	Long: `Send a single message to an agent and print its reply. The exchange is
added to the agent's session memory.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
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
	reply, err := a.Chat(ctx, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), reply)
	return nil
}
