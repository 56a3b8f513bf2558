package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dusseau-dev/mission-control/pkg/agent"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "List the squad",
	Long:  `List every agent on the roster with its title and wake offset.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printRoster(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(rosterCmd)
}

func printRoster(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tTITLE\tOFFSET")
	for _, m := range agent.Roster {
		fmt.Fprintf(w, "%s\t%s\t+%s\n", m.Name, m.Title, m.Stagger)
	}
	return w.Flush()
}
