// Package boards implements the boards command.
package boards

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	acqboards "github.com/tphakala/biosignal-go/internal/boards"
)

// Command lists the board types sessions can be created with.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "boards",
		Short: "List available board types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printBoards(cmd.OutOrStdout(), acqboards.Available())
		},
	}
}

func printBoards(out io.Writer, descriptors []acqboards.Descriptor) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tDESCRIPTION\tPARAMETERS")
	for _, d := range descriptors {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Type, d.Description, strings.Join(d.Parameters, ", "))
	}
	return w.Flush()
}
