package main

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/gputime/internal/timing"
)

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.csv>",
		Short: "Print a statistics CSV file as a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := timing.LoadFile(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d frames, %d command buffers, %d render passes\n",
				t.TotalFrames(), t.Count(timing.CommandBuffer), t.Count(timing.RenderPass))

			header, rows := t.Table()
			table := tablewriter.NewWriter(out)
			table.SetHeader(header)
			table.SetAlignment(tablewriter.ALIGN_RIGHT)
			table.AppendBulk(rows)
			table.Render()
			return nil
		},
	}
}
