package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"luadec/internal/decompiler"
)

var passesCmd = &cobra.Command{
	Use:   "passes [DIALECT]",
	Short: "Print the pass pipeline of a dialect",
	Long:  `Print the ordered pass pipeline of one dialect, or of every dialect when none is named`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names := decompiler.Dialects()
		if len(args) == 1 {
			names = args[:1]
		}
		out := cmd.OutOrStdout()
		bold := color.New(color.Bold).SprintFunc()
		for i, name := range names {
			d, err := decompiler.Lookup(name)
			if err != nil {
				return err
			}
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "%s: %s\n", bold(d.Name), d.Description)
			fmt.Fprint(out, d.Pipeline(cfg.Decompile.IterationCap).Describe())
		}
		return nil
	},
}
