package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"luadec/grammar"
)

var fmtWrite bool

func init() {
	fmtCmd.Flags().BoolVarP(&fmtWrite, "write", "w", false, "rewrite the file in place")
}

var fmtCmd = &cobra.Command{
	Use:   "fmt FILE",
	Short: "Print a listing in canonical form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		source, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		listing, err := grammar.ParseString(path, string(source))
		if err != nil {
			fmt.Fprintln(os.Stderr, grammar.FormatParseError(string(source), err))
			return errFailed
		}

		formatted := listing.String()
		if !fmtWrite {
			_, err := fmt.Fprint(cmd.OutOrStdout(), formatted)
			return err
		}
		if formatted == string(source) {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(formatted), info.Mode().Perm()); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		status(true, "Formatted %s", path)
		return nil
	},
}
