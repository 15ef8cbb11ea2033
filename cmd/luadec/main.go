// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/term"

	"luadec/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "luadec",
	Short:         "Lua and HavokScript bytecode decompiler",
	Long:          `luadec reconstructs structured Lua source from lifted bytecode listings`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

var log = commonlog.GetLogger("luadec.cli")

// errFailed reports a run whose diagnostics were already printed.
var errFailed = fmt.Errorf("decompilation failed")

var (
	colorMode  string
	quiet      bool
	configPath string
	verbose    int

	// cfg is the configuration resolved by setup for the running command.
	cfg *config.Config
)

func main() {
	rootCmd.Version = version

	rootCmd.AddCommand(decompileCmd)
	rootCmd.AddCommand(passesCmd)
	rootCmd.AddCommand(fmtCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "colorize output (auto|always|never)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress status lines")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to luadec.toml (default: search upwards from the working directory)")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "raise log verbosity (repeatable)")

	if err := rootCmd.Execute(); err != nil {
		if err != errFailed {
			fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		}
		os.Exit(1)
	}
}

// setup resolves the configuration and applies the global flags.
func setup(cmd *cobra.Command) error {
	switch colorMode {
	case "auto":
		color.NoColor = !isTerminal(os.Stdout) || !isTerminal(os.Stderr)
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid --color value %q (want auto, always or never)", colorMode)
	}

	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.Discover(".")
	}
	if err != nil {
		return err
	}

	verbosity := cfg.Log.Verbosity + verbose
	if quiet {
		verbosity = 0
	}
	var logFile *string
	if cfg.Log.File != "" {
		logFile = &cfg.Log.File
	}
	commonlog.Configure(verbosity, logFile)
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// status prints a colored summary line unless --quiet is set.
func status(ok bool, format string, args ...any) {
	if quiet {
		return
	}
	if ok {
		fmt.Fprintln(os.Stderr, color.GreenString(format, args...))
	} else {
		fmt.Fprintln(os.Stderr, color.RedString(format, args...))
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return fmt.Sprintf("%.2fmin", d.Minutes())
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1000000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fμs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}
