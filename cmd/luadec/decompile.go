package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"luadec/grammar"
	"luadec/internal/cache"
	"luadec/internal/decompiler"
	"luadec/internal/errors"
	"luadec/internal/loader"
)

var (
	outputPath    string
	dialectFlag   string
	jobsFlag      int
	iterationCap  int
	debugComments bool
	includeFlag   []int
	excludeFlag   []int
	noCache       bool
)

func init() {
	decompileCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write Lua source to this file instead of stdout")
	addDecompileFlags(decompileCmd)
	decompileCmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the result cache")
}

// addDecompileFlags registers the flags that override [decompile].
func addDecompileFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&dialectFlag, "dialect", "", "bytecode dialect (overrides the listing header)")
	cmd.Flags().IntVarP(&jobsFlag, "jobs", "j", 0, "functions decompiled in parallel")
	cmd.Flags().IntVar(&iterationCap, "iteration-cap", 0, "maximum rounds of the fixpoint pass group")
	cmd.Flags().BoolVar(&debugComments, "debug-comments", false, "annotate output with function and block markers")
	cmd.Flags().IntSliceVar(&includeFlag, "include", nil, "only decompile these function ids")
	cmd.Flags().IntSliceVar(&excludeFlag, "exclude", nil, "skip these function ids")
}

var decompileCmd = &cobra.Command{
	Use:   "decompile FILE",
	Short: "Decompile a listing to Lua source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := io.Writer(os.Stdout)
		if outputPath != "" {
			f, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("failed to create output: %w", err)
			}
			defer f.Close()
			out = f
		}

		var c *cache.Cache
		if cfg.Cache.Enabled && !noCache {
			var err error
			if c, err = cache.Open(cfg.Cache.Dir); err != nil {
				log.Warningf("cache disabled: %s", err)
				c = nil
			}
		}

		ok, err := decompileFile(cmd.Context(), args[0], options(cmd), c, out, os.Stderr)
		if err != nil {
			return err
		}
		if !ok {
			return errFailed
		}
		return nil
	},
}

// options merges the configuration with the flags the user set.
func options(cmd *cobra.Command) decompiler.Options {
	d := cfg.Decompile
	opts := decompiler.Options{
		Dialect:       d.Dialect,
		Jobs:          d.Jobs,
		IterationCap:  d.IterationCap,
		DebugComments: d.DebugComments,
		Include:       d.Include,
		Exclude:       d.Exclude,
	}
	flags := cmd.Flags()
	if flags.Changed("dialect") {
		opts.Dialect = dialectFlag
	}
	if flags.Changed("jobs") {
		opts.Jobs = jobsFlag
	}
	if flags.Changed("iteration-cap") {
		opts.IterationCap = iterationCap
	}
	if flags.Changed("debug-comments") {
		opts.DebugComments = debugComments
	}
	if flags.Changed("include") {
		opts.Include = includeFlag
	}
	if flags.Changed("exclude") {
		opts.Exclude = excludeFlag
	}
	return opts
}

// decompileFile prints the decompiled source of path to out and its
// diagnostics to diag. ok is false when the listing did not load or a
// function failed; err is reserved for I/O and cancellation.
func decompileFile(ctx context.Context, path string, opts decompiler.Options, c *cache.Cache, out, diag io.Writer) (ok bool, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	source, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read file: %w", err)
	}
	var reporter *errors.ErrorReporter
	report := func(e *errors.DecompileError) {
		if reporter == nil {
			reporter = listingReporter(path, string(source))
		}
		fmt.Fprint(diag, reporter.FormatError(e.Diagnostic()))
	}

	key := cache.Key(source, opts)
	payload, hit, err := c.Get(key)
	if err != nil {
		log.Warningf("cache read failed: %s", err)
	}

	if !hit {
		chunk, err := loader.LoadString(path, string(source))
		if err != nil {
			report(errors.Attach(err, errors.NoFunction, ""))
			status(false, "Loading %s failed after %s", path, formatDuration(time.Since(start)))
			return false, nil
		}
		res, err := decompiler.Decompile(ctx, chunk, opts)
		if err != nil {
			if errors.Code(err) != "" {
				report(errors.Attach(err, errors.NoFunction, ""))
				return false, nil
			}
			return false, err
		}
		payload = cache.FromResult(res)
		if err := c.Put(key, payload); err != nil {
			log.Warningf("cache write failed: %s", err)
		}
	} else {
		log.Debugf("cache hit for %s (%s)", path, key)
	}

	if _, err := io.WriteString(out, payload.Source); err != nil {
		return false, err
	}
	for _, d := range payload.Warnings {
		report(d.Restore())
	}
	for _, d := range payload.Failures {
		report(d.Restore())
	}

	elapsed := formatDuration(time.Since(start))
	if n := len(payload.Failures); n > 0 {
		status(false, "Decompiled %s (%s) with %d failed functions in %s", path, payload.Dialect, n, elapsed)
		return false, nil
	}
	status(true, "Decompiled %s (%s) in %s", path, payload.Dialect, elapsed)
	return true, nil
}

// listingReporter renders diagnostics against source, pointing errors
// that carry only a function id at that function's header.
func listingReporter(path, source string) *errors.ErrorReporter {
	reporter := errors.NewErrorReporter(path, source)
	if listing, err := grammar.ParseString(path, source); err == nil {
		reporter.WithFunctionHeaders(listing.FunctionLines())
	}
	return reporter
}
