package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// settle is how long a burst of writes must be quiet before a rerun.
const settle = 150 * time.Millisecond

var watchOutput string

func init() {
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "", "rewrite this file on every run instead of printing")
	addDecompileFlags(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch FILE",
	Short: "Decompile a listing every time it changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watch(ctx, args[0], func() {
			if _, err := runOnce(ctx, cmd, args[0]); err != nil {
				log.Errorf("%s", err)
			}
		})
	},
}

func runOnce(ctx context.Context, cmd *cobra.Command, path string) (bool, error) {
	out := io.Writer(cmd.OutOrStdout())
	if watchOutput != "" {
		f, err := os.Create(watchOutput)
		if err != nil {
			return false, fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	// Every run sees a new listing, so the cache would only fill up.
	return decompileFile(ctx, path, options(cmd), nil, out, os.Stderr)
}

// watch calls run once and then after every settled change to path. The
// parent directory is watched so editors that save by renaming a temporary
// file over path are noticed too.
func watch(ctx context.Context, path string, run func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	run()
	log.Infof("watching %s", abs)

	timer := time.NewTimer(settle)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debugf("%s: %s", ev.Op, ev.Name)
			timer.Reset(settle)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warningf("watcher: %s", err)
		case <-timer.C:
			run()
		}
	}
}
