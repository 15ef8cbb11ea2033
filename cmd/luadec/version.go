package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"luadec/internal/cache"
	"luadec/internal/decompiler"
	"luadec/internal/loader"
)

// version is overridden at link time with -ldflags "-X main.version=...".
var version = "0.1.0"

var versionFormat string

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "pretty", "output format (pretty|json)")
}

type versionPayload struct {
	Tool      string   `json:"tool"`
	Version   string   `json:"version"`
	GitCommit string   `json:"git_commit,omitempty"`
	Listings  string   `json:"listing_versions"`
	Dialects  []string `json:"dialects"`
	Cache     uint16   `json:"cache_schema"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build and format versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := versionPayload{
			Tool:      "luadec",
			Version:   version,
			GitCommit: gitCommit(),
			Listings:  loader.SupportedVersions,
			Dialects:  decompiler.Dialects(),
			Cache:     cache.SchemaVersion,
		}
		switch strings.ToLower(versionFormat) {
		case "json":
			return renderVersionJSON(cmd.OutOrStdout(), info)
		case "pretty":
			renderVersionPretty(cmd.OutOrStdout(), info)
			return nil
		default:
			return fmt.Errorf("unsupported format %q (must be pretty or json)", versionFormat)
		}
	},
}

func gitCommit() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

func renderVersionPretty(out io.Writer, info versionPayload) {
	fmt.Fprintf(out, "%s %s\n", info.Tool, info.Version)
	if info.GitCommit != "" {
		fmt.Fprintf(out, "commit:   %s\n", info.GitCommit)
	}
	fmt.Fprintf(out, "listings: %s\n", info.Listings)
	fmt.Fprintf(out, "dialects: %s\n", strings.Join(info.Dialects, ", "))
	fmt.Fprintf(out, "cache:    schema %d\n", info.Cache)
}

func renderVersionJSON(out io.Writer, info versionPayload) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
