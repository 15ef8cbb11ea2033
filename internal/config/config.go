// Package config reads luadec.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	derrors "luadec/internal/errors"
)

// FileName is the configuration file looked up from the working directory
// upwards.
const FileName = "luadec.toml"

type Config struct {
	Decompile DecompileConfig `toml:"decompile"`
	Cache     CacheConfig     `toml:"cache"`
	Log       LogConfig       `toml:"log"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`
}

type DecompileConfig struct {
	// Dialect overrides the listing header when set.
	Dialect       string `toml:"dialect"`
	Jobs          int    `toml:"jobs"`
	DebugComments bool   `toml:"debug_comments"`
	IterationCap  int    `toml:"iteration_cap"`
	Include       []int  `toml:"include"`
	Exclude       []int  `toml:"exclude"`
}

type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type LogConfig struct {
	// Verbosity is handed to commonlog.Configure; higher is chattier.
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Decompile: DecompileConfig{
			Jobs:         runtime.GOMAXPROCS(0),
			IterationCap: 32,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     defaultCacheDir(),
		},
		Log: LogConfig{Verbosity: 1},
	}
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "luadec")
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "luadec")
	}
	return filepath.Join(os.TempDir(), "luadec-cache")
}

// Find walks from startDir towards the filesystem root looking for
// FileName.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Load reads path over the defaults. Keys left out of the file keep their
// default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, invalid(path, "failed to parse TOML").Wrap(err).Build()
	}
	if err := check(path, cfg, meta); err != nil {
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

// Decode parses a configuration held in memory. name is used in messages.
func Decode(name, data string) (*Config, error) {
	cfg := Default()
	meta, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, invalid(name, "failed to parse TOML").Wrap(err).Build()
	}
	if err := check(name, cfg, meta); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Discover loads the nearest FileName above startDir, or the defaults when
// there is none.
func Discover(startDir string) (*Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

func check(name string, cfg *Config, meta toml.MetaData) error {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return invalid(name, "unknown keys: %s", strings.Join(keys, ", ")).
			WithHelp("known sections are [decompile], [cache] and [log]").
			Build()
	}
	if meta.IsDefined("decompile", "jobs") && cfg.Decompile.Jobs <= 0 {
		return invalid(name, "[decompile].jobs must be positive, got %d", cfg.Decompile.Jobs).Build()
	}
	if meta.IsDefined("decompile", "iteration_cap") && cfg.Decompile.IterationCap <= 0 {
		return invalid(name, "[decompile].iteration_cap must be positive, got %d", cfg.Decompile.IterationCap).Build()
	}
	if meta.IsDefined("decompile", "dialect") && strings.TrimSpace(cfg.Decompile.Dialect) == "" {
		return invalid(name, "[decompile].dialect must not be empty").Build()
	}
	if meta.IsDefined("cache", "dir") && strings.TrimSpace(cfg.Cache.Dir) == "" {
		return invalid(name, "[cache].dir must not be empty").Build()
	}
	return nil
}

func invalid(name, format string, args ...any) *derrors.ErrorBuilder {
	return derrors.New(derrors.ErrorInvalidConfig, "%s: "+format, append([]any{name}, args...)...)
}
