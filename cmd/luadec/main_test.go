package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luadec/internal/cache"
	"luadec/internal/config"
	"luadec/internal/decompiler"
)

const hello = `chunk "hello" version "1.0" dialect "lua51"
function 0 {
  code {
    0: call $print("hello")
    1: return
  }
}
`

func writeListing(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hello.lst")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func init() {
	quiet = true
	color.NoColor = true
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.50s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2.5ms", formatDuration(2500*time.Microsecond))
	assert.Equal(t, "12ns", formatDuration(12))
	assert.Equal(t, "2.00min", formatDuration(2*time.Minute))
}

func TestOptionsPreferFlags(t *testing.T) {
	cfg = config.Default()
	cfg.Decompile.Dialect = "hks"
	cfg.Decompile.Exclude = []int{4}

	require.NoError(t, decompileCmd.ParseFlags([]string{"--dialect", "lua51", "--include", "1,2"}))
	opts := options(decompileCmd)
	assert.Equal(t, "lua51", opts.Dialect)
	assert.Equal(t, []int{1, 2}, opts.Include)
	assert.Equal(t, []int{4}, opts.Exclude, "unset flags keep the file value")
	assert.Equal(t, 32, opts.IterationCap)
}

func TestDecompileFileUsesCache(t *testing.T) {
	path := writeListing(t, hello)
	c, err := cache.Open(t.TempDir())
	require.NoError(t, err)

	var out, diag bytes.Buffer
	ok, err := decompileFile(context.Background(), path, decompiler.Options{}, c, &out, &diag)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "print(\"hello\")\n", out.String())
	assert.Empty(t, diag.String())

	payload, hit, err := c.Get(cache.Key([]byte(hello), decompiler.Options{}))
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "lua51", payload.Dialect)

	out.Reset()
	ok, err = decompileFile(context.Background(), path, decompiler.Options{}, c, &out, &diag)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "print(\"hello\")\n", out.String())
}

func TestDecompileFileReportsFailures(t *testing.T) {
	path := writeListing(t, `chunk "bad" version "1.0"
function 0 {
  code {
    0: unimplemented "OP_TFORPREP"
    1: return
  }
}
`)
	var out, diag bytes.Buffer
	ok, err := decompileFile(context.Background(), path, decompiler.Options{}, nil, &out, &diag)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, diag.String(), "D0003")
	assert.Contains(t, diag.String(), "hello.lst:4:")
	assert.Contains(t, diag.String(), "= in pass build-cfg")
	assert.Contains(t, out.String(), "function 0 failed")
}

func TestDecompileFileReportsLoadErrors(t *testing.T) {
	path := writeListing(t, "chunk \"bad\" version \"2.0\"\nfunction 0 {\n  code {\n  }\n}\n")
	var out, diag bytes.Buffer
	ok, err := decompileFile(context.Background(), path, decompiler.Options{}, nil, &out, &diag)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, out.String())
	assert.Contains(t, diag.String(), "D0101")
}

func TestDecompileFileMissing(t *testing.T) {
	var out, diag bytes.Buffer
	_, err := decompileFile(context.Background(), filepath.Join(t.TempDir(), "nope.lst"), decompiler.Options{}, nil, &out, &diag)
	assert.ErrorContains(t, err, "failed to read file")
}

func TestWatchRunsOnStartAndStopsOnCancel(t *testing.T) {
	path := writeListing(t, hello)
	ctx, cancel := context.WithCancel(context.Background())
	runs := 0
	err := watch(ctx, path, func() {
		runs++
		cancel()
	})
	require.NoError(t, err)
	assert.Equal(t, 1, runs)
}
