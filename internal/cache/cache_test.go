package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luadec/internal/decompiler"
	derrors "luadec/internal/errors"
	"luadec/internal/loader"
)

const listing = `chunk "c" version "1.0"
function 0 {
  code {
    0: call $print("hi")
    1: return
  }
}
`

func TestKeyDependsOnOptions(t *testing.T) {
	src := []byte(listing)
	base := Key(src, decompiler.Options{})

	assert.Equal(t, base, Key(src, decompiler.Options{Jobs: 8}), "jobs do not change output")
	assert.NotEqual(t, base, Key(src, decompiler.Options{Dialect: "lua51"}))
	assert.NotEqual(t, base, Key(src, decompiler.Options{DebugComments: true}))
	assert.NotEqual(t, base, Key(src, decompiler.Options{Exclude: []int{1}}))
	assert.Equal(t,
		Key(src, decompiler.Options{Include: []int{2, 1}}),
		Key(src, decompiler.Options{Include: []int{1, 2}}))
	assert.NotEqual(t, base, Key(append(src, '\n'), decompiler.Options{}))
}

func TestPutGetRoundTrip(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "luadec"))
	require.NoError(t, err)

	chunk, err := loader.LoadString("c.lst", listing)
	require.NoError(t, err)
	res, err := decompiler.Decompile(context.Background(), chunk, decompiler.Options{})
	require.NoError(t, err)

	key := Key([]byte(listing), decompiler.Options{})
	_, ok, err := c.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(key, FromResult(res)))
	got, ok, err := c.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "print(\"hi\")\n", got.Source)
	assert.Equal(t, "hks", got.Dialect)
	assert.Empty(t, got.Failures)

	require.NoError(t, c.DropAll())
	_, ok, err = c.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDiagnosticRestore(t *testing.T) {
	d := Diagnostic{Code: derrors.ErrorUnimplementedInstruction, Function: 3, Pass: "build-cfg", Block: 2, Message: "opcode OP_X"}
	e := d.Restore()
	assert.Equal(t, derrors.ErrorUnimplementedInstruction, e.Code)
	assert.Equal(t, 3, e.Function)
	assert.Equal(t, "build-cfg", e.Pass)
	assert.Contains(t, e.Error(), "opcode OP_X")
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	assert.NoError(t, c.Put(Digest{}, &Payload{}))
	_, ok, err := c.Get(Digest{})
	assert.NoError(t, err)
	assert.False(t, ok)
}
