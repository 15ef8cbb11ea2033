// Package cache keeps decompiled output on disk, keyed by the listing
// bytes and the options that shaped the run.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	"github.com/vmihailenco/msgpack/v5"

	"luadec/internal/decompiler"
	derrors "luadec/internal/errors"
)

var log = commonlog.GetLogger("luadec.cache")

// Current schema version - increment when Payload format changes
const SchemaVersion uint16 = 1

// Digest is a SHA-256 cache key.
type Digest [sha256.Size]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Cache stores payloads as msgpack files under one directory.
// Safe for concurrent use.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Payload is everything the CLI prints for one run.
type Payload struct {
	Schema   uint16
	Chunk    string
	Dialect  string
	Source   string
	Failures []Diagnostic
	Warnings []Diagnostic
	Created  time.Time
}

// Diagnostic is the cached form of a *errors.DecompileError.
type Diagnostic struct {
	Code     string
	Function int
	Pass     string
	Block    int
	Line     int
	Message  string
}

// Restore rebuilds the decompile error the diagnostic was captured from.
func (d Diagnostic) Restore() *derrors.DecompileError {
	return derrors.New(d.Code, "%s", d.Message).
		InFunction(d.Function).
		InPass(d.Pass).
		AtBlock(d.Block).
		AtLine(d.Line, 1).
		Build()
}

// Open returns a cache rooted at dir, creating it if needed.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

// Key digests the listing together with every option that changes the
// output.
func Key(listing []byte, opts decompiler.Options) Digest {
	h := sha256.New()
	var scratch [8]byte
	putInt := func(v int) {
		binary.LittleEndian.PutUint64(scratch[:], uint64(int64(v)))
		h.Write(scratch[:])
	}
	putInts := func(vs []int) {
		sorted := slices.Clone(vs)
		slices.Sort(sorted)
		putInt(len(sorted))
		for _, v := range sorted {
			putInt(v)
		}
	}

	putInt(int(SchemaVersion))
	putInt(len(opts.Dialect))
	h.Write([]byte(opts.Dialect))
	putInt(opts.IterationCap)
	if opts.DebugComments {
		putInt(1)
	} else {
		putInt(0)
	}
	putInts(opts.Include)
	putInts(opts.Exclude)
	h.Write(listing)

	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

func (c *Cache) pathFor(key Digest) string {
	s := key.String()
	return filepath.Join(c.dir, s[:2], s+".mp")
}

// Put writes payload under key, replacing any previous entry atomically.
func (c *Cache) Put(key Digest, payload *Payload) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warningf("failed to remove temp file %s: %v", f.Name(), rmErr)
		}
	}()

	payload.Schema = SchemaVersion
	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads the payload stored under key. A missing entry or one written
// with another schema is a miss.
func (c *Cache) Get(key Digest) (*Payload, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var out Payload
	if err := msgpack.NewDecoder(f).Decode(&out); err != nil {
		return nil, false, err
	}
	if out.Schema != SchemaVersion {
		log.Debugf("cache entry %s has schema %d, want %d", key, out.Schema, SchemaVersion)
		return nil, false, nil
	}
	return &out, true, nil
}

// DropAll removes every entry.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return os.RemoveAll(old)
}

// FromResult captures a decompilation result for storage.
func FromResult(res *decompiler.Result) *Payload {
	return &Payload{
		Schema:   SchemaVersion,
		Chunk:    res.Chunk.Name,
		Dialect:  res.Dialect,
		Source:   res.Source(),
		Failures: diagnostics(res.Failures()),
		Warnings: diagnostics(res.Warnings()),
		Created:  time.Now().UTC(),
	}
}

func diagnostics(errs []*derrors.DecompileError) []Diagnostic {
	if len(errs) == 0 {
		return nil
	}
	out := make([]Diagnostic, len(errs))
	for i, e := range errs {
		out[i] = Diagnostic{
			Code:     e.Code,
			Function: e.Function,
			Pass:     e.Pass,
			Block:    e.Block,
			Line:     e.Position.Line,
			Message:  e.Message,
		}
	}
	return out
}
