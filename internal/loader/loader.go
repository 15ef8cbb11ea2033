package loader

import (
	"fmt"
	"strings"

	"fortio.org/safecast"
	"github.com/Masterminds/semver/v3"
	"github.com/tliron/commonlog"

	"luadec/grammar"
	"luadec/internal/errors"
	"luadec/internal/ir"
)

var log = commonlog.GetLogger("luadec.loader")

// SupportedVersions is the listing format range this loader reads.
const SupportedVersions = "^1.0"

var versionConstraint = mustConstraint(SupportedVersions)

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Chunk is a loaded listing: the main function with every closure nested
// beneath it.
type Chunk struct {
	Name    string
	Version *semver.Version
	// Dialect is the dialect named in the header, or "" if absent.
	Dialect string
	Main    *ir.Function
}

// Functions returns every function of the chunk, parents before children.
func (c *Chunk) Functions() []*ir.Function {
	var out []*ir.Function
	c.Main.Walk(func(f *ir.Function) bool {
		out = append(out, f)
		return true
	})
	return out
}

// LoadFile parses and loads the listing at path.
func LoadFile(path string) (*Chunk, error) {
	listing, err := grammar.ParseFile(path)
	if err != nil {
		return nil, parseError(err)
	}
	return Load(listing)
}

// LoadString parses and loads a listing held in memory.
func LoadString(filename, source string) (*Chunk, error) {
	listing, err := grammar.ParseString(filename, source)
	if err != nil {
		return nil, parseError(err)
	}
	return Load(listing)
}

func parseError(err error) error {
	b := errors.New(errors.ErrorListingSyntax, "listing does not parse").Wrap(err)
	if pos, ok := grammar.ErrorPosition(err); ok {
		b = b.AtLine(pos.Line, pos.Column)
	}
	return b.Build()
}

// Load converts a parsed listing into IR functions.
func Load(listing *grammar.Listing) (*Chunk, error) {
	h := listing.Header
	version, err := semver.NewVersion(h.Version)
	if err != nil {
		return nil, errors.New(errors.ErrorListingVersion, "invalid listing version %q", h.Version).
			AtLine(h.Pos.Line, h.Pos.Column).Wrap(err).Build()
	}
	if !versionConstraint.Check(version) {
		return nil, errors.New(errors.ErrorListingVersion, "listing version %s is not supported", version).
			AtLine(h.Pos.Line, h.Pos.Column).
			WithHelp(fmt.Sprintf("this build reads listing versions %s", SupportedVersions)).
			Build()
	}

	ld := &loader{seen: make(map[int]bool)}
	main, err := ld.function(listing.Main, nil)
	if err != nil {
		return nil, err
	}
	log.Debugf("loaded %q: %d functions", h.Name, len(ld.seen))
	return &Chunk{Name: h.Name, Version: version, Dialect: h.Dialect, Main: main}, nil
}

type loader struct {
	seen map[int]bool
}

// fn carries the state of one function being converted.
type fn struct {
	f *ir.Function
	b *ir.Builder
	// line is the listing line of the instruction being converted.
	line int
}

func (c *fn) fail(code, format string, args ...any) error {
	return errors.New(code, format, args...).InFunction(c.f.ID).AtLine(c.line, 1).Build()
}

func (ld *loader) function(gf *grammar.Function, parent *ir.Function) (*ir.Function, error) {
	if ld.seen[gf.ID] {
		return nil, errors.New(errors.ErrorDuplicateDefinition, "function %d is defined twice", gf.ID).
			AtLine(gf.Pos.Line, gf.Pos.Column).Build()
	}
	ld.seen[gf.ID] = true

	f := ir.NewFunction(gf.ID)
	f.Parent = parent
	f.IsVararg = gf.Vararg
	c := &fn{f: f, line: gf.Pos.Line}

	params, err := safecast.Conv[uint32](gf.Params)
	if err != nil {
		return nil, c.fail(errors.ErrorListingSyntax, "invalid parameter count %d", gf.Params)
	}
	upvalues, err := safecast.Conv[uint32](gf.UpValues)
	if err != nil {
		return nil, c.fail(errors.ErrorListingSyntax, "invalid upvalue count %d", gf.UpValues)
	}
	f.NumParams, f.UpValueCount = params, upvalues
	for i := range params {
		f.Parameters = append(f.Parameters, ir.Register(i))
	}

	if err := c.constants(gf.Constants); err != nil {
		return nil, err
	}
	for _, l := range gf.Locals {
		// Compiler-internal slots such as "(for index)" have no source name.
		if strings.HasPrefix(l.Name, "(") {
			continue
		}
		f.Locals = append(f.Locals, ir.DebugLocal{Name: l.Name, Register: uint32(l.Register), Begin: l.Begin, End: l.End})
	}
	for _, u := range gf.UpValueNames {
		i := int(u.Index)
		if i < 0 || i >= int(upvalues) {
			c.line = gf.Pos.Line
			return nil, c.fail(errors.ErrorUnboundUpvalueReference, "name given for upvalue %d, function declares %d", i, upvalues)
		}
		for len(f.UpValueNames) <= i {
			f.UpValueNames = append(f.UpValueNames, "")
		}
		f.UpValueNames[i] = u.Name
	}

	for _, child := range gf.Children {
		cf, err := ld.function(child, f)
		if err != nil {
			return nil, err
		}
		f.Closures = append(f.Closures, cf)
	}

	c.b = ir.NewBuilder(f)
	prev := -1
	for _, line := range gf.Code {
		c.line = line.Pos.Line
		addr := int(line.Addr)
		if addr <= prev {
			return nil, c.fail(errors.ErrorDuplicateDefinition, "address %d does not follow address %d", addr, prev)
		}
		prev = addr
		c.b.SetPC(addr)
		c.b.SetLine(line.Pos.Line)
		if err := c.op(line.Op); err != nil {
			return nil, err
		}
	}
	attachDebugLocals(f)
	return f, nil
}

func (c *fn) constants(entries []*grammar.ConstEntry) error {
	size := 0
	for _, e := range entries {
		size = max(size, int(e.Index)+1)
	}
	c.f.Constants = make([]ir.Constant, size)
	defined := make([]bool, size)
	for i := range c.f.Constants {
		c.f.Constants[i] = ir.Constant{Kind: ir.ConstNil, ID: i}
	}
	for _, e := range entries {
		i := int(e.Index)
		c.line = e.Pos.Line
		if i < 0 {
			return c.fail(errors.ErrorListingSyntax, "negative constant index %d", i)
		}
		if defined[i] {
			return c.fail(errors.ErrorDuplicateDefinition, "constant %d is defined twice", i)
		}
		defined[i] = true
		k := literal(e.Value)
		k.ID = i
		c.f.Constants[i] = *k
	}
	return nil
}

func literal(l *grammar.Literal) *ir.Constant {
	switch {
	case l.True:
		return ir.Bool(true)
	case l.False:
		return ir.Bool(false)
	case l.Str != nil:
		return ir.String(*l.Str)
	case l.Number != nil:
		if l.Neg {
			return ir.Number(-*l.Number)
		}
		return ir.Number(*l.Number)
	}
	return ir.Nil()
}

// attachDebugLocals names the locals an assignment declares: registers
// whose debug range opens right after it.
func attachDebugLocals(f *ir.Function) {
	for _, inst := range f.Instructions {
		a, ok := inst.(*ir.Assignment)
		if !ok || len(a.Left) == 0 {
			continue
		}
		var names []string
		for _, l := range a.Left {
			if l.HasIndex() || !l.Identifier.IsRegister() {
				names = nil
				break
			}
			name, ok := localStartingAt(f, l.Identifier.Index, a.Begin+1)
			if !ok {
				names = nil
				break
			}
			names = append(names, name)
		}
		if names != nil {
			a.Locals = names
		}
	}
}

func localStartingAt(f *ir.Function, reg uint32, pc int) (string, bool) {
	for _, l := range f.Locals {
		if l.Register == reg && l.Begin == pc {
			return l.Name, true
		}
	}
	return "", false
}
