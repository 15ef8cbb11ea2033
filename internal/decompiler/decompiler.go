// Package decompiler drives the pass pipeline over every function of a
// loaded chunk and assembles the per-function output into one tree.
package decompiler

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sort"
	"strings"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"luadec/internal/ast"
	"luadec/internal/errors"
	"luadec/internal/ir"
	"luadec/internal/loader"
	"luadec/internal/passes"
)

var log = commonlog.GetLogger("luadec.decompiler")

// Options configure one decompilation run.
type Options struct {
	// Dialect selects the pass pipeline. Empty uses the listing header and
	// then DefaultDialect.
	Dialect string
	// Jobs bounds the number of functions decompiled at once. Zero or less
	// uses GOMAXPROCS.
	Jobs int
	// IterationCap bounds the fixpoint group. Zero uses the manager default.
	IterationCap int
	// DebugComments emits function and block markers into the output.
	DebugComments bool
	// Include restricts the run to these function ids when non-empty.
	Include []int
	// Exclude skips these function ids.
	Exclude []int
}

// Visits reports whether the filter lets function id through.
func (o Options) Visits(id int) bool {
	if len(o.Include) > 0 && !slices.Contains(o.Include, id) {
		return false
	}
	return !slices.Contains(o.Exclude, id)
}

// FunctionResult is the outcome for one function.
type FunctionResult struct {
	ID int
	// Output is nil when the function was skipped.
	Output   *ast.Function
	Warnings []*errors.DecompileError
	// Err is set when the pipeline failed; Output then holds a stub.
	Err     *errors.DecompileError
	Skipped bool
}

// Result collects the outcome for every function of a chunk.
type Result struct {
	Chunk     *loader.Chunk
	Dialect   string
	Functions []*FunctionResult
	byID      map[int]*FunctionResult
}

// Function returns the result for function id.
func (r *Result) Function(id int) (*FunctionResult, bool) {
	fr, ok := r.byID[id]
	return fr, ok
}

// Failures lists the fatal errors, ordered by function id.
func (r *Result) Failures() []*errors.DecompileError {
	var out []*errors.DecompileError
	for _, fr := range r.Functions {
		if fr.Err != nil {
			out = append(out, fr.Err)
		}
	}
	return out
}

// Warnings lists the warnings, ordered by function id.
func (r *Result) Warnings() []*errors.DecompileError {
	var out []*errors.DecompileError
	for _, fr := range r.Functions {
		out = append(out, fr.Warnings...)
	}
	return out
}

// OK reports whether every visited function decompiled.
func (r *Result) OK() bool { return len(r.Failures()) == 0 }

// Root returns the main function's tree with every decompiled closure
// linked into it, or nil when the main function was skipped.
func (r *Result) Root() *ast.Function {
	fr, ok := r.byID[r.Chunk.Main.ID]
	if !ok || fr.Output == nil {
		return nil
	}
	return fr.Output
}

// Source renders the chunk as Lua. Functions that no decompiled parent
// reaches are appended after the main function.
func (r *Result) Source() string {
	var b strings.Builder
	reached := make(map[int]bool)
	mark := func(fn *ast.Function) {
		ast.Inspect(fn, func(n ast.Node) bool {
			if f, ok := n.(*ast.Function); ok {
				reached[f.ID] = true
			}
			return true
		})
	}
	if root := r.Root(); root != nil {
		mark(root)
		b.WriteString(root.String())
	}
	for _, fr := range r.Functions {
		if fr.Output == nil || reached[fr.ID] {
			continue
		}
		mark(fr.Output)
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "-- function %d\n", fr.ID)
		b.WriteString(fr.Output.String())
	}
	return b.String()
}

// Decompile runs the dialect pipeline over every function of chunk that the
// filter visits. A failing function does not stop its siblings; the error
// is recorded in its FunctionResult. The returned error is non-nil only for
// an unknown dialect or a cancelled context.
func Decompile(ctx context.Context, chunk *loader.Chunk, opts Options) (*Result, error) {
	name := opts.Dialect
	if name == "" {
		name = chunk.Dialect
	}
	if name == "" {
		name = DefaultDialect
	}
	dialect, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	pipeline := dialect.Pipeline(opts.IterationCap)

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	res := &Result{Chunk: chunk, Dialect: dialect.Name, byID: make(map[int]*FunctionResult)}

	// Parents resolve their children's upvalue bindings, so a level starts
	// only once the level above has finished.
	for _, level := range levels(chunk.Main) {
		results := make([]*FunctionResult, len(level))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(min(jobs, len(level)))
		for i, f := range level {
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				if !opts.Visits(f.ID) {
					results[i] = &FunctionResult{ID: f.ID, Skipped: true}
					return nil
				}
				f.InsertDebugComments = opts.DebugComments
				results[i] = run(pipeline, f)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for _, fr := range results {
			res.Functions = append(res.Functions, fr)
			res.byID[fr.ID] = fr
		}
	}

	sort.Slice(res.Functions, func(i, j int) bool { return res.Functions[i].ID < res.Functions[j].ID })
	for _, fr := range res.Functions {
		if fr.Output != nil {
			ast.Link(fr.Output, func(id int) *ast.Function {
				if child, ok := res.byID[id]; ok {
					return child.Output
				}
				return nil
			})
		}
	}
	log.Infof("decompiled %q with %s: %d functions, %d failed", chunk.Name, dialect.Name,
		len(res.Functions), len(res.Failures()))
	return res, nil
}

func run(pipeline *passes.Manager, f *ir.Function) *FunctionResult {
	fr := &FunctionResult{ID: f.ID}
	pctx, err := pipeline.Run(f)
	if pctx != nil {
		fr.Warnings = pctx.Warnings
	}
	if err != nil {
		fr.Err = errors.Attach(err, f.ID, "")
		fr.Output = stub(f, fr.Err)
		log.Errorf("function %d: %s", f.ID, fr.Err.Error())
		return fr
	}
	if pctx.Output == nil {
		fr.Err = errors.New(errors.ErrorPassFailure, "pipeline produced no output").InFunction(f.ID).Build()
		fr.Output = stub(f, fr.Err)
		log.Errorf("function %d: %s", f.ID, fr.Err.Error())
		return fr
	}
	fr.Output = pctx.Output
	return fr
}

// stub stands in for a function whose pipeline failed, so its parent still
// prints.
func stub(f *ir.Function, err *errors.DecompileError) *ast.Function {
	params := make([]string, f.NumParams)
	for i := range params {
		params[i] = fmt.Sprintf("arg%d", i)
	}
	return &ast.Function{
		ID:       f.ID,
		Params:   params,
		IsVararg: f.IsVararg,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Comment{Text: fmt.Sprintf("function %d failed: %s", f.ID, err.Error())},
		}},
	}
}

// levels groups the closure tree by depth, the main function first.
func levels(main *ir.Function) [][]*ir.Function {
	var out [][]*ir.Function
	for level := []*ir.Function{main}; len(level) > 0; {
		out = append(out, level)
		var next []*ir.Function
		for _, f := range level {
			next = append(next, f.Closures...)
		}
		level = next
	}
	return out
}
