package analysis

import (
	"fmt"

	"luadec/internal/ir"
)

// Kind names a cached analysis.
type Kind uint8

const (
	KindDominance Kind = 1 << iota
	KindDefUse

	KindAll = KindDominance | KindDefUse
)

func (k Kind) String() string {
	switch k {
	case KindDominance:
		return "dominance"
	case KindDefUse:
		return "def-use"
	case KindAll:
		return "all"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// StaleError is raised when a cached analysis is read after the block
// graph changed without an invalidation.
type StaleError struct {
	Kind       Kind
	Function   int
	Computed   uint64
	Generation uint64
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("%s analysis of function %d read at generation %d but computed at %d",
		e.Kind, e.Function, e.Generation, e.Computed)
}

// Cache lazily computes and holds the analyses of one function. It is not
// safe for concurrent use; each function pipeline owns its cache.
type Cache struct {
	fn        *ir.Function
	dominance *Dominance
	defUse    *DefUse
	defUseGen uint64
}

// NewCache returns an empty cache for f.
func NewCache(f *ir.Function) *Cache {
	return &Cache{fn: f}
}

// Dominance returns the dominance analysis, computing it on first use.
// Reading it after the block graph changed without Invalidate panics with
// a *StaleError.
func (c *Cache) Dominance() *Dominance {
	if c.dominance == nil {
		c.dominance = ComputeDominance(c.fn)
		return c.dominance
	}
	if g := c.fn.Generation(); g != c.dominance.Generation() {
		panic(&StaleError{Kind: KindDominance, Function: c.fn.ID, Computed: c.dominance.Generation(), Generation: g})
	}
	return c.dominance
}

// DefUse returns the def-use chains, computing them on first use.
func (c *Cache) DefUse() *DefUse {
	if c.defUse == nil {
		c.defUse = ComputeDefUse(c.fn)
		c.defUseGen = c.fn.Generation()
		return c.defUse
	}
	if g := c.fn.Generation(); g != c.defUseGen {
		panic(&StaleError{Kind: KindDefUse, Function: c.fn.ID, Computed: c.defUseGen, Generation: g})
	}
	return c.defUse
}

// Invalidate drops the analyses named by kind.
func (c *Cache) Invalidate(kind Kind) {
	if kind&KindDominance != 0 {
		c.dominance = nil
	}
	if kind&KindDefUse != 0 {
		c.defUse = nil
	}
}

// Valid reports whether kind is currently cached.
func (c *Cache) Valid(kind Kind) bool {
	switch kind {
	case KindDominance:
		return c.dominance != nil
	case KindDefUse:
		return c.defUse != nil
	default:
		return c.dominance != nil && c.defUse != nil
	}
}
