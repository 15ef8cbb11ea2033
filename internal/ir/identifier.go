package ir

import "fmt"

// IdentifierKind tags what an Identifier names.
type IdentifierKind uint8

const (
	IdentRegister IdentifierKind = iota
	IdentGlobal
	IdentUpValue
	IdentVarargs
	IdentGlobalTable
)

func (k IdentifierKind) String() string {
	switch k {
	case IdentRegister:
		return "register"
	case IdentGlobal:
		return "global"
	case IdentUpValue:
		return "upvalue"
	case IdentVarargs:
		return "varargs"
	case IdentGlobalTable:
		return "globaltable"
	default:
		return fmt.Sprintf("IdentifierKind(%d)", uint8(k))
	}
}

// Identifier is the canonical name of a storage location. Identifiers are
// compared by value: two references to register 3 at SSA version 2 are the
// same identifier regardless of where they appear.
type Identifier struct {
	Kind IdentifierKind
	// Index is the register number or upvalue index.
	Index uint32
	// Name is the bound string constant of a global.
	Name string
	// Version is the SSA subscript. Zero means the identifier is not versioned.
	Version uint32
	// Local partitions a register into distinct source variables once SSA
	// subscripts are dropped.
	Local uint32
}

// Register returns the unversioned identifier of register r.
func Register(r uint32) Identifier {
	return Identifier{Kind: IdentRegister, Index: r}
}

// Global returns the identifier of the global bound to name.
func Global(name string) Identifier {
	return Identifier{Kind: IdentGlobal, Name: name}
}

// UpValue returns the identifier of upvalue i.
func UpValue(i uint32) Identifier {
	return Identifier{Kind: IdentUpValue, Index: i}
}

// Varargs returns the vararg marker identifier.
func Varargs() Identifier {
	return Identifier{Kind: IdentVarargs}
}

// GlobalTable returns the identifier of the globals table itself.
func GlobalTable() Identifier {
	return Identifier{Kind: IdentGlobalTable}
}

func (id Identifier) IsRegister() bool { return id.Kind == IdentRegister }

// IsVersioned reports whether id carries an SSA subscript.
func (id Identifier) IsVersioned() bool { return id.Version != 0 }

// WithVersion returns id with its SSA subscript set to v.
func (id Identifier) WithVersion(v uint32) Identifier {
	id.Version = v
	return id
}

// Base strips the SSA subscript and local partition, yielding the physical
// storage location.
func (id Identifier) Base() Identifier {
	id.Version = 0
	id.Local = 0
	return id
}

func (id Identifier) String() string {
	switch id.Kind {
	case IdentRegister:
		s := fmt.Sprintf("r%d", id.Index)
		if id.Local != 0 {
			s += fmt.Sprintf("#%d", id.Local)
		}
		if id.Version != 0 {
			s += fmt.Sprintf("_%d", id.Version)
		}
		return s
	case IdentGlobal:
		return id.Name
	case IdentUpValue:
		return fmt.Sprintf("u%d", id.Index)
	case IdentVarargs:
		return "..."
	case IdentGlobalTable:
		return "_G"
	default:
		return id.Kind.String()
	}
}
