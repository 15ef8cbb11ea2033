package passes

import "luadec/internal/ir"

// DetectListInitializers folds the stores that directly follow a table
// constructor into the constructor itself.
type DetectListInitializers struct{}

func (DetectListInitializers) Name() string { return "detect-list-initializers" }
func (DetectListInitializers) Description() string {
	return "fold consecutive stores into table constructors"
}
func (DetectListInitializers) Mutates() Mutation { return MutatesInstructions }

func (DetectListInitializers) Run(_ *Context, f *ir.Function) (bool, error) {
	changed := false
	for _, b := range f.Blocks() {
		for i := 0; i < len(b.Instructions); i++ {
			def, ok := b.Instructions[i].(*ir.Assignment)
			if !ok || !def.IsSingleAssignment() || def.Left[0].HasIndex() {
				continue
			}
			list, ok := def.Right.(*ir.InitializerList)
			if !ok {
				continue
			}
			table := def.Left[0].Identifier
			for i+1 < len(b.Instructions) {
				entry, ok := listStore(b.Instructions[i+1], table, list)
				if !ok {
					break
				}
				list.Entries = append(list.Entries, entry)
				b.Remove(i + 1)
				changed = true
			}
		}
	}
	return changed, nil
}

// listStore matches 'table[key] = value' where neither side reads table
// again, and converts it to a constructor entry.
func listStore(inst ir.Instruction, table ir.Identifier, list *ir.InitializerList) (ir.ListEntry, bool) {
	a, ok := inst.(*ir.Assignment)
	if !ok || !a.IsSingleAssignment() || a.Right == nil {
		return ir.ListEntry{}, false
	}
	target := a.Left[0]
	if target.Identifier != table || len(target.TableIndices) != 1 {
		return ir.ListEntry{}, false
	}
	key := target.TableIndices[0]
	for _, u := range append(ir.ExpressionUses(key), ir.ExpressionUses(a.Right)...) {
		if u == table {
			return ir.ListEntry{}, false
		}
	}
	if c, ok := key.(*ir.Constant); ok && c.Kind == ir.ConstNumber && c.Number == float64(positional(list)+1) {
		return ir.ListEntry{Value: a.Right}, true
	}
	return ir.ListEntry{Key: key, Value: a.Right}, true
}

func positional(list *ir.InitializerList) int {
	n := 0
	for _, e := range list.Entries {
		if e.Key == nil {
			n++
		}
	}
	return n
}
