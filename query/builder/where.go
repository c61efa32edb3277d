package builder

import (
	"fmt"

	"github.com/satishbabariya/seal-go/query/sqlgen"
)

// Conditional is anything that carries a condition tree.
type Conditional interface {
	Tree() *sqlgen.ConditionTree
}

// where implements the comparison methods for a builder type W, returning
// the builder itself so calls chain.
type where[W any] struct {
	self W
	tree *sqlgen.ConditionTree
}

func (w *where[W]) init(self W) {
	w.self = self
	w.tree = sqlgen.NewConditionTree()
}

// Tree returns the accumulated condition tree.
func (w *where[W]) Tree() *sqlgen.ConditionTree { return w.tree }

func (w *where[W]) add(field string, value interface{}, op sqlgen.Operator) W {
	w.tree.AddCondition(sqlgen.NewCondition(field, value, op))
	return w.self
}

// Eq adds "field = value".
func (w *where[W]) Eq(field string, value interface{}) W { return w.add(field, value, sqlgen.OpEq) }

// Ne adds "field != value".
func (w *where[W]) Ne(field string, value interface{}) W { return w.add(field, value, sqlgen.OpNe) }

// Gt adds "field > value".
func (w *where[W]) Gt(field string, value interface{}) W { return w.add(field, value, sqlgen.OpGt) }

// Ge adds "field >= value".
func (w *where[W]) Ge(field string, value interface{}) W { return w.add(field, value, sqlgen.OpGe) }

// Lt adds "field < value".
func (w *where[W]) Lt(field string, value interface{}) W { return w.add(field, value, sqlgen.OpLt) }

// Le adds "field <= value".
func (w *where[W]) Le(field string, value interface{}) W { return w.add(field, value, sqlgen.OpLe) }

// In adds "field IN (...)"; values is a slice.
func (w *where[W]) In(field string, values interface{}) W { return w.add(field, values, sqlgen.OpIn) }

// Like adds "field LIKE %value%".
func (w *where[W]) Like(field string, value interface{}) W {
	return w.add(field, fmt.Sprintf("%%%v%%", value), sqlgen.OpLike)
}

// LLike adds "field LIKE %value".
func (w *where[W]) LLike(field string, value interface{}) W {
	return w.add(field, fmt.Sprintf("%%%v", value), sqlgen.OpLike)
}

// RLike adds "field LIKE value%".
func (w *where[W]) RLike(field string, value interface{}) W {
	return w.add(field, fmt.Sprintf("%v%%", value), sqlgen.OpLike)
}

// Or folds other's conditions in as one OR-connected group.
func (w *where[W]) Or(other Conditional) W {
	if other != nil {
		w.tree.AddTree(other.Tree().Or())
	}
	return w.self
}

// ConditionWrapper is a free-standing condition group, used with Or.
type ConditionWrapper struct {
	where[*ConditionWrapper]
}

// Where starts a condition group.
func Where() *ConditionWrapper {
	c := &ConditionWrapper{}
	c.init(c)
	return c
}

// Parse renders the group as an expression and its args.
func (c *ConditionWrapper) Parse() (string, []interface{}) {
	return c.tree.Parse()
}
