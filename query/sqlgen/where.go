// Package sqlgen provides WHERE clause structures.
package sqlgen

import (
	"fmt"
	"reflect"
	"strings"
)

// Operator is a comparison operator usable in a Condition.
type Operator string

const (
	OpEq   Operator = "="
	OpNe   Operator = "!="
	OpGt   Operator = ">"
	OpGe   Operator = ">="
	OpLt   Operator = "<"
	OpLe   Operator = "<="
	OpIn   Operator = "IN"
	OpLike Operator = "LIKE"
)

// Valid reports whether op is one of the supported operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe, OpIn, OpLike:
		return true
	}
	return false
}

// Connective joins the direct children of a ConditionTree.
type Connective string

const (
	And Connective = "AND"
	Or  Connective = "OR"
)

// Condition represents a single filter condition
type Condition struct {
	field    string
	value    interface{}
	operator Operator
}

// NewCondition creates a condition. The operator defaults to "=".
func NewCondition(field string, value interface{}, op Operator) Condition {
	if op == "" {
		op = OpEq
	}
	return Condition{field: field, value: value, operator: op}
}

// Field returns the column the condition applies to.
func (c Condition) Field() string { return c.field }

// Value returns the comparison value.
func (c Condition) Value() interface{} { return c.value }

// Operator returns the comparison operator.
func (c Condition) Operator() Operator { return c.operator }

// Parse renders the condition with "?" placeholders.
//
// An IN condition over a slice expands to one placeholder per element; an
// empty slice renders as a predicate that never matches.
func (c Condition) Parse() (string, []interface{}) {
	if c.operator == OpIn {
		if values, ok := expandSlice(c.value); ok {
			if len(values) == 0 {
				return "1 = 0", nil
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
			return fmt.Sprintf("%s IN (%s)", c.field, placeholders), values
		}
		return fmt.Sprintf("%s IN (?)", c.field), []interface{}{c.value}
	}
	return fmt.Sprintf("%s %s ?", c.field, c.operator), []interface{}{c.value}
}

func expandSlice(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	if values, ok := v.([]interface{}); ok {
		return values, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	// []byte is a scalar value for every driver
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	values := make([]interface{}, rv.Len())
	for i := range values {
		values[i] = rv.Index(i).Interface()
	}
	return values, true
}

// ConditionTree is an ordered list of conditions and nested trees joined by a
// single connective. Nesting expresses mixed AND/OR precedence.
type ConditionTree struct {
	nodes      []conditionNode
	connective Connective
}

type conditionNode struct {
	condition *Condition
	tree      *ConditionTree
}

// NewConditionTree creates an empty AND tree.
func NewConditionTree() *ConditionTree {
	return &ConditionTree{connective: And}
}

// Or switches the tree's connective to OR.
func (t *ConditionTree) Or() *ConditionTree {
	t.connective = Or
	return t
}

// Connective returns the connective applied to the tree's direct children.
func (t *ConditionTree) Connective() Connective {
	return t.connective
}

// AddCondition appends a leaf condition.
func (t *ConditionTree) AddCondition(c Condition) *ConditionTree {
	t.nodes = append(t.nodes, conditionNode{condition: &c})
	return t
}

// AddTree appends a nested tree, rendered in parentheses.
func (t *ConditionTree) AddTree(sub *ConditionTree) *ConditionTree {
	if sub == nil || sub == t {
		return t
	}
	t.nodes = append(t.nodes, conditionNode{tree: sub})
	return t
}

// Len returns the number of direct children.
func (t *ConditionTree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nodes)
}

// IsEmpty reports whether the tree renders no predicate at all.
func (t *ConditionTree) IsEmpty() bool {
	if t == nil {
		return true
	}
	for _, n := range t.nodes {
		if n.condition != nil || !n.tree.IsEmpty() {
			return false
		}
	}
	return true
}

// Conditions returns every leaf condition in traversal order.
func (t *ConditionTree) Conditions() []Condition {
	if t == nil {
		return nil
	}
	var out []Condition
	for _, n := range t.nodes {
		if n.condition != nil {
			out = append(out, *n.condition)
			continue
		}
		out = append(out, n.tree.Conditions()...)
	}
	return out
}

// Parse renders the tree left to right. The returned args line up
// positionally with the "?" placeholders in the expression. An empty tree
// renders as "".
func (t *ConditionTree) Parse() (string, []interface{}) {
	if t.IsEmpty() {
		return "", nil
	}

	parts := make([]string, 0, len(t.nodes))
	var args []interface{}
	for _, n := range t.nodes {
		if n.condition != nil {
			exp, condArgs := n.condition.Parse()
			parts = append(parts, exp)
			args = append(args, condArgs...)
			continue
		}
		if n.tree.IsEmpty() {
			continue
		}
		exp, subArgs := n.tree.Parse()
		parts = append(parts, "("+exp+")")
		args = append(args, subArgs...)
	}

	connective := t.connective
	if connective == "" {
		connective = And
	}
	return strings.Join(parts, " "+string(connective)+" "), args
}
