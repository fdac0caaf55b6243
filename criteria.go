package admingrid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Logic is the boolean operator of a LogicalNode.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// CriteriaNode is a node of the filter-builder tree: *LogicalNode or *LeafNode.
type CriteriaNode interface {
	criteriaNode()
}

// LogicalNode combines its children with AND or OR. It always has at least
// one child.
type LogicalNode struct {
	Op       Logic
	Children []CriteriaNode
}

// LeafNode is a single column condition. Type is the search-builder type the
// filter UI attached to the leaf; Value is the operand list it sends for
// two-sided conditions.
type LeafNode struct {
	Column    string
	Condition string
	Type      string
	Value1    interface{}
	Value2    interface{}
	Value     []interface{}
}

func (*LogicalNode) criteriaNode() {}
func (*LeafNode) criteriaNode()    {}

// And builds an AND node.
func And(children ...CriteriaNode) *LogicalNode {
	return &LogicalNode{Op: LogicAnd, Children: children}
}

// Or builds an OR node.
func Or(children ...CriteriaNode) *LogicalNode {
	return &LogicalNode{Op: LogicOr, Children: children}
}

// Leaf builds a leaf condition. Values are assigned to Value1 and Value2 and
// collected into Value.
func Leaf(column, condition string, values ...interface{}) *LeafNode {
	l := &LeafNode{Column: column, Condition: condition}
	if len(values) > 0 {
		l.Value1 = values[0]
	}
	if len(values) > 1 {
		l.Value2 = values[1]
	}
	l.Value = append(l.Value, values...)
	return l
}

// wireCriteria is the filter builder's JSON shape, shared by groups and leaves.
type wireCriteria struct {
	Logic     string            `json:"logic"`
	Criteria  []json.RawMessage `json:"criteria"`
	Data      string            `json:"data"`
	OrigData  string            `json:"origData"`
	Condition string            `json:"condition"`
	Type      string            `json:"type"`
	Value1    interface{}       `json:"value1"`
	Value2    interface{}       `json:"value2"`
	Value     []interface{}     `json:"value"`
}

// ParseCriteria decodes a filter-builder tree. Empty input, an empty object,
// and groups without complete criteria yield a nil node: no constraint.
func ParseCriteria(data []byte) (CriteriaNode, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var w wireCriteria
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("decode criteria: %w", err)
	}
	return w.node()
}

func (w wireCriteria) node() (CriteriaNode, error) {
	if w.Logic != "" || len(w.Criteria) > 0 {
		op := Logic(strings.ToUpper(w.Logic))
		if op == "" {
			op = LogicAnd
		}
		if op != LogicAnd && op != LogicOr {
			return nil, fmt.Errorf("unknown criteria logic %q", w.Logic)
		}
		n := &LogicalNode{Op: op}
		for _, raw := range w.Criteria {
			child, err := ParseCriteria(raw)
			if err != nil {
				return nil, err
			}
			if child != nil {
				n.Children = append(n.Children, child)
			}
		}
		if len(n.Children) == 0 {
			return nil, nil
		}
		return n, nil
	}

	column := w.Data
	if column == "" {
		column = w.OrigData
	}
	if column == "" || w.Condition == "" {
		return nil, nil
	}
	return &LeafNode{
		Column:    column,
		Condition: w.Condition,
		Type:      w.Type,
		Value1:    w.Value1,
		Value2:    w.Value2,
		Value:     w.Value,
	}, nil
}

// Walk calls fn for every leaf of the tree in order.
func Walk(node CriteriaNode, fn func(*LeafNode)) {
	switch n := node.(type) {
	case *LogicalNode:
		if n == nil {
			return
		}
		for _, c := range n.Children {
			Walk(c, fn)
		}
	case *LeafNode:
		if n != nil {
			fn(n)
		}
	}
}
