package admingrid

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gnemet/admingrid/internal/momentfmt"
)

// FilterExpression is the backend filter contract. Its single key is either
// "and"/"or" with a list of expressions, or a column name with a mapping of
// backend operator to operand.
type FilterExpression map[string]interface{}

// Empty reports whether the expression places no constraint.
func (f FilterExpression) Empty() bool { return len(f) == 0 }

// JSON encodes the expression for the where query parameter. An empty
// expression encodes as "{}".
func (f FilterExpression) JSON() (string, error) {
	if f == nil {
		return "{}", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("encode filter expression: %w", err)
	}
	return string(b), nil
}

// GapPolicy decides what happens to a leaf whose condition has no operator.
type GapPolicy int

const (
	// GapWarn keeps the leaf with an empty operator map and logs a warning.
	GapWarn GapPolicy = iota
	// GapDrop does the same without logging.
	GapDrop
	// GapError fails the compilation.
	GapError
)

// ParseGapPolicy reads "warn", "drop" or "error".
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "warn":
		return GapWarn, nil
	case "drop":
		return GapDrop, nil
	case "error":
		return GapError, nil
	}
	return GapWarn, fmt.Errorf("unknown gap policy %q", s)
}

func (p GapPolicy) String() string {
	switch p {
	case GapDrop:
		return "drop"
	case GapError:
		return "error"
	}
	return "warn"
}

// Compiler translates filter-builder trees into filter expressions for one
// column table.
type Compiler struct {
	columns *ColumnTable
	policy  GapPolicy
	logger  *slog.Logger
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithGapPolicy sets the policy for unmapped conditions.
func WithGapPolicy(p GapPolicy) CompilerOption {
	return func(c *Compiler) { c.policy = p }
}

// WithCompilerLogger sets the logger gap warnings go to.
func WithCompilerLogger(l *slog.Logger) CompilerOption {
	return func(c *Compiler) { c.logger = l }
}

// NewCompiler creates a compiler for the given columns.
func NewCompiler(columns *ColumnTable, opts ...CompilerOption) *Compiler {
	c := &Compiler{columns: columns, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile translates node. A nil node compiles to an empty expression.
func (c *Compiler) Compile(node CriteriaNode) (FilterExpression, error) {
	expr, _, err := c.CompileReport(node)
	return expr, err
}

// CompileReport is Compile that also returns the leaves whose condition had
// no backend operator.
func (c *Compiler) CompileReport(node CriteriaNode) (FilterExpression, []*CompileGapError, error) {
	var gaps []*CompileGapError
	if node == nil {
		return FilterExpression{}, nil, nil
	}
	expr, err := c.compile(node, &gaps)
	if err != nil {
		return nil, gaps, err
	}
	return expr, gaps, nil
}

func (c *Compiler) compile(node CriteriaNode, gaps *[]*CompileGapError) (FilterExpression, error) {
	switch n := node.(type) {
	case *LogicalNode:
		if n == nil {
			return nil, fmt.Errorf("nil criteria group")
		}
		if n.Op != LogicAnd && n.Op != LogicOr {
			return nil, fmt.Errorf("unknown criteria logic %q", n.Op)
		}
		if len(n.Children) == 0 {
			return nil, fmt.Errorf("%s group without criteria", n.Op)
		}
		list := make([]FilterExpression, 0, len(n.Children))
		for _, child := range n.Children {
			expr, err := c.compile(child, gaps)
			if err != nil {
				return nil, err
			}
			list = append(list, expr)
		}
		return FilterExpression{strings.ToLower(string(n.Op)): list}, nil
	case *LeafNode:
		if n == nil {
			return nil, fmt.Errorf("nil criteria leaf")
		}
		return c.leaf(n, gaps)
	case nil:
		return nil, fmt.Errorf("nil criteria node")
	}
	return nil, fmt.Errorf("unsupported criteria node %T", node)
}

func (c *Compiler) leaf(l *LeafNode, gaps *[]*CompileGapError) (FilterExpression, error) {
	col, err := c.columns.Lookup("filter", l.Column)
	if err != nil {
		return nil, err
	}
	sbType := l.Type
	if sbType == "" {
		sbType = col.SearchBuilderType
	}

	value1, value2, values := l.Value1, l.Value2, l.Value
	if isDateType(sbType) {
		uiFormat := "YYYY-MM-DD"
		if strings.HasPrefix(sbType, "moment-") {
			uiFormat = strings.TrimPrefix(sbType, "moment-")
		}
		ui, api := momentfmt.Compile(uiFormat), col.APIPattern()
		values = nil
		if present(value1) {
			if value1, err = reformatDate(value1, ui, api); err != nil {
				return nil, fmt.Errorf("column %q: %w", l.Column, err)
			}
			values = append(values, value1)
		}
		if present(value2) {
			if value2, err = reformatDate(value2, ui, api); err != nil {
				return nil, fmt.Errorf("column %q: %w", l.Column, err)
			}
			values = append(values, value2)
		}
	} else if len(values) == 0 {
		for _, v := range []interface{}{value1, value2} {
			if present(v) {
				values = append(values, v)
			}
		}
	}

	operand := map[string]interface{}{}
	switch l.Condition {
	case "between":
		operand[OpBetween] = values
	case "!between":
		operand[OpNotBetween] = values
	case "!starts":
		operand[OpNotLike] = fmt.Sprintf("%v%%", value1)
	case "!ends":
		operand[OpNotLike] = fmt.Sprintf("%%%v", value1)
	case "!contains":
		operand[OpNotLike] = fmt.Sprintf("%%%v%%", value1)
	case "null":
		operand[OpIs] = nil
	case "!null":
		operand[OpIsNot] = nil
	case "false":
		operand[OpIs] = false
	case "true":
		operand[OpIs] = true
	default:
		op, ok := directOperators[l.Condition]
		if !ok {
			gap := &CompileGapError{Column: l.Column, Condition: l.Condition}
			*gaps = append(*gaps, gap)
			switch c.policy {
			case GapError:
				return nil, gap
			case GapWarn:
				c.logger.Warn("Filter condition has no backend operator, leaf left unconstrained",
					"column", l.Column, "condition", l.Condition)
			}
			break
		}
		operand[op] = value1
	}
	return FilterExpression{l.Column: operand}, nil
}

func present(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case json.Number:
		return x != ""
	}
	return true
}

func reformatDate(v interface{}, in, out momentfmt.Pattern) (string, error) {
	t, err := in.Parse(fmt.Sprint(v))
	if err != nil {
		return "", err
	}
	return out.Format(t), nil
}
