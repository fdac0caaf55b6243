// Package sqlfilter translates grid filter expressions into parameterized
// PostgreSQL WHERE and ORDER BY clauses.
package sqlfilter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gnemet/admingrid"
	"github.com/lib/pq"
)

// ParseWhere decodes the where query parameter. An empty string is an empty
// expression.
func ParseWhere(s string) (admingrid.FilterExpression, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return admingrid.FilterExpression{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var expr admingrid.FilterExpression
	if err := dec.Decode(&expr); err != nil {
		return nil, fmt.Errorf("decode where: %w", err)
	}
	if expr == nil {
		expr = admingrid.FilterExpression{}
	}
	return expr, nil
}

// Builder renders clauses over an allow-list of columns.
type Builder struct {
	columns map[string]bool
	args    []interface{}
}

// New creates a builder accepting the given column names.
func New(columns []string) *Builder {
	b := &Builder{columns: make(map[string]bool, len(columns))}
	for _, c := range columns {
		b.columns[c] = true
	}
	return b
}

// Where renders expr as a condition and its arguments, numbered from $1.
// An empty expression renders as "".
func (b *Builder) Where(expr map[string]interface{}) (string, []interface{}, error) {
	b.args = nil
	if len(expr) == 0 {
		return "", nil, nil
	}
	clause, err := b.expr(expr)
	if err != nil {
		return "", nil, err
	}
	return clause, b.args, nil
}

// OrderBy renders "<column> <asc|desc>" instructions as an ORDER BY clause.
// Nothing to order by renders as "".
func (b *Builder) OrderBy(orderBy []string) (string, error) {
	clauses := []string{}
	for _, o := range orderBy {
		parts := strings.Fields(o)
		if len(parts) == 0 || len(parts) > 2 {
			return "", fmt.Errorf("invalid order_by %q", o)
		}
		col, err := b.column(parts[0])
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if len(parts) == 2 {
			dir = strings.ToUpper(parts[1])
			if dir != "ASC" && dir != "DESC" {
				return "", fmt.Errorf("invalid sort direction %q", parts[1])
			}
		}
		clauses = append(clauses, fmt.Sprintf("%s %s", col, dir))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "ORDER BY " + strings.Join(clauses, ", "), nil
}

func (b *Builder) column(name string) (string, error) {
	if !b.columns[name] {
		return "", admingrid.ErrMissingMetadata("where", name)
	}
	return pq.QuoteIdentifier(name), nil
}

func (b *Builder) arg(v interface{}) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *Builder) expr(expr map[string]interface{}) (string, error) {
	keys := make([]string, 0, len(expr))
	for k := range expr {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		var (
			part string
			err  error
		)
		switch key {
		case "and", "or":
			part, err = b.logical(key, expr[key])
		case "not":
			part, err = b.not(expr[key])
		default:
			part, err = b.operand(key, expr[key])
		}
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

func (b *Builder) logical(op string, v interface{}) (string, error) {
	children, err := subExpressions(v)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if len(children) == 0 {
		if op == "and" {
			return "TRUE", nil
		}
		return "FALSE", nil
	}
	parts := make([]string, 0, len(children))
	for _, child := range children {
		part, err := b.expr(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return "(" + strings.Join(parts, " "+strings.ToUpper(op)+" ") + ")", nil
}

func (b *Builder) not(v interface{}) (string, error) {
	child, ok := asMap(v)
	if !ok {
		return "", fmt.Errorf("not expects an expression, got %T", v)
	}
	if len(child) == 0 {
		return "FALSE", nil
	}
	part, err := b.expr(child)
	if err != nil {
		return "", err
	}
	return "NOT (" + part + ")", nil
}

func (b *Builder) operand(name string, v interface{}) (string, error) {
	col, err := b.column(name)
	if err != nil {
		return "", err
	}
	ops, ok := asMap(v)
	if !ok {
		// shorthand {col: value}
		return b.compare(col, admingrid.OpEq, v)
	}
	if len(ops) == 0 {
		return "TRUE", nil
	}

	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, op := range names {
		part, err := b.compare(col, op, ops[op])
		if err != nil {
			return "", fmt.Errorf("column %q: %w", name, err)
		}
		parts = append(parts, part)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

var comparisons = map[string]string{
	admingrid.OpEq:  "=",
	admingrid.OpNeq: "<>",
	admingrid.OpGt:  ">",
	admingrid.OpGe:  ">=",
	admingrid.OpLt:  "<",
	admingrid.OpLe:  "<=",
}

var patterns = map[string]string{
	admingrid.OpLike:     "LIKE",
	admingrid.OpNotLike:  "NOT LIKE",
	admingrid.OpILike:    "ILIKE",
	admingrid.OpNotILike: "NOT ILIKE",
}

func (b *Builder) compare(col, op string, v interface{}) (string, error) {
	if sqlOp, ok := comparisons[op]; ok {
		if v == nil {
			if op == admingrid.OpEq {
				return col + " IS NULL", nil
			}
			if op == admingrid.OpNeq {
				return col + " IS NOT NULL", nil
			}
			return "", fmt.Errorf("%s needs a value", op)
		}
		return fmt.Sprintf("%s %s %s", col, sqlOp, b.arg(v)), nil
	}
	if sqlOp, ok := patterns[op]; ok {
		return fmt.Sprintf("%s::text %s %s", col, sqlOp, b.arg(text(v))), nil
	}

	switch op {
	case admingrid.OpContains:
		return fmt.Sprintf("%s::text ILIKE %s", col, b.arg("%"+escapeLike(text(v))+"%")), nil
	case admingrid.OpStartsWith:
		return fmt.Sprintf("%s::text ILIKE %s", col, b.arg(escapeLike(text(v))+"%")), nil
	case admingrid.OpEndsWith:
		return fmt.Sprintf("%s::text ILIKE %s", col, b.arg("%"+escapeLike(text(v)))), nil
	case admingrid.OpBetween, admingrid.OpNotBetween:
		return b.between(col, op == admingrid.OpNotBetween, v)
	case admingrid.OpIn, admingrid.OpNotIn:
		return b.in(col, op == admingrid.OpNotIn, v)
	case admingrid.OpIs, admingrid.OpIsNot:
		return is(col, op == admingrid.OpIsNot, v)
	}
	return "", fmt.Errorf("unknown operator %q", op)
}

// between takes [low, high]. A single bound, left by an unset endpoint in
// the filter builder, constrains one side only.
func (b *Builder) between(col string, negate bool, v interface{}) (string, error) {
	bounds, ok := v.([]interface{})
	if !ok {
		return "", fmt.Errorf("between expects a list, got %T", v)
	}
	switch len(bounds) {
	case 2:
		kw := "BETWEEN"
		if negate {
			kw = "NOT BETWEEN"
		}
		return fmt.Sprintf("%s %s %s AND %s", col, kw, b.arg(bounds[0]), b.arg(bounds[1])), nil
	case 1:
		if negate {
			return fmt.Sprintf("%s < %s", col, b.arg(bounds[0])), nil
		}
		return fmt.Sprintf("%s >= %s", col, b.arg(bounds[0])), nil
	case 0:
		return "TRUE", nil
	}
	return "", fmt.Errorf("between expects at most two values, got %d", len(bounds))
}

func (b *Builder) in(col string, negate bool, v interface{}) (string, error) {
	values, ok := v.([]interface{})
	if !ok {
		return "", fmt.Errorf("in expects a list, got %T", v)
	}
	if len(values) == 0 {
		if negate {
			return "TRUE", nil
		}
		return "FALSE", nil
	}
	params := make([]string, len(values))
	for i, val := range values {
		params[i] = b.arg(val)
	}
	kw := "IN"
	if negate {
		kw = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", col, kw, strings.Join(params, ", ")), nil
}

func is(col string, negate bool, v interface{}) (string, error) {
	var target string
	switch v {
	case nil:
		target = "NULL"
	case true:
		target = "TRUE"
	case false:
		target = "FALSE"
	default:
		return "", fmt.Errorf("is expects null, true or false, got %v", v)
	}
	if negate {
		return fmt.Sprintf("%s IS NOT %s", col, target), nil
	}
	return fmt.Sprintf("%s IS %s", col, target), nil
}

func subExpressions(v interface{}) ([]map[string]interface{}, error) {
	switch x := v.(type) {
	case []admingrid.FilterExpression:
		out := make([]map[string]interface{}, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out, nil
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(x))
		for _, e := range x {
			m, ok := asMap(e)
			if !ok {
				return nil, fmt.Errorf("expected an expression, got %T", e)
			}
			out = append(out, m)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list of expressions, got %T", v)
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch x := v.(type) {
	case map[string]interface{}:
		return x, true
	case admingrid.FilterExpression:
		return x, true
	}
	return nil, false
}

func text(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
