package admingrid

import (
	"fmt"
	"sort"
	"strings"
)

// Backend operator tokens understood by the data endpoint.
const (
	OpEq         = "eq"
	OpNeq        = "neq"
	OpGt         = "gt"
	OpGe         = "ge"
	OpLt         = "lt"
	OpLe         = "le"
	OpContains   = "contains"
	OpStartsWith = "startsWith"
	OpEndsWith   = "endsWith"
	OpBetween    = "between"
	OpNotBetween = "not_between"
	OpLike       = "like"
	OpNotLike    = "not_like"
	OpILike      = "ilike"
	OpNotILike   = "not_ilike"
	OpIn         = "in"
	OpNotIn      = "not_in"
	OpIs         = "is"
	OpIsNot      = "is_not"
)

// directOperators map filter-builder conditions that take value1 unchanged.
var directOperators = map[string]string{
	"=":        OpEq,
	"!=":       OpNeq,
	">":        OpGt,
	">=":       OpGe,
	"<":        OpLt,
	"<=":       OpLe,
	"contains": OpContains,
	"starts":   OpStartsWith,
	"ends":     OpEndsWith,
}

// specialConditions are handled by the compiler with their own operand shape.
var specialConditions = []string{"between", "!between", "!starts", "!ends", "!contains", "null", "!null", "false", "true"}

// Mapped reports whether the compiler has a backend operator for condition.
func Mapped(condition string) bool {
	if _, ok := directOperators[condition]; ok {
		return true
	}
	for _, c := range specialConditions {
		if c == condition {
			return true
		}
	}
	return false
}

// conditionSets are the conditions the filter builder offers per
// search-builder type. Bool columns get True/False/Empty/Not Empty.
var conditionSets = map[string][]string{
	"string": {"=", "!=", "starts", "!starts", "contains", "!contains", "ends", "!ends", "null", "!null"},
	"html":   {"=", "!=", "starts", "!starts", "contains", "!contains", "ends", "!ends", "null", "!null"},
	"num":    {"=", "!=", "<", "<=", ">=", ">", "between", "!between", "null", "!null"},
	"date":   {"=", "!=", "<", ">", "between", "!between", "null", "!null"},
	"bool":   {"true", "false", "null", "!null"},
	"array":  {"=", "!=", "contains", "null", "!null"},
}

// isDateType reports whether a search-builder type carries date operands.
func isDateType(sbType string) bool {
	return sbType == "date" || strings.HasPrefix(sbType, "moment-")
}

// Conditions returns the conditions offered for a search-builder type.
func Conditions(sbType string) []string {
	if isDateType(sbType) {
		sbType = "date"
	}
	set := conditionSets[sbType]
	out := make([]string, len(set))
	copy(out, set)
	return out
}

// CheckConditionSets verifies every condition the filter builder can offer
// has a compiler mapping. A mismatch would silently lose filters.
func CheckConditionSets() error {
	var missing []string
	for sbType, set := range conditionSets {
		for _, c := range set {
			if !Mapped(c) {
				missing = append(missing, fmt.Sprintf("%s:%s", sbType, c))
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("conditions without backend operator: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateCriteria checks every leaf against the column table and the
// condition set of its search-builder type.
func ValidateCriteria(node CriteriaNode, columns *ColumnTable) error {
	var err error
	Walk(node, func(l *LeafNode) {
		if err != nil {
			return
		}
		col, lerr := columns.Lookup("filter", l.Column)
		if lerr != nil {
			err = lerr
			return
		}
		sbType := l.Type
		if sbType == "" {
			sbType = col.SearchBuilderType
		}
		for _, c := range Conditions(sbType) {
			if c == l.Condition {
				return
			}
		}
		err = fmt.Errorf("condition %q is not valid for column %q of type %q", l.Condition, l.Column, sbType)
	})
	return err
}
