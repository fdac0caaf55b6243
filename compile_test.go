package admingrid

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileJSON(t *testing.T, c *Compiler, tree string) string {
	t.Helper()
	node, err := ParseCriteria([]byte(tree))
	require.NoError(t, err)
	expr, err := c.Compile(node)
	require.NoError(t, err)
	out, err := expr.JSON()
	require.NoError(t, err)
	return out
}

func TestCompileAndTree(t *testing.T) {
	c := NewCompiler(authorColumns(t))
	got := compileJSON(t, c, `{"logic":"AND","criteria":[
		{"data":"age","condition":">=","value1":30},
		{"data":"active","condition":"true"}]}`)
	assert.JSONEq(t, `{"and":[{"age":{"ge":30}},{"active":{"is":true}}]}`, got)
}

func TestCompileStructurePreserving(t *testing.T) {
	c := NewCompiler(authorColumns(t))

	expr, err := c.Compile(Or(
		Leaf("name", "contains", "ann"),
		And(Leaf("age", "<", 10)),
		Leaf("active", "false"),
	))
	require.NoError(t, err)
	require.Len(t, expr, 1)
	list, ok := expr["or"].([]FilterExpression)
	require.True(t, ok)
	assert.Len(t, list, 3)

	// single-child groups are not flattened
	inner, ok := list[1]["and"].([]FilterExpression)
	require.True(t, ok)
	assert.Len(t, inner, 1)

	single, err := c.Compile(Leaf("name", "=", "Ann"))
	require.NoError(t, err)
	assert.Equal(t, FilterExpression{"name": map[string]interface{}{"eq": "Ann"}}, single)
}

func TestCompileConditionTable(t *testing.T) {
	c := NewCompiler(authorColumns(t))

	cases := []struct {
		leaf *LeafNode
		want string
	}{
		{Leaf("age", "=", 1), `{"age":{"eq":1}}`},
		{Leaf("age", "!=", 1), `{"age":{"neq":1}}`},
		{Leaf("age", ">", 1), `{"age":{"gt":1}}`},
		{Leaf("age", "<=", 1), `{"age":{"le":1}}`},
		{Leaf("name", "starts", "Jo"), `{"name":{"startsWith":"Jo"}}`},
		{Leaf("name", "ends", "hn"), `{"name":{"endsWith":"hn"}}`},
		{Leaf("name", "!starts", "Jo"), `{"name":{"not_like":"Jo%"}}`},
		{Leaf("name", "!ends", "hn"), `{"name":{"not_like":"%hn"}}`},
		{Leaf("name", "!contains", "oh"), `{"name":{"not_like":"%oh%"}}`},
		{Leaf("name", "null"), `{"name":{"is":null}}`},
		{Leaf("active", "!null"), `{"active":{"is_not":null}}`},
		{Leaf("profile", "!null"), `{"profile":{"is_not":null}}`},
		{Leaf("active", "false"), `{"active":{"is":false}}`},
		{Leaf("age", "between", 18, 65), `{"age":{"between":[18,65]}}`},
		{Leaf("age", "!between", 18, 65), `{"age":{"not_between":[18,65]}}`},
	}
	for _, tc := range cases {
		expr, err := c.Compile(tc.leaf)
		require.NoError(t, err)
		out, err := expr.JSON()
		require.NoError(t, err)
		assert.JSONEq(t, tc.want, out, tc.leaf.Condition)
	}
}

func TestCompileBetweenUsesValueList(t *testing.T) {
	c := NewCompiler(authorColumns(t))
	got := compileJSON(t, c, `{"data":"age","condition":"between","value":[3,"9"],"value1":3,"value2":"9"}`)
	assert.JSONEq(t, `{"age":{"between":[3,"9"]}}`, got)
}

func TestCompileDateLeaf(t *testing.T) {
	c := NewCompiler(authorColumns(t))

	got := compileJSON(t, c, `{"data":"born","type":"moment-DD/MM/YYYY","condition":"between",
		"value1":"05/01/2022","value2":"10/01/2022"}`)
	assert.JSONEq(t, `{"born":{"between":["2022-01-05","2022-01-10"]}}`, got)

	got = compileJSON(t, c, `{"data":"born","type":"moment-DD/MM/YYYY","condition":">","value1":"05/01/2022"}`)
	assert.JSONEq(t, `{"born":{"gt":"2022-01-05"}}`, got)

	// unset endpoints are left out of the value list
	got = compileJSON(t, c, `{"data":"born","condition":"between","value1":"05/01/2022","value2":""}`)
	assert.JSONEq(t, `{"born":{"between":["2022-01-05"]}}`, got)
}

func TestCompileDateLeafInvalid(t *testing.T) {
	c := NewCompiler(authorColumns(t))
	_, err := c.Compile(&LeafNode{Column: "born", Condition: "=", Type: "moment-DD/MM/YYYY", Value1: "yesterday"})
	assert.Error(t, err)
}

func TestCompileEmptyTree(t *testing.T) {
	c := NewCompiler(authorColumns(t))
	for _, in := range []string{``, `{}`, `{"criteria":[]}`, `{"logic":"AND","criteria":[{}]}`} {
		node, err := ParseCriteria([]byte(in))
		require.NoError(t, err)
		assert.Nil(t, node, in)
		expr, err := c.Compile(node)
		require.NoError(t, err)
		assert.True(t, expr.Empty())
		out, err := expr.JSON()
		require.NoError(t, err)
		assert.Equal(t, "{}", out)
	}
}

func TestCompileTypedNilNodes(t *testing.T) {
	c := NewCompiler(authorColumns(t))
	for _, node := range []CriteriaNode{
		(*LeafNode)(nil),
		(*LogicalNode)(nil),
		And(Leaf("age", ">", 1), (*LeafNode)(nil)),
	} {
		assert.NotPanics(t, func() {
			_, err := c.Compile(node)
			assert.Error(t, err)
		})
	}
}

func TestCompileMissingMetadata(t *testing.T) {
	c := NewCompiler(authorColumns(t))
	_, err := c.Compile(And(Leaf("name", "=", "x"), Leaf("nickname", "=", "y")))
	var missing *MissingMetadataError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "nickname", missing.Column)
	assert.Equal(t, "filter", missing.Where)
}

func TestCompileGapPolicies(t *testing.T) {
	tree := And(Leaf("name", "=", "x"), Leaf("name", "regex", "^x"))

	var logs bytes.Buffer
	warn := NewCompiler(authorColumns(t), WithCompilerLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	expr, gaps, err := warn.CompileReport(tree)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, "regex", gaps[0].Condition)
	out, _ := expr.JSON()
	assert.JSONEq(t, `{"and":[{"name":{"eq":"x"}},{"name":{}}]}`, out)
	assert.Contains(t, logs.String(), "condition=regex")

	logs.Reset()
	drop := NewCompiler(authorColumns(t), WithGapPolicy(GapDrop), WithCompilerLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	_, gaps, err = drop.CompileReport(tree)
	require.NoError(t, err)
	assert.Len(t, gaps, 1)
	assert.Empty(t, logs.String())

	strict := NewCompiler(authorColumns(t), WithGapPolicy(GapError))
	_, err = strict.Compile(tree)
	var gap *CompileGapError
	require.True(t, errors.As(err, &gap))
	assert.Equal(t, "name", gap.Column)
}

func TestParseGapPolicy(t *testing.T) {
	p, err := ParseGapPolicy("ERROR")
	require.NoError(t, err)
	assert.Equal(t, GapError, p)
	p, err = ParseGapPolicy("")
	require.NoError(t, err)
	assert.Equal(t, GapWarn, p)
	_, err = ParseGapPolicy("ignore")
	assert.Error(t, err)
}

func TestParseCriteriaNested(t *testing.T) {
	node, err := ParseCriteria([]byte(`{"logic":"OR","criteria":[
		{"origData":"name","condition":"=","type":"string","value":["Ann"],"value1":"Ann"},
		{"logic":"AND","criteria":[{"data":"age","condition":"<","value1":"5"}]}]}`))
	require.NoError(t, err)

	or, ok := node.(*LogicalNode)
	require.True(t, ok)
	assert.Equal(t, LogicOr, or.Op)
	require.Len(t, or.Children, 2)
	leaf := or.Children[0].(*LeafNode)
	assert.Equal(t, "name", leaf.Column)
	assert.Equal(t, "string", leaf.Type)

	_, err = ParseCriteria([]byte(`{"logic":"XOR","criteria":[{"data":"a","condition":"="}]}`))
	assert.Error(t, err)
}

func TestConditionSetsAreMapped(t *testing.T) {
	require.NoError(t, CheckConditionSets())
	assert.Equal(t, []string{"true", "false", "null", "!null"}, Conditions("bool"))
	assert.Contains(t, Conditions("moment-YYYY-MM-DD"), "between")
}

func TestValidateCriteria(t *testing.T) {
	cols := authorColumns(t)
	assert.NoError(t, ValidateCriteria(And(Leaf("age", ">=", 3), Leaf("active", "true")), cols))
	assert.Error(t, ValidateCriteria(Leaf("active", ">=", 3), cols))
	assert.Error(t, ValidateCriteria(Leaf("ghost", "=", 3), cols))
}

func TestFilterExpressionJSONNil(t *testing.T) {
	var f FilterExpression
	out, err := f.JSON()
	require.NoError(t, err)
	assert.Equal(t, "{}", out)

	b, err := json.Marshal(FilterExpression{"id": map[string]interface{}{"in": []interface{}{1, 2}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":{"in":[1,2]}}`, string(b))
}
