package sqlfilter

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/gnemet/admingrid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cols = []string{"id", "name", "age", "active", "born"}

func where(t *testing.T, in string) (string, []interface{}) {
	t.Helper()
	expr, err := ParseWhere(in)
	require.NoError(t, err)
	clause, args, err := New(cols).Where(expr)
	require.NoError(t, err)
	return clause, args
}

func TestWhereCompiledTree(t *testing.T) {
	clause, args := where(t, `{"and":[{"age":{"ge":30}},{"active":{"is":true}}]}`)
	assert.Equal(t, `("age" >= $1 AND "active" IS TRUE)`, clause)
	assert.Equal(t, []interface{}{json.Number("30")}, args)
}

func TestWhereOperators(t *testing.T) {
	cases := []struct {
		in     string
		clause string
		args   []interface{}
	}{
		{`{"name":{"eq":"Ann"}}`, `"name" = $1`, []interface{}{"Ann"}},
		{`{"name":{"neq":null}}`, `"name" IS NOT NULL`, nil},
		{`{"age":{"lt":3}}`, `"age" < $1`, []interface{}{json.Number("3")}},
		{`{"age":{"between":[1,5]}}`, `"age" BETWEEN $1 AND $2`, []interface{}{json.Number("1"), json.Number("5")}},
		{`{"age":{"not_between":[1,5]}}`, `"age" NOT BETWEEN $1 AND $2`, []interface{}{json.Number("1"), json.Number("5")}},
		{`{"born":{"between":["2022-01-05"]}}`, `"born" >= $1`, []interface{}{"2022-01-05"}},
		{`{"name":{"not_like":"Jo%"}}`, `"name"::text NOT LIKE $1`, []interface{}{"Jo%"}},
		{`{"name":{"contains":"50%_off"}}`, `"name"::text ILIKE $1`, []interface{}{`%50\%\_off%`}},
		{`{"name":{"startsWith":"Jo"}}`, `"name"::text ILIKE $1`, []interface{}{"Jo%"}},
		{`{"name":{"endsWith":"hn"}}`, `"name"::text ILIKE $1`, []interface{}{"%hn"}},
		{`{"id":{"in":[1,2]}}`, `"id" IN ($1, $2)`, []interface{}{json.Number("1"), json.Number("2")}},
		{`{"id":{"not_in":[]}}`, `TRUE`, nil},
		{`{"id":{"in":[]}}`, `FALSE`, nil},
		{`{"name":{"is":null}}`, `"name" IS NULL`, nil},
		{`{"active":{"is_not":false}}`, `"active" IS NOT FALSE`, nil},
		{`{"name":{}}`, `TRUE`, nil},
		{`{"name":"Ann"}`, `"name" = $1`, []interface{}{"Ann"}},
		{`{"not":{"name":{"eq":"x"}}}`, `NOT ("name" = $1)`, []interface{}{"x"}},
		{`{"or":[{"name":{"contains":"a"}},{"and":[{"age":{"gt":1}},{"age":{"lt":9}}]}]}`,
			`("name"::text ILIKE $1 OR ("age" > $2 AND "age" < $3))`,
			[]interface{}{"%a%", json.Number("1"), json.Number("9")}},
		{`{"age":{"ge":1,"le":9}}`, `("age" >= $1 AND "age" <= $2)`, []interface{}{json.Number("1"), json.Number("9")}},
	}
	for _, tc := range cases {
		clause, args := where(t, tc.in)
		assert.Equal(t, tc.clause, clause, tc.in)
		assert.Equal(t, tc.args, args, tc.in)
	}
}

func TestWhereEmpty(t *testing.T) {
	for _, in := range []string{"", "{}", "null"} {
		clause, args := where(t, in)
		assert.Empty(t, clause)
		assert.Empty(t, args)
	}
}

func TestWhereInProcessExpression(t *testing.T) {
	expr := admingrid.FilterExpression{"or": []admingrid.FilterExpression{
		{"id": map[string]interface{}{"in": []interface{}{7, 9}}},
		{"name": map[string]interface{}{"between": []interface{}{"a", "c"}}},
	}}
	clause, args, err := New(cols).Where(expr)
	require.NoError(t, err)
	assert.Equal(t, `("id" IN ($1, $2) OR "name" BETWEEN $3 AND $4)`, clause)
	assert.Equal(t, []interface{}{7, 9, "a", "c"}, args)
}

func TestWhereErrors(t *testing.T) {
	b := New(cols)
	for _, in := range []string{
		`{"age":{"regex":"x"}}`,
		`{"age":{"between":[1,2,3]}}`,
		`{"age":{"in":5}}`,
		`{"active":{"is":"yes"}}`,
		`{"and":{"age":{"eq":1}}}`,
		`{"age":{"gt":null}}`,
	} {
		expr, err := ParseWhere(in)
		require.NoError(t, err)
		_, _, err = b.Where(expr)
		assert.Error(t, err, in)
	}

	expr, _ := ParseWhere(`{"password":{"eq":"x"}}`)
	_, _, err := b.Where(expr)
	var missing *admingrid.MissingMetadataError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "password", missing.Column)

	_, err = ParseWhere(`{"age":`)
	assert.Error(t, err)
}

func TestOrderBy(t *testing.T) {
	b := New(cols)
	order, err := b.OrderBy([]string{"name asc", "id DESC", "age"})
	require.NoError(t, err)
	assert.Equal(t, `ORDER BY "name" ASC, "id" DESC, "age" ASC`, order)

	order, err = b.OrderBy(nil)
	require.NoError(t, err)
	assert.Empty(t, order)

	_, err = b.OrderBy([]string{"name sideways"})
	assert.Error(t, err)
	_, err = b.OrderBy([]string{"name; DROP TABLE x"})
	assert.Error(t, err)
}
