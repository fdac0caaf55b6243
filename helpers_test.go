package admingrid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var movieRef = ModelRef{Identity: "movie", PrimaryKey: "id"}

func authorColumns(t *testing.T) *ColumnTable {
	t.Helper()
	table, err := NewColumnTable(ModelRef{Identity: "author", PrimaryKey: "id"}, "Author", []ColumnDescriptor{
		{Name: "id", Type: TypeText, SearchBuilderType: "num"},
		{Name: "name", Type: TypeText, SearchBuilderType: "string"},
		{Name: "age", Type: TypeText, SearchBuilderType: "num"},
		{Name: "active", Type: TypeBool, SearchBuilderType: "bool"},
		{Name: "born", Type: TypeDatetime, SearchBuilderType: "moment-DD/MM/YYYY",
			InputFormat: "YYYY-MM-DD", OutputFormat: "MMMM Do, YYYY", APIFormat: "YYYY-MM-DD"},
		{Name: "tags", Type: TypeText, Plural: true},
		{Name: "profile", Type: TypeJSON, SearchBuilderType: "string"},
		{Name: "avatar", Type: TypeImage},
		{Name: "cv", Type: TypeFile},
		{Name: "movies", Type: TypeRelation, Foreign: &movieRef, Plural: true},
		{Name: "password", Type: TypeText, ExcludeFromList: true},
	})
	require.NoError(t, err)
	return table
}
