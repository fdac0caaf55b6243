package admingrid

import (
	"fmt"
	"strings"

	"github.com/gnemet/admingrid/internal/momentfmt"
)

// SemanticType is the logical data kind of a column.
type SemanticType string

const (
	TypeText     SemanticType = "text"
	TypeBool     SemanticType = "bool"
	TypeDatetime SemanticType = "datetime"
	TypeJSON     SemanticType = "json"
	TypeFile     SemanticType = "file"
	TypeImage    SemanticType = "image"
	TypeRelation SemanticType = "relation"
)

// SemanticTypes lists every variant in declaration order.
var SemanticTypes = []SemanticType{TypeText, TypeBool, TypeDatetime, TypeJSON, TypeFile, TypeImage, TypeRelation}

// Valid reports whether t is one of the declared variants.
func (t SemanticType) Valid() bool {
	for _, v := range SemanticTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ModelRef identifies a model of the console, e.g. the target of a relation.
type ModelRef struct {
	Identity   string `json:"identity" yaml:"identity"`
	PrimaryKey string `json:"primary_key" yaml:"primary_key"`
}

// ColumnDescriptor is the per-column configuration shared by the compiler and
// the renderers. It does not change for the lifetime of a grid.
type ColumnDescriptor struct {
	Name              string       `json:"name"`
	Label             string       `json:"label"`
	Type              SemanticType `json:"type"`
	SearchBuilderType string       `json:"search_builder_type,omitempty"`
	InputFormat       string       `json:"input_format,omitempty"`
	OutputFormat      string       `json:"output_format,omitempty"`
	APIFormat         string       `json:"api_format,omitempty"`
	Foreign           *ModelRef    `json:"foreign,omitempty"`
	Plural            bool         `json:"is_array,omitempty"`
	ExcludeFromList   bool         `json:"exclude_from_list,omitempty"`
}

// InputPattern is the pattern raw datetime values arrive in.
func (c ColumnDescriptor) InputPattern() momentfmt.Pattern { return momentfmt.Compile(c.InputFormat) }

// OutputPattern is the display pattern for datetime values.
func (c ColumnDescriptor) OutputPattern() momentfmt.Pattern { return momentfmt.Compile(c.OutputFormat) }

// APIPattern is the pattern the backend expects in filter operands.
func (c ColumnDescriptor) APIPattern() momentfmt.Pattern { return momentfmt.Compile(c.APIFormat) }

// Orderable reports whether the grid may sort on the column. Relations hold
// denormalized rows and cannot be ordered server side.
func (c ColumnDescriptor) Orderable() bool { return c.Type != TypeRelation }

// Searchable reports whether the filter builder offers the column.
func (c ColumnDescriptor) Searchable() bool {
	if c.Plural {
		return false
	}
	switch c.Type {
	case TypeText, TypeBool, TypeDatetime, TypeJSON:
		return true
	}
	return false
}

// ColumnTable is the column metadata of one model, built once at grid init.
type ColumnTable struct {
	model   ModelRef
	name    string
	columns []ColumnDescriptor
	listed  []int
	byName  map[string]int
}

// NewColumnTable validates the descriptors and indexes them by name. A
// missing primary key is fatal since row identity cannot be established.
func NewColumnTable(model ModelRef, name string, columns []ColumnDescriptor) (*ColumnTable, error) {
	if strings.TrimSpace(model.PrimaryKey) == "" {
		return nil, fmt.Errorf("model %q: %w", model.Identity, ErrMissingPrimaryKey)
	}

	t := &ColumnTable{
		model:   model,
		name:    name,
		columns: make([]ColumnDescriptor, 0, len(columns)),
		byName:  make(map[string]int, len(columns)),
	}
	for _, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("model %q: column without a name", model.Identity)
		}
		if _, dup := t.byName[col.Name]; dup {
			return nil, fmt.Errorf("model %q: duplicate column %q", model.Identity, col.Name)
		}
		if col.Type == "" {
			col.Type = TypeText
		}
		if !col.Type.Valid() {
			return nil, fmt.Errorf("model %q: column %q has unknown type %q", model.Identity, col.Name, col.Type)
		}
		if col.Type == TypeRelation && (col.Foreign == nil || col.Foreign.PrimaryKey == "") {
			return nil, fmt.Errorf("model %q: relation column %q has no foreign model", model.Identity, col.Name)
		}
		if col.Label == "" {
			col.Label = titleFromName(col.Name)
		}

		t.byName[col.Name] = len(t.columns)
		if !col.ExcludeFromList {
			t.listed = append(t.listed, len(t.columns))
		}
		t.columns = append(t.columns, col)
	}
	return t, nil
}

// Model returns the model the table describes.
func (t *ColumnTable) Model() ModelRef { return t.model }

// Name returns the human readable model name.
func (t *ColumnTable) Name() string { return t.name }

// PrimaryKey returns the primary-key column name.
func (t *ColumnTable) PrimaryKey() string { return t.model.PrimaryKey }

// Column looks a column up by name.
func (t *ColumnTable) Column(name string) (ColumnDescriptor, bool) {
	i, ok := t.byName[name]
	if !ok {
		return ColumnDescriptor{}, false
	}
	return t.columns[i], true
}

// Lookup is Column returning a MissingMetadataError for unknown names.
func (t *ColumnTable) Lookup(where, name string) (ColumnDescriptor, error) {
	col, ok := t.Column(name)
	if !ok {
		return ColumnDescriptor{}, ErrMissingMetadata(where, name)
	}
	return col, nil
}

// Columns returns every descriptor in declaration order.
func (t *ColumnTable) Columns() []ColumnDescriptor {
	out := make([]ColumnDescriptor, len(t.columns))
	copy(out, t.columns)
	return out
}

// Listed returns the columns shown in the grid, in grid order. The position in
// this slice is the column index used by sort instructions.
func (t *ColumnTable) Listed() []ColumnDescriptor {
	out := make([]ColumnDescriptor, 0, len(t.listed))
	for _, i := range t.listed {
		out = append(out, t.columns[i])
	}
	return out
}

// ColumnAt resolves a grid column index.
func (t *ColumnTable) ColumnAt(index int) (ColumnDescriptor, error) {
	if index < 0 || index >= len(t.listed) {
		return ColumnDescriptor{}, ErrMissingMetadata("sort", fmt.Sprintf("#%d", index))
	}
	return t.columns[t.listed[index]], nil
}

// Searchable returns the names of the columns offered to the filter builder.
func (t *ColumnTable) Searchable() []string {
	var names []string
	for _, i := range t.listed {
		if t.columns[i].Searchable() {
			names = append(names, t.columns[i].Name)
		}
	}
	return names
}

func titleFromName(name string) string {
	s := strings.ReplaceAll(name, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
