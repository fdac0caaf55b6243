package admingrid

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.schema.json
var catalogSchema []byte

// CatalogSchema returns the JSON schema catalogs are validated against.
func CatalogSchema() []byte { return catalogSchema }

// Catalog describes the models of an admin console.
type Catalog struct {
	Version string     `json:"version"`
	Title   string     `json:"title,omitempty"`
	Models  []ModelDef `json:"models"`
}

// ModelDef is one model as declared in a catalog.
type ModelDef struct {
	Identity   string            `json:"identity"`
	Name       string            `json:"name,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	PrimaryKey string            `json:"primary_key"`
	Datasource string            `json:"datasource,omitempty"`
	Columns    []ColumnDef       `json:"columns"`
}

// ColumnDef is one column as declared in a catalog. Formats are pointers so
// an explicit empty value can be told apart from an unset one.
type ColumnDef struct {
	Name              string            `json:"name"`
	Type              string            `json:"type,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
	SearchBuilderType string            `json:"search_builder_type,omitempty"`
	InputFormat       *string           `json:"input_format,omitempty"`
	OutputFormat      *string           `json:"output_format,omitempty"`
	APIFormat         *string           `json:"api_format,omitempty"`
	Identity          string            `json:"identity,omitempty"`
	IsArray           bool              `json:"is_array,omitempty"`
	ExcludeFromList   *bool             `json:"exclude_from_list,omitempty"`
}

// fieldKind holds the defaults a catalog field type implies.
type fieldKind struct {
	semantic SemanticType
	sbType   string
	input    string
	output   string
	api      string
	plural   bool
	hidden   bool
}

var fieldKinds = map[string]fieldKind{
	"string":   {semantic: TypeText, sbType: "string"},
	"text":     {semantic: TypeText, sbType: "string"},
	"email":    {semantic: TypeText, sbType: "string"},
	"phone":    {semantic: TypeText, sbType: "string"},
	"enum":     {semantic: TypeText, sbType: "string"},
	"password": {semantic: TypeText, sbType: "string", hidden: true},
	"num":      {semantic: TypeText, sbType: "num"},
	"bool":     {semantic: TypeBool, sbType: "bool"},
	"datetime": {semantic: TypeDatetime, output: "MMMM Do, YYYY HH:mm:ss"},
	"date":     {semantic: TypeDatetime, input: "YYYY-MM-DD", output: "MMMM Do, YYYY", api: "YYYY-MM-DD"},
	"time":     {semantic: TypeDatetime, input: "HH:mm:ss", output: "HH:mm:ss", api: "HH:mm:ss"},
	"json":     {semantic: TypeJSON, sbType: "string"},
	"file":     {semantic: TypeFile},
	"image":    {semantic: TypeImage},
	"relation": {semantic: TypeRelation},
	"has_one":  {semantic: TypeRelation},
	"has_many": {semantic: TypeRelation, plural: true},
}

// ValidateCatalog checks raw JSON catalog data against the embedded schema and
// returns one message per violation.
func ValidateCatalog(data []byte) ([]string, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(catalogSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return problems, nil
}

// LoadCatalog reads a JSON or YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := ReadCatalogJSON(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(data)
}

// ReadCatalogJSON reads a catalog file as JSON. YAML files (.yaml, .yml)
// are converted.
func ReadCatalogJSON(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlToJSON(data)
	}
	return data, nil
}

// ParseCatalogYAML converts YAML catalog data to JSON and parses it.
func ParseCatalogYAML(data []byte) (*Catalog, error) {
	jsonData, err := yamlToJSON(data)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(jsonData)
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert catalog yaml: %w", err)
	}
	return jsonData, nil
}

// ParseCatalog validates and decodes JSON catalog data.
func ParseCatalog(data []byte) (*Catalog, error) {
	problems, err := ValidateCatalog(data)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid catalog: %s", strings.Join(problems, "; "))
	}

	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &cat, nil
}

// Model finds a model by identity.
func (c *Catalog) Model(identity string) (*ModelDef, bool) {
	for i := range c.Models {
		if c.Models[i].Identity == identity {
			return &c.Models[i], true
		}
	}
	return nil, false
}

// Ref returns the model reference used by relation columns.
func (m *ModelDef) Ref() ModelRef {
	return ModelRef{Identity: m.Identity, PrimaryKey: m.PrimaryKey}
}

// Title resolves the model's display name for lang, falling back to "en",
// then Name, then the identity.
func (m *ModelDef) Title(lang string) string {
	if l, ok := m.Labels[lang]; ok {
		return l
	}
	if l, ok := m.Labels["en"]; ok {
		return l
	}
	if m.Name != "" {
		return m.Name
	}
	return titleFromName(m.Identity)
}

// Table builds the column table for model identity with labels in lang.
// Relation columns are resolved against the other models of the catalog.
func (c *Catalog) Table(identity, lang string) (*ColumnTable, error) {
	m, ok := c.Model(identity)
	if !ok {
		return nil, fmt.Errorf("model %q not found in catalog", identity)
	}

	cols := make([]ColumnDescriptor, 0, len(m.Columns))
	for _, def := range m.Columns {
		typ := def.Type
		if typ == "" {
			typ = "string"
		}
		kind, ok := fieldKinds[typ]
		if !ok {
			return nil, fmt.Errorf("model %q: column %q has unknown type %q", identity, def.Name, typ)
		}

		label := titleFromName(def.Name)
		if l, ok := def.Labels[lang]; ok {
			label = l
		} else if l, ok := def.Labels["en"]; ok {
			label = l
		}

		col := ColumnDescriptor{
			Name:              def.Name,
			Label:             label,
			Type:              kind.semantic,
			SearchBuilderType: kind.sbType,
			InputFormat:       pick(def.InputFormat, kind.input),
			OutputFormat:      pick(def.OutputFormat, kind.output),
			APIFormat:         pick(def.APIFormat, kind.api),
			Plural:            def.IsArray || kind.plural,
			ExcludeFromList:   kind.hidden,
		}
		if def.ExcludeFromList != nil {
			col.ExcludeFromList = *def.ExcludeFromList
		}
		if kind.semantic == TypeDatetime && col.SearchBuilderType == "" {
			col.SearchBuilderType = "moment-" + col.OutputPattern().String()
		}
		if def.SearchBuilderType != "" {
			col.SearchBuilderType = def.SearchBuilderType
		}
		if kind.semantic == TypeRelation {
			foreign, ok := c.Model(def.Identity)
			if !ok {
				return nil, fmt.Errorf("model %q: relation %q points to unknown model %q", identity, def.Name, def.Identity)
			}
			ref := foreign.Ref()
			col.Foreign = &ref
		}
		cols = append(cols, col)
	}

	return NewColumnTable(m.Ref(), m.Title(lang), cols)
}

func pick(v *string, fallback string) string {
	if v != nil {
		return *v
	}
	return fallback
}
