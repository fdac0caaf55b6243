package admingrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
)

// RowIdentity is the handle of a fetched row, derived from its primary-key
// value. Key is the value's canonical text and is what identities compare on.
type RowIdentity struct {
	Key   string
	Value interface{}
}

// NewRowIdentity derives the identity of a primary-key value.
func NewRowIdentity(pk interface{}) RowIdentity {
	return RowIdentity{Key: plain(pk), Value: pk}
}

// IdentitiesOf derives identities for several primary-key values.
func IdentitiesOf(pks ...interface{}) []RowIdentity {
	ids := make([]RowIdentity, len(pks))
	for i, pk := range pks {
		ids[i] = NewRowIdentity(pk)
	}
	return ids
}

// Row is one backend row with its identity assigned.
type Row struct {
	ID     RowIdentity
	Values map[string]interface{}
}

// Get returns the raw value of a column.
func (r *Row) Get(column string) interface{} { return r.Values[column] }

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortInstruction orders the grid by the listed column at Column.
type SortInstruction struct {
	Column int
	Dir    SortDirection
}

// PageState is the grid's zero-based page and its length.
type PageState struct {
	Index  int
	Length int
}

// GridRequest is what a page fetch sends to the data endpoint.
type GridRequest struct {
	Skip    int
	Limit   int
	OrderBy []string
	Where   FilterExpression
}

// RawPage is the data endpoint's answer before identities are assigned.
type RawPage struct {
	Items []map[string]interface{} `json:"items"`
	Total int                      `json:"total"`
}

// GridResponse is a fetched page: the rows with identities and the number of
// records matching the filter.
type GridResponse struct {
	Generation uint64
	Items      []*Row
	Total      int
}

// DataSource is the data endpoint of one model.
type DataSource interface {
	Fetch(ctx context.Context, req GridRequest) (*RawPage, error)
	Delete(ctx context.Context, where FilterExpression) error
}

// Adapter turns grid state into requests against a DataSource and responses
// into identified rows.
type Adapter struct {
	columns    *ColumnTable
	compiler   *Compiler
	source     DataSource
	logger     *slog.Logger
	generation atomic.Uint64
}

// NewAdapter creates an adapter. The compiler options configure how the
// filter tree is compiled.
func NewAdapter(columns *ColumnTable, source DataSource, logger *slog.Logger, opts ...CompilerOption) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]CompilerOption{WithCompilerLogger(logger)}, opts...)
	return &Adapter{
		columns:  columns,
		compiler: NewCompiler(columns, opts...),
		source:   source,
		logger:   logger,
	}
}

// Columns returns the adapter's column table.
func (a *Adapter) Columns() *ColumnTable { return a.columns }

// Compiler returns the compiler used for the where parameter.
func (a *Adapter) Compiler() *Compiler { return a.compiler }

// BuildRequest maps grid state to a request.
func (a *Adapter) BuildRequest(page PageState, tree CriteriaNode, sorts []SortInstruction) (GridRequest, error) {
	if page.Index < 0 {
		return GridRequest{}, fmt.Errorf("negative page index %d", page.Index)
	}
	if page.Length <= 0 {
		return GridRequest{}, fmt.Errorf("page length must be positive, got %d", page.Length)
	}

	orderBy, err := a.buildOrder(sorts)
	if err != nil {
		return GridRequest{}, err
	}
	where, err := a.compiler.Compile(tree)
	if err != nil {
		return GridRequest{}, err
	}

	return GridRequest{
		Skip:    page.Index * page.Length,
		Limit:   page.Length,
		OrderBy: orderBy,
		Where:   where,
	}, nil
}

func (a *Adapter) buildOrder(sorts []SortInstruction) ([]string, error) {
	orderBy := make([]string, 0, len(sorts))
	for _, s := range sorts {
		col, err := a.columns.ColumnAt(s.Column)
		if err != nil {
			return nil, err
		}
		if !col.Orderable() {
			return nil, fmt.Errorf("column %q cannot be ordered", col.Name)
		}
		dir := SortDirection(strings.ToLower(string(s.Dir)))
		if dir == "" {
			dir = SortAsc
		}
		if dir != SortAsc && dir != SortDesc {
			return nil, fmt.Errorf("invalid sort direction %q for column %q", s.Dir, col.Name)
		}
		orderBy = append(orderBy, fmt.Sprintf("%s %s", col.Name, dir))
	}
	return orderBy, nil
}

// FetchPage builds and issues the request for the given state. Every call
// starts a new generation; a response or failure that arrives after a newer
// call started is discarded with ErrStaleResponse.
func (a *Adapter) FetchPage(ctx context.Context, page PageState, tree CriteriaNode, sorts []SortInstruction) (*GridResponse, error) {
	gen := a.generation.Add(1)

	req, err := a.BuildRequest(page, tree, sorts)
	if err != nil {
		return nil, err
	}

	raw, err := a.source.Fetch(ctx, req)
	if latest := a.generation.Load(); latest != gen {
		a.logger.Debug("Discarding stale page", "model", a.columns.Model().Identity, "generation", gen, "latest", latest, "error", err)
		return nil, ErrStaleResponse
	}
	if err != nil {
		var failure *RequestFailureError
		if !errors.As(err, &failure) {
			err = ErrRequestFailure("fetch", 0, err)
		}
		a.logger.Error("Page fetch failed", "model", a.columns.Model().Identity, "generation", gen, "error", err)
		return nil, err
	}

	rows, err := a.identify(raw.Items)
	if err != nil {
		return nil, err
	}
	return &GridResponse{Generation: gen, Items: rows, Total: raw.Total}, nil
}

func (a *Adapter) identify(items []map[string]interface{}) ([]*Row, error) {
	pk := a.columns.PrimaryKey()
	rows := make([]*Row, 0, len(items))
	for i, item := range items {
		v, ok := item[pk]
		if !ok || v == nil {
			return nil, fmt.Errorf("row %d has no value for primary key %q: %w", i, pk, ErrMissingPrimaryKey)
		}
		rows = append(rows, &Row{ID: NewRowIdentity(v), Values: item})
	}
	return rows, nil
}

// DeleteWhere is the filter that scopes a delete to the given identities.
func (a *Adapter) DeleteWhere(ids []RowIdentity) FilterExpression {
	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id.Value
	}
	return FilterExpression{a.columns.PrimaryKey(): map[string]interface{}{OpIn: values}}
}

// Delete removes the rows with the given identities.
func (a *Adapter) Delete(ctx context.Context, ids []RowIdentity) error {
	if len(ids) == 0 {
		return ErrEmptySelection
	}
	if err := a.source.Delete(ctx, a.DeleteWhere(ids)); err != nil {
		var failure *RequestFailureError
		if !errors.As(err, &failure) {
			err = ErrRequestFailure("delete", 0, err)
		}
		a.logger.Error("Delete failed", "model", a.columns.Model().Identity, "rows", len(ids), "error", err)
		return err
	}
	a.logger.Info("Rows deleted", "model", a.columns.Model().Identity, "rows", len(ids))
	return nil
}
