package admingrid

import (
	"context"
	"errors"
)

// LookupPageSize is the number of foreign records per lookup page.
const LookupPageSize = 20

// LookupResult is one page of foreign records matching a search term.
type LookupResult struct {
	Items []*Row
	More  bool
}

// Lookup searches the records of a foreign model, e.g. to pick the target of
// a relation column.
type Lookup struct {
	columns *ColumnTable
	source  DataSource
}

// NewLookup creates a lookup over the foreign model's columns and data source.
func NewLookup(columns *ColumnTable, source DataSource) *Lookup {
	return &Lookup{columns: columns, source: source}
}

// Where matches term against every searchable column. An empty term or a
// model without searchable columns matches everything.
func (l *Lookup) Where(term string) FilterExpression {
	cols := l.columns.Searchable()
	if term == "" || len(cols) == 0 {
		return FilterExpression{}
	}
	or := make([]FilterExpression, 0, len(cols))
	for _, c := range cols {
		or = append(or, FilterExpression{c: map[string]interface{}{OpContains: term}})
	}
	return FilterExpression{"or": or}
}

// Search returns the zero-based page of records matching term, keyed by the
// foreign primary key.
func (l *Lookup) Search(ctx context.Context, term string, page int) (*LookupResult, error) {
	if page < 0 {
		page = 0
	}
	raw, err := l.source.Fetch(ctx, GridRequest{
		Skip:  page * LookupPageSize,
		Limit: LookupPageSize,
		Where: l.Where(term),
	})
	if err != nil {
		var failure *RequestFailureError
		if !errors.As(err, &failure) {
			err = ErrRequestFailure("lookup", 0, err)
		}
		return nil, err
	}

	pk := l.columns.PrimaryKey()
	res := &LookupResult{More: (page+1)*LookupPageSize < raw.Total}
	for _, item := range raw.Items {
		if v, ok := item[pk]; ok && v != nil {
			res.Items = append(res.Items, &Row{ID: NewRowIdentity(v), Values: item})
		}
	}
	return res, nil
}
