// Package rowstore serves grid pages and deletes from PostgreSQL tables.
package rowstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gnemet/admingrid"
	"github.com/gnemet/admingrid/database/sqlfilter"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

// ErrUnscopedDelete refuses a delete without a where clause.
var ErrUnscopedDelete = errors.New("rowstore: refusing to delete without a filter")

// Store is a pool of PostgreSQL connections.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects with the given lib/pq connection string and tunes the pool.
func Open(connStr string, maxConns int, idleTimeout, lifetime time.Duration, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns / 2)
	}
	db.SetConnMaxLifetime(lifetime)
	db.SetConnMaxIdleTime(idleTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(db, logger), nil
}

// New wraps an open database.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Close closes the pool.
func (s *Store) Close() error { return s.db.Close() }

// Table binds a table and its allowed columns; the result is a grid
// DataSource.
func (s *Store) Table(name string, columns []string) *Table {
	return &Table{store: s, name: name, columns: columns}
}

// Table is a PostgreSQL table exposed as a grid data source.
type Table struct {
	store   *Store
	name    string
	columns []string
}

// Fetch runs the page query and the count query concurrently.
func (t *Table) Fetch(ctx context.Context, req admingrid.GridRequest) (*admingrid.RawPage, error) {
	b := sqlfilter.New(t.columns)
	cond, args, err := b.Where(req.Where)
	if err != nil {
		return nil, err
	}
	order, err := b.OrderBy(req.OrderBy)
	if err != nil {
		return nil, err
	}
	where := ""
	if cond != "" {
		where = "WHERE " + cond
	}

	selectCols := make([]string, len(t.columns))
	for i, c := range t.columns {
		selectCols[i] = pq.QuoteIdentifier(c)
	}
	table := quoteTable(t.name)

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", table, where)
	query := fmt.Sprintf("SELECT %s FROM %s %s %s LIMIT %d OFFSET %d",
		strings.Join(selectCols, ", "), table, where, order, req.Limit, req.Skip)

	var (
		total int
		items []map[string]interface{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.store.db.QueryRowContext(gctx, countQuery, args...).Scan(&total)
	})
	g.Go(func() error {
		rows, err := t.store.db.QueryContext(gctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		items, err = scanRows(rows)
		return err
	})
	if err := g.Wait(); err != nil {
		t.store.logger.Error("Page query failed", "table", t.name, "error", err)
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	if items == nil {
		items = []map[string]interface{}{}
	}

	t.store.logger.Debug("Page served", "table", t.name, "skip", req.Skip, "limit", req.Limit, "rows", len(items), "total", total)
	return &admingrid.RawPage{Items: items, Total: total}, nil
}

// Delete removes the rows matching where. An empty filter is refused.
func (t *Table) Delete(ctx context.Context, where admingrid.FilterExpression) error {
	_, err := t.DeleteCount(ctx, where)
	return err
}

// DeleteCount is Delete that reports the number of rows removed.
func (t *Table) DeleteCount(ctx context.Context, where admingrid.FilterExpression) (int64, error) {
	cond, args, err := sqlfilter.New(t.columns).Where(where)
	if err != nil {
		return 0, err
	}
	if cond == "" {
		return 0, ErrUnscopedDelete
	}

	res, err := t.store.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", quoteTable(t.name), cond), args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", t.name, err)
	}
	n, _ := res.RowsAffected()
	t.store.logger.Info("Rows deleted", "table", t.name, "rows", n)
	return n, nil
}

// quoteTable quotes a possibly schema-qualified table name.
func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// scanRows reads rows into maps. JSON columns are decoded and array columns
// become lists, so cells reach the renderers in their natural shape.
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(types))
		pointers := make([]interface{}, len(types))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(types))
		for i, ct := range types {
			row[ct.Name()] = convert(ct.DatabaseTypeName(), values[i])
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func convert(dbType string, val interface{}) interface{} {
	b, ok := val.([]byte)
	if !ok {
		return val
	}
	switch {
	case dbType == "JSON" || dbType == "JSONB":
		var v interface{}
		if err := json.Unmarshal(b, &v); err == nil {
			return v
		}
	case strings.HasPrefix(dbType, "_"):
		var arr pq.StringArray
		if err := arr.Scan(b); err == nil {
			out := make([]interface{}, len(arr))
			for i, s := range arr {
				out[i] = s
			}
			return out
		}
	}
	return string(b)
}
