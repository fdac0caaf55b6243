package admingrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultPageLength and DefaultLengthMenu match the console's grid defaults.
const DefaultPageLength = 5

var DefaultLengthMenu = []int{5, 10, 25, 50, 100}

// GridOptions configures a Grid. Zero values select the defaults.
type GridOptions struct {
	PageLength  int
	LengthMenu  []int
	SettleDelay time.Duration
	GapPolicy   GapPolicy
	URLs        URLResolver
	View        BulkView
	Logger      *slog.Logger
	// DefaultSort applies when no sort has been set. Nil sorts by the first
	// listed column ascending.
	DefaultSort []SortInstruction
}

// PageView is the outcome of the last draw as the grid widget consumes it.
// A failed draw has no rows and carries the error.
type PageView struct {
	Generation      uint64
	RecordsFiltered int
	Data            []*Row
	Err             error
}

// Grid is the state of one grid instance: column metadata, the current page,
// sort and filter, the last drawn page, and the selection.
type Grid struct {
	ID string

	adapter  *Adapter
	registry *Registry
	bulk     *BulkController
	logger   *slog.Logger
	menu     []int

	mu     sync.Mutex
	page   PageState
	sorts  []SortInstruction
	filter CriteriaNode
	last   *PageView
	// draws counts fetches; only the latest may replace last.
	draws uint64
}

// NewGrid creates a grid over columns served by source.
func NewGrid(columns *ColumnTable, source DataSource, opts GridOptions) (*Grid, error) {
	if columns == nil {
		return nil, errors.New("grid needs a column table")
	}
	if columns.PrimaryKey() == "" {
		return nil, ErrMissingPrimaryKey
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PageLength <= 0 {
		opts.PageLength = DefaultPageLength
	}
	if len(opts.LengthMenu) == 0 {
		opts.LengthMenu = DefaultLengthMenu
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}

	id := uuid.NewString()
	logger := opts.Logger.With("grid", id, "model", columns.Model().Identity)

	sorts := opts.DefaultSort
	if sorts == nil && len(columns.Listed()) > 0 {
		sorts = []SortInstruction{{Column: 0, Dir: SortAsc}}
	}

	g := &Grid{
		ID:       id,
		adapter:  NewAdapter(columns, source, logger, WithGapPolicy(opts.GapPolicy)),
		registry: NewRegistry(opts.URLs),
		logger:   logger,
		menu:     opts.LengthMenu,
		page:     PageState{Index: 0, Length: opts.PageLength},
		sorts:    sorts,
	}
	g.bulk = NewBulkController(opts.View, g.adapter.Delete, g.Reload, opts.SettleDelay, logger)
	return g, nil
}

// Columns returns the grid's column table.
func (g *Grid) Columns() *ColumnTable { return g.adapter.Columns() }

// Adapter returns the grid's request adapter.
func (g *Grid) Adapter() *Adapter { return g.adapter }

// Registry returns the grid's renderer registry.
func (g *Grid) Registry() *Registry { return g.registry }

// Bulk returns the selection and bulk-action controller.
func (g *Grid) Bulk() *BulkController { return g.bulk }

// LengthMenu returns the page lengths offered to the user.
func (g *Grid) LengthMenu() []int { return g.menu }

// State returns the current page, sort and filter.
func (g *Grid) State() (PageState, []SortInstruction, CriteriaNode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.page, append([]SortInstruction(nil), g.sorts...), g.filter
}

// Draw sets the page, sort and filter and fetches the page. A draw
// superseded by a later one returns ErrStaleResponse and leaves the last
// view alone.
func (g *Grid) Draw(ctx context.Context, page PageState, filter CriteriaNode, sorts []SortInstruction) (*PageView, error) {
	if page.Length <= 0 {
		return nil, fmt.Errorf("page length must be positive, got %d", page.Length)
	}
	g.mu.Lock()
	g.page, g.filter, g.sorts = page, filter, append([]SortInstruction(nil), sorts...)
	g.mu.Unlock()
	return g.fetch(ctx, page, filter, sorts)
}

// GoTo changes the page index and fetches it.
func (g *Grid) GoTo(ctx context.Context, index int) (*PageView, error) {
	page, sorts, filter := g.State()
	page.Index = index
	return g.Draw(ctx, page, filter, sorts)
}

// Reload fetches the current page again.
func (g *Grid) Reload(ctx context.Context) error {
	page, sorts, filter := g.State()
	_, err := g.fetch(ctx, page, filter, sorts)
	return err
}

func (g *Grid) fetch(ctx context.Context, page PageState, filter CriteriaNode, sorts []SortInstruction) (*PageView, error) {
	g.mu.Lock()
	g.draws++
	draw := g.draws
	g.mu.Unlock()

	resp, err := g.adapter.FetchPage(ctx, page, filter, sorts)
	if errors.Is(err, ErrStaleResponse) {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if draw != g.draws {
		g.logger.Debug("Discarding superseded draw", "draw", draw, "latest", g.draws, "error", err)
		return nil, ErrStaleResponse
	}
	if err != nil {
		g.last = &PageView{Err: err}
		return g.last, err
	}
	g.last = &PageView{Generation: resp.Generation, RecordsFiltered: resp.Total, Data: resp.Items}
	return g.last, nil
}

// Last returns the last drawn view, or nil before the first draw.
func (g *Grid) Last() *PageView {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Select marks rows selected.
func (g *Grid) Select(ids ...RowIdentity) { g.bulk.Select(ids...) }

// Deselect unmarks rows.
func (g *Grid) Deselect(ids ...RowIdentity) { g.bulk.Deselect(ids...) }

// Selected returns the selected identities.
func (g *Grid) Selected() []RowIdentity { return g.bulk.Selected() }

// RenderPage renders the rows of the last view in mode.
func (g *Grid) RenderPage(mode RenderMode) ([][]interface{}, error) {
	last := g.Last()
	if last == nil {
		return nil, nil
	}
	out := make([][]interface{}, 0, len(last.Data))
	for _, row := range last.Data {
		cells, err := g.registry.RenderRow(g.Columns(), row, mode)
		if err != nil {
			return nil, err
		}
		out = append(out, cells)
	}
	return out, nil
}
