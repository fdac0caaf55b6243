package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gnemet/admingrid"
	"github.com/go-chi/chi/v5"
	g "maragu.dev/gomponents"
	h "maragu.dev/gomponents/html"
)

func (s *server) newGrid(r *http.Request) (*admingrid.Grid, *admingrid.ModelDef, error) {
	name := chi.URLParam(r, "model")
	m, ok := s.catalog.Model(name)
	if !ok {
		return nil, nil, fmt.Errorf("unknown model %q", name)
	}
	table, err := s.catalog.Table(m.Identity, s.cfg.Catalog.Lang)
	if err != nil {
		return nil, m, err
	}
	grid, err := admingrid.NewGrid(table, s.source(m), s.cfg.GridOptions(s.logger))
	return grid, m, err
}

// consolePage renders one page of a model's grid. Query parameters: page
// (zero based), length, sort (listed column index) and dir.
func (s *server) consolePage(w http.ResponseWriter, r *http.Request) {
	grid, m, err := s.newGrid(r)
	if m == nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	q := r.URL.Query()
	page, sorts, _ := grid.State()
	if n, err := intParam(q.Get("page"), 0); err == nil && n >= 0 {
		page.Index = n
	}
	if n, err := intParam(q.Get("length"), page.Length); err == nil && n > 0 && n <= maxLimit {
		page.Length = n
	}
	if q.Get("sort") != "" {
		col, err := strconv.Atoi(q.Get("sort"))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid sort %q", q.Get("sort")))
			return
		}
		dir := admingrid.SortAsc
		if q.Get("dir") == string(admingrid.SortDesc) {
			dir = admingrid.SortDesc
		}
		sorts = []admingrid.SortInstruction{{Column: col, Dir: dir}}
	}

	if _, err := grid.Draw(r.Context(), page, nil, sorts); err != nil {
		s.logger.Error("Draw failed", "model", m.Identity, "error", err)
	}

	var buf bytes.Buffer
	if err := s.renderConsole(&buf, grid, m, q.Get("error")); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// bulkDelete deletes the rows posted as id form values through the grid's
// bulk flow and returns to the console.
func (s *server) bulkDelete(w http.ResponseWriter, r *http.Request) {
	grid, m, err := s.newGrid(r)
	if m == nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ids := make([]interface{}, 0, len(r.PostForm["id"]))
	for _, id := range r.PostForm["id"] {
		ids = append(ids, id)
	}
	grid.Select(admingrid.IdentitiesOf(ids...)...)

	target := s.cfg.Grid.AdminBaseURL + "/" + m.Identity
	if err := grid.Bulk().Request(); err != nil {
		http.Redirect(w, r, target+"?error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
		return
	}
	if err := grid.Bulk().Confirm(r.Context()); err != nil {
		http.Redirect(w, r, target+"?error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *server) exportCSV(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Export.CSV {
		writeError(w, http.StatusNotFound, fmt.Errorf("csv export is disabled"))
		return
	}
	grid, m, err := s.newGrid(r)
	if m == nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	page, sorts, _ := grid.State()
	page.Length = maxLimit
	view, err := grid.Draw(r.Context(), page, nil, sorts)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, m.Identity))
	if err := admingrid.WriteCSV(w, grid.Registry(), grid.Columns(), view.Data); err != nil {
		s.logger.Error("CSV export failed", "model", m.Identity, "error", err)
	}
}

func (s *server) renderConsole(buf *bytes.Buffer, grid *admingrid.Grid, m *admingrid.ModelDef, flash string) error {
	table := grid.Columns()
	view := grid.Last()
	page, _, _ := grid.State()
	base := s.cfg.Grid.AdminBaseURL + "/" + m.Identity

	headers := []g.Node{h.Th(), h.Th()}
	for _, col := range table.Listed() {
		headers = append(headers, h.Th(g.Text(col.Label)))
	}

	var rows []g.Node
	if view != nil && view.Err == nil {
		for _, row := range view.Data {
			cells, err := grid.Registry().RenderRow(table, row, admingrid.ModeDisplay)
			if err != nil {
				return err
			}
			tds := []g.Node{
				h.Td(h.Input(h.Type("checkbox"), h.Name("id"), h.Value(row.ID.Key), g.Attr("form", "bulk"))),
				h.Td(g.Raw(string(grid.Registry().ActionCell(table.Model(), row)))),
			}
			for _, cell := range cells {
				tds = append(tds, h.Td(cellNode(cell)))
			}
			rows = append(rows, h.Tr(tds...))
		}
	}

	var alerts []g.Node
	if flash != "" {
		alerts = append(alerts, h.Div(h.Class("alert alert-danger"), g.Text(flash)))
	}
	if view != nil && view.Err != nil {
		alerts = append(alerts, h.Div(h.Class("alert alert-danger"), g.Text(view.Err.Error())))
	}

	var buttons []g.Node
	for _, b := range s.cfg.Export.ExportButtons() {
		if b == "csv" {
			buttons = append(buttons, h.A(h.Class("btn btn-outline-secondary btn-sm me-1"), h.Href(base+"/export.csv"), g.Text("CSV")))
		}
	}

	total := 0
	if view != nil {
		total = view.RecordsFiltered
	}

	doc := h.Doctype(h.HTML(
		h.Head(
			h.Meta(h.Charset("utf-8")),
			h.TitleEl(g.Text(table.Name())),
		),
		h.Body(
			h.Div(h.Class("container-fluid"),
				h.H1(g.Text(table.Name())),
				g.Group(alerts),
				h.Div(h.Class("d-flex mb-2"),
					g.Group(buttons),
					h.Form(h.ID("bulk"), h.Method("post"), h.Action(base+"/delete"),
						h.Button(h.Type("submit"), h.Class("btn btn-danger btn-sm"), g.Text("Delete selected")),
					),
				),
				h.Table(h.Class("table table-sm"),
					h.THead(h.Tr(headers...)),
					h.TBody(rows...),
				),
				pager(base, page, total),
			),
		),
	))
	return doc.Render(buf)
}

func pager(base string, page admingrid.PageState, total int) g.Node {
	pages := (total + page.Length - 1) / page.Length
	link := func(index int, label string) g.Node {
		if index < 0 || index >= pages || index == page.Index {
			return h.Li(h.Class("page-item disabled"), h.Span(h.Class("page-link"), g.Text(label)))
		}
		return h.Li(h.Class("page-item"), h.A(h.Class("page-link"),
			h.Href(fmt.Sprintf("%s?page=%d&length=%d", base, index, page.Length)), g.Text(label)))
	}
	return h.Nav(
		h.Span(h.Class("me-2"), g.Textf("%d records", total)),
		h.Ul(h.Class("pagination"),
			link(page.Index-1, "Previous"),
			link(page.Index+1, "Next"),
		),
	)
}

// cellNode turns a display-mode cell into a node.
func cellNode(v interface{}) g.Node {
	switch x := v.(type) {
	case admingrid.HTML:
		return g.Raw(string(x))
	case nil:
		return nil
	}
	return g.Text(fmt.Sprint(v))
}
