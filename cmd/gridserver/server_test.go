package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gnemet/admingrid"
	"github.com/gnemet/admingrid/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tableSource is an in-memory table keyed by pk.
type tableSource struct {
	mu       sync.Mutex
	pk       string
	rows     []map[string]interface{}
	requests []admingrid.GridRequest
	deletes  []admingrid.FilterExpression
}

func (s *tableSource) Fetch(ctx context.Context, req admingrid.GridRequest) (*admingrid.RawPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	end := req.Skip + req.Limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	items := []map[string]interface{}{}
	if req.Skip < end {
		items = s.rows[req.Skip:end]
	}
	return &admingrid.RawPage{Items: items, Total: len(s.rows)}, nil
}

func (s *tableSource) Delete(ctx context.Context, where admingrid.FilterExpression) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, where)
	in, _ := where[s.pk].(map[string]interface{})[admingrid.OpIn].([]interface{})
	kept := s.rows[:0]
	for _, r := range s.rows {
		drop := false
		for _, v := range in {
			if fmt.Sprint(v) == fmt.Sprint(r[s.pk]) {
				drop = true
			}
		}
		if !drop {
			kept = append(kept, r)
		}
	}
	s.rows = kept
	return nil
}

type fixture struct {
	authors *tableSource
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg, err := config.Parse([]byte("grid:\n  settle_delay: 1ms\nexport:\n  csv: true\n"))
	require.NoError(t, err)
	catalog, err := admingrid.LoadCatalog("../../testdata/catalog.json")
	require.NoError(t, err)

	authors := &tableSource{pk: "id", rows: []map[string]interface{}{
		{"id": 1, "full_name": "Magda Szabó", "active": true, "born": "1917-10-05"},
		{"id": 2, "full_name": "Antal Szerb", "active": false, "born": "1901-05-01"},
		{"id": 3, "full_name": "Sándor Márai", "active": nil, "born": nil},
	}}
	movies := &tableSource{pk: "movie_id"}
	source := func(m *admingrid.ModelDef) admingrid.DataSource {
		if m.Identity == "author" {
			return authors
		}
		return movies
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{authors: authors, handler: newServer(cfg, catalog, source, logger).routes()}
}

func (f *fixture) do(method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestListRows(t *testing.T) {
	f := newFixture(t)

	q := url.Values{
		"skip":     {"1"},
		"limit":    {"2"},
		"where":    {`{"full_name":{"contains":"sz"}}`},
		"order_by": {"id desc", "full_name asc"},
	}
	rec := f.do(http.MethodGet, "/api/author?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var page struct {
		Items []map[string]interface{} `json:"items"`
		Total int                      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)

	require.Len(t, f.authors.requests, 1)
	got := f.authors.requests[0]
	assert.Equal(t, 1, got.Skip)
	assert.Equal(t, 2, got.Limit)
	assert.Equal(t, []string{"id desc", "full_name asc"}, got.OrderBy)
	assert.Equal(t, map[string]interface{}{"contains": "sz"}, got.Where["full_name"])
}

func TestListRowsRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		target string
		status int
	}{
		{"/api/nobody", http.StatusNotFound},
		{"/api/author?limit=abc", http.StatusBadRequest},
		{"/api/author?skip=-1", http.StatusBadRequest},
		{"/api/author?where=%7B", http.StatusBadRequest},
		{"/api/author?where=" + url.QueryEscape(`{"movies":{"eq":1}}`), http.StatusBadRequest},
		{"/api/author?where=" + url.QueryEscape(`{"id":{"regex":"x"}}`), http.StatusBadRequest},
		{"/api/author?order_by=" + url.QueryEscape("id sideways"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := f.do(http.MethodGet, tc.target, nil)
		assert.Equal(t, tc.status, rec.Code, tc.target)
		assert.Contains(t, rec.Body.String(), `"error"`, tc.target)
	}
	assert.Empty(t, f.authors.requests)
}

func TestDeleteRows(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodDelete, "/api/author", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodDelete, "/api/author?where="+url.QueryEscape(`{"id":{"in":[1,2]}}`), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, f.authors.rows, 1)
	assert.Equal(t, 3, f.authors.rows[0]["id"])
}

func TestAdapterAgainstServer(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	catalog, err := admingrid.LoadCatalog("../../testdata/catalog.json")
	require.NoError(t, err)
	table, err := catalog.Table("author", "en")
	require.NoError(t, err)

	source := admingrid.NewHTTPDataSource(ts.URL+"/api/author", nil, 0)
	adapter := admingrid.NewAdapter(table, source, slog.New(slog.NewTextHandler(io.Discard, nil)))

	resp, err := adapter.FetchPage(context.Background(), admingrid.PageState{Length: 2}, nil,
		[]admingrid.SortInstruction{{Column: 0, Dir: admingrid.SortAsc}})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "1", resp.Items[0].ID.Key)

	require.NoError(t, adapter.Delete(context.Background(), []admingrid.RowIdentity{resp.Items[1].ID}))
	assert.Len(t, f.authors.rows, 2)
}

func TestConsolePage(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/admin/author?length=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()

	assert.Contains(t, body, "<title>Authors</title>")
	assert.Contains(t, body, "<th>Name</th>")
	assert.NotContains(t, body, "<th>Secret</th>")
	assert.Contains(t, body, "Magda Szabó")
	assert.NotContains(t, body, "Sándor Márai")
	assert.Contains(t, body, `href="/admin/author/show/1"`)
	assert.Contains(t, body, `href="/admin/author/export.csv"`)
	assert.Contains(t, body, "3 records")
	assert.Contains(t, body, `href="/admin/author?page=1&amp;length=2"`)
	assert.Equal(t, []string{"id asc"}, f.authors.requests[0].OrderBy)

	rec = f.do(http.MethodGet, "/admin/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBulkDelete(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/admin/author/delete", strings.NewReader("id=1&id=3"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/author", rec.Header().Get("Location"))
	require.Len(t, f.authors.rows, 1)
	assert.Equal(t, 2, f.authors.rows[0]["id"])

	rec = f.do(http.MethodPost, "/admin/author/delete", strings.NewReader(""))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "error=")
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/admin/author/export.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Id,Name,Active,"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,Magda Szabó,"), lines[1])
}

func TestLookup(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/author/lookup?term=sz&page=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res lookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.Items, 3)
	assert.False(t, res.More)

	req := f.authors.requests[0]
	assert.Equal(t, 20, req.Limit)
	assert.Contains(t, req.Where, "or")
}
