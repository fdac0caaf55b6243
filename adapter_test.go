package admingrid

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memorySource is an in-memory DataSource recording what it was asked.
type memorySource struct {
	mu       sync.Mutex
	rows     []map[string]interface{}
	requests []GridRequest
	deletes  []FilterExpression
	fetchErr error
	delErr   error
	// gate, when set, blocks Fetch until a value arrives.
	gate chan struct{}
}

func (m *memorySource) Fetch(ctx context.Context, req GridRequest) (*RawPage, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	gate, err := m.gate, m.fetchErr
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	end := req.Skip + req.Limit
	if end > len(m.rows) {
		end = len(m.rows)
	}
	var items []map[string]interface{}
	if req.Skip < end {
		items = m.rows[req.Skip:end]
	}
	return &RawPage{Items: items, Total: len(m.rows)}, nil
}

func (m *memorySource) Delete(ctx context.Context, where FilterExpression) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, where)
	if m.delErr != nil {
		return m.delErr
	}
	in := where["id"].(map[string]interface{})[OpIn].([]interface{})
	kept := m.rows[:0]
	for _, r := range m.rows {
		drop := false
		for _, v := range in {
			if plain(v) == plain(r["id"]) {
				drop = true
			}
		}
		if !drop {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return nil
}

func authors(n int) []map[string]interface{} {
	rows := make([]map[string]interface{}, n)
	for i := range rows {
		rows[i] = map[string]interface{}{"id": i + 1, "name": "author", "age": 20 + i}
	}
	return rows
}

func TestBuildRequest(t *testing.T) {
	a := NewAdapter(authorColumns(t), &memorySource{}, quietLogger())

	req, err := a.BuildRequest(PageState{Index: 2, Length: 25},
		And(Leaf("age", ">=", 30)),
		[]SortInstruction{{Column: 1, Dir: SortAsc}, {Column: 0, Dir: "DESC"}})
	require.NoError(t, err)
	assert.Equal(t, 50, req.Skip)
	assert.Equal(t, 25, req.Limit)
	assert.Equal(t, []string{"name asc", "id desc"}, req.OrderBy)
	assert.Equal(t, FilterExpression{"and": []FilterExpression{{"age": map[string]interface{}{"ge": 30}}}}, req.Where)

	req, err = a.BuildRequest(PageState{Length: 5}, nil, nil)
	require.NoError(t, err)
	assert.True(t, req.Where.Empty())
	assert.Empty(t, req.OrderBy)
}

func TestBuildRequestInvalid(t *testing.T) {
	a := NewAdapter(authorColumns(t), &memorySource{}, quietLogger())

	_, err := a.BuildRequest(PageState{Length: 0}, nil, nil)
	assert.Error(t, err)

	_, err = a.BuildRequest(PageState{Length: 5}, nil, []SortInstruction{{Column: 1, Dir: "sideways"}})
	assert.Error(t, err)

	_, err = a.BuildRequest(PageState{Length: 5}, nil, []SortInstruction{{Column: 42, Dir: SortAsc}})
	var missing *MissingMetadataError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "sort", missing.Where)

	// movies is a relation
	_, err = a.BuildRequest(PageState{Length: 5}, nil, []SortInstruction{{Column: 9, Dir: SortAsc}})
	assert.Error(t, err)
}

func TestFetchPageAssignsIdentities(t *testing.T) {
	src := &memorySource{rows: authors(12)}
	a := NewAdapter(authorColumns(t), src, quietLogger())

	resp, err := a.FetchPage(context.Background(), PageState{Index: 1, Length: 5}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 12, resp.Total)
	require.Len(t, resp.Items, 5)
	assert.Equal(t, "6", resp.Items[0].ID.Key)
	assert.Equal(t, 6, resp.Items[0].ID.Value)
	assert.Equal(t, "author", resp.Items[0].Get("name"))

	again, err := a.FetchPage(context.Background(), PageState{Index: 1, Length: 5}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, resp.Total, again.Total)
	for i := range resp.Items {
		assert.Equal(t, resp.Items[i].ID, again.Items[i].ID)
	}
}

func TestFetchPageMissingPrimaryKey(t *testing.T) {
	src := &memorySource{rows: []map[string]interface{}{{"name": "nobody"}}}
	a := NewAdapter(authorColumns(t), src, quietLogger())

	_, err := a.FetchPage(context.Background(), PageState{Length: 5}, nil, nil)
	assert.ErrorIs(t, err, ErrMissingPrimaryKey)
}

func TestFetchPageFailure(t *testing.T) {
	src := &memorySource{fetchErr: errors.New("connection refused")}
	a := NewAdapter(authorColumns(t), src, quietLogger())

	resp, err := a.FetchPage(context.Background(), PageState{Length: 5}, nil, nil)
	assert.Nil(t, resp)
	var failure *RequestFailureError
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "fetch", failure.Op)
	assert.Len(t, src.requests, 1)
}

func TestFetchPageDiscardsStaleResponse(t *testing.T) {
	gate := make(chan struct{})
	src := &memorySource{rows: authors(3), gate: gate}
	a := NewAdapter(authorColumns(t), src, quietLogger())

	first := make(chan error, 1)
	go func() {
		_, err := a.FetchPage(context.Background(), PageState{Length: 5}, nil, nil)
		first <- err
	}()
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.requests) == 1
	}, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := a.FetchPage(context.Background(), PageState{Length: 5}, Leaf("age", ">", 1), nil)
		second <- err
	}()
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.requests) == 2
	}, time.Second, time.Millisecond)

	close(gate)
	assert.ErrorIs(t, <-first, ErrStaleResponse)
	assert.NoError(t, <-second)
}

// firstFails blocks its first Fetch on gate and then fails it; later calls
// go to the wrapped source.
type firstFails struct {
	*memorySource
	gate  chan struct{}
	calls int32
}

func (f *firstFails) Fetch(ctx context.Context, req GridRequest) (*RawPage, error) {
	if atomic.AddInt32(&f.calls, 1) == 1 {
		<-f.gate
		return nil, errors.New("connection reset")
	}
	return f.memorySource.Fetch(ctx, req)
}

func (f *firstFails) started() bool { return atomic.LoadInt32(&f.calls) >= 1 }

func TestFetchPageDiscardsStaleFailure(t *testing.T) {
	src := &firstFails{memorySource: &memorySource{rows: authors(3)}, gate: make(chan struct{})}
	a := NewAdapter(authorColumns(t), src, quietLogger())

	first := make(chan error, 1)
	go func() {
		_, err := a.FetchPage(context.Background(), PageState{Length: 5}, nil, nil)
		first <- err
	}()
	require.Eventually(t, src.started, time.Second, time.Millisecond)

	resp, err := a.FetchPage(context.Background(), PageState{Length: 5}, nil, nil)
	require.NoError(t, err)
	assert.Len(t, resp.Items, 3)

	close(src.gate)
	assert.ErrorIs(t, <-first, ErrStaleResponse)
}

func TestDeleteWhere(t *testing.T) {
	a := NewAdapter(authorColumns(t), &memorySource{}, quietLogger())
	where := a.DeleteWhere(IdentitiesOf(1, 2))
	out, err := where.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":{"in":[1,2]}}`, out)

	assert.ErrorIs(t, a.Delete(context.Background(), nil), ErrEmptySelection)
}

func TestHTTPDataSource(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"items":[{"id":7,"name":"Ann"},{"id":9,"name":"Bob"}],"total":12}`))
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	src := NewHTTPDataSource(srv.URL+"/api/author", map[string]string{"Authorization": "Bearer t"}, time.Second)
	a := NewAdapter(authorColumns(t), src, quietLogger())

	resp, err := a.FetchPage(context.Background(), PageState{Index: 1, Length: 2},
		And(Leaf("age", ">=", 30), Leaf("active", "true")),
		[]SortInstruction{{Column: 1, Dir: SortDesc}, {Column: 2, Dir: SortAsc}})
	require.NoError(t, err)
	assert.Equal(t, 12, resp.Total)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "9", resp.Items[1].ID.Key)
	assert.Equal(t, json.Number("9"), resp.Items[1].ID.Value)

	require.NotNil(t, got)
	q := got.URL.Query()
	assert.Equal(t, "/api/author", got.URL.Path)
	assert.Equal(t, "2", q.Get("skip"))
	assert.Equal(t, "2", q.Get("limit"))
	assert.Equal(t, []string{"name desc", "age asc"}, q["order_by"])
	assert.JSONEq(t, `{"and":[{"age":{"ge":30}},{"active":{"is":true}}]}`, q.Get("where"))
	assert.Equal(t, "Bearer t", got.Header.Get("Authorization"))
	assert.NotEmpty(t, got.Header.Get("X-Request-ID"))

	require.NoError(t, a.Delete(context.Background(), []RowIdentity{resp.Items[0].ID}))
	assert.Equal(t, http.MethodDelete, got.Method)
	assert.JSONEq(t, `{"id":{"in":[7]}}`, got.URL.Query().Get("where"))
}

func TestHTTPDataSourceStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewHTTPDataSource(srv.URL, nil, time.Second)
	_, err := src.Fetch(context.Background(), GridRequest{Limit: 5})
	var failure *RequestFailureError
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, http.StatusInternalServerError, failure.StatusCode)

	err = src.Delete(context.Background(), FilterExpression{"id": map[string]interface{}{"in": []interface{}{1}}})
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "delete", failure.Op)
}
