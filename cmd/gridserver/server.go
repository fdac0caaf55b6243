package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gnemet/admingrid"
	"github.com/gnemet/admingrid/database/rowstore"
	"github.com/gnemet/admingrid/database/sqlfilter"
	"github.com/gnemet/admingrid/internal/config"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const maxLimit = 1000

// SourceFunc returns the data source that stores a model.
type SourceFunc func(model *admingrid.ModelDef) admingrid.DataSource

type server struct {
	cfg     *config.Config
	catalog *admingrid.Catalog
	source  SourceFunc
	logger  *slog.Logger
}

func newServer(cfg *config.Config, catalog *admingrid.Catalog, source SourceFunc, logger *slog.Logger) *server {
	if logger == nil {
		logger = slog.Default()
	}
	return &server{cfg: cfg, catalog: catalog, source: source, logger: logger}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api/{model}", func(r chi.Router) {
		r.Get("/", s.listRows)
		r.Delete("/", s.deleteRows)
		r.Get("/lookup", s.lookup)
	})
	r.Route("/admin/{model}", func(r chi.Router) {
		r.Get("/", s.consolePage)
		r.Post("/delete", s.bulkDelete)
		r.Get("/export.csv", s.exportCSV)
	})
	return r
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", chimw.GetReqID(r.Context()))
	})
}

// StoredColumns returns the columns of a model that live in its table.
// has_many relations are resolved elsewhere and are not selected.
func StoredColumns(m *admingrid.ModelDef) []string {
	cols := make([]string, 0, len(m.Columns))
	for _, c := range m.Columns {
		if c.Type == "has_many" {
			continue
		}
		cols = append(cols, c.Name)
	}
	return cols
}

func (s *server) model(w http.ResponseWriter, r *http.Request) (*admingrid.ModelDef, bool) {
	name := chi.URLParam(r, "model")
	m, ok := s.catalog.Model(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown model %q", name))
		return nil, false
	}
	return m, true
}

// parseWhere decodes the where parameter and checks it against the model's
// columns before the data source sees it.
func parseWhere(m *admingrid.ModelDef, raw string) (admingrid.FilterExpression, error) {
	where, err := sqlfilter.ParseWhere(raw)
	if err != nil {
		return nil, err
	}
	if _, _, err := sqlfilter.New(StoredColumns(m)).Where(where); err != nil {
		return nil, err
	}
	return where, nil
}

func (s *server) listRows(w http.ResponseWriter, r *http.Request) {
	m, ok := s.model(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	skip, err := intParam(q.Get("skip"), 0)
	if err != nil || skip < 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid skip %q", q.Get("skip")))
		return
	}
	limit, err := intParam(q.Get("limit"), s.cfg.Grid.PageLength)
	if err != nil || limit <= 0 || limit > maxLimit {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", q.Get("limit")))
		return
	}
	where, err := parseWhere(m, q.Get("where"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	orderBy := q["order_by"]
	if _, err := sqlfilter.New(StoredColumns(m)).OrderBy(orderBy); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	page, err := s.source(m).Fetch(r.Context(), admingrid.GridRequest{
		Skip:    skip,
		Limit:   limit,
		OrderBy: orderBy,
		Where:   where,
	})
	if err != nil {
		s.logger.Error("Fetch failed", "model", m.Identity, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *server) deleteRows(w http.ResponseWriter, r *http.Request) {
	m, ok := s.model(w, r)
	if !ok {
		return
	}
	where, err := parseWhere(m, r.URL.Query().Get("where"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(where) == 0 {
		writeError(w, http.StatusBadRequest, rowstore.ErrUnscopedDelete)
		return
	}

	if err := s.source(m).Delete(r.Context(), where); err != nil {
		s.logger.Error("Delete failed", "model", m.Identity, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type lookupResponse struct {
	Items []map[string]interface{} `json:"items"`
	More  bool                     `json:"more"`
}

func (s *server) lookup(w http.ResponseWriter, r *http.Request) {
	m, ok := s.model(w, r)
	if !ok {
		return
	}
	table, err := s.catalog.Table(m.Identity, s.cfg.Catalog.Lang)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	page, err := intParam(r.URL.Query().Get("page"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := admingrid.NewLookup(table, s.source(m)).Search(r.Context(), r.URL.Query().Get("term"), page)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	out := lookupResponse{Items: make([]map[string]interface{}, 0, len(res.Items)), More: res.More}
	for _, row := range res.Items {
		out.Items = append(out.Items, row.Values)
	}
	writeJSON(w, http.StatusOK, out)
}

func intParam(s string, fallback int) (int, error) {
	if strings.TrimSpace(s) == "" {
		return fallback, nil
	}
	return strconv.Atoi(s)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	var missing *admingrid.MissingMetadataError
	if errors.As(err, &missing) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
