package admingrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// HTTPDataSource is a DataSource served by a JSON data endpoint:
//
//	GET    <URL>?skip=&limit=&where=<json>&order_by=<col dir>...  -> {"items": [...], "total": n}
//	DELETE <URL>?where=<json>                                      -> 2xx
type HTTPDataSource struct {
	URL     string
	Headers map[string]string
	Client  *http.Client
	Logger  *slog.Logger
}

// NewHTTPDataSource creates a data source for endpoint with a client that
// gives up after timeout. A zero timeout means no limit.
func NewHTTPDataSource(endpoint string, headers map[string]string, timeout time.Duration) *HTTPDataSource {
	return &HTTPDataSource{
		URL:     endpoint,
		Headers: headers,
		Client:  &http.Client{Timeout: timeout},
	}
}

// EncodeQuery renders a request as the endpoint's query string.
func EncodeQuery(req GridRequest) (url.Values, error) {
	where, err := req.Where.JSON()
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("skip", strconv.Itoa(req.Skip))
	q.Set("limit", strconv.Itoa(req.Limit))
	q.Set("where", where)
	for _, o := range req.OrderBy {
		q.Add("order_by", o)
	}
	return q, nil
}

func (s *HTTPDataSource) Fetch(ctx context.Context, req GridRequest) (*RawPage, error) {
	q, err := EncodeQuery(req)
	if err != nil {
		return nil, err
	}
	resp, err := s.do(ctx, http.MethodGet, q)
	if err != nil {
		return nil, ErrRequestFailure("fetch", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ErrRequestFailure("fetch", resp.StatusCode, readError(resp.Body))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var page RawPage
	if err := dec.Decode(&page); err != nil {
		return nil, ErrRequestFailure("fetch", 0, fmt.Errorf("decode page: %w", err))
	}
	return &page, nil
}

func (s *HTTPDataSource) Delete(ctx context.Context, where FilterExpression) error {
	w, err := where.JSON()
	if err != nil {
		return err
	}
	resp, err := s.do(ctx, http.MethodDelete, url.Values{"where": {w}})
	if err != nil {
		return ErrRequestFailure("delete", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ErrRequestFailure("delete", resp.StatusCode, readError(resp.Body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *HTTPDataSource) do(ctx context.Context, method string, q url.Values) (*http.Response, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return nil, fmt.Errorf("parse data source url: %w", err)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	s.logger().Debug("Data source request", "method", method, "url", u.Redacted(), "request_id", requestID)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

func (s *HTTPDataSource) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// readError keeps the start of an error body as the failure cause.
func readError(body io.Reader) error {
	b, _ := io.ReadAll(io.LimitReader(body, 512))
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	return fmt.Errorf("%s", b)
}
