package admingrid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	g "maragu.dev/gomponents"
	h "maragu.dev/gomponents/html"
)

// RenderMode selects what a renderer produces. Only display yields HTML.
type RenderMode string

const (
	ModeDisplay RenderMode = "display"
	ModeExport  RenderMode = "export"
	ModeSort    RenderMode = "sort"
	ModeFilter  RenderMode = "filter"
)

// Sentinel markers for absent values and empty collections.
const (
	NullSentinel  = "-null-"
	EmptySentinel = "-empty-"
)

// HTML is a rendered display-mode fragment.
type HTML string

// URLResolver builds the links renderers point at.
type URLResolver interface {
	FileURL(path string) string
	DetailURL(model ModelRef, action string, pk interface{}) string
}

// URLBuilder is the URLResolver used by the console: files live under
// FileBase, record pages under AdminBase/<identity>/<action>/<pk>.
type URLBuilder struct {
	FileBase  string
	AdminBase string
}

func (u URLBuilder) FileURL(path string) string {
	return strings.TrimRight(u.FileBase, "/") + "/" + strings.TrimLeft(path, "/")
}

func (u URLBuilder) DetailURL(model ModelRef, action string, pk interface{}) string {
	return fmt.Sprintf("%s/%s/%s/%s", strings.TrimRight(u.AdminBase, "/"), model.Identity, action, url.PathEscape(plain(pk)))
}

// RenderContext is what a renderer knows besides the raw value.
type RenderContext struct {
	Column ColumnDescriptor
	Mode   RenderMode
	Row    *Row
	URLs   URLResolver
}

// Renderer turns a raw, non-null, non-empty cell value into a display or
// export value. Renderers are pure.
type Renderer func(value interface{}, rc RenderContext) interface{}

// Registry dispatches cell rendering on the column's semantic type.
type Registry struct {
	renderers map[SemanticType]Renderer
	urls      URLResolver
}

// NewRegistry creates a registry with a renderer for every semantic type.
func NewRegistry(urls URLResolver) *Registry {
	if urls == nil {
		urls = URLBuilder{}
	}
	return &Registry{
		urls: urls,
		renderers: map[SemanticType]Renderer{
			TypeText:     renderText,
			TypeBool:     renderBool,
			TypeDatetime: renderDatetime,
			TypeJSON:     renderJSON,
			TypeFile:     renderFile,
			TypeImage:    renderImage,
			TypeRelation: renderRelation,
		},
	}
}

// Register replaces the renderer of a semantic type.
func (r *Registry) Register(t SemanticType, fn Renderer) error {
	if !t.Valid() {
		return fmt.Errorf("cannot register renderer for unknown type %q", t)
	}
	if fn == nil {
		return fmt.Errorf("nil renderer for type %q", t)
	}
	r.renderers[t] = fn
	return nil
}

// Render renders one cell. Null values and empty sequences become the null
// and empty sentinels for every type; the type's renderer sees the rest.
func (r *Registry) Render(col ColumnDescriptor, value interface{}, mode RenderMode, row *Row) (interface{}, error) {
	fn, ok := r.renderers[col.Type]
	if !ok {
		return nil, fmt.Errorf("no renderer for column %q of type %q", col.Name, col.Type)
	}
	if value == nil {
		return sentinel(NullSentinel, mode), nil
	}
	if elems, plural := elements(value); plural && len(elems) == 0 {
		return sentinel(EmptySentinel, mode), nil
	}
	return fn(value, RenderContext{Column: col, Mode: mode, Row: row, URLs: r.urls}), nil
}

// RenderRow renders the listed columns of a row, in grid order.
func (r *Registry) RenderRow(table *ColumnTable, row *Row, mode RenderMode) ([]interface{}, error) {
	listed := table.Listed()
	out := make([]interface{}, 0, len(listed))
	for _, col := range listed {
		v, err := r.Render(col, row.Values[col.Name], mode, row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ActionCell renders the leading view/edit links of a row.
func (r *Registry) ActionCell(model ModelRef, row *Row) HTML {
	link := func(action, title, icon string) g.Node {
		return h.A(
			h.Href(r.urls.DetailURL(model, action, row.ID.Value)),
			g.Attr("data-bs-toggle", "tooltip"),
			g.Attr("data-bs-placement", "top"),
			h.Title(title),
			h.Span(h.Class("me-1"), h.I(h.Class("fa-solid "+icon))),
		)
	}
	return renderNode(h.Div(h.Class("d-flex"),
		link("show", "View", "fa-eye"),
		link("edit", "Edit", "fa-edit"),
	))
}

func sentinel(marker string, mode RenderMode) interface{} {
	if mode != ModeDisplay {
		return marker
	}
	return renderNode(h.Span(h.Class("text-center text-muted"), g.Text(" "+marker+" ")))
}

func renderNode(n g.Node) HTML {
	var b strings.Builder
	_ = n.Render(&b)
	return HTML(b.String())
}

// elements returns the value as a sequence and whether it was one. Scalars
// become a one-element sequence.
func elements(v interface{}) ([]interface{}, bool) {
	switch x := v.(type) {
	case []interface{}:
		return x, true
	case string, []byte:
		return []interface{}{v}, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	}
	return []interface{}{v}, false
}

// plain renders a scalar as text; composite values become compact JSON.
func plain(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	case bool, int, int32, int64, float32, float64, uint, uint32, uint64:
		return fmt.Sprint(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func joinPlain(elems []interface{}) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = plain(e)
	}
	return strings.Join(parts, ",")
}

func compactJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return plain(v)
	}
	return string(b)
}

// truncated is the single-line span with a full-value tooltip used by text,
// json and datetime cells.
func truncated(title string, content g.Node) g.Node {
	return h.Span(
		h.Class("align-middle d-inline-block text-truncate"),
		g.Attr("data-toggle", "tooltip"),
		g.Attr("data-placement", "bottom"),
		h.Title(title),
		g.Attr("style", "max-width: 30em;"),
		content,
	)
}

var jsonLine = regexp.MustCompile(`(?m)^( *)("[\w]+": )?("[^"]*"|[\w.+-]*)?([,\[{])?$`)

var jsonEscaper = strings.NewReplacer("&", "&amp;", `\"`, "&quot;", "<", "&lt;", ">", "&gt;")

// prettyJSON indents v with three spaces and wraps keys, strings and other
// values in colored spans. The result is escaped HTML.
func prettyJSON(v interface{}) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "   ")
	if err := enc.Encode(v); err != nil {
		return jsonEscaper.Replace(plain(v))
	}
	escaped := jsonEscaper.Replace(strings.TrimRight(buf.String(), "\n"))

	return jsonLine.ReplaceAllStringFunc(escaped, func(line string) string {
		m := jsonLine.FindStringSubmatch(line)
		indent, key, val, end := m[1], m[2], m[3], m[4]
		var b strings.Builder
		b.WriteString(indent)
		if key != "" {
			b.WriteString(`<span class="json-key" style="color: brown">`)
			b.WriteString(strings.NewReplacer(`"`, "", ":", "", " ", "").Replace(key))
			b.WriteString("</span>: ")
		}
		if val != "" {
			if val[0] == '"' {
				b.WriteString(`<span class="json-string" style="color: olive">`)
			} else {
				b.WriteString(`<span class="json-value" style="color: navy">`)
			}
			b.WriteString(val)
			b.WriteString("</span>")
		}
		b.WriteString(end)
		return b.String()
	})
}

// fileIcons maps MIME prefixes to icon classes, checked in order.
var fileIcons = []struct {
	prefix string
	icon   string
}{
	{"image", "fa-file-image"},
	{"audio", "fa-file-audio"},
	{"video", "fa-file-video"},
	{"application/pdf", "fa-file-pdf"},
	{"application/msword", "fa-file-word"},
	{"application/vnd.ms-word", "fa-file-word"},
	{"application/vnd.oasis.opendocument.text", "fa-file-word"},
	{"application/vnd.openxmlformats-officedocument.wordprocessingml", "fa-file-word"},
	{"application/vnd.ms-excel", "fa-file-excel"},
	{"application/vnd.openxmlformats-officedocument.spreadsheetml", "fa-file-excel"},
	{"application/vnd.oasis.opendocument.spreadsheet", "fa-file-excel"},
	{"application/vnd.ms-powerpoint", "fa-file-powerpoint"},
	{"application/vnd.openxmlformats-officedocument.presentationml", "fa-file-powerpoint"},
	{"application/vnd.oasis.opendocument.presentation", "fa-file-powerpoint"},
	{"text/plain", "fa-file-text"},
	{"text/html", "fa-file-code"},
	{"text/csv", "fa-file-csv"},
	{"application/json", "fa-file-code"},
	{"application/gzip", "fa-file-archive"},
	{"application/zip", "fa-file-archive"},
}

// FileIcon returns the icon class for a MIME type.
func FileIcon(contentType string) string {
	for _, fi := range fileIcons {
		if strings.HasPrefix(contentType, fi.prefix) {
			return fi.icon
		}
	}
	return "fa-file"
}
