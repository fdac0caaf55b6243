package admingrid

import (
	"encoding/json"
	"strings"
	"time"

	g "maragu.dev/gomponents"
	h "maragu.dev/gomponents/html"
)

func renderText(value interface{}, rc RenderContext) interface{} {
	elems, _ := elements(value)
	joined := joinPlain(elems)
	if rc.Mode != ModeDisplay {
		return joined
	}
	return renderNode(truncated(joined, g.Text(joined)))
}

func renderBool(value interface{}, rc RenderContext) interface{} {
	if rc.Mode != ModeDisplay {
		return value
	}
	elems, _ := elements(value)
	return renderNode(h.Div(h.Class("d-flex flex-row"), g.Map(elems, func(v interface{}) g.Node {
		if truthy(v) {
			return h.Span(h.Class("text-center text-success me-1"), h.I(h.Class("fa-solid fa-check-circle fa-lg")))
		}
		return h.Span(h.Class("text-center text-danger me-1"), h.I(h.Class("fa-solid fa-times-circle fa-lg")))
	})))
}

// renderDatetime reformats values from the input to the output pattern.
// Sequences stay formatted sequences outside display mode; scalars are
// formatted strings in every mode.
func renderDatetime(value interface{}, rc RenderContext) interface{} {
	in, out := rc.Column.InputPattern(), rc.Column.OutputPattern()
	format := func(v interface{}) string {
		if t, ok := v.(time.Time); ok {
			return out.Format(t)
		}
		t, err := in.Parse(plain(v))
		if err != nil {
			return "Invalid date"
		}
		return out.Format(t)
	}

	elems, plural := elements(value)
	if !plural {
		formatted := format(value)
		if rc.Mode != ModeDisplay {
			return formatted
		}
		return renderNode(h.Span(g.Text(formatted)))
	}

	formatted := make([]string, len(elems))
	for i, e := range elems {
		formatted[i] = format(e)
	}
	if rc.Mode != ModeDisplay {
		return formatted
	}
	return renderNode(truncated(compactJSON(formatted), g.Raw(prettyJSON(formatted))))
}

func renderJSON(value interface{}, rc RenderContext) interface{} {
	if rc.Mode != ModeDisplay {
		return value
	}
	return renderNode(truncated(compactJSON(value), g.Raw(prettyJSON(value))))
}

// fileRef is one stored file as the backend describes it.
type fileRef struct {
	Path        string
	Filename    string
	ContentType string
}

func toFileRef(v interface{}) fileRef {
	m, ok := v.(map[string]interface{})
	if !ok {
		return fileRef{Path: plain(v), Filename: plain(v)}
	}
	f := fileRef{Path: plain(m["path"]), Filename: plain(m["filename"])}
	if ct, ok := m["content_type"]; ok {
		f.ContentType = plain(ct)
	} else {
		f.ContentType = plain(m["contentType"])
	}
	if f.Filename == "" {
		f.Filename = f.Path
	}
	return f
}

func fileURLs(value interface{}, rc RenderContext) interface{} {
	elems, plural := elements(value)
	if !plural {
		return rc.URLs.FileURL(toFileRef(value).Path)
	}
	urls := make([]string, len(elems))
	for i, e := range elems {
		urls[i] = rc.URLs.FileURL(toFileRef(e).Path)
	}
	return urls
}

func renderFile(value interface{}, rc RenderContext) interface{} {
	if rc.Mode != ModeDisplay {
		return fileURLs(value, rc)
	}
	elems, _ := elements(value)
	return renderNode(h.Div(h.Class("d-flex flex-column"), g.Map(elems, func(e interface{}) g.Node {
		f := toFileRef(e)
		return h.A(
			h.Href(rc.URLs.FileURL(f.Path)),
			h.Class("btn-link"),
			h.I(h.Class("fa-solid fa-fw "+FileIcon(f.ContentType))),
			truncated(f.Filename, g.Text(f.Filename)),
		)
	})))
}

func renderImage(value interface{}, rc RenderContext) interface{} {
	if rc.Mode != ModeDisplay {
		return fileURLs(value, rc)
	}
	elems, _ := elements(value)
	return renderNode(h.Div(h.Class("d-flex"), g.Map(elems, func(e interface{}) g.Node {
		return h.Div(h.Class("p-1"), h.Span(
			h.Class("avatar avatar-sm"),
			g.Attr("style", "background-image: url("+rc.URLs.FileURL(toFileRef(e).Path)+")"),
		))
	})))
}

// renderRelation shows denormalized foreign rows by their primary key.
func renderRelation(value interface{}, rc RenderContext) interface{} {
	foreign := ModelRef{}
	if rc.Column.Foreign != nil {
		foreign = *rc.Column.Foreign
	}
	elems, _ := elements(value)
	keys := make([]interface{}, len(elems))
	for i, e := range elems {
		if m, ok := e.(map[string]interface{}); ok {
			keys[i] = m[foreign.PrimaryKey]
		} else {
			keys[i] = e
		}
	}
	if rc.Mode != ModeDisplay {
		return joinPlain(keys)
	}
	return renderNode(h.Div(h.Class("d-flex flex-row"), g.Map(keys, func(pk interface{}) g.Node {
		return h.A(
			h.Class("mx-1 btn-link"),
			h.Href(rc.URLs.DetailURL(foreign, "show", pk)),
			h.Span(h.Class("avatar rounded-circle"), g.Text(plain(pk))),
		)
	})))
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != "" && !strings.EqualFold(x, "false")
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	}
	return true
}
