// Package momentfmt formats and parses dates with moment.js style patterns
// ("YYYY-MM-DD", "MMMM Do, YYYY HH:mm:ss"), the notation used by the admin
// catalogs for input, output and API date formats.
package momentfmt

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Default is moment's defaultFormat, used when a column leaves a pattern unset.
const Default = "YYYY-MM-DDTHH:mm:ssZ"

type kind int

const (
	literal kind = iota
	year4
	year2
	monthName
	monthShort
	month2
	month1
	dayOrdinal
	day2
	day1
	weekday
	weekdayShort
	hour24x2
	hour24
	hour12x2
	hour12
	minute2
	minute1
	second2
	second1
	millis
	ampmUpper
	ampmLower
	zoneColon
	zone
	unixSeconds
	unixMillis
)

// Longest tokens first so "MMMM" wins over "MM".
var tokenTable = []struct {
	text string
	kind kind
}{
	{"YYYY", year4}, {"MMMM", monthName}, {"dddd", weekday},
	{"MMM", monthShort}, {"ddd", weekdayShort}, {"SSS", millis},
	{"YY", year2}, {"MM", month2}, {"Do", dayOrdinal}, {"DD", day2},
	{"HH", hour24x2}, {"hh", hour12x2}, {"mm", minute2}, {"ss", second2}, {"ZZ", zone},
	{"M", month1}, {"D", day1}, {"H", hour24}, {"h", hour12}, {"m", minute1},
	{"s", second1}, {"A", ampmUpper}, {"a", ampmLower}, {"Z", zoneColon},
	{"X", unixSeconds}, {"x", unixMillis},
}

var goLayout = map[kind]string{
	year4: "2006", year2: "06", monthName: "January", monthShort: "Jan",
	month2: "01", month1: "1", day2: "02", day1: "2", weekday: "Monday",
	weekdayShort: "Mon", hour24x2: "15", hour24: "15", hour12x2: "03", hour12: "3",
	minute2: "04", minute1: "4", second2: "05", second1: "5", ampmUpper: "PM",
	ampmLower: "pm", zoneColon: "-07:00", zone: "-0700",
}

type token struct {
	kind kind
	text string
}

// Pattern is a compiled moment pattern.
type Pattern struct {
	src    string
	tokens []token
}

// Compile tokenizes a moment pattern. Text inside square brackets is literal.
// An empty pattern compiles to Default.
func Compile(pattern string) Pattern {
	if pattern == "" {
		pattern = Default
	}
	p := Pattern{src: pattern}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			p.tokens = append(p.tokens, token{kind: literal, text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(pattern); {
		if pattern[i] == '[' {
			end := strings.IndexByte(pattern[i+1:], ']')
			if end >= 0 {
				lit.WriteString(pattern[i+1 : i+1+end])
				i += end + 2
				continue
			}
		}
		matched := false
		for _, t := range tokenTable {
			if strings.HasPrefix(pattern[i:], t.text) {
				flush()
				p.tokens = append(p.tokens, token{kind: t.kind, text: t.text})
				i += len(t.text)
				matched = true
				break
			}
		}
		if !matched {
			lit.WriteByte(pattern[i])
			i++
		}
	}
	flush()
	return p
}

// String returns the source pattern.
func (p Pattern) String() string { return p.src }

// Format renders t with the pattern.
func (p Pattern) Format(t time.Time) string {
	var b strings.Builder
	for _, tok := range p.tokens {
		switch tok.kind {
		case literal:
			b.WriteString(tok.text)
		case year4:
			fmt.Fprintf(&b, "%04d", t.Year())
		case year2:
			fmt.Fprintf(&b, "%02d", t.Year()%100)
		case monthName:
			b.WriteString(t.Month().String())
		case monthShort:
			b.WriteString(t.Month().String()[:3])
		case month2:
			fmt.Fprintf(&b, "%02d", int(t.Month()))
		case month1:
			b.WriteString(strconv.Itoa(int(t.Month())))
		case dayOrdinal:
			b.WriteString(Ordinal(t.Day()))
		case day2:
			fmt.Fprintf(&b, "%02d", t.Day())
		case day1:
			b.WriteString(strconv.Itoa(t.Day()))
		case weekday:
			b.WriteString(t.Weekday().String())
		case weekdayShort:
			b.WriteString(t.Weekday().String()[:3])
		case hour24x2:
			fmt.Fprintf(&b, "%02d", t.Hour())
		case hour24:
			b.WriteString(strconv.Itoa(t.Hour()))
		case hour12x2:
			fmt.Fprintf(&b, "%02d", clock12(t.Hour()))
		case hour12:
			b.WriteString(strconv.Itoa(clock12(t.Hour())))
		case minute2:
			fmt.Fprintf(&b, "%02d", t.Minute())
		case minute1:
			b.WriteString(strconv.Itoa(t.Minute()))
		case second2:
			fmt.Fprintf(&b, "%02d", t.Second())
		case second1:
			b.WriteString(strconv.Itoa(t.Second()))
		case millis:
			fmt.Fprintf(&b, "%03d", t.Nanosecond()/int(time.Millisecond))
		case ampmUpper:
			b.WriteString(t.Format("PM"))
		case ampmLower:
			b.WriteString(t.Format("pm"))
		case zoneColon:
			b.WriteString(t.Format("-07:00"))
		case zone:
			b.WriteString(t.Format("-0700"))
		case unixSeconds:
			b.WriteString(strconv.FormatInt(t.Unix(), 10))
		case unixMillis:
			b.WriteString(strconv.FormatInt(t.UnixMilli(), 10))
		}
	}
	return b.String()
}

// Parse reads s with the pattern in UTC. Like moment it is forgiving: when
// the pattern cannot be applied strictly, ISO-8601 style input is accepted.
func (p Pattern) Parse(s string) (time.Time, error) {
	return p.ParseInLocation(s, time.UTC)
}

// ParseInLocation is Parse with zone-less input interpreted in loc.
func (p Pattern) ParseInLocation(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(p.tokens) == 1 && (p.tokens[0].kind == unixSeconds || p.tokens[0].kind == unixMillis) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			if p.tokens[0].kind == unixSeconds {
				return time.Unix(n, 0).In(loc), nil
			}
			return time.UnixMilli(n).In(loc), nil
		}
	}
	if layout, ok := p.layout(); ok {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return ParseLenient(s, loc)
}

// layout converts the pattern into a Go reference layout. Patterns with
// ordinals, unix stamps or literals that collide with Go layout tokens have
// no Go equivalent.
func (p Pattern) layout() (string, bool) {
	var b strings.Builder
	for i, tok := range p.tokens {
		switch tok.kind {
		case literal:
			if strings.ContainsAny(tok.text, "0123456789") ||
				strings.Contains(tok.text, "Jan") || strings.Contains(tok.text, "Mon") ||
				strings.Contains(tok.text, "MST") || strings.Contains(tok.text, "PM") ||
				strings.Contains(tok.text, "pm") {
				return "", false
			}
			b.WriteString(tok.text)
		case millis:
			if i == 0 || p.tokens[i-1].kind != literal || !strings.HasSuffix(p.tokens[i-1].text, ".") {
				return "", false
			}
			b.WriteString("000")
		default:
			l, ok := goLayout[tok.kind]
			if !ok {
				return "", false
			}
			b.WriteString(l)
		}
	}
	return b.String(), true
}

var lenientLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"15:04:05",
	"15:04",
}

// ParseLenient accepts the ISO-8601 shapes moment understands without a
// format string.
func ParseLenient(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range lenientLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("momentfmt: cannot parse %q", s)
}

// Reformat parses s with the in pattern and renders it with out.
func Reformat(s, in, out string) (string, error) {
	t, err := Compile(in).Parse(s)
	if err != nil {
		return "", err
	}
	return Compile(out).Format(t), nil
}

// Ordinal renders n with its English ordinal suffix (1st, 2nd, 11th, 23rd).
func Ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}

func clock12(h int) int {
	h %= 12
	if h == 0 {
		return 12
	}
	return h
}
