// Package textgrid reads Praat TextGrid files as written by the Montreal
// Forced Aligner. Both the long ("xmin = 0") and the short text layouts are
// accepted; binary TextGrids are not.
package textgrid

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/maastricht-university/emocorpus/align"
)

var (
	// ErrFormat is wrapped by every parse failure.
	ErrFormat = errors.New("malformed TextGrid")

	// ErrNoTier is returned by [TextGrid.Tier] for an unknown tier name.
	ErrNoTier = errors.New("tier not found")
)

// Tier classes.
const (
	IntervalTier = "IntervalTier"
	TextTier     = "TextTier"
)

// Interval is one labelled span of an interval tier, in seconds.
type Interval struct {
	XMin, XMax float64
	Text       string
}

// Point is one mark of a text (point) tier.
type Point struct {
	Time float64
	Mark string
}

// Tier is a named annotation tier. Entries is set for interval tiers and
// Points for text tiers.
type Tier struct {
	Class      string
	Name       string
	XMin, XMax float64
	Entries    []Interval
	Points     []Point
}

// Intervals converts an interval tier to aligner intervals. Labels are
// trimmed; empty labels (silence) are kept and encode as unknown.
func (t *Tier) Intervals() []align.Interval {
	out := make([]align.Interval, 0, len(t.Entries))
	for _, e := range t.Entries {
		out = append(out, align.Interval{Start: e.XMin, End: e.XMax, Label: strings.TrimSpace(e.Text)})
	}
	return out
}

// TextGrid is a parsed file.
type TextGrid struct {
	XMin, XMax float64
	Tiers      []Tier
}

// Tier returns the first tier called name.
func (g *TextGrid) Tier(name string) (*Tier, error) {
	for i := range g.Tiers {
		if g.Tiers[i].Name == name {
			return &g.Tiers[i], nil
		}
	}
	return nil, fmt.Errorf("textgrid: %q: %w", name, ErrNoTier)
}

// ParseFile reads the TextGrid at path.
func ParseFile(path string) (*TextGrid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("textgrid: %w", err)
	}
	defer f.Close()
	g, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Parse reads a TextGrid from r.
func Parse(r io.Reader) (*TextGrid, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("textgrid: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\ufeff"))
	if bytes.HasPrefix(raw, []byte("ooBinaryFile")) {
		return nil, fmt.Errorf("textgrid: binary files are not supported: %w", ErrFormat)
	}

	p := &parser{toks: tokenize(string(raw))}
	return p.textGrid()
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokString
	tokFlag
)

type token struct {
	kind tokenKind
	text string
}

// tokenize keeps the values of a TextGrid and drops its decoration: field
// names, "=", ":", "?", bracketed indices and "!" comments. What remains is
// the same token stream for the long and the short layout.
func tokenize(src string) []token {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		c := rs[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '"':
			var sb strings.Builder
			i++
			for i < len(rs) {
				if rs[i] == '"' {
					if i+1 < len(rs) && rs[i+1] == '"' {
						sb.WriteRune('"')
						i += 2
						continue
					}
					break
				}
				sb.WriteRune(rs[i])
				i++
			}
			i++
			toks = append(toks, token{tokString, sb.String()})
		case c == '<':
			j := i + 1
			for j < len(rs) && rs[j] != '>' {
				j++
			}
			toks = append(toks, token{tokFlag, string(rs[i+1 : min(j, len(rs))])})
			i = j + 1
		case c == '[':
			for i < len(rs) && rs[i] != ']' {
				i++
			}
			i++
		case c == '!':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
		case c == '-' || c == '+' || c == '.' || unicode.IsDigit(c):
			j := i + 1
			for j < len(rs) && (unicode.IsDigit(rs[j]) || strings.ContainsRune(".eE+-", rs[j])) {
				j++
			}
			toks = append(toks, token{tokNumber, string(rs[i:j])})
			i = j
		default:
			i++
		}
	}
	return toks
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) next(kind tokenKind, what string) (token, error) {
	if p.pos >= len(p.toks) {
		return token{}, fmt.Errorf("textgrid: unexpected end of file reading %s: %w", what, ErrFormat)
	}
	t := p.toks[p.pos]
	if t.kind != kind {
		return token{}, fmt.Errorf("textgrid: token %d (%q) is not a valid %s: %w", p.pos, t.text, what, ErrFormat)
	}
	p.pos++
	return t, nil
}

func (p *parser) str(what string) (string, error) {
	t, err := p.next(tokString, what)
	return t.text, err
}

func (p *parser) num(what string) (float64, error) {
	t, err := p.next(tokNumber, what)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		return 0, fmt.Errorf("textgrid: %s %q: %w", what, t.text, ErrFormat)
	}
	return v, nil
}

func (p *parser) count(what string) (int, error) {
	v, err := p.num(what)
	if err != nil {
		return 0, err
	}
	n := int(v)
	if float64(n) != v || n < 0 {
		return 0, fmt.Errorf("textgrid: %s %v is not a count: %w", what, v, ErrFormat)
	}
	return n, nil
}

func (p *parser) textGrid() (*TextGrid, error) {
	fileType, err := p.str("file type")
	if err != nil {
		return nil, err
	}
	class, err := p.str("object class")
	if err != nil {
		return nil, err
	}
	if fileType != "ooTextFile" || class != "TextGrid" {
		return nil, fmt.Errorf("textgrid: header %q/%q: %w", fileType, class, ErrFormat)
	}

	g := &TextGrid{}
	if g.XMin, err = p.num("xmin"); err != nil {
		return nil, err
	}
	if g.XMax, err = p.num("xmax"); err != nil {
		return nil, err
	}
	flag, err := p.next(tokFlag, "tiers flag")
	if err != nil {
		return nil, err
	}
	if flag.text != "exists" {
		return g, nil
	}
	n, err := p.count("tier count")
	if err != nil {
		return nil, err
	}
	g.Tiers = make([]Tier, 0, min(n, len(p.toks)))
	for i := 0; i < n; i++ {
		t, err := p.tier()
		if err != nil {
			return nil, fmt.Errorf("tier %d: %w", i+1, err)
		}
		g.Tiers = append(g.Tiers, t)
	}
	return g, nil
}

func (p *parser) tier() (Tier, error) {
	var (
		t   Tier
		err error
	)
	if t.Class, err = p.str("tier class"); err != nil {
		return t, err
	}
	if t.Name, err = p.str("tier name"); err != nil {
		return t, err
	}
	if t.XMin, err = p.num("tier xmin"); err != nil {
		return t, err
	}
	if t.XMax, err = p.num("tier xmax"); err != nil {
		return t, err
	}
	n, err := p.count("entry count")
	if err != nil {
		return t, err
	}

	switch t.Class {
	case IntervalTier:
		t.Entries = make([]Interval, 0, min(n, len(p.toks)))
		for i := 0; i < n; i++ {
			var iv Interval
			if iv.XMin, err = p.num("interval xmin"); err != nil {
				return t, err
			}
			if iv.XMax, err = p.num("interval xmax"); err != nil {
				return t, err
			}
			if iv.Text, err = p.str("interval text"); err != nil {
				return t, err
			}
			if iv.XMax < iv.XMin {
				return t, fmt.Errorf("textgrid: interval %d ends before it starts: %w", i+1, ErrFormat)
			}
			t.Entries = append(t.Entries, iv)
		}
	case TextTier:
		t.Points = make([]Point, 0, min(n, len(p.toks)))
		for i := 0; i < n; i++ {
			var pt Point
			if pt.Time, err = p.num("point time"); err != nil {
				return t, err
			}
			if pt.Mark, err = p.str("point mark"); err != nil {
				return t, err
			}
			t.Points = append(t.Points, pt)
		}
	default:
		return t, fmt.Errorf("textgrid: unknown tier class %q: %w", t.Class, ErrFormat)
	}
	return t, nil
}
