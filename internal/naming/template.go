// Package naming turns track metadata into recording file names.
package naming

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// Tokens accepted in a filename pattern
const (
	TokenArtist      = "artist"
	TokenAlbum       = "album"
	TokenTrackNumber = "trackNumber"
	TokenTitle       = "title"
)

var (
	// ErrUnknownToken is returned for a {token} outside the fixed set
	ErrUnknownToken = errors.New("unknown token")
	// ErrUnbalancedBrace is returned for a { without a closing }
	ErrUnbalancedBrace = errors.New("unbalanced brace")
)

var knownTokens = map[string]bool{
	TokenArtist:      true,
	TokenAlbum:       true,
	TokenTrackNumber: true,
	TokenTitle:       true,
}

// Fields are the values substituted into a pattern
type Fields struct {
	Artist      string
	Album       string
	TrackNumber string
	Title       string
}

func (f Fields) lookup(token string) string {
	switch token {
	case TokenArtist:
		return f.Artist
	case TokenAlbum:
		return f.Album
	case TokenTrackNumber:
		return f.TrackNumber
	case TokenTitle:
		return f.Title
	}
	return ""
}

type segment struct {
	literal string
	token   string
}

// Template is a parsed filename pattern such as
// "{artist}/{album}/{trackNumber} - {title}"
type Template struct {
	pattern  string
	segments []segment
}

// Parse compiles pattern. Unknown tokens and unbalanced braces are rejected.
func Parse(pattern string) (*Template, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, errors.New("pattern is empty")
	}

	t := &Template{pattern: pattern}
	rest := pattern
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.IndexByte(rest, '}') >= 0 {
				return nil, fmt.Errorf("%w in %q", ErrUnbalancedBrace, pattern)
			}
			t.segments = append(t.segments, segment{literal: rest})
			break
		}
		if strings.IndexByte(rest[:open], '}') >= 0 {
			return nil, fmt.Errorf("%w in %q", ErrUnbalancedBrace, pattern)
		}
		if open > 0 {
			t.segments = append(t.segments, segment{literal: rest[:open]})
		}

		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, fmt.Errorf("%w in %q", ErrUnbalancedBrace, pattern)
		}
		name := rest[open+1 : open+end]
		if !knownTokens[name] {
			return nil, fmt.Errorf("%w {%s} in %q", ErrUnknownToken, name, pattern)
		}
		t.segments = append(t.segments, segment{token: name})
		rest = rest[open+end+1:]
	}
	return t, nil
}

// String returns the source pattern
func (t *Template) String() string {
	return t.pattern
}

// Execute substitutes f into the template. Path separators inside values are
// replaced so metadata can never create directories of its own.
func (t *Template) Execute(f Fields) string {
	var b strings.Builder
	for _, s := range t.segments {
		if s.token == "" {
			b.WriteString(s.literal)
			continue
		}
		b.WriteString(strings.ReplaceAll(f.lookup(s.token), "/", "-"))
	}
	return b.String()
}

// underscored returns a copy whose " - " separators become "__"
func (t *Template) underscored() *Template {
	u := &Template{pattern: strings.ReplaceAll(t.pattern, " - ", "__")}
	for _, s := range t.segments {
		if s.token == "" {
			s.literal = strings.ReplaceAll(s.literal, " - ", "__")
		}
		u.segments = append(u.segments, s)
	}
	return u
}

var (
	separatorRun  = regexp.MustCompile(`[\s\-\[\]()']+`)
	underscoreRun = regexp.MustCompile(`__+`)
)

// Underscore lower-cases name, drops dots and collapses whitespace and
// punctuation runs to underscores
func Underscore(name string) string {
	name = strings.ToLower(strings.ReplaceAll(name, ".", ""))
	name = separatorRun.ReplaceAllString(name, "_")
	return underscoreRun.ReplaceAllString(name, "__")
}

// PadNumber formats n with at least width digits
func PadNumber(n, width int) string {
	s := strconv.Itoa(n)
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

// Namer derives relative recording paths from metadata
type Namer struct {
	tmpl        *Template
	underscored bool
}

// NewNamer returns a Namer for tmpl
func NewNamer(tmpl *Template, underscored bool) *Namer {
	if underscored {
		tmpl = tmpl.underscored()
	}
	return &Namer{tmpl: tmpl, underscored: underscored}
}

// Name returns the recording path relative to the output directory,
// without extension
func (n *Namer) Name(f Fields) string {
	name := n.tmpl.Execute(f)
	if n.underscored {
		name = Underscore(name)
	}

	// Keep the result inside the output directory and visible.
	var parts []string
	for _, p := range strings.Split(name, "/") {
		if p == "" || p == "." || p == ".." {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return "unknown"
	}
	last := len(parts) - 1
	parts[last] = strings.TrimLeft(parts[last], ".")
	if parts[last] == "" {
		parts[last] = "unknown"
	}
	return path.Join(parts...)
}
