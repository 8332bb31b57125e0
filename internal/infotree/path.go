package infotree

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxIndex is the largest sequence index a path may carry. Sequences are
// dense, so a larger index would allocate a slot for every position below it.
const MaxIndex = 1 << 20

// Segment is one component of a path: a mapping key or a sequence index.
type Segment struct {
	Name    string
	Index   int
	IsIndex bool
}

// Key returns a name segment.
func Key(name string) Segment {
	return Segment{Name: name}
}

// Idx returns an index segment.
func Idx(i int) Segment {
	return Segment{Index: i, IsIndex: true}
}

// String renders the segment as it appears inside a path.
func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Name
}

// Path is an ordered list of segments from the root.
type Path []Segment

// String renders the path in dump notation, e.g. rra[0].cdp_prep[1].value.
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if !seg.IsIndex && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.String())
	}
	return b.String()
}

// isPathDelim reports whether r separates path tokens.
func isPathDelim(r rune) bool {
	return r == '.' || r == '[' || r == ']'
}

// ParsePath tokenizes a dotted/bracketed path into segments.
//
// Empty tokens (from "a..b" or "[0]." sequences) are dropped. A token made only
// of ASCII digits becomes an index segment; every other token is a name.
// Indexes above MaxIndex are rejected with ErrInvalidPath.
func ParsePath(s string) (Path, error) {
	tokens := strings.FieldsFunc(s, isPathDelim)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: %q has no segments", ErrInvalidPath, s)
	}

	path := make(Path, 0, len(tokens))
	for _, tok := range tokens {
		if isDigits(tok) {
			n, err := strconv.Atoi(tok)
			if err != nil || n > MaxIndex {
				return nil, fmt.Errorf("%w: index %q out of range", ErrInvalidPath, tok)
			}
			path = append(path, Idx(n))
			continue
		}
		path = append(path, Key(tok))
	}
	return path, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
