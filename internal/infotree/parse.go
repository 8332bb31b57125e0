package infotree

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// linePattern matches "<path> =<value>". The path alphabet is word
// characters, dots and square brackets.
var linePattern = regexp.MustCompile(`^([\w.\[\]]+) =(.+)$`)

// Options controls value coercion.
type Options struct {
	// NullSentinel is an unquoted token mapped to null, compared
	// case-insensitively. Empty disables the rule.
	NullSentinel string

	// Strict turns unquoted non-numeric values into ErrInvalidValue
	// instead of NaN.
	Strict bool
}

// DefaultOptions returns lenient coercion with no null sentinel.
func DefaultOptions() Options {
	return Options{}
}

// Parse builds a tree from text using DefaultOptions.
func Parse(text string) (*Value, error) {
	return ParseWithOptions(text, DefaultOptions())
}

// ParseWithOptions builds a tree from a block of "path = value" lines.
//
// Parameters:
//   - text: newline-separated assignments; blank and malformed lines are skipped
//   - opts: value coercion policy
//
// Returns:
//   - *Value: root mapping (empty when no line matched)
//   - error: *ConflictError on shape disagreement, ErrInvalidValue in strict mode
func ParseWithOptions(text string, opts Options) (*Value, error) {
	var root *Value

	lineNo := 0
	for raw := range strings.Lines(text) {
		lineNo++
		line := strings.TrimSpace(raw)
		m := linePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		path, err := ParsePath(m[1])
		if err != nil {
			// A path made only of delimiters carries nothing to assign.
			continue
		}

		leaf, err := coerce(m[2], opts)
		if err != nil {
			return nil, fmt.Errorf("line %d (%s): %w", lineNo, path, err)
		}

		root, err = mergeAt(root, build(path, leaf), nil)
		if err != nil {
			return nil, err
		}
	}
	if root == nil {
		return NewMap(), nil
	}
	return root, nil
}

// coerce applies the ordered value rules to the raw right-hand side.
func coerce(raw string, opts Options) (*Value, error) {
	s := strings.TrimSpace(raw)

	if len(s) > 1 && s[0] == '"' && s[len(s)-1] == '"' {
		return String(s[1 : len(s)-1]), nil
	}
	if strings.EqualFold(s, "nan") {
		return Number(math.NaN()), nil
	}
	if opts.NullSentinel != "" && strings.EqualFold(s, opts.NullSentinel) {
		return Null(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err == nil || errors.Is(err, strconv.ErrRange) {
		// Out-of-range literals saturate to ±Inf or 0, which is still a number.
		return Number(f), nil
	}
	if opts.Strict {
		return nil, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
	return Number(math.NaN()), nil
}

// build wraps leaf in single-entry containers, innermost segment first.
func build(path Path, leaf *Value) *Value {
	cur := leaf
	for i := len(path) - 1; i >= 0; i-- {
		seg := path[i]
		if seg.IsIndex {
			seq := NewSeq(0)
			seq.SetIndex(seg.Index, cur)
			cur = seq
			continue
		}
		m := NewMap()
		m.Set(seg.Name, cur)
		cur = m
	}
	return cur
}
