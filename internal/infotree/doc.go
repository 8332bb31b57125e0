// Package infotree parses flat "path = value" dumps into nested trees.
//
// Tools such as rrdtool describe a resource as a list of assignments, one per
// line, where the left-hand side is a dotted path with optional bracketed
// indices:
//
//	filename = "random.rrd"
//	step = 300
//	ds[a].type = "GAUGE"
//	rra[0].cdp_prep[1].value = nan
//
// Parse turns such a block into a single Value tree. Every line produces a
// one-path fragment which is deep-merged into the tree built so far, so lines
// sharing a prefix end up under the same mapping or sequence.
//
// # Paths
//
// A path segment is either a name (mapping key) or a non-negative index
// (sequence slot). A segment made only of digits is always an index, wherever
// it appears. Sequences are sparse: assigning only x[2] yields a sequence of
// length 3 whose first two slots are unset.
//
// # Values
//
// Values are coerced by an ordered rule list:
//
//  1. fully double-quoted → string, quotes stripped
//  2. "nan" (any case) → NaN
//  3. the configured null sentinel (any case) → null
//  4. a number (scientific notation accepted)
//  5. anything else → NaN, or ErrInvalidValue when Options.Strict is set
//
// # Errors
//
// Lines that do not match the assignment grammar are skipped. Two lines that
// disagree on the shape of a path (scalar vs container, mapping vs sequence)
// fail the whole parse with a *ConflictError.
package infotree
