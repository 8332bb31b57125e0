package infotree

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	// KindNull is an explicit null scalar.
	KindNull Kind = iota
	// KindString is a string scalar.
	KindString
	// KindNumber is a float64 scalar, NaN included.
	KindNumber
	// KindMap is a name-keyed mapping.
	KindMap
	// KindSeq is a sparse index-keyed sequence.
	KindSeq
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindMap:
		return "mapping"
	case KindSeq:
		return "sequence"
	default:
		return "unknown"
	}
}

// Scalar reports whether the kind is a leaf.
func (k Kind) Scalar() bool {
	return k == KindNull || k == KindString || k == KindNumber
}

// Value is a node of a parsed tree.
//
// A nil *Value stands for an unset sequence slot. Accessors are nil-safe.
type Value struct {
	kind Kind
	str  string
	num  float64
	m    map[string]*Value
	keys []string
	seq  []*Value
}

// Null returns a null scalar.
func Null() *Value { return &Value{kind: KindNull} }

// String returns a string scalar.
func String(s string) *Value { return &Value{kind: KindString, str: s} }

// Number returns a numeric scalar.
func Number(f float64) *Value { return &Value{kind: KindNumber, num: f} }

// NewMap returns an empty mapping.
func NewMap() *Value { return &Value{kind: KindMap, m: make(map[string]*Value)} }

// NewSeq returns a sequence of n unset slots.
func NewSeq(n int) *Value { return &Value{kind: KindSeq, seq: make([]*Value, n)} }

// Kind returns the variant of v. A nil value reports KindNull.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

// Str returns the string payload, or "" for non-strings.
func (v *Value) Str() string {
	if v == nil || v.kind != KindString {
		return ""
	}
	return v.str
}

// Num returns the numeric payload, or NaN for non-numbers.
func (v *Value) Num() float64 {
	if v == nil || v.kind != KindNumber {
		return math.NaN()
	}
	return v.num
}

// IsNaN reports whether v is a NaN number.
func (v *Value) IsNaN() bool {
	return v != nil && v.kind == KindNumber && math.IsNaN(v.num)
}

// Set assigns key in a mapping, recording discovery order for new keys.
func (v *Value) Set(key string, child *Value) {
	if v == nil || v.kind != KindMap {
		return
	}
	if _, ok := v.m[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.m[key] = child
}

// Get returns the child under key, or nil.
func (v *Value) Get(key string) *Value {
	if v == nil || v.kind != KindMap {
		return nil
	}
	return v.m[key]
}

// Keys returns mapping keys in discovery order.
func (v *Value) Keys() []string {
	if v == nil || v.kind != KindMap {
		return nil
	}
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// Len returns the number of keys or sequence slots (gaps included).
func (v *Value) Len() int {
	if v == nil {
		return 0
	}
	switch v.kind {
	case KindMap:
		return len(v.keys)
	case KindSeq:
		return len(v.seq)
	default:
		return 0
	}
}

// Index returns sequence slot i, or nil when unset or out of range.
func (v *Value) Index(i int) *Value {
	if v == nil || v.kind != KindSeq || i < 0 || i >= len(v.seq) {
		return nil
	}
	return v.seq[i]
}

// SetIndex assigns slot i, growing the sequence with gaps as needed.
// Indexes outside [0, MaxIndex] are ignored.
func (v *Value) SetIndex(i int, child *Value) {
	if v == nil || v.kind != KindSeq || i < 0 || i > MaxIndex {
		return
	}
	if i >= len(v.seq) {
		grown := make([]*Value, i+1)
		copy(grown, v.seq)
		v.seq = grown
	}
	v.seq[i] = child
}

// Append adds a slot at the end of a sequence.
func (v *Value) Append(child *Value) {
	if v == nil || v.kind != KindSeq {
		return
	}
	v.seq = append(v.seq, child)
}

// Lookup walks a dump-notation path such as "rra[0].cdp_prep[1].value".
// It returns nil when any segment is missing or has the wrong shape.
func (v *Value) Lookup(path string) *Value {
	p, err := ParsePath(path)
	if err != nil {
		return nil
	}
	return v.LookupPath(p)
}

// LookupPath walks an already tokenized path.
func (v *Value) LookupPath(p Path) *Value {
	cur := v
	for _, seg := range p {
		if cur == nil {
			return nil
		}
		if seg.IsIndex {
			cur = cur.Index(seg.Index)
		} else {
			cur = cur.Get(seg.Name)
		}
	}
	return cur
}

// Interface converts the tree to plain Go values: map[string]any, []any,
// string, float64 and nil.
func (v *Value) Interface() any {
	if v == nil {
		return nil
	}
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, child := range v.m {
			out[k] = child.Interface()
		}
		return out
	case KindSeq:
		out := make([]any, len(v.seq))
		for i, child := range v.seq {
			out[i] = child.Interface()
		}
		return out
	default:
		return nil
	}
}

// Clone returns a deep copy of v.
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	c := &Value{kind: v.kind, str: v.str, num: v.num}
	switch v.kind {
	case KindMap:
		c.m = make(map[string]*Value, len(v.m))
		c.keys = append([]string(nil), v.keys...)
		for k, child := range v.m {
			c.m[k] = child.Clone()
		}
	case KindSeq:
		c.seq = make([]*Value, len(v.seq))
		for i, child := range v.seq {
			c.seq[i] = child.Clone()
		}
	}
	return c
}

// Equal reports deep equality. NaN equals NaN; key order is ignored.
func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v == nil && o == nil
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		if math.IsNaN(v.num) || math.IsNaN(o.num) {
			return math.IsNaN(v.num) && math.IsNaN(o.num)
		}
		return v.num == o.num
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, child := range v.m {
			other, ok := o.m[k]
			if !ok || !child.Equal(other) {
				return false
			}
		}
		return true
	case KindSeq:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON encodes the tree with mapping keys in discovery order.
// NaN, infinities and unset slots encode as null.
func (v *Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) encode(buf *bytes.Buffer) error {
	if v == nil {
		buf.WriteString("null")
		return nil
	}
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		b, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(strconv.FormatFloat(v.num, 'g', -1, 64))
	case KindMap:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := v.m[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindSeq:
		buf.WriteByte('[')
		for i, child := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := child.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	}
	return nil
}
