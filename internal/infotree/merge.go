package infotree

// Merge deep-merges src into dst and returns the result.
//
// Mappings merge by key and sequences by index, keeping gaps. A scalar
// replaces a scalar. Any other disagreement yields a *ConflictError and
// leaves dst unchanged.
func Merge(dst, src *Value) (*Value, error) {
	return mergeAt(dst.Clone(), src.Clone(), nil)
}

// mergeAt merges src into dst in place. dst may be nil.
//
// Conflicts are detected before anything is written so a failed merge does
// not leave a half-applied fragment behind.
func mergeAt(dst, src *Value, at Path) (*Value, error) {
	if err := checkMerge(dst, src, at); err != nil {
		return nil, err
	}
	return apply(dst, src), nil
}

func checkMerge(dst, src *Value, at Path) error {
	if dst == nil || src == nil {
		return nil
	}
	dk, sk := dst.kind, src.kind
	if dk.Scalar() && sk.Scalar() {
		return nil
	}
	if dk != sk {
		return &ConflictError{Path: append(Path(nil), at...), Existing: dk, Incoming: sk}
	}

	switch dk {
	case KindMap:
		for _, k := range src.keys {
			if err := checkMerge(dst.m[k], src.m[k], append(at, Key(k))); err != nil {
				return err
			}
		}
	case KindSeq:
		for i, child := range src.seq {
			if child == nil || i >= len(dst.seq) {
				continue
			}
			if err := checkMerge(dst.seq[i], child, append(at, Idx(i))); err != nil {
				return err
			}
		}
	}
	return nil
}

// apply merges a src already validated by checkMerge.
func apply(dst, src *Value) *Value {
	if src == nil {
		return dst
	}
	if dst == nil || src.kind.Scalar() {
		return src
	}

	switch dst.kind {
	case KindMap:
		for _, k := range src.keys {
			dst.Set(k, apply(dst.m[k], src.m[k]))
		}
	case KindSeq:
		for i, child := range src.seq {
			if child == nil {
				if i >= len(dst.seq) {
					dst.SetIndex(i, nil)
				}
				continue
			}
			dst.SetIndex(i, apply(dst.Index(i), child))
		}
	}
	return dst
}
