package treeedit

import (
	"math"

	"github.com/vpriesta/mds-form/internal/document"
)

// Editor supplies the new value for each editable leaf visited by Walk.
type Editor interface {
	// Toggle edits a boolean leaf.
	Toggle(path Path, current bool) bool
	// Number edits a numeric leaf. A result that is not a finite number is ignored.
	Number(path Path, current document.Value) document.Value
	// Text edits a string or null leaf, or a scalar array element rendered as text.
	Text(path Path, current string) string
}

// Walk visits v depth first in pre-order and returns a deep copy with every leaf
// replaced by the editor's result. Object keys and array lengths never change.
//
// Scalar array elements are edited as text and stored back as strings. A leaf
// whose text comes back unchanged keeps its original value, so a walk with no
// edits returns a document equal to its input.
func Walk(v document.Value, path Path, ed Editor) document.Value {
	switch v.Kind() {
	case document.KindObject:
		out := document.Object()
		for _, m := range v.Members() {
			out.Set(m.Key, Walk(m.Value, path.Key(m.Key), ed))
		}
		return out
	case document.KindArray:
		elems := v.Elements()
		out := make([]document.Value, len(elems))
		for i, elem := range elems {
			elemPath := path.Index(i)
			if elem.Kind() == document.KindObject {
				out[i] = Walk(elem, elemPath, ed)
				continue
			}
			out[i] = editText(elem, elemPath, ed)
		}
		return document.Array(out...)
	case document.KindBool:
		b, _ := v.AsBool()
		return document.Bool(ed.Toggle(path, b))
	case document.KindInt, document.KindFloat:
		return editNumber(v, path, ed)
	default:
		return editText(v, path, ed)
	}
}

func editText(v document.Value, path Path, ed Editor) document.Value {
	current := v.Text()
	next := ed.Text(path, current)
	if next == current {
		return v.Clone()
	}
	return document.String(next)
}

func editNumber(v document.Value, path Path, ed Editor) document.Value {
	next := ed.Number(path, v)
	if !next.IsNumber() {
		return v
	}
	if v.Kind() == document.KindFloat {
		f, _ := next.AsFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return v
		}
		return document.Float(f)
	}
	if i, ok := next.AsInt(); ok {
		return document.Int(i)
	}
	f, _ := next.AsFloat()
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return v
	}
	return document.Int(int64(f))
}

// Identity is an Editor that returns every leaf unchanged.
type Identity struct{}

func (Identity) Toggle(_ Path, current bool) bool { return current }

func (Identity) Number(_ Path, current document.Value) document.Value { return current }

func (Identity) Text(_ Path, current string) string { return current }
