package treeedit

import (
	"math"
	"strconv"
	"strings"

	"github.com/vpriesta/mds-form/internal/document"
)

// Edits is an Editor that replaces the leaves named by their path string
// (see Path.String). Leaves without an entry are returned unchanged.
type Edits map[string]document.Value

func (e Edits) Toggle(path Path, current bool) bool {
	v, ok := e[path.String()]
	if !ok {
		return current
	}
	if b, ok := v.AsBool(); ok {
		return b
	}
	if s, ok := v.AsString(); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
	}
	return current
}

func (e Edits) Number(path Path, current document.Value) document.Value {
	v, ok := e[path.String()]
	if !ok {
		return current
	}
	if n, ok := parseNumber(v); ok {
		return n
	}
	return current
}

// parseNumber reads a finite number from a number or numeric text. NaN and
// infinities are refused because they have no JSON form.
func parseNumber(v document.Value) (document.Value, bool) {
	if v.IsNumber() {
		f, _ := v.AsFloat()
		return v, !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	s, ok := v.AsString()
	if !ok {
		return document.Value{}, false
	}
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return document.Int(i), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return document.Value{}, false
	}
	return document.Float(f), true
}

func (e Edits) Text(path Path, current string) string {
	v, ok := e[path.String()]
	if !ok {
		return current
	}
	return v.Text()
}

// Unknown returns the edit paths that do not name an editable leaf of v.
func (e Edits) Unknown(v document.Value) []string {
	leaves := make(map[string]struct{})
	for _, f := range Fields(v) {
		leaves[f.Path.String()] = struct{}{}
	}
	var out []string
	for key := range e {
		if _, ok := leaves[key]; !ok {
			out = append(out, key)
		}
	}
	return out
}

// Invalid returns the edit paths that name a numeric leaf of v but do not
// carry a finite number.
func (e Edits) Invalid(v document.Value) []string {
	var out []string
	for _, f := range Fields(v) {
		if f.Control != ControlNumber {
			continue
		}
		key := f.Path.String()
		edit, ok := e[key]
		if !ok {
			continue
		}
		if _, ok := parseNumber(edit); !ok {
			out = append(out, key)
		}
	}
	return out
}

// Control names the input used for a leaf.
type Control string

const (
	ControlToggle Control = "toggle"
	ControlNumber Control = "number"
	ControlText   Control = "text"
)

// Field is one editable leaf of a document, in walk order.
type Field struct {
	Path    Path
	Control Control
	Value   document.Value
}

// Fields lists the editable leaves of v in the order Walk visits them.
func Fields(v document.Value) []Field {
	rec := &recorder{}
	Walk(v, Root, rec)
	return rec.fields
}

type recorder struct {
	fields []Field
}

func (r *recorder) Toggle(path Path, current bool) bool {
	r.fields = append(r.fields, Field{Path: path, Control: ControlToggle, Value: document.Bool(current)})
	return current
}

func (r *recorder) Number(path Path, current document.Value) document.Value {
	r.fields = append(r.fields, Field{Path: path, Control: ControlNumber, Value: current})
	return current
}

func (r *recorder) Text(path Path, current string) string {
	r.fields = append(r.fields, Field{Path: path, Control: ControlText, Value: document.String(current)})
	return current
}
