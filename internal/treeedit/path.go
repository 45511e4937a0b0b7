// Package treeedit walks an activity payload and lets a reviewer edit its leaves
// without changing the shape of the document.
package treeedit

import (
	"strconv"
	"strings"
)

// Step is one element of a Path: an object key or an array index.
type Step struct {
	Key     string
	Index   int
	IsIndex bool
}

// Path locates a node inside a document.
type Path []Step

// Root is the empty path.
var Root = Path(nil)

// Key returns a copy of p extended by an object key.
func (p Path) Key(key string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, Step{Key: key})
}

// Index returns a copy of p extended by an array index.
func (p Path) Index(i int) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, Step{Index: i, IsIndex: true})
}

// keySpecial lists the bytes that are escaped with a backslash inside a key.
const keySpecial = `.[]\`

// String renders p as dotted keys with bracketed indices, e.g. blok_4.metode[2].
// Inside a key the bytes '.', '[', ']' and backslash are escaped with a
// backslash, so distinct paths never render the same string.
func (p Path) String() string {
	var b strings.Builder
	for i, step := range p {
		if step.IsIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(step.Index))
			b.WriteByte(']')
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		writeKey(&b, step.Key)
	}
	return b.String()
}

func writeKey(b *strings.Builder, key string) {
	if !strings.ContainsAny(key, keySpecial) {
		b.WriteString(key)
		return
	}
	for i := 0; i < len(key); i++ {
		if strings.IndexByte(keySpecial, key[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(key[i])
	}
}

// Label is the caption shown next to an input: the nearest key, followed by the
// index when the node is an array element.
func (p Path) Label() string {
	if len(p) == 0 {
		return ""
	}
	last := p[len(p)-1]
	if !last.IsIndex {
		return last.Key
	}
	parent := p[:len(p)-1].Label()
	return strings.TrimSpace(parent + " [" + strconv.Itoa(last.Index) + "]")
}

// ParsePath is the inverse of Path.String.
func ParsePath(s string) (Path, bool) {
	var p Path
	for s != "" {
		switch s[0] {
		case '[':
			end := strings.IndexByte(s, ']')
			if end < 0 {
				return nil, false
			}
			idx, err := strconv.Atoi(s[1:end])
			if err != nil || idx < 0 {
				return nil, false
			}
			p = append(p, Step{Index: idx, IsIndex: true})
			s = s[end+1:]
		case '.':
			if len(p) == 0 {
				return nil, false
			}
			s = s[1:]
			if s == "" || s[0] == '.' || s[0] == '[' {
				return nil, false
			}
		case ']':
			return nil, false
		default:
			key, rest, ok := readKey(s)
			if !ok {
				return nil, false
			}
			p = append(p, Step{Key: key})
			s = rest
		}
	}
	return p, true
}

// readKey consumes one escaped key up to the next unescaped '.' or '['.
func readKey(s string) (key, rest string, ok bool) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 == len(s) {
				return "", "", false
			}
			i++
			b.WriteByte(s[i])
		case '.', '[':
			return b.String(), s[i:], true
		case ']':
			return "", "", false
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), "", true
}
