package treeedit

import (
	"math"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vpriesta/mds-form/internal/document"
)

func sampleDoc(t *testing.T) document.Value {
	t.Helper()
	doc, err := document.Parse([]byte(`{
		"halaman_awal": {"judul": "Survei Biaya Hidup", "tahun": 2024, "aktif": true},
		"blok_4": {"metode": ["wawancara", 3, 1.5, null, true, [1, 2]], "catatan": null},
		"variables": [{"nama": "umur", "bobot": 0.25}, {"nama": "jk", "bobot": 1.0}],
		"indicators": []
	}`))
	require.NoError(t, err)
	return doc
}

func TestWalkIdentityIsIdempotent(t *testing.T) {
	doc := sampleDoc(t)

	once := Walk(doc, Root, Identity{})
	require.True(t, document.Equal(doc, once))

	twice := Walk(once, Root, Identity{})
	require.True(t, document.Equal(once, twice))
	require.Equal(t, doc.Keys(), twice.Keys())
}

func TestWalkPreservesShapeUnderEdits(t *testing.T) {
	doc := sampleDoc(t)
	edits := Edits{
		"halaman_awal.judul": document.String("Survei Ulang"),
		"halaman_awal.tahun": document.Int(2025),
		"halaman_awal.aktif": document.Bool(false),
		"blok_4.metode[1]":   document.String("4"),
		"blok_4.metode[5]":   document.String("[1,2,3]"),
		"variables[1].bobot": document.String("0.5"),
	}

	out := Walk(doc, Root, edits)
	require.Equal(t, shape(doc), shape(out))

	judul, _ := out.Lookup("halaman_awal", "judul")
	require.Equal(t, "Survei Ulang", judul.Text())
	tahun, _ := out.Lookup("halaman_awal", "tahun")
	require.Equal(t, document.KindInt, tahun.Kind())
	aktif, _ := out.Lookup("halaman_awal", "aktif")
	b, _ := aktif.AsBool()
	require.False(t, b)

	metode, _ := out.Lookup("blok_4", "metode")
	require.Equal(t, document.KindString, metode.Index(1).Kind())
	require.Equal(t, "4", metode.Index(1).Text())
	require.Equal(t, document.KindString, metode.Index(5).Kind())
	// untouched scalar elements keep their type
	require.Equal(t, document.KindFloat, metode.Index(2).Kind())
	require.True(t, metode.Index(3).IsNull())

	vars, _ := out.Get("variables")
	second, _ := vars.Index(1).Get("bobot")
	require.Equal(t, document.KindFloat, second.Kind())
	f, _ := second.AsFloat()
	require.InDelta(t, 0.5, f, 1e-9)
}

func TestWalkDoesNotAliasInput(t *testing.T) {
	doc := sampleDoc(t)
	before := doc.Clone()

	out := Walk(doc, Root, Identity{})
	out.Set("halaman_awal", document.String("changed"))

	require.True(t, document.Equal(before, doc))
}

type numberEditor struct {
	Identity
	result document.Value
}

func (e numberEditor) Number(Path, document.Value) document.Value { return e.result }

func TestWalkNumberKinds(t *testing.T) {
	intLeaf := document.Object(document.M("n", document.Int(3)))
	floatLeaf := document.Object(document.M("n", document.Float(3.5)))

	out := Walk(intLeaf, Root, numberEditor{result: document.Float(7)})
	n, _ := out.Get("n")
	require.Equal(t, document.KindInt, n.Kind())
	i, _ := n.AsInt()
	require.EqualValues(t, 7, i)

	out = Walk(intLeaf, Root, numberEditor{result: document.Float(7.25)})
	n, _ = out.Get("n")
	i, _ = n.AsInt()
	require.EqualValues(t, 3, i)

	out = Walk(floatLeaf, Root, numberEditor{result: document.Int(2)})
	n, _ = out.Get("n")
	require.Equal(t, document.KindFloat, n.Kind())

	out = Walk(floatLeaf, Root, numberEditor{result: document.String("oops")})
	n, _ = out.Get("n")
	f, _ := n.AsFloat()
	require.InDelta(t, 3.5, f, 1e-9)

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		out = Walk(floatLeaf, Root, numberEditor{result: document.Float(bad)})
		n, _ = out.Get("n")
		f, _ = n.AsFloat()
		require.InDelta(t, 3.5, f, 1e-9)

		out = Walk(intLeaf, Root, numberEditor{result: document.Float(bad)})
		n, _ = out.Get("n")
		i, _ = n.AsInt()
		require.EqualValues(t, 3, i)
	}
}

func TestEditsRefuseNonFiniteNumbers(t *testing.T) {
	doc := sampleDoc(t)
	edits := Edits{
		"variables[0].bobot": document.String("NaN"),
		"variables[1].bobot": document.String(" -Inf "),
		"halaman_awal.tahun": document.String("2023"),
		"halaman_awal.judul": document.String("Inf"),
	}
	bad := edits.Invalid(doc)
	sort.Strings(bad)
	require.Equal(t, []string{"variables[0].bobot", "variables[1].bobot"}, bad)

	out := Walk(doc, Root, edits)
	w0, _ := out.Lookup("variables")
	first, _ := w0.Index(0).Get("bobot")
	f, _ := first.AsFloat()
	require.InDelta(t, 0.25, f, 1e-9)
	second, _ := w0.Index(1).Get("bobot")
	f, _ = second.AsFloat()
	require.InDelta(t, 1.0, f, 1e-9)
	tahun, _ := out.Lookup("halaman_awal", "tahun")
	require.Equal(t, "2023", tahun.Text())
	judul, _ := out.Lookup("halaman_awal", "judul")
	require.Equal(t, "Inf", judul.Text())

	require.Empty(t, Edits{"variables[0].bobot": document.String("0.5")}.Invalid(doc))
}

func TestEditsDoNotLeakAcrossLookalikeKeys(t *testing.T) {
	doc, err := document.Parse([]byte(`{"a.b": "x", "a": {"b": "y"}, "m[0]": "p", "m": ["q"]}`))
	require.NoError(t, err)

	fields := Fields(doc)
	paths := make([]string, len(fields))
	for i, f := range fields {
		paths[i] = f.Path.String()
	}
	require.Equal(t, []string{`a\.b`, "a.b", `m\[0\]`, "m[0]"}, paths)

	out := Walk(doc, Root, Edits{
		Root.Key("a.b").String():  document.String("Z"),
		Root.Key("m[0]").String(): document.String("W"),
	})
	got, _ := out.Get("a.b")
	require.Equal(t, "Z", got.Text())
	got, _ = out.Lookup("a", "b")
	require.Equal(t, "y", got.Text())
	got, _ = out.Get("m[0]")
	require.Equal(t, "W", got.Text())
	m, _ := out.Get("m")
	require.Equal(t, "q", m.Index(0).Text())

	out = Walk(doc, Root, Edits{"a.b": document.String("Z"), "m[0]": document.String("W")})
	got, _ = out.Get("a.b")
	require.Equal(t, "x", got.Text())
	got, _ = out.Lookup("a", "b")
	require.Equal(t, "Z", got.Text())
	m, _ = out.Get("m")
	require.Equal(t, "W", m.Index(0).Text())
}

func TestFieldsListsLeavesInWalkOrder(t *testing.T) {
	doc := document.Object(
		document.M("a", document.Bool(true)),
		document.M("b", document.Array(document.Int(1), document.Object(document.M("c", document.Float(2.5))))),
		document.M("d", document.String("x")),
	)

	fields := Fields(doc)
	paths := make([]string, len(fields))
	controls := make([]Control, len(fields))
	for i, f := range fields {
		paths[i] = f.Path.String()
		controls[i] = f.Control
	}
	require.Equal(t, []string{"a", "b[0]", "b[1].c", "d"}, paths)
	require.Equal(t, []Control{ControlToggle, ControlText, ControlNumber, ControlText}, controls)
	require.Equal(t, "b [0]", fields[1].Path.Label())
}

func TestEditsUnknownPaths(t *testing.T) {
	doc := sampleDoc(t)
	edits := Edits{
		"halaman_awal.judul": document.String("x"),
		"halaman_awal.nope":  document.String("y"),
	}
	require.Equal(t, []string{"halaman_awal.nope"}, edits.Unknown(doc))
}

func TestParsePathRoundTrip(t *testing.T) {
	for _, s := range []string{"a", "blok_4.metode[2]", "variables[0].nama", "x[1][2].y", `a\.b`, `m\[0\]`, `x\\y.z`} {
		p, ok := ParsePath(s)
		require.True(t, ok, s)
		require.Equal(t, s, p.String())
	}

	p, ok := ParsePath(`a\.b.c`)
	require.True(t, ok)
	require.Equal(t, Root.Key("a.b").Key("c"), p)
	require.NotEqual(t, Root.Key("a.b").String(), Root.Key("a").Key("b").String())

	for _, s := range []string{".a", "a..b", "a[", "a[-1]", "a.[0]", "a]", "]", `a\`, "a.b]"} {
		_, ok := ParsePath(s)
		require.False(t, ok, s)
	}
}

// shape lists every object key path and array length of v.
func shape(v document.Value) []string {
	var out []string
	var visit func(document.Value, Path)
	visit = func(v document.Value, p Path) {
		switch v.Kind() {
		case document.KindObject:
			for _, m := range v.Members() {
				out = append(out, p.Key(m.Key).String())
				visit(m.Value, p.Key(m.Key))
			}
		case document.KindArray:
			out = append(out, p.String()+"#"+strconv.Itoa(v.Len()))
			for i, e := range v.Elements() {
				if e.Kind() == document.KindObject {
					visit(e, p.Index(i))
				}
			}
		}
	}
	visit(v, Root)
	sort.Strings(out)
	return out
}
