package sources_test

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"testing"

	"github.com/modelsync/modelsync/pkg/constants"
	"github.com/modelsync/modelsync/pkg/models"
	"github.com/modelsync/modelsync/pkg/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbers(ns ...float64) models.Value {
	out := make([]models.Value, len(ns))
	for i, n := range ns {
		out[i] = models.Number(n)
	}
	return models.Array(out...)
}

func newSource(t *testing.T) (*models.Model, *sources.ColumnDataSource) {
	t.Helper()
	m, err := sources.New(map[string]models.Value{
		"x": numbers(1, 2, 3),
		"y": numbers(10, 20, 30),
	})
	require.NoError(t, err)
	cds, ok := sources.Of(m)
	require.True(t, ok)
	return m, cds
}

func column(t *testing.T, cds *sources.ColumnDataSource, name string) models.Value {
	t.Helper()
	col, ok := cds.Column(name)
	require.True(t, ok)
	return models.Array(col...)
}

func TestColumnDataSourceLength(t *testing.T) {
	_, cds := newSource(t)
	n, ok := cds.Length()
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"x", "y"}, cds.ColumnNames())

	empty, err := sources.New(nil)
	require.NoError(t, err)
	ecds, _ := sources.Of(empty)
	_, ok = ecds.Length()
	assert.False(t, ok)

	ragged, err := sources.New(map[string]models.Value{"a": numbers(1), "b": numbers(1, 2)})
	require.NoError(t, err)
	rcds, _ := sources.Of(ragged)
	_, ok = rcds.Length()
	assert.False(t, ok)
}

func TestStream(t *testing.T) {
	m, cds := newSource(t)
	streamed := 0
	cds.Streaming.Connect(func(*models.Model) { streamed++ })

	err := cds.Stream(models.Map(map[string]models.Value{
		"x": numbers(4),
		"y": numbers(40),
	}), models.Null, "")
	require.NoError(t, err)
	assert.True(t, models.Equal(numbers(1, 2, 3, 4), column(t, cds, "x")))
	assert.Equal(t, 1, streamed)

	err = cds.Stream(models.Map(map[string]models.Value{
		"x": numbers(5, 6),
		"y": numbers(50, 60),
	}), models.Int(3), "")
	require.NoError(t, err)
	assert.True(t, models.Equal(numbers(4, 5, 6), column(t, cds, "x")))
	assert.True(t, models.Equal(numbers(40, 50, 60), column(t, cds, "y")))

	assert.False(t, m.IsSetExplicitly(sources.ShapesAttr))
}

func TestStreamRejectsPartialColumns(t *testing.T) {
	_, cds := newSource(t)
	err := cds.Stream(models.Map(map[string]models.Value{"x": numbers(4)}), models.Null, "")
	assert.ErrorIs(t, err, constants.ErrInvalidValue)
	assert.True(t, models.Equal(numbers(1, 2, 3), column(t, cds, "x")))

	err = cds.Stream(models.Map(map[string]models.Value{
		"x": numbers(4),
		"y": numbers(40),
	}), models.Number(-1), "")
	assert.ErrorIs(t, err, constants.ErrInvalidValue)
}

func TestPatch(t *testing.T) {
	_, cds := newSource(t)
	var rows []int
	cds.Patching.Connect(func(r []int) { rows = r })

	patches := models.MustFromNative(map[string]any{
		"x": []any{
			[]any{0, 100},
		},
		"y": []any{
			[]any{map[string]any{"start": 1, "stop": 3}, []any{200, 300}},
		},
	})
	require.NoError(t, cds.Patch(patches, ""))

	assert.True(t, models.Equal(numbers(100, 2, 3), column(t, cds, "x")))
	assert.True(t, models.Equal(numbers(10, 200, 300), column(t, cds, "y")))
	assert.Equal(t, []int{0, 1, 2}, rows)
}

func TestPatchIsAtomic(t *testing.T) {
	_, cds := newSource(t)

	patches := models.MustFromNative(map[string]any{
		"x": []any{[]any{0, 100}},
		"y": []any{[]any{7, 1}},
	})
	assert.ErrorIs(t, cds.Patch(patches, ""), constants.ErrInvalidValue)
	assert.True(t, models.Equal(numbers(1, 2, 3), column(t, cds, "x")))

	missing := models.MustFromNative(map[string]any{"z": []any{[]any{0, 1}}})
	assert.ErrorIs(t, cds.Patch(missing, ""), constants.ErrInvalidValue)
}

func TestPlanDoesNotWrite(t *testing.T) {
	m, cds := newSource(t)
	planned := map[string]models.Value{}
	get := func(name string) models.Value {
		if v, ok := planned[name]; ok {
			return v
		}
		v, _ := m.Getv(name)
		return v
	}

	attrs, err := cds.PlanStream(get, models.MustFromNative(map[string]any{
		"x": []any{4},
		"y": []any{40},
	}), models.Null)
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	planned[attrs[0].Name] = attrs[0].Value
	assert.True(t, models.Equal(numbers(1, 2, 3), column(t, cds, "x")))

	attrs, err = cds.PlanPatch(get, models.MustFromNative(map[string]any{"x": []any{[]any{3, 400}}}))
	require.NoError(t, err)
	x, _ := attrs[0].Value.Get("x")
	assert.True(t, models.Equal(numbers(1, 2, 3, 400), x), "%s", x)

	current := func(name string) models.Value {
		v, _ := m.Getv(name)
		return v
	}
	_, err = cds.PlanPatch(current, models.MustFromNative(map[string]any{"x": []any{[]any{3, 400}}}))
	assert.ErrorIs(t, err, constants.ErrInvalidValue)
	assert.True(t, models.Equal(numbers(1, 2, 3), column(t, cds, "x")))
}

func float32Column(values ...float32) models.Value {
	raw := make([]byte, 4*len(values))
	for i, f := range values {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(f))
	}
	return models.MustFromNative(map[string]any{
		"__ndarray__": base64.StdEncoding.EncodeToString(raw),
		"dtype":       "float32",
		"shape":       []any{len(values)},
	})
}

func TestDecodeColumnData(t *testing.T) {
	data := models.Map(map[string]models.Value{
		"a": float32Column(1.5, 2.5),
		"b": sources.EncodeFloat64([]float64{3, 4, 5}),
		"c": models.Strings("u", "v"),
		"d": models.Array(float32Column(1), models.Strings("w")),
	})

	decoded, shapes, ok, err := sources.DecodeColumnData(data)
	require.NoError(t, err)
	assert.True(t, ok)

	a, _ := decoded.Get("a")
	assert.True(t, models.Equal(numbers(1.5, 2.5), a))
	b, _ := decoded.Get("b")
	assert.True(t, models.Equal(numbers(3, 4, 5), b))
	c, _ := decoded.Get("c")
	assert.True(t, models.Equal(models.Strings("u", "v"), c))
	d, _ := decoded.Get("d")
	assert.True(t, models.Equal(models.Array(numbers(1), models.Strings("w")), d))

	shapeA, _ := shapes.Get("a")
	assert.True(t, models.Equal(numbers(2), shapeA))
	_, hasC := shapes.Get("c")
	assert.False(t, hasC)

	_, _, ok, err = sources.DecodeColumnData(models.Map(map[string]models.Value{"c": models.Strings("u")}))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeColumnDataErrors(t *testing.T) {
	bad := models.MustFromNative(map[string]any{
		"a": map[string]any{"__ndarray__": "AAAA", "dtype": "complex128"},
	})
	_, _, _, err := sources.DecodeColumnData(bad)
	assert.ErrorIs(t, err, constants.ErrInvalidValue)

	short := models.MustFromNative(map[string]any{
		"a": map[string]any{"__ndarray__": base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), "dtype": "float32"},
	})
	_, _, _, err = sources.DecodeColumnData(short)
	assert.ErrorIs(t, err, constants.ErrInvalidValue)
}

func TestInitializeDecodesEncodedData(t *testing.T) {
	m, err := sources.New(map[string]models.Value{"a": sources.EncodeFloat64([]float64{1, 2})})
	require.NoError(t, err)
	cds, _ := sources.Of(m)

	assert.True(t, models.Equal(numbers(1, 2), column(t, cds, "a")))
	shapes, err := m.Getv(sources.ShapesAttr)
	require.NoError(t, err)
	shape, _ := shapes.Get("a")
	assert.True(t, models.Equal(numbers(2), shape))

	ok, err := m.AttributeIsSerializable(sources.ShapesAttr)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMaterializeDataspecsFromSource(t *testing.T) {
	glyph := models.BaseModel.Extend("TestGlyph",
		models.DataspecDef("x", models.NumberPolicy),
		models.DataspecDef("size", models.NumberPolicy, models.Number(4)),
	)
	g := models.MustNew(glyph, models.A("x", models.MustFromNative(map[string]any{"field": "x"})))

	_, cds := newSource(t)
	data, err := g.MaterializeDataspecs(cds)
	require.NoError(t, err)
	assert.True(t, models.Equal(numbers(1, 2, 3), models.Array(data["_x"]...)))
	assert.True(t, models.Equal(numbers(4, 4, 4), models.Array(data["_size"]...)))
}
