package models_test

import (
	"testing"

	"github.com/modelsync/modelsync/pkg/constants"
	"github.com/modelsync/modelsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaInheritance(t *testing.T) {
	base := models.BaseModel.Extend("TestShape", models.Define("width", models.NumberPolicy, models.Int(1)))
	derived := base.Extend("TestSquare", models.Define("corner", models.NumberPolicy))

	assert.True(t, derived.IsA("TestShape"))
	assert.True(t, derived.IsA("Model"))
	assert.False(t, base.IsA("TestSquare"))
	assert.Equal(t, base, derived.Base())

	_, ok := derived.Attr("width")
	assert.True(t, ok)
	names := make([]string, 0)
	for _, d := range derived.Attrs() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"name", "tags", "subscribed_events", "width", "corner"}, names)

	assert.Panics(t, func() { base.Extend("TestBroken", models.Define("width", models.AnyPolicy)) })
	assert.Panics(t, func() { base.Extend("TestBroken", models.Define(constants.IDAttr, models.AnyPolicy)) })
}

func TestSchemaOverrideAndMixin(t *testing.T) {
	s := models.BaseModel.Extend("TestStyled", models.Mixin("line_",
		models.Define("color", models.StringPolicy, models.String("black")),
		models.Define("width", models.NumberPolicy, models.Int(1)),
	)...).Override("line_color", models.DefaultValue(models.String("red")))

	m := models.MustNew(s)
	color, err := m.Getv("line_color")
	require.NoError(t, err)
	assert.True(t, models.Equal(models.String("red"), color))
	_, err = m.Getv("line_width")
	assert.NoError(t, err)

	assert.Panics(t, func() { s.Override("fill_color", models.DefaultValue(models.Null)) })
}

func TestRegistry(t *testing.T) {
	r := models.NewRegistry(models.BaseModel, testWidget)
	assert.Equal(t, []string{"Model", "TestWidget"}, r.Names())

	factory, err := r.Lookup("TestWidget")
	require.NoError(t, err)
	m, err := factory(models.Construct{ID: "w1"})
	require.NoError(t, err)
	assert.Equal(t, "w1", m.ID())
	assert.Equal(t, "TestWidget", m.Type())

	_, err = r.Lookup("Nope")
	assert.ErrorIs(t, err, constants.ErrUnknownType)
}

func TestPolicies(t *testing.T) {
	assert.NoError(t, models.NumberPolicy.Validate(models.Bool(true)))
	assert.ErrorIs(t, models.StringPolicy.Validate(models.Int(1)), constants.ErrInvalidValue)

	align := models.Enum("Align", "start", "end")
	assert.NoError(t, align.Validate(models.String("end")))
	assert.ErrorIs(t, align.Validate(models.String("middle")), constants.ErrInvalidValue)

	assert.NoError(t, models.Percent.Validate(models.Number(0.5)))
	assert.ErrorIs(t, models.Percent.Validate(models.Number(1.5)), constants.ErrInvalidValue)
	assert.ErrorIs(t, models.Percent.Validate(models.String("half")), constants.ErrInvalidValue)

	loc := models.Tagged("Location", "oneof=above below left right")
	assert.NoError(t, loc.Validate(models.String("left")))
	assert.ErrorIs(t, loc.Validate(models.String("center")), constants.ErrInvalidValue)
	assert.ErrorIs(t, loc.Validate(models.Instance(models.MustNew(models.BaseModel))), constants.ErrInvalidValue)

	// a tag that does not apply to the value type is a rejection, not a panic
	assert.ErrorIs(t, loc.Validate(models.Array()), constants.ErrInvalidValue)
}

func TestSignalConnectDisconnect(t *testing.T) {
	s := models.NewSignal[int]("test")
	var got []int
	c := s.Connect(func(v int) { got = append(got, v) })
	s.Connect(func(v int) { got = append(got, v*10) }, func(v int) bool { return v > 1 })

	s.Emit(1)
	s.Emit(2)
	assert.Equal(t, []int{1, 2, 20}, got)

	c.Disconnect()
	c.Disconnect()
	s.Emit(3)
	assert.Equal(t, []int{1, 2, 20, 30}, got)
	assert.Equal(t, 1, s.Len())

	s.DisconnectAll()
	s.Emit(4)
	assert.Len(t, got, 4)
}

func TestSignalSlotsConnectedDuringEmit(t *testing.T) {
	s := models.NewSignal[string]("test")
	calls := 0
	s.Connect(func(string) {
		calls++
		s.Connect(func(string) { calls += 100 })
	})

	s.Emit("a")
	assert.Equal(t, 1, calls)
	s.Emit("b")
	assert.Equal(t, 102, calls)
}

type doubler struct{}

func (doubler) Compute(v models.Value) (models.Value, error) {
	n, _ := v.AsNumber()
	return models.Number(2 * n), nil
}

func (d doubler) VCompute(vs []models.Value) ([]models.Value, error) {
	out := make([]models.Value, len(vs))
	for i, v := range vs {
		out[i], _ = d.Compute(v)
	}
	return out, nil
}

type staticSource struct {
	length  int
	columns map[string][]models.Value
}

func (s staticSource) Length() (int, bool) {
	return s.length, s.length > 0
}

func (s staticSource) Column(name string) ([]models.Value, bool) {
	c, ok := s.columns[name]
	return c, ok
}

var (
	testDoubler = func() *models.Schema {
		s := models.BaseModel.Extend("TestDoubler")
		s.NewBehavior = func(*models.Model) any { return doubler{} }
		return s
	}()
	testMarker = models.BaseModel.Extend("TestMarker",
		models.DataspecDef("size", models.NumberPolicy, models.Int(3)),
		models.DataspecDef("alpha", models.Percent),
		models.AttrDef{Name: "hatch", Policy: models.StringPolicy, Dataspec: true, Optional: true},
		models.Define("meta", models.MapPolicy, models.Map(nil)),
	)
)

func TestPropertySpecs(t *testing.T) {
	tr := models.MustNew(testDoubler)
	m := models.MustNew(testMarker,
		models.A("size", models.MustFromNative(map[string]any{"field": "s", "units": "screen"})),
		models.A("alpha", models.Map(map[string]models.Value{
			"value":     models.Number(0.25),
			"transform": models.Instance(tr),
		})),
	)

	size, err := m.Property("size")
	require.NoError(t, err)
	assert.True(t, size.Spec().IsField())
	assert.Equal(t, "s", size.Spec().Field)
	assert.Equal(t, "screen", size.Spec().Units)
	_, err = size.Value(false)
	assert.Error(t, err)

	alpha, err := m.Property("alpha")
	require.NoError(t, err)
	raw, err := alpha.Value(false)
	require.NoError(t, err)
	assert.True(t, models.Equal(models.Number(0.25), raw))
	computed, err := alpha.Value(true)
	require.NoError(t, err)
	assert.True(t, models.Equal(models.Number(0.5), computed))
}

func TestPropertySpecErrors(t *testing.T) {
	m := models.MustNew(testMarker)

	err := m.Set("size", models.MustFromNative(map[string]any{"value": 1.0, "field": "s"}))
	assert.ErrorIs(t, err, constants.ErrInvalidValue)
	err = m.Set("size", models.MustFromNative(map[string]any{"field": 3.0}))
	assert.ErrorIs(t, err, constants.ErrInvalidValue)
	err = m.Set("alpha", models.MustFromNative(map[string]any{"value": 3.0}))
	assert.ErrorIs(t, err, constants.ErrInvalidValue)

	// non-dataspec maps are plain values even when shaped like a spec
	require.NoError(t, m.Set("meta", models.MustFromNative(map[string]any{"value": 1.0, "field": "s"})))
}

func TestPropertyArray(t *testing.T) {
	tr := models.MustNew(testDoubler)
	m := models.MustNew(testMarker,
		models.A("alpha", models.MustFromNative(map[string]any{"field": "a"})),
	)
	require.NoError(t, m.Set("size", models.Map(map[string]models.Value{
		"field":     models.String("s"),
		"transform": models.Instance(tr),
	})))

	src := staticSource{length: 2, columns: map[string][]models.Value{
		"s": {models.Int(1), models.Int(2)},
		"a": {models.Number(0.1), models.Number(0.2)},
	}}

	size, _ := m.Property("size")
	arr, err := size.Array(src)
	require.NoError(t, err)
	assert.True(t, models.Equal(models.Array(models.Int(2), models.Int(4)), models.Array(arr...)))

	data, err := m.MaterializeDataspecs(src)
	require.NoError(t, err)
	assert.Len(t, data, 2)
	assert.Contains(t, data, "_alpha")
	assert.NotContains(t, data, "_hatch")

	require.NoError(t, m.Set("size", models.Int(5)))
	arr, err = size.Array(staticSource{})
	require.NoError(t, err)
	assert.Len(t, arr, 1)

	require.NoError(t, m.Set("size", models.MustFromNative(map[string]any{"field": "missing"})))
	_, err = size.Array(src)
	assert.ErrorIs(t, err, constants.ErrMissingField)
}

func TestTransformChangeForwarded(t *testing.T) {
	tr := models.MustNew(testDoubler)
	m := models.MustNew(testMarker, models.A("size", models.Map(map[string]models.Value{
		"value":     models.Int(1),
		"transform": models.Instance(tr),
	})))

	fired := 0
	m.TransformChange.Connect(func(*models.Model) { fired++ })
	require.NoError(t, tr.Set("tags", models.Strings("x")))
	assert.Equal(t, 1, fired)
}

func TestReferences(t *testing.T) {
	leaf := models.MustNew(testWidget, models.A(constants.NameAttr, models.String("leaf")))
	mid := models.MustNew(testWidget,
		models.A("child", models.Instance(leaf)),
		models.A("cache", models.Instance(models.MustNew(testWidget))),
	)
	top := models.MustNew(testWidget,
		models.A("items", models.Array(models.Instance(mid), models.Instance(leaf))),
		models.A(constants.NameAttr, models.String("top")),
	)
	// a cycle back to the top must terminate
	require.NoError(t, leaf.Set("child", models.Instance(top)))

	assert.Equal(t, []*models.Model{mid, leaf}, top.ImmediateReferences())
	refs := top.References()
	assert.Len(t, refs, 3)
	assert.Equal(t, top, refs[0])

	assert.Equal(t, []*models.Model{leaf}, top.Select("leaf"))
	assert.Len(t, top.SelectType("TestWidget"), 3)
	assert.Len(t, top.SelectType("Model"), 3)

	one, err := top.SelectOne("top")
	require.NoError(t, err)
	assert.Equal(t, top, one)
	none, err := top.SelectOne("nobody")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, mid.Set(constants.NameAttr, models.String("leaf")))
	_, err = top.SelectOne("leaf")
	assert.ErrorIs(t, err, constants.ErrAmbiguousName)
}
