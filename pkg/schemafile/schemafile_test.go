package schemafile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelsync/modelsync/pkg/constants"
	"github.com/modelsync/modelsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgets = `
types:
  - name: Widget
    attributes:
      - {name: label, type: String, default: ""}
      - {name: visible, type: Bool, default: true}
  - name: Slider
    base: Widget
    attributes:
      - {name: value, type: Number, default: 0}
      - {name: mode, type: Enum, values: [continuous, throttle], default: continuous}
      - {name: alpha, type: Percent, dataspec: true}
      - {name: step, type: Number, validate: "gt=0", default: 1}
      - {name: cache, internal: true}
      - {name: range, type: Array, default: [0, 10]}
`

func TestRegister(t *testing.T) {
	f, err := Parse(strings.NewReader(widgets))
	require.NoError(t, err)
	reg := models.NewRegistry(models.BaseModel)
	require.NoError(t, f.Register(reg))
	assert.Equal(t, []string{"Model", "Slider", "Widget"}, reg.Names())

	s, ok := reg.Schema("Slider")
	require.True(t, ok)
	assert.True(t, s.IsA("Widget"))
	assert.True(t, s.IsA("Model"))

	alpha, ok := s.Attr("alpha")
	require.True(t, ok)
	assert.True(t, alpha.Dataspec)
	cache, ok := s.Attr("cache")
	require.True(t, ok)
	assert.True(t, cache.Internal)

	newSlider, err := reg.Lookup("Slider")
	require.NoError(t, err)
	m, err := newSlider(models.Construct{})
	require.NoError(t, err)

	for name, want := range map[string]models.Value{
		"label":   models.String(""),
		"visible": models.Bool(true),
		"mode":    models.String("continuous"),
		"step":    models.Int(1),
		"range":   models.Array(models.Int(0), models.Int(10)),
	} {
		got, err := m.Getv(name)
		require.NoError(t, err, name)
		assert.True(t, models.Equal(want, got), "%s: %s", name, got)
	}

	assert.ErrorIs(t, m.Set("mode", models.String("other")), constants.ErrInvalidValue)
	assert.ErrorIs(t, m.Set("step", models.Int(0)), constants.ErrInvalidValue)
	assert.ErrorIs(t, m.Set("step", models.String("2")), constants.ErrInvalidValue)
	assert.ErrorIs(t, m.Set("visible", models.Int(1)), constants.ErrInvalidValue)
	require.NoError(t, m.Set("step", models.Number(0.5)))
	require.NoError(t, m.Set("cache", models.Map(nil)))
}

func TestParseErrors(t *testing.T) {
	for name, src := range map[string]string{
		"empty":          `types: []`,
		"missing name":   "types:\n  - attributes: [{name: a}]\n",
		"unknown type":   "types:\n  - name: T\n    attributes: [{name: a, type: Float}]\n",
		"enum no values": "types:\n  - name: T\n    attributes: [{name: a, type: Enum}]\n",
		"unknown field":  "types:\n  - name: T\n    colour: red\n",
		"not yaml":       "types: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(src))
			assert.Error(t, err)
		})
	}
}

func TestRegisterErrors(t *testing.T) {
	for name, src := range map[string]string{
		"unknown base":     "types:\n  - name: T\n    base: Missing\n",
		"bad default":      "types:\n  - name: T\n    attributes: [{name: a, type: Number, default: x}]\n",
		"redeclared":       "types:\n  - name: T\n    attributes: [{name: a}, {name: a}]\n",
		"reserved id":      "types:\n  - name: T\n    attributes: [{name: id}]\n",
		"tag on instance":  "types:\n  - name: T\n    attributes: [{name: a, type: Instance, validate: required}]\n",
		"default rejected": "types:\n  - name: T\n    attributes: [{name: a, type: Percent, default: 2}]\n",
	} {
		t.Run(name, func(t *testing.T) {
			f, err := Parse(strings.NewReader(src))
			require.NoError(t, err)
			assert.Error(t, f.Register(models.NewRegistry(models.BaseModel)))
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.yaml")
	require.NoError(t, os.WriteFile(path, []byte(widgets), 0o600))

	reg := models.NewRegistry()
	require.NoError(t, Load(path, reg))
	_, ok := reg.Schema("Slider")
	assert.True(t, ok)

	assert.Error(t, Load(filepath.Join(t.TempDir(), "missing.yaml"), reg))
}
