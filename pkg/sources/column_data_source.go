// Package sources provides the data-bearing model types.
package sources

import (
	"fmt"
	"slices"
	"sort"

	"github.com/modelsync/modelsync/pkg/constants"
	"github.com/modelsync/modelsync/pkg/models"
)

const (
	DataAttr   = "data"
	ShapesAttr = "_shapes"
)

// ColumnDataSourceSchema declares the column data source type. Its data
// attribute maps column names to equally long arrays.
var ColumnDataSourceSchema = newColumnDataSourceSchema()

func newColumnDataSourceSchema() *models.Schema {
	s := models.BaseModel.Extend("ColumnDataSource",
		models.Define("selected", models.ArrayPolicy, models.Array()),
		models.Define(DataAttr, models.MapPolicy, models.Map(nil)),
		models.Internal(ShapesAttr, models.MapPolicy, models.Map(nil)),
	)
	s.NewBehavior = func(m *models.Model) any {
		return &ColumnDataSource{
			model:     m,
			Streaming: models.NewSignal[*models.Model]("streaming"),
			Patching:  models.NewSignal[[]int]("patching"),
		}
	}
	return s
}

// Register adds the types of this package to r.
func Register(r *models.Registry) {
	r.Register(ColumnDataSourceSchema)
}

// ColumnDataSource is the behavior of a column data source model.
type ColumnDataSource struct {
	model *models.Model

	// Streaming fires after rows were appended.
	Streaming *models.Signal[*models.Model]
	// Patching fires after cells were replaced, with the touched row indices.
	Patching *models.Signal[[]int]
}

var (
	_ models.DataSource  = (*ColumnDataSource)(nil)
	_ models.ColumnSink  = (*ColumnDataSource)(nil)
	_ models.AttrDecoder = (*ColumnDataSource)(nil)
	_ models.Initializer = (*ColumnDataSource)(nil)
)

// New builds a column data source holding data.
func New(data map[string]models.Value) (*models.Model, error) {
	return models.New(ColumnDataSourceSchema, models.A(DataAttr, models.Map(data)))
}

// Of returns the column data source behavior of m.
func Of(m *models.Model) (*ColumnDataSource, bool) {
	cds, ok := m.Behavior().(*ColumnDataSource)
	return cds, ok
}

func (c *ColumnDataSource) Model() *models.Model {
	return c.model
}

func (c *ColumnDataSource) data() map[string]models.Value {
	v, _ := c.model.Getv(DataAttr)
	m, _ := v.AsMap()
	return m
}

// ColumnNames returns the column names, sorted.
func (c *ColumnDataSource) ColumnNames() []string {
	data := c.data()
	names := make([]string, 0, len(data))
	for k := range data {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Length is the common length of the columns. It is unknown when there are
// no columns or when their lengths disagree.
func (c *ColumnDataSource) Length() (int, bool) {
	data := c.data()
	length := -1
	for _, name := range c.ColumnNames() {
		n := data[name].Len()
		if length >= 0 && n != length {
			return 0, false
		}
		length = n
	}
	if length < 0 {
		return 0, false
	}
	return length, true
}

func (c *ColumnDataSource) Column(name string) ([]models.Value, bool) {
	v, ok := c.data()[name]
	if !ok {
		return nil, false
	}
	return v.AsArray()
}

// Initialize decodes binary encoded columns received with the model.
func (c *ColumnDataSource) Initialize([]models.Attr) error {
	raw, err := c.model.Getv(DataAttr)
	if err != nil || raw.IsNull() {
		return err
	}
	data, shapes, decoded, err := DecodeColumnData(raw)
	if err != nil || !decoded {
		return err
	}
	return c.model.Setv([]models.Attr{
		models.A(ShapesAttr, shapes),
		models.A(DataAttr, data),
	}, models.SetOptions{Silent: true})
}

// DecodeAttr decodes the binary column form of a replacement data value.
func (c *ColumnDataSource) DecodeAttr(name string, v models.Value) ([]models.Attr, bool, error) {
	if name != DataAttr {
		return nil, false, nil
	}
	data, shapes, _, err := DecodeColumnData(v)
	if err != nil {
		return nil, false, err
	}
	return []models.Attr{
		models.A(ShapesAttr, shapes),
		models.A(DataAttr, data),
	}, true, nil
}

func (c *ColumnDataSource) current(name string) models.Value {
	v, _ := c.model.Getv(name)
	return v
}

// Stream appends rows to every column. newData must carry exactly the
// existing columns. A numeric rollover keeps only that many trailing rows.
func (c *ColumnDataSource) Stream(newData, rollover models.Value, setterID string) error {
	attrs, err := c.PlanStream(c.current, newData, rollover)
	if err != nil {
		return err
	}
	if err := c.model.Setv(attrs, models.SetOptions{Silent: true}); err != nil {
		return err
	}
	c.Streaming.Emit(c.model)
	if n, ok := c.model.Document().(models.ColumnsNotifier); ok {
		n.NotifyColumnsStreamed(c.model, newData, rollover, setterID)
	}
	return nil
}

// PlanStream returns the data attribute Stream would write when the
// columns are the ones read through get.
func (c *ColumnDataSource) PlanStream(get models.AttrReader, newData, rollover models.Value) ([]models.Attr, error) {
	current, _ := get(DataAttr).AsMap()
	updated, err := streamColumns(current, newData, rollover)
	if err != nil {
		return nil, err
	}
	return []models.Attr{models.A(DataAttr, models.Map(updated))}, nil
}

func streamColumns(current map[string]models.Value, newData, rollover models.Value) (map[string]models.Value, error) {
	incoming, ok := newData.AsMap()
	if !ok {
		return nil, fmt.Errorf("%w: streamed data must be a map of columns, got %s", constants.ErrInvalidValue, newData)
	}
	limit := -1
	if !rollover.IsNull() {
		n, ok := rollover.AsInt()
		if !ok || n < 0 {
			return nil, fmt.Errorf("%w: rollover must be a non-negative integer, got %s", constants.ErrInvalidValue, rollover)
		}
		limit = n
	}

	names := sortedNames(current)
	if len(incoming) != len(names) {
		return nil, fmt.Errorf("%w: must stream updates to all existing columns %v", constants.ErrInvalidValue, names)
	}
	for _, name := range names {
		col, ok := incoming[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing streamed column %s", constants.ErrInvalidValue, name)
		}
		if _, ok := col.AsArray(); !ok {
			return nil, fmt.Errorf("%w: streamed column %s is not an array", constants.ErrInvalidValue, name)
		}
	}

	updated := make(map[string]models.Value, len(current))
	for _, name := range names {
		existing, _ := current[name].AsArray()
		added, _ := incoming[name].AsArray()
		updated[name] = models.Array(streamToColumn(existing, added, limit)...)
	}
	return updated, nil
}

func streamToColumn(existing, added []models.Value, limit int) []models.Value {
	out := make([]models.Value, 0, len(existing)+len(added))
	out = append(out, existing...)
	out = append(out, added...)
	if limit >= 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Patch replaces cells. patches maps a column name to a list of
// [index, value] pairs, where index is a row number or a slice
// {start, stop, step} paired with an array of values.
func (c *ColumnDataSource) Patch(patches models.Value, setterID string) error {
	current, _ := c.current(DataAttr).AsMap()
	updated, touched, err := patchColumns(current, patches)
	if err != nil {
		return err
	}

	if err := c.model.Setv([]models.Attr{models.A(DataAttr, models.Map(updated))}, models.SetOptions{Silent: true}); err != nil {
		return err
	}
	slices.Sort(touched)
	c.Patching.Emit(slices.Compact(touched))
	if n, ok := c.model.Document().(models.ColumnsNotifier); ok {
		n.NotifyColumnsPatched(c.model, patches, setterID)
	}
	return nil
}

// PlanPatch returns the data attribute Patch would write when the
// columns are the ones read through get.
func (c *ColumnDataSource) PlanPatch(get models.AttrReader, patches models.Value) ([]models.Attr, error) {
	current, _ := get(DataAttr).AsMap()
	updated, _, err := patchColumns(current, patches)
	if err != nil {
		return nil, err
	}
	return []models.Attr{models.A(DataAttr, models.Map(updated))}, nil
}

func patchColumns(current map[string]models.Value, patches models.Value) (map[string]models.Value, []int, error) {
	byColumn, ok := patches.AsMap()
	if !ok {
		return nil, nil, fmt.Errorf("%w: patches must be a map of columns, got %s", constants.ErrInvalidValue, patches)
	}

	updated := make(map[string]models.Value, len(current))
	for k, v := range current {
		updated[k] = v
	}

	var touched []int
	for _, name := range sortedNames(byColumn) {
		col, ok := current[name]
		if !ok {
			return nil, nil, fmt.Errorf("%w: cannot patch missing column %s", constants.ErrInvalidValue, name)
		}
		cells, _ := col.AsArray()
		cells = slices.Clone(cells)

		pairs, ok := byColumn[name].AsArray()
		if !ok {
			return nil, nil, fmt.Errorf("%w: patches for %s must be an array", constants.ErrInvalidValue, name)
		}
		for _, pair := range pairs {
			rows, err := applyPatch(cells, pair)
			if err != nil {
				return nil, nil, fmt.Errorf("column %s: %w", name, err)
			}
			touched = append(touched, rows...)
		}
		updated[name] = models.Array(cells...)
	}
	return updated, touched, nil
}

func applyPatch(cells []models.Value, pair models.Value) ([]int, error) {
	items, ok := pair.AsArray()
	if !ok || len(items) != 2 {
		return nil, fmt.Errorf("%w: patch must be an [index, value] pair, got %s", constants.ErrInvalidValue, pair)
	}
	index, value := items[0], items[1]

	if i, ok := index.AsInt(); ok {
		if i < 0 || i >= len(cells) {
			return nil, fmt.Errorf("%w: index %d out of range [0, %d)", constants.ErrInvalidValue, i, len(cells))
		}
		cells[i] = value
		return []int{i}, nil
	}

	if _, ok := index.AsMap(); ok {
		rows, err := sliceIndices(index, len(cells))
		if err != nil {
			return nil, err
		}
		values, ok := value.AsArray()
		if !ok || len(values) != len(rows) {
			return nil, fmt.Errorf("%w: slice patch needs %d values, got %s", constants.ErrInvalidValue, len(rows), value)
		}
		for j, i := range rows {
			cells[i] = values[j]
		}
		return rows, nil
	}

	return nil, fmt.Errorf("%w: unsupported patch index %s", constants.ErrInvalidValue, index)
}

// sliceIndices expands {start, stop, step} against a column of length n.
// Missing or null bounds default to the whole column.
func sliceIndices(slice models.Value, n int) ([]int, error) {
	bound := func(key string, def int) (int, error) {
		v, ok := slice.Get(key)
		if !ok || v.IsNull() {
			return def, nil
		}
		i, ok := v.AsInt()
		if !ok {
			return 0, fmt.Errorf("%w: slice %s must be an integer, got %s", constants.ErrInvalidValue, key, v)
		}
		return i, nil
	}

	start, err := bound("start", 0)
	if err != nil {
		return nil, err
	}
	stop, err := bound("stop", n)
	if err != nil {
		return nil, err
	}
	step, err := bound("step", 1)
	if err != nil {
		return nil, err
	}
	if step <= 0 {
		return nil, fmt.Errorf("%w: slice step must be positive", constants.ErrInvalidValue)
	}
	if start < 0 || stop > n || start > stop {
		return nil, fmt.Errorf("%w: slice [%d:%d] out of range [0, %d]", constants.ErrInvalidValue, start, stop, n)
	}

	var rows []int
	for i := start; i < stop; i += step {
		rows = append(rows, i)
	}
	return rows, nil
}

func sortedNames(m map[string]models.Value) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
