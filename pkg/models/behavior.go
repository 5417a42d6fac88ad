package models

// Initializer runs once a model's attributes are complete, after every model
// it references has been initialized.
type Initializer interface {
	Initialize(attrs []Attr) error
}

// SignalConnector wires a model's signal handlers during finalization.
type SignalConnector interface {
	ConnectSignals()
}

// Transform maps values read through a property spec.
type Transform interface {
	Compute(x Value) (Value, error)
	VCompute(xs []Value) ([]Value, error)
}

// DataSource is the column store a dataspec property materializes against.
type DataSource interface {
	// Length is the row count, false when it cannot be determined.
	Length() (int, bool)
	Column(name string) ([]Value, bool)
}

// AttrReader reads an attribute value, possibly ahead of the model's
// current state.
type AttrReader func(name string) Value

// ColumnSink accepts the bulk-data events a peer sends for data-bearing models.
type ColumnSink interface {
	Stream(data Value, rollover Value, setterID string) error
	Patch(patches Value, setterID string) error
	// PlanStream and PlanPatch check an update against the attributes read
	// through get and return the attributes applying it would write.
	PlanStream(get AttrReader, data, rollover Value) ([]Attr, error)
	PlanPatch(get AttrReader, patches Value) ([]Attr, error)
}

// AttrDecoder converts an attribute value received from a peer into the
// attributes to write, e.g. binary encoded columns. ok is false when the
// attribute needs no decoding.
type AttrDecoder interface {
	DecodeAttr(name string, v Value) (attrs []Attr, ok bool, err error)
}

// ColumnsNotifier is implemented by owners that report bulk column updates
// as change events.
type ColumnsNotifier interface {
	NotifyColumnsStreamed(m *Model, data, rollover Value, setterID string)
	NotifyColumnsPatched(m *Model, patches Value, setterID string)
}
