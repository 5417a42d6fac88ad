package sources

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/modelsync/modelsync/pkg/constants"
	"github.com/modelsync/modelsync/pkg/models"
)

// ndarrayKey marks a column sent as a base64 encoded typed array:
// {"__ndarray__": "<base64>", "dtype": "float64", "shape": [n], "order": "little"}.
const ndarrayKey = "__ndarray__"

var dtypeSizes = map[string]int{
	"uint8": 1, "int8": 1,
	"uint16": 2, "int16": 2,
	"uint32": 4, "int32": 4,
	"float32": 4, "float64": 8,
}

// DecodeColumnData replaces every binary encoded column of data, including
// encoded arrays nested one level in a ragged column, by plain numbers. It
// returns the decoded data, the shapes of the decoded arrays keyed by column
// and whether anything was decoded.
func DecodeColumnData(data models.Value) (models.Value, models.Value, bool, error) {
	columns, ok := data.AsMap()
	if !ok {
		return models.Null, models.Null, false, fmt.Errorf("%w: column data must be a map, got %s", constants.ErrInvalidValue, data)
	}

	out := make(map[string]models.Value, len(columns))
	shapes := make(map[string]models.Value)
	decoded := false
	for name, col := range columns {
		if isNDArray(col) {
			values, shape, err := decodeNDArray(col)
			if err != nil {
				return models.Null, models.Null, false, fmt.Errorf("column %s: %w", name, err)
			}
			out[name] = values
			shapes[name] = shape
			decoded = true
			continue
		}

		items, ok := col.AsArray()
		if !ok || !containsNDArray(items) {
			out[name] = col
			continue
		}
		ragged := make([]models.Value, len(items))
		raggedShapes := make([]models.Value, len(items))
		for i, item := range items {
			if !isNDArray(item) {
				ragged[i] = item
				raggedShapes[i] = models.Array()
				continue
			}
			values, shape, err := decodeNDArray(item)
			if err != nil {
				return models.Null, models.Null, false, fmt.Errorf("column %s[%d]: %w", name, i, err)
			}
			ragged[i] = values
			raggedShapes[i] = shape
		}
		out[name] = models.Array(ragged...)
		shapes[name] = models.Array(raggedShapes...)
		decoded = true
	}
	return models.Map(out), models.Map(shapes), decoded, nil
}

func isNDArray(v models.Value) bool {
	_, ok := v.Get(ndarrayKey)
	return ok
}

func containsNDArray(items []models.Value) bool {
	for _, item := range items {
		if isNDArray(item) {
			return true
		}
	}
	return false
}

func decodeNDArray(v models.Value) (models.Value, models.Value, error) {
	encoded, _ := v.Get(ndarrayKey)
	b64, ok := encoded.AsString()
	if !ok {
		return models.Null, models.Null, fmt.Errorf("%w: %s must be a base64 string", constants.ErrInvalidValue, ndarrayKey)
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return models.Null, models.Null, fmt.Errorf("%w: %v", constants.ErrInvalidValue, err)
	}

	dtypeValue, _ := v.Get("dtype")
	dtype, _ := dtypeValue.AsString()
	size, ok := dtypeSizes[dtype]
	if !ok {
		return models.Null, models.Null, fmt.Errorf("%w: unsupported dtype %q", constants.ErrInvalidValue, dtype)
	}
	if len(raw)%size != 0 {
		return models.Null, models.Null, fmt.Errorf("%w: %d bytes is not a whole number of %s", constants.ErrInvalidValue, len(raw), dtype)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if o, ok := v.Get("order"); ok {
		if s, _ := o.AsString(); s == "big" {
			order = binary.BigEndian
		}
	}

	n := len(raw) / size
	values := make([]models.Value, n)
	for i := 0; i < n; i++ {
		values[i] = models.Number(readElement(raw[i*size:(i+1)*size], dtype, order))
	}

	shape, ok := v.Get("shape")
	if !ok || shape.IsNull() {
		shape = models.Array(models.Int(n))
	}
	return models.Array(values...), shape, nil
}

func readElement(b []byte, dtype string, order binary.ByteOrder) float64 {
	switch dtype {
	case "uint8":
		return float64(b[0])
	case "int8":
		return float64(int8(b[0]))
	case "uint16":
		return float64(order.Uint16(b))
	case "int16":
		return float64(int16(order.Uint16(b)))
	case "uint32":
		return float64(order.Uint32(b))
	case "int32":
		return float64(int32(order.Uint32(b)))
	case "float32":
		return float64(math.Float32frombits(order.Uint32(b)))
	default:
		return math.Float64frombits(order.Uint64(b))
	}
}

// EncodeFloat64 encodes values in the binary column form.
func EncodeFloat64(values []float64) models.Value {
	raw := make([]byte, 8*len(values))
	for i, f := range values {
		binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(f))
	}
	return models.Map(map[string]models.Value{
		ndarrayKey: models.String(base64.StdEncoding.EncodeToString(raw)),
		"dtype":    models.String("float64"),
		"shape":    models.Array(models.Int(len(values))),
		"order":    models.String("little"),
	})
}
