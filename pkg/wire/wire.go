// Package wire provides the encodings documents and patches are exchanged in.
package wire

import (
	"io"

	"github.com/goccy/go-json"
	"github.com/modelsync/modelsync/internal/codec"
	"github.com/modelsync/modelsync/pkg/models"
)

type JSONMarshaler struct {
	// Indent pretty-prints Marshal output when non-empty.
	Indent string
}

func (c JSONMarshaler) Marshal(v any) ([]byte, error) {
	if c.Indent != "" {
		return json.MarshalIndent(v, "", c.Indent)
	}
	return json.Marshal(v)
}

func (c JSONMarshaler) NewEncoder(w io.Writer) codec.Encoder {
	enc := json.NewEncoder(w)
	if c.Indent != "" {
		enc.SetIndent("", c.Indent)
	}
	return enc
}

type JSONUnmarshaler struct {
}

func (c JSONUnmarshaler) Unmarshal(data []byte, dst any) error {
	return json.Unmarshal(data, dst)
}

func (c JSONUnmarshaler) NewDecoder(r io.Reader) codec.Decoder {
	return json.NewDecoder(r)
}

type CborMarshaler struct {
}

func (c CborMarshaler) Marshal(v any) ([]byte, error) {
	return models.CborEncMode().Marshal(v)
}

func (c CborMarshaler) NewEncoder(w io.Writer) codec.Encoder {
	return models.CborEncMode().NewEncoder(w)
}

type CborUnmarshaler struct {
}

func (c CborUnmarshaler) Unmarshal(data []byte, dst any) error {
	return models.CborDecMode().Unmarshal(data, dst)
}

func (c CborUnmarshaler) NewDecoder(r io.Reader) codec.Decoder {
	return models.CborDecMode().NewDecoder(r)
}

// JSON is the default text codec.
func JSON() codec.Codec {
	return codec.Codec{
		Marshaler:   JSONMarshaler{},
		Unmarshaler: JSONUnmarshaler{},
		Name:        "json",
	}
}

// CBOR is the binary codec. Model references are tagged with
// models.ModelRefTag.
func CBOR() codec.Codec {
	return codec.Codec{
		Marshaler:   CborMarshaler{},
		Unmarshaler: CborUnmarshaler{},
		Name:        "cbor",
		Binary:      true,
	}
}

// ByName returns the codec registered under name.
func ByName(name string) (codec.Codec, bool) {
	switch name {
	case "json", "":
		return JSON(), true
	case "cbor":
		return CBOR(), true
	}
	return codec.Codec{}, false
}
