package models

import (
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

type CustomCBORTag uint64

// ModelRefTag marks an encoded model reference so that a ref survives
// a CBOR round trip without relying on map shape detection.
var ModelRefTag CustomCBORTag = 4096

func (v Value) nativeCBOR() any {
	switch v.kind {
	case ArrayKind:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.nativeCBOR()
		}
		return out
	case MapKind:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.nativeCBOR()
		}
		return out
	case ModelKind:
		return cbor.Tag{Number: uint64(ModelRefTag), Content: v.model.Ref().native()}
	case RefKind:
		return cbor.Tag{Number: uint64(ModelRefTag), Content: v.ref.native()}
	}
	return v.Native()
}

func (v Value) MarshalCBOR() ([]byte, error) {
	return CborEncMode().Marshal(v.nativeCBOR())
}

func (v *Value) UnmarshalCBOR(data []byte) error {
	var raw any
	if err := CborDecMode().Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromNative(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

var (
	cborModes     sync.Once
	cborEncMode   cbor.EncMode
	cborDecMode   cbor.DecMode
	errCborConfig error
)

func initCborModes() {
	cborModes.Do(func() {
		cborEncMode, errCborConfig = cbor.EncOptions{
			Sort: cbor.SortCanonical,
		}.EncMode()
		if errCborConfig != nil {
			return
		}
		cborDecMode, errCborConfig = cbor.DecOptions{
			DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		}.DecMode()
	})
	if errCborConfig != nil {
		panic(errCborConfig)
	}
}

// CborEncMode is the canonical encoding shared by every CBOR payload.
func CborEncMode() cbor.EncMode {
	initCborModes()
	return cborEncMode
}

// CborDecMode decodes maps with string keys so refs are recognized.
func CborDecMode() cbor.DecMode {
	initCborModes()
	return cborDecMode
}
