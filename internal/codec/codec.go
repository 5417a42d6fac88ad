// Package codec abstracts the byte encodings snapshots and patches travel in.
package codec

import "io"

type Encoder interface {
	Encode(v any) error
}

type Decoder interface {
	Decode(v any) error
}

type Marshaler interface {
	Marshal(v any) ([]byte, error)
	NewEncoder(w io.Writer) Encoder
}

type Unmarshaler interface {
	Unmarshal(data []byte, dst any) error
	NewDecoder(r io.Reader) Decoder
}

// Codec pairs both directions of one encoding with the frame type it
// travels as on a message-oriented transport.
type Codec struct {
	Marshaler
	Unmarshaler

	Name string
	// Binary codecs are sent as binary websocket frames.
	Binary bool
}
