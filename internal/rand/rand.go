// Package rand generates the short random ids attached to transport messages.
package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// unbiasedMaxVal is the largest multiple of len(charset) that fits in a
// byte. Bytes at or above it are rejected so every character is equally likely.
const unbiasedMaxVal = (256 / len(charset)) * len(charset)

var defaultSource = newSource()

// source is a PCG generator seeded once from crypto/rand.
type source struct {
	mu  sync.Mutex
	rng *rand.Rand
	buf [8]byte
}

func newSource() *source {
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		panic("unreachable")
	}
	//nolint:gosec // message ids are not secrets
	return &source{rng: rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(seed[:8]),
		binary.LittleEndian.Uint64(seed[8:]),
	))}
}

func (s *source) read(out []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < len(out); i += len(s.buf) {
		binary.LittleEndian.PutUint64(s.buf[:], s.rng.Uint64())
		copy(out[i:], s.buf[:])
	}
}

// NewMessageID returns length base62 characters drawn uniformly.
func NewMessageID(length int) string {
	id := make([]byte, 0, length)
	chunk := make([]byte, 8)
	for len(id) < length {
		defaultSource.read(chunk)
		for _, b := range chunk {
			if int(b) >= unbiasedMaxVal {
				continue
			}
			id = append(id, charset[int(b)%len(charset)])
			if len(id) == length {
				break
			}
		}
	}
	return string(id)
}
