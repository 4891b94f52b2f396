// Package hasher computes SHA256(message || nonce) for a fixed message and
// varying nonces, using the code path of an acceleration tier.
//
// Every tier produces the same digests as crypto/sha256; tiers differ only in
// speed. A Hasher is owned by a single goroutine.
package hasher

import (
	"encoding"
	"fmt"
	"hash"

	"github.com/xcoin/miner/accel"
	"github.com/xcoin/miner/shared"
)

// Size is the length of a SHA-256 digest.
const Size = shared.TargetSize

type Hasher interface {
	// Sum writes SHA256(message || LE64(nonce)) to out.
	Sum(nonce uint64, out *[Size]byte)
}

// New returns a Hasher for message on the given tier. The message is copied.
func New(tier accel.Tier, message []byte) Hasher {
	switch tier {
	case accel.None:
		return newGeneric(message)
	case accel.SHA, accel.AVX512:
		// sha256-simd's AVX-512 server only pays off with 16 independent
		// streams in flight; one nonce at a time it stalls on every flush.
		// Its single-stream digest uses SHA extensions where present.
		return newSimd(message)
	default:
		// SSE, AVX and AVX2 run on the standard library's assembly, which
		// picks its own vector unit.
		return newStdlib(message)
	}
}

// midstateHasher drives a hash.Hash. When the hash can snapshot its state,
// the complete blocks of the message are absorbed once and restored for
// every nonce; otherwise the whole input is rewritten each time.
type midstateHasher struct {
	h       hash.Hash
	restore encoding.BinaryUnmarshaler
	state   []byte
	input   []byte // message remainder followed by the nonce slot
}

func newMidstateHasher(h hash.Hash, message []byte) *midstateHasher {
	m := &midstateHasher{h: h}
	marshaler, canMarshal := h.(encoding.BinaryMarshaler)
	unmarshaler, canUnmarshal := h.(encoding.BinaryUnmarshaler)
	if full := len(message) / h.BlockSize() * h.BlockSize(); canMarshal && canUnmarshal && full > 0 {
		h.Reset()
		h.Write(message[:full])
		if state, err := marshaler.MarshalBinary(); err == nil {
			m.state = state
			m.restore = unmarshaler
			message = message[full:]
		}
	}
	m.input = make([]byte, len(message)+shared.NonceSize)
	copy(m.input, message)
	return m
}

func (m *midstateHasher) Sum(nonce uint64, out *[Size]byte) {
	shared.EncodeNonce(m.input[len(m.input)-shared.NonceSize:], nonce)
	if m.restore != nil {
		if err := m.restore.UnmarshalBinary(m.state); err != nil {
			panic(fmt.Sprintf("restoring sha256 midstate: %v", err))
		}
	} else {
		m.h.Reset()
	}
	m.h.Write(m.input)
	sum := m.h.Sum(out[:0])
	if len(sum) != Size {
		panic(fmt.Sprintf("sha256 digest has %d bytes", len(sum)))
	}
	copy(out[:], sum)
}
