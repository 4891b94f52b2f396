package shared

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
)

// NonceSize is the number of bytes the nonce occupies at the end of the hashed input.
const NonceSize = 8

var ErrInvalidPow = errors.New("invalid proof of work")

// EncodeNonce writes the nonce in its canonical 8-byte little-endian form.
func EncodeNonce(dst []byte, nonce uint64) {
	binary.LittleEndian.PutUint64(dst, nonce)
}

// PowHasher computes SHA256(message || nonce) with the standard library
// implementation. Solutions found by any acceleration tier are checked against it.
type PowHasher struct {
	h     hash.Hash
	input []byte
}

func NewPowHasher(message []byte) *PowHasher {
	p := &PowHasher{h: sha256.New(), input: make([]byte, 0, len(message)+NonceSize)}
	p.input = append(p.input, message...)
	p.input = append(p.input, make([]byte, NonceSize)...) // placeholder for nonce
	return p
}

func (p *PowHasher) Hash(nonce uint64, output []byte) []byte {
	EncodeNonce(p.input[len(p.input)-NonceSize:], nonce)

	p.h.Reset()
	p.h.Write(p.input)
	return p.h.Sum(output)
}

// VerifyNonce recomputes the digest for (message, nonce) and checks it against the target.
// It returns the digest so callers can compare it with a reported one.
func VerifyNonce(message []byte, nonce uint64, target Target) ([]byte, error) {
	digest := NewPowHasher(message).Hash(nonce, nil)
	if !CheckTarget(digest, target) {
		return digest, fmt.Errorf("%w: digest %x exceeds target %s", ErrInvalidPow, digest, target)
	}
	return digest, nil
}
