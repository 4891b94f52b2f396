package hasher

import "github.com/minio/sha256-simd" // SHA extensions when the CPU has them

func newSimd(message []byte) Hasher {
	return newMidstateHasher(sha256.New(), message)
}
