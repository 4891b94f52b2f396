package shared

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// TargetSize is the size in bytes of a target and of a SHA-256 digest.
const TargetSize = 32

var ErrInvalidDifficulty = errors.New("invalid difficulty")

var (
	two256    = new(big.Int).Lsh(big.NewInt(1), 256)
	maxTarget = new(big.Int).Sub(two256, big.NewInt(1))
)

// Target is a 256-bit unsigned integer in big-endian byte order.
// A digest qualifies when, read the same way, it is less than or equal to the target.
type Target [TargetSize]byte

// ComputeTarget derives the target for a difficulty: min(2^256 / difficulty, 2^256 - 1).
func ComputeTarget(difficulty *big.Int) (Target, error) {
	var t Target
	if difficulty == nil || difficulty.Sign() <= 0 {
		return t, fmt.Errorf("%w: must be a positive integer, got %v", ErrInvalidDifficulty, difficulty)
	}
	v := new(big.Int).Quo(two256, difficulty)
	if v.Cmp(maxTarget) > 0 {
		v.Set(maxTarget)
	}
	v.FillBytes(t[:])
	return t, nil
}

// ComputeTargetUint64 is ComputeTarget for difficulties that fit in a uint64.
func ComputeTargetUint64(difficulty uint64) (Target, error) {
	return ComputeTarget(new(big.Int).SetUint64(difficulty))
}

// CheckTarget reports whether digest, as a big-endian integer, does not exceed the target.
func CheckTarget(digest []byte, target Target) bool {
	if len(digest) != TargetSize {
		return false
	}
	return bytes.Compare(digest, target[:]) <= 0
}

func (t Target) Big() *big.Int {
	return new(big.Int).SetBytes(t[:])
}

func (t Target) String() string {
	return hex.EncodeToString(t[:])
}

// ParseDifficulty parses a positive difficulty. Besides plain decimal and
// 0x-prefixed hex it understands powers of ten written as "1e30" and
// powers written as "10**30".
func ParseDifficulty(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)

	var (
		d   *big.Int
		err error
	)
	switch {
	case strings.Contains(s, "**"):
		base, exp, _ := strings.Cut(s, "**")
		d, err = power(base, exp)
	case !strings.HasPrefix(lower, "0x") && strings.Contains(lower, "e"):
		mantissa, exp, _ := strings.Cut(lower, "e")
		d, err = power("10", exp)
		if err == nil {
			m, ok := new(big.Int).SetString(mantissa, 10)
			if !ok {
				err = fmt.Errorf("%w: malformed mantissa %q", ErrInvalidDifficulty, mantissa)
			} else {
				d.Mul(d, m)
			}
		}
	default:
		var ok bool
		d, ok = new(big.Int).SetString(s, 0)
		if !ok {
			err = fmt.Errorf("%w: %q is not an integer", ErrInvalidDifficulty, s)
		}
	}
	if err != nil {
		return nil, err
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("%w: must be a positive integer, got %v", ErrInvalidDifficulty, d)
	}
	return d, nil
}

func power(base, exp string) (*big.Int, error) {
	b, ok := new(big.Int).SetString(strings.TrimSpace(base), 10)
	if !ok {
		return nil, fmt.Errorf("%w: malformed base %q", ErrInvalidDifficulty, base)
	}
	// Anything above 2^256 already yields a zero target.
	e, err := strconv.ParseUint(strings.TrimSpace(exp), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed exponent %q: %v", ErrInvalidDifficulty, exp, err)
	}
	return new(big.Int).Exp(b, new(big.Int).SetUint64(e), nil), nil
}
