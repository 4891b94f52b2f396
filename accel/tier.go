package accel

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

var ErrUnknownTier = errors.New("unknown acceleration tier")

// Tier is a SHA-256 code path. Tiers are ordered from the most specialized
// instruction set to the portable fallback; selection only ever moves
// toward None.
type Tier uint8

const (
	AVX512 Tier = iota
	SHA
	AVX2
	AVX
	SSE
	None
)

var (
	tierNames = [...]string{"avx512", "sha", "avx2", "avx", "sse", "none"}

	// Messages hashed per worker iteration. Vector tiers batch consecutive
	// nonces, which is what workers stride over.
	tierLanes = [...]int{16, 1, 8, 4, 4, 1}

	tierAliases = map[string]Tier{
		"avx-512":  AVX512,
		"sha-ni":   SHA,
		"sha_ext":  SHA,
		"sse4":     SSE,
		"sse41":    SSE,
		"sse4.1":   SSE,
		"no_accel": None,
		"noaccel":  None,
	}
)

// Tiers returns all tiers in fallback order.
func Tiers() []Tier {
	return []Tier{AVX512, SHA, AVX2, AVX, SSE, None}
}

// clamp maps out-of-range values onto None.
func (t Tier) clamp() Tier {
	if t > None {
		return None
	}
	return t
}

func (t Tier) String() string {
	return tierNames[t.clamp()]
}

// Lanes is the number of consecutive nonces a worker hashes per iteration on this tier.
func (t Tier) Lanes() int {
	return tierLanes[t.clamp()]
}

func ParseTier(s string) (Tier, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if i := slices.Index(tierNames[:], name); i >= 0 {
		return Tier(i), nil
	}
	if t, ok := tierAliases[name]; ok {
		return t, nil
	}
	return None, fmt.Errorf("%w: %q (valid: %s)", ErrUnknownTier, s, strings.Join(tierNames[:], ", "))
}

// UnmarshalFlag implements flags.Unmarshaler.
func (t *Tier) UnmarshalFlag(value string) error {
	parsed, err := ParseTier(value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalFlag implements flags.Marshaler.
func (t Tier) MarshalFlag() (string, error) {
	return t.String(), nil
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	return t.UnmarshalFlag(string(text))
}
