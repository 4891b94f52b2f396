package accel

import (
	"testing"

	"github.com/klauspost/cpuid/v2"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	t.Parallel()

	for _, tier := range Tiers() {
		parsed, err := ParseTier(tier.String())
		require.NoError(t, err)
		require.Equal(t, tier, parsed)
	}

	for in, expected := range map[string]Tier{
		"AVX512":   AVX512,
		" sha ":    SHA,
		"SHA-NI":   SHA,
		"sse4.1":   SSE,
		"no_accel": None,
	} {
		parsed, err := ParseTier(in)
		require.NoError(t, err, in)
		require.Equal(t, expected, parsed, in)
	}

	_, err := ParseTier("neon")
	require.ErrorIs(t, err, ErrUnknownTier)
}

func TestTierFlagRoundTrip(t *testing.T) {
	t.Parallel()

	var tier Tier
	require.NoError(t, tier.UnmarshalFlag("avx2"))
	require.Equal(t, AVX2, tier)
	s, err := tier.MarshalFlag()
	require.NoError(t, err)
	require.Equal(t, "avx2", s)

	require.Error(t, tier.UnmarshalText([]byte("bogus")))
	require.Equal(t, AVX2, tier, "failed parse must not modify the tier")
}

func TestTierLanesAndClamp(t *testing.T) {
	t.Parallel()

	require.Equal(t, []int{16, 1, 8, 4, 4, 1}, []int{
		AVX512.Lanes(), SHA.Lanes(), AVX2.Lanes(), AVX.Lanes(), SSE.Lanes(), None.Lanes(),
	})
	// Values past the end of the enumeration behave as None.
	require.Equal(t, "none", Tier(42).String())
	require.Equal(t, 1, Tier(42).Lanes())
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	empty := NewCapabilities()
	require.True(t, empty.Has(None))
	require.False(t, empty.Has(SHA))
	require.Equal(t, []Tier{None}, empty.Tiers())
	require.Equal(t, None, empty.Best())

	caps := NewCapabilities(AVX2, SSE)
	require.Equal(t, []Tier{AVX2, SSE, None}, caps.Tiers())
	require.Equal(t, AVX2, caps.Best())
	require.Equal(t, "avx2,sse,none", caps.String())
}

func TestSelect(t *testing.T) {
	t.Parallel()

	all := NewCapabilities(Tiers()...)
	for _, tier := range Tiers() {
		require.Equal(t, tier, Select(tier, all), "supported preference is kept")
	}

	caps := NewCapabilities(AVX2, SSE)
	for _, tc := range []struct {
		preferred, expected Tier
	}{
		{AVX512, AVX2},
		{SHA, AVX2},
		{AVX2, AVX2},
		{AVX, SSE},
		{SSE, SSE},
		{None, None},
		{Tier(200), None},
	} {
		require.Equal(t, tc.expected, Select(tc.preferred, caps), "preferred %v", tc.preferred)
	}

	// Fallback never moves toward more specialized tiers.
	require.Equal(t, None, Select(None, all))
	require.Equal(t, None, Select(SSE, NewCapabilities(AVX512)))
}

func TestCapabilitiesOf(t *testing.T) {
	t.Parallel()

	var info cpuid.CPUInfo
	require.Equal(t, []Tier{None}, capabilitiesOf(info).Tiers())

	info.Enable(cpuid.AVX, cpuid.AVX2, cpuid.SSE4)
	require.Equal(t, []Tier{AVX2, AVX, SSE, None}, capabilitiesOf(info).Tiers())

	// SHA extensions on x86 come with SSE4.1.
	info.Enable(cpuid.SHA)
	require.True(t, capabilitiesOf(info).Has(SHA))

	// AVX-512 needs all the subsets the kernels use.
	info.Enable(cpuid.AVX512F)
	require.False(t, capabilitiesOf(info).Has(AVX512))
	info.Enable(cpuid.AVX512DQ, cpuid.AVX512BW, cpuid.AVX512VL)
	require.True(t, capabilitiesOf(info).Has(AVX512))
}

func TestCPUDetectorIsStable(t *testing.T) {
	t.Parallel()

	caps := CPUDetector{}.Detect()
	require.True(t, caps.Has(None))
	require.Equal(t, caps, CPUDetector{}.Detect())
}

func TestHardwareThreads(t *testing.T) {
	t.Parallel()
	require.GreaterOrEqual(t, HardwareThreads(), 1)
}

func TestCheckPlatform(t *testing.T) {
	t.Parallel()

	require.NoError(t, checkPlatform(64, "linux", "amd64"))
	require.NoError(t, checkPlatform(64, "windows", "amd64"))
	require.NoError(t, checkPlatform(64, "darwin", "arm64"))
	require.ErrorIs(t, checkPlatform(32, "linux", "386"), ErrUnsupportedPlatform)
	require.ErrorIs(t, checkPlatform(32, "windows", "arm"), ErrUnsupportedPlatform)
	require.ErrorIs(t, checkPlatform(64, "plan9", "amd64"), ErrUnsupportedPlatform)
}

func TestPlatformIsCached(t *testing.T) {
	t.Parallel()
	require.Equal(t, Platform(), Platform())
}
