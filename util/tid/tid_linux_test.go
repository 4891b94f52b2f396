//go:build linux
// +build linux

package tid

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGettidIsStableWhileLocked(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	id := Gettid()
	require.Positive(t, id)
	runtime.Gosched()
	require.Equal(t, id, Gettid())
}
