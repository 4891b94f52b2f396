package accel

import (
	"errors"
	"fmt"
	"math/bits"
	"runtime"
	"sync"

	"golang.org/x/exp/slices"
)

var ErrUnsupportedPlatform = errors.New("unsupported platform")

var supportedOS = []string{"darwin", "freebsd", "linux", "windows"}

var (
	platformOnce sync.Once
	platformErr  error
)

// Platform reports whether this process can run the search engine at all.
// The check runs once and its result is returned to every later caller.
func Platform() error {
	platformOnce.Do(func() {
		platformErr = checkPlatform(bits.UintSize, runtime.GOOS, runtime.GOARCH)
	})
	return platformErr
}

func checkPlatform(wordSize int, goos, goarch string) error {
	if wordSize != 64 {
		return fmt.Errorf("%w: %s/%s is a %d-bit host, 64-bit required", ErrUnsupportedPlatform, goos, goarch, wordSize)
	}
	if !slices.Contains(supportedOS, goos) {
		return fmt.Errorf("%w: operating system %q", ErrUnsupportedPlatform, goos)
	}
	return nil
}
