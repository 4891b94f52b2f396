//go:build !linux
// +build !linux

package tid

// Gettid returns 0 where thread ids are not exposed.
func Gettid() int {
	return 0
}
