//go:build windows

package windowing

// NewSystem returns the native windowing substrate.
func NewSystem() System {
	return NewNative()
}
