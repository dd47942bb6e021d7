//go:build !windows

package windowing

// NewSystem returns the simulated windowing substrate. Off Windows there is
// no native surface to adopt; the simulator keeps the rest of the host fully
// exercisable.
func NewSystem() System {
	return NewSim()
}
