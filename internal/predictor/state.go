package predictor

// State is the device state of the predictor.
type State string

// Device states. The two failure states are sticky for the life of the
// Predictor: later loads go straight to the CPU.
const (
	StateUnloaded      State = "unloaded"
	StateAcceleratedOK State = "accelerated-ok"
	StateCPU           State = "cpu"
	StateProbeFailed   State = "probe-failed/cpu-sticky"
	StateRuntimeFailed State = "runtime-failed/cpu-sticky"
)

// Sticky reports whether the state pins inference to the CPU.
func (s State) Sticky() bool {
	return s == StateProbeFailed || s == StateRuntimeFailed
}
