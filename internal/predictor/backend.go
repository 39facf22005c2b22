package predictor

// Devices a backend can run on. The accelerated device is the XNNPACK
// delegate in production.
const (
	DeviceAccelerated = "accelerated"
	DeviceCPU         = "cpu"
	DeviceAuto        = "auto"
)

// Output is a raw model output tensor.
type Output struct {
	Data []float32
	Dims []int
}

// Backend runs a loaded detection model. Implementations need not be safe for
// concurrent use; the Predictor serializes calls.
type Backend interface {
	// Device returns the device the backend was created for.
	Device() string
	// InputSize returns the model input width and height in pixels.
	InputSize() (width, height int)
	// Infer runs the model on an NHWC float32 RGB tensor scaled to [0,1].
	Infer(input []float32) (Output, error)
	// Probe runs a trivial inference and a tiny suppression pass to prove the
	// device works.
	Probe() error
	// Close releases the model and its device memory.
	Close() error
}

// Loader creates backends for a model file.
type Loader interface {
	Load(modelPath, device string, threads int) (Backend, error)
}
