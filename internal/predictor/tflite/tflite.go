// Package tflite is the TensorFlow Lite inference backend. The accelerated
// device runs through the XNNPACK delegate; the CPU device uses the plain
// interpreter with a thread pool.
package tflite

import (
	"fmt"
	"os"
	"time"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/tphakala/boxlabel/internal/confidence"
	"github.com/tphakala/boxlabel/internal/detection"
	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/logger"
	"github.com/tphakala/boxlabel/internal/predictor"
	"github.com/tphakala/boxlabel/internal/shape"
)

// Loader creates TensorFlow Lite backends.
type Loader struct{}

// Backend is one loaded interpreter.
type Backend struct {
	device      string
	model       *tflite.Model
	interpreter *tflite.Interpreter
	width       int
	height      int
}

var _ predictor.Loader = Loader{}

func getLogger() logger.Logger {
	return logger.Global().Module("tflite")
}

// Load implements predictor.Loader.
func (Loader) Load(modelPath, device string, threads int) (predictor.Backend, error) {
	start := time.Now()
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, err
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, errors.New(fmt.Errorf("cannot load TensorFlow Lite model")).
			Component("predictor").
			Category(errors.CategoryModelInit).
			ModelContext(modelPath, device).
			Context("model_size_mb", len(data)/1024/1024).
			Build()
	}

	options := tflite.NewInterpreterOptions()
	options.SetErrorReporter(func(msg string, _ any) {
		getLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	if device == predictor.DeviceAccelerated {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // thread count bounded by CPU count
		if delegate == nil {
			model.Delete()
			return nil, errors.New(fmt.Errorf("%w: xnnpack delegate not available", predictor.ErrBackendUnavailable)).
				Component("predictor").
				Category(errors.CategoryBackend).
				ModelContext(modelPath, device).
				Build()
		}
		options.AddDelegate(delegate)
		options.SetNumThread(1)
	} else {
		options.SetNumThread(max(1, threads))
	}

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, fmt.Errorf("cannot create interpreter on %s", device)
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, fmt.Errorf("tensor allocation failed on %s: %v", device, status)
	}

	input := interpreter.GetInputTensor(0)
	if input == nil || input.NumDims() != 4 {
		interpreter.Delete()
		model.Delete()
		return nil, fmt.Errorf("model input must be an NHWC image tensor")
	}

	b := &Backend{
		device:      device,
		model:       model,
		interpreter: interpreter,
		height:      input.Dim(1),
		width:       input.Dim(2),
	}
	getLogger().Info("TFLite interpreter ready",
		logger.String("device", device),
		logger.Int("input_width", b.width),
		logger.Int("input_height", b.height),
		logger.Int("threads", threads),
		logger.Duration("elapsed", time.Since(start)))
	return b, nil
}

// Device implements predictor.Backend.
func (b *Backend) Device() string { return b.device }

// InputSize implements predictor.Backend.
func (b *Backend) InputSize() (width, height int) { return b.width, b.height }

// Infer implements predictor.Backend.
func (b *Backend) Infer(input []float32) (predictor.Output, error) {
	tensor := b.interpreter.GetInputTensor(0)
	if tensor == nil {
		return predictor.Output{}, fmt.Errorf("cannot get input tensor")
	}
	copy(tensor.Float32s(), input)

	if status := b.interpreter.Invoke(); status != tflite.OK {
		err := fmt.Errorf("tensor invoke failed: %v", status)
		if b.device == predictor.DeviceAccelerated {
			err = fmt.Errorf("%w: %w", predictor.ErrBackendUnavailable, err)
		}
		return predictor.Output{}, err
	}

	out := b.interpreter.GetOutputTensor(0)
	if out == nil {
		return predictor.Output{}, fmt.Errorf("cannot get output tensor")
	}
	dims := make([]int, out.NumDims())
	for i := range dims {
		dims[i] = out.Dim(i)
	}
	data := make([]float32, len(out.Float32s()))
	copy(data, out.Float32s())
	return predictor.Output{Data: data, Dims: dims}, nil
}

// Probe implements predictor.Backend with a blank-image inference and a
// two-box suppression pass.
func (b *Backend) Probe() error {
	out, err := b.Infer(make([]float32, b.width*b.height*3))
	if err != nil {
		return err
	}
	if len(out.Data) == 0 {
		return fmt.Errorf("%w: empty output on %s", predictor.ErrBackendUnavailable, b.device)
	}

	probe := []detection.Detection{
		{Box: shape.Rect{XMax: 10, YMax: 10}, Confidence: 0.9},
		{Box: shape.Rect{XMin: 1, YMin: 1, XMax: 10, YMax: 10}, Confidence: 0.8},
	}
	if kept := confidence.NMS(probe, 0.5); len(kept) != 1 {
		return fmt.Errorf("%w: nms probe kept %d boxes", predictor.ErrBackendUnavailable, len(kept))
	}
	return nil
}

// Close implements predictor.Backend.
func (b *Backend) Close() error {
	if b.interpreter != nil {
		b.interpreter.Delete()
		b.interpreter = nil
	}
	if b.model != nil {
		b.model.Delete()
		b.model = nil
	}
	return nil
}
