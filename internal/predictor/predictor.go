// Package predictor wraps an object-detection model behind a small API with
// an automatic fallback from the accelerated device to the CPU.
//
// The fallback is a state machine. A failed load-time probe moves the
// predictor to probe-failed, a backend error during inference moves it to
// runtime-failed and retries that one image on the CPU. Both states are
// sticky: the accelerated device is not tried again until a new Predictor is
// created.
package predictor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/tphakala/boxlabel/internal/cpuspec"
	"github.com/tphakala/boxlabel/internal/detection"
	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/logger"
)

// Params are the per-call inference parameters.
type Params struct {
	Conf   float64
	IOU    float64
	MaxDet int
}

// DefaultParams mirrors the usual YOLO inference defaults.
func DefaultParams() Params {
	return Params{Conf: 0.25, IOU: 0.45, MaxDet: 300}
}

// Status is a snapshot for diagnostics and UIs.
type Status struct {
	Loaded    bool
	Model     string
	ModelPath string
	Device    string
	State     State
	Labels    int
	Threads   int
}

// Predictor runs single and batch inference. It is safe for concurrent use;
// inference calls are serialized.
type Predictor struct {
	mu sync.Mutex

	loader      Loader
	preference  string
	threads     int
	labelPath   string
	accelerated func() bool
	observers   []Observer
	recorder    Recorder
	now         func() time.Time

	backend   Backend
	modelPath string
	modelName string
	labels    []string
	state     State
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithDevice sets the device preference: DeviceAuto or DeviceCPU.
func WithDevice(device string) Option {
	return func(p *Predictor) { p.preference = device }
}

// WithThreads sets the CPU thread count; zero picks one from the host CPU.
func WithThreads(n int) Option {
	return func(p *Predictor) { p.threads = n }
}

// WithLabelPath sets an explicit label table instead of searching next to
// the model.
func WithLabelPath(path string) Option {
	return func(p *Predictor) { p.labelPath = path }
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(p *Predictor) { p.observers = append(p.observers, o) }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Predictor) { p.recorder = r }
}

// WithAcceleratorCheck overrides host accelerator detection.
func WithAcceleratorCheck(check func() bool) Option {
	return func(p *Predictor) { p.accelerated = check }
}

// New returns an unloaded Predictor.
func New(loader Loader, opts ...Option) *Predictor {
	p := &Predictor{
		loader:      loader,
		preference:  DeviceAuto,
		accelerated: hostAccelerated,
		now:         time.Now,
		state:       StateUnloaded,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func hostAccelerated() bool {
	return cpuspec.GetCPUSpec().AcceleratorAvailable()
}

// Load loads the model at path, replacing any loaded model. The accelerated
// device is tried first unless the preference, the host or a sticky fallback
// rules it out.
func (p *Predictor) Load(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.now()
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return p.fail(errors.New(fmt.Errorf("%w: %s", ErrModelMissing, path)).
			Component("predictor").
			Category(errors.CategoryModelLoad).
			ModelContext(path, p.preference).
			Build(), "model_missing")
	}

	labels, err := p.loadLabels(path)
	if err != nil {
		return p.fail(errors.New(err).
			Component("predictor").
			Category(errors.CategoryLabelLoad).
			ModelContext(path, p.preference).
			Build(), "labels")
	}

	p.closeBackendLocked()
	threads := cpuspec.GetCPUSpec().OptimalThreads(p.threads)
	state := StateCPU
	var backend Backend

	if p.preference != DeviceCPU && !p.state.Sticky() && p.accelerated() {
		b, err := p.loader.Load(path, DeviceAccelerated, threads)
		switch {
		case err == nil:
			if perr := b.Probe(); perr != nil {
				_ = b.Close()
				p.noteFallbackLocked(StateProbeFailed, perr)
			} else {
				backend, state = b, StateAcceleratedOK
			}
		case IsBackendUnavailable(err):
			p.noteFallbackLocked(StateProbeFailed, err)
		default:
			return p.fail(loadFailed(path, DeviceAccelerated, err, p.now().Sub(start)), "model_load")
		}
	}
	if p.state.Sticky() {
		state = p.state
	}

	if backend == nil {
		b, err := p.loader.Load(path, DeviceCPU, threads)
		if err != nil {
			return p.fail(loadFailed(path, DeviceCPU, err, p.now().Sub(start)), "model_load")
		}
		backend = b
	}

	p.backend = backend
	p.modelPath = path
	p.modelName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	p.labels = labels
	p.state = state
	p.threads = threads

	GetLogger().Info("Model loaded",
		logger.String("model", p.modelName),
		logger.String("device", backend.Device()),
		logger.String("state", string(state)),
		logger.Int("labels", len(labels)),
		logger.Int("threads", threads),
		logger.Duration("elapsed", p.now().Sub(start)))
	for _, o := range p.observers {
		o.ModelLoaded(p.modelName)
	}
	return nil
}

func loadFailed(path, device string, err error, elapsed time.Duration) error {
	return errors.New(fmt.Errorf("%w: %w", ErrModelLoadFailed, err)).
		Component("predictor").
		Category(errors.CategoryModelLoad).
		ModelContext(path, device).
		Timing("model-load", elapsed).
		Build()
}

func (p *Predictor) loadLabels(modelPath string) ([]string, error) {
	path := p.labelPath
	if path == "" {
		path = findLabelFile(modelPath)
	}
	if path == "" {
		GetLogger().Warn("No label table found, classes will be numbered",
			logger.String("model", modelPath))
		return nil, nil
	}
	return LoadLabels(path)
}

// noteFallbackLocked moves to a sticky CPU state and emits the diagnostic.
func (p *Predictor) noteFallbackLocked(state State, cause error) {
	p.state = state
	sys := CollectSystemInfo()
	fields := append([]logger.Field{
		logger.String("state", string(state)),
		logger.Error(cause),
	}, sys.fields()...)
	GetLogger().Warn("Accelerated inference unavailable, using CPU for this session", fields...)

	if p.recorder != nil {
		p.recorder.RecordFallback(string(state))
	}
	status := p.statusLocked()
	status.Device = DeviceCPU
	for _, o := range p.observers {
		o.DeviceFallback(status, cause)
	}
}

func (p *Predictor) closeBackendLocked() {
	if p.backend == nil {
		return
	}
	if err := p.backend.Close(); err != nil {
		GetLogger().Warn("Failed to release model", logger.Error(err))
	}
	p.backend = nil
}

func (p *Predictor) fail(err error, kind string) error {
	if p.recorder != nil {
		p.recorder.RecordError(kind)
	}
	for _, o := range p.observers {
		o.Error(err)
	}
	return err
}

// PredictSingle runs the model on one image. A backend error on the
// accelerated device switches to the CPU and retries once.
func (p *Predictor) PredictSingle(ctx context.Context, imagePath string, params Params) (*detection.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.backend == nil {
		return nil, p.fail(errors.New(ErrNotLoaded).
			Component("predictor").
			Category(errors.CategoryState).
			Build(), "not_loaded")
	}

	img, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, p.fail(errors.New(fmt.Errorf("%w: %w", ErrImageUnreadable, err)).
			Component("predictor").
			Category(errors.CategoryImage).
			FileContext(imagePath, 0).
			Build(), "image")
	}

	start := p.now()
	inW, inH := p.backend.InputSize()
	input, lb := preprocess(img, inW, inH)

	out, err := p.backend.Infer(input)
	if err != nil && IsBackendUnavailable(err) && p.backend.Device() == DeviceAccelerated {
		if rerr := p.switchToCPULocked(StateRuntimeFailed, err); rerr != nil {
			return nil, p.fail(rerr, "fallback")
		}
		out, err = p.backend.Infer(input)
	}
	if err != nil {
		return nil, p.fail(inferenceFailed(imagePath, p.backend.Device(), err), "inference")
	}

	cands, err := decodeYOLO(out, len(p.labels), inW, inH, params.Conf)
	if err != nil {
		return nil, p.fail(inferenceFailed(imagePath, p.backend.Device(), err), "decode")
	}
	bounds := img.Bounds()
	dets := toDetections(cands, p.labels, lb, bounds.Dx(), bounds.Dy(), params.IOU, params.MaxDet)

	elapsed := p.now().Sub(start)
	result := &detection.Result{
		ImagePath:     imagePath,
		Detections:    dets,
		InferenceTime: elapsed,
		Timestamp:     p.now(),
		Model: detection.ModelInfo{
			Name:   p.modelName,
			Path:   p.modelPath,
			Device: p.backend.Device(),
		},
		ConfThreshold: params.Conf,
	}

	if p.recorder != nil {
		p.recorder.RecordInference(result.Model.Device, elapsed.Seconds(), len(dets))
	}
	GetLogger().Debug("Prediction completed",
		logger.String("image", imagePath),
		logger.Int("detections", len(dets)),
		logger.String("device", result.Model.Device),
		logger.Duration("elapsed", elapsed))
	for _, o := range p.observers {
		o.PredictionCompleted(result)
	}
	return result, nil
}

func inferenceFailed(imagePath, device string, err error) error {
	return errors.New(fmt.Errorf("%w: %w", ErrInferenceFailed, err)).
		Component("predictor").
		Category(errors.CategoryInference).
		FileContext(imagePath, 0).
		Context("device", device).
		Build()
}

// switchToCPULocked replaces the accelerated backend with a CPU one.
func (p *Predictor) switchToCPULocked(state State, cause error) error {
	p.closeBackendLocked()
	p.noteFallbackLocked(state, cause)
	b, err := p.loader.Load(p.modelPath, DeviceCPU, p.threads)
	if err != nil {
		p.state = StateUnloaded
		return loadFailed(p.modelPath, DeviceCPU, err, 0)
	}
	p.backend = b
	return nil
}

// PredictBatch runs PredictSingle over paths. Failed images are left out of
// the map and reported through the joined error. Cancellation stops between
// images.
func (p *Predictor) PredictBatch(ctx context.Context, paths []string, params Params) (map[string]*detection.Result, error) {
	results := make(map[string]*detection.Result, len(paths))
	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		r, err := p.PredictSingle(ctx, path, params)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results[path] = r
	}
	return results, errors.Join(errs...)
}

// IsLoaded reports whether a model is ready.
func (p *Predictor) IsLoaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backend != nil
}

// Unload releases the model. A sticky fallback state survives unloading.
func (p *Predictor) Unload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeBackendLocked()
	p.labels = nil
	if !p.state.Sticky() {
		p.state = StateUnloaded
	}
	GetLogger().Info("Model unloaded", logger.String("model", p.modelName))
}

// ForceCPU pins inference to the CPU, reloading a model that runs on the
// accelerated device.
func (p *Predictor) ForceCPU() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.preference = DeviceCPU
	if p.backend == nil || p.backend.Device() == DeviceCPU {
		return nil
	}
	p.closeBackendLocked()
	b, err := p.loader.Load(p.modelPath, DeviceCPU, p.threads)
	if err != nil {
		p.state = StateUnloaded
		return p.fail(loadFailed(p.modelPath, DeviceCPU, err, 0), "model_load")
	}
	p.backend = b
	p.state = StateCPU
	GetLogger().Info("Inference pinned to CPU", logger.String("model", p.modelName))
	return nil
}

// Device returns the device of the loaded model, or "" when unloaded.
func (p *Predictor) Device() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backend == nil {
		return ""
	}
	return p.backend.Device()
}

// State returns the device state.
func (p *Predictor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Labels returns a copy of the model's label table.
func (p *Predictor) Labels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.labels...)
}

// Status returns a diagnostic snapshot.
func (p *Predictor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

func (p *Predictor) statusLocked() Status {
	s := Status{
		Loaded:    p.backend != nil,
		Model:     p.modelName,
		ModelPath: p.modelPath,
		State:     p.state,
		Labels:    len(p.labels),
		Threads:   p.threads,
	}
	if p.backend != nil {
		s.Device = p.backend.Device()
	}
	return s
}
