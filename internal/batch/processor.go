// Package batch runs predictions over many images on one background worker.
//
// Cancellation is cooperative: the worker checks for it between files, so
// the worst-case latency of Cancel is one inference.
package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/boxlabel/internal/detection"
	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/logger"
	"github.com/tphakala/boxlabel/internal/predictor"
)

// ErrBusy is returned by Start while another batch is running.
var ErrBusy = errors.NewStd("batch already running")

// Predictor is the inference surface the processor drives.
type Predictor interface {
	PredictSingle(ctx context.Context, imagePath string, params predictor.Params) (*detection.Result, error)
}

// ResultWriter persists a successful result, typically as an annotation
// file next to the image.
type ResultWriter interface {
	WriteResult(result *detection.Result) error
}

// Recorder collects batch metrics.
type Recorder interface {
	RunStarted()
	RecordFile(err error, current, total int)
	RunFinished(cancelled bool, seconds float64)
}

// Request describes one batch. Paths wins over Dir when both are set.
type Request struct {
	Paths     []string
	Dir       string
	Recursive bool
	Params    predictor.Params
	Writer    ResultWriter
}

// EventKind tells events apart.
type EventKind int

// Event kinds
const (
	EventProgress EventKind = iota
	EventFileDone
	EventCancelled
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventFileDone:
		return "file_done"
	case EventCancelled:
		return "cancelled"
	case EventFinished:
		return "finished"
	}
	return "unknown"
}

// Event is emitted on the channel returned by Start. Progress and FileDone
// events arrive in input order; Finished is always last.
type Event struct {
	Kind    EventKind
	Current int // 1-based index of the file
	Total   int
	Path    string
	Result  *detection.Result
	Err     error
	Summary *Summary
}

// Summary is the outcome of a batch. Results and Errors are keyed by path;
// Order lists processed paths in input order.
type Summary struct {
	Total     int
	OK        int
	Failed    int
	Cancelled bool
	Elapsed   time.Duration
	Avg       time.Duration
	Order     []string
	Results   map[string]*detection.Result
	Errors    map[string]error
}

// Processor runs at most one batch at a time.
type Processor struct {
	predictor Predictor
	recorder  Recorder

	running   atomic.Bool
	cancelled atomic.Bool
	wg        sync.WaitGroup

	mu   sync.Mutex
	last *Summary
}

// Option configures a Processor.
type Option func(*Processor)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Processor) { p.recorder = r }
}

// NewProcessor returns an idle processor.
func NewProcessor(pred Predictor, opts ...Option) *Processor {
	p := &Processor{predictor: pred}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Busy reports whether a batch is running.
func (p *Processor) Busy() bool {
	return p.running.Load()
}

// Start enumerates the request and runs it on a new goroutine. The returned
// channel must be drained; it is closed after the Finished event, once the
// processor accepts a new Start.
func (p *Processor) Start(ctx context.Context, req Request) (<-chan Event, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, errors.New(ErrBusy).
			Component("batch").
			Category(errors.CategoryConflict).
			Build()
	}

	paths := req.Paths
	if len(paths) == 0 && req.Dir != "" {
		var err error
		paths, err = Enumerate(req.Dir, req.Recursive)
		if err != nil {
			p.running.Store(false)
			return nil, errors.New(err).
				Component("batch").
				Category(errors.CategoryFileIO).
				Context("operation", "enumerate_images").
				FileContext(req.Dir, 0).
				Build()
		}
	}

	p.cancelled.Store(false)
	events := make(chan Event, 16)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(events)
		defer p.running.Store(false)
		p.run(ctx, paths, req, events)
	}()
	return events, nil
}

// Cancel asks the running batch to stop before its next file.
func (p *Processor) Cancel() {
	if p.running.Load() {
		p.cancelled.Store(true)
		GetLogger().Info("Batch cancellation requested")
	}
}

// Wait blocks until the running batch, if any, has finished and returns the
// last summary.
func (p *Processor) Wait() *Summary {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *Processor) run(ctx context.Context, paths []string, req Request, events chan<- Event) {
	start := time.Now()
	log := GetLogger()
	total := len(paths)
	summary := &Summary{
		Total:   total,
		Results: make(map[string]*detection.Result, total),
		Errors:  make(map[string]error),
	}
	if p.recorder != nil {
		p.recorder.RunStarted()
	}
	progressLog := rate.Sometimes{First: 1, Interval: 2 * time.Second}
	log.Info("Batch started", logger.Int("files", total))

	for i, path := range paths {
		if p.cancelled.Load() || ctx.Err() != nil {
			summary.Cancelled = true
			events <- Event{Kind: EventCancelled, Current: i, Total: total}
			log.Info("Batch cancelled", logger.Int("processed", i), logger.Int("files", total))
			break
		}

		current := i + 1
		events <- Event{Kind: EventProgress, Current: current, Total: total, Path: path}
		progressLog.Do(func() {
			log.Info("Batch progress",
				logger.Int("current", current),
				logger.Int("total", total),
				logger.String("path", path))
		})

		result, err := p.predictor.PredictSingle(ctx, path, req.Params)
		if err == nil && req.Writer != nil {
			err = req.Writer.WriteResult(result)
		}

		summary.Order = append(summary.Order, path)
		if err != nil {
			summary.Failed++
			summary.Errors[path] = err
			log.Warn("Batch file failed", logger.String("path", path), logger.Error(err))
		} else {
			summary.OK++
			summary.Results[path] = result
		}
		if p.recorder != nil {
			p.recorder.RecordFile(err, current, total)
		}
		events <- Event{Kind: EventFileDone, Current: current, Total: total, Path: path, Result: result, Err: err}
	}

	summary.Elapsed = time.Since(start)
	if processed := summary.OK + summary.Failed; processed > 0 {
		summary.Avg = summary.Elapsed / time.Duration(processed)
	}
	if p.recorder != nil {
		p.recorder.RunFinished(summary.Cancelled, summary.Elapsed.Seconds())
	}

	p.mu.Lock()
	p.last = summary
	p.mu.Unlock()

	log.Info("Batch finished",
		logger.Int("ok", summary.OK),
		logger.Int("failed", summary.Failed),
		logger.Bool("cancelled", summary.Cancelled),
		logger.Duration("elapsed", summary.Elapsed))
	events <- Event{Kind: EventFinished, Total: total, Summary: summary}
}
