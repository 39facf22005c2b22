package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/boxlabel/internal/detection"
	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/predictor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

// fakePredictor fails for paths listed in fail. When gate is set every call
// blocks until it receives a value.
type fakePredictor struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
	gate  chan struct{}
}

func (f *fakePredictor) PredictSingle(ctx context.Context, path string, params predictor.Params) (*detection.Result, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()
	if f.fail[path] {
		return nil, fmt.Errorf("cannot read %s", path)
	}
	return &detection.Result{ImagePath: path, ConfThreshold: params.Conf, Timestamp: time.Now()}, nil
}

type recordingWriter struct {
	mu      sync.Mutex
	written []string
}

func (w *recordingWriter) WriteResult(r *detection.Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, r.ImagePath)
	return nil
}

type fakeRecorder struct {
	started, finished int
	files             int
	cancelled         bool
}

func (r *fakeRecorder) RunStarted() { r.started++ }
func (r *fakeRecorder) RecordFile(error, int, int) { r.files++ }
func (r *fakeRecorder) RunFinished(c bool, _ float64) {
	r.finished++
	r.cancelled = c
}

func drain(events <-chan Event) []Event {
	var all []Event
	for ev := range events {
		all = append(all, ev)
	}
	return all
}

func TestProcessorRunsInInputOrder(t *testing.T) {
	paths := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"}
	pred := &fakePredictor{fail: map[string]bool{"c.jpg": true}}
	writer := &recordingWriter{}
	rec := &fakeRecorder{}
	p := NewProcessor(pred, WithRecorder(rec))

	events, err := p.Start(context.Background(), Request{Paths: paths, Params: predictor.DefaultParams(), Writer: writer})
	require.NoError(t, err)
	all := drain(events)
	summary := p.Wait()

	var done []string
	for _, ev := range all {
		if ev.Kind == EventFileDone {
			done = append(done, ev.Path)
		}
	}
	assert.Equal(t, paths, done)

	last := all[len(all)-1]
	require.Equal(t, EventFinished, last.Kind)
	require.Same(t, summary, last.Summary)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 3, summary.OK)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.Cancelled)
	assert.Contains(t, summary.Errors, "c.jpg")
	assert.Len(t, summary.Results, 3)
	assert.Equal(t, paths, summary.Order)
	assert.Equal(t, []string{"a.jpg", "b.jpg", "d.jpg"}, writer.written)

	assert.Equal(t, 1, rec.started)
	assert.Equal(t, 4, rec.files)
	assert.Equal(t, 1, rec.finished)
	assert.False(t, p.Busy())
}

func TestProcessorProgressPrecedesFileDone(t *testing.T) {
	p := NewProcessor(&fakePredictor{})
	events, err := p.Start(context.Background(), Request{Paths: []string{"x.png", "y.png"}})
	require.NoError(t, err)

	var kinds []EventKind
	for ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	p.Wait()
	assert.Equal(t, []EventKind{EventProgress, EventFileDone, EventProgress, EventFileDone, EventFinished}, kinds)
}

func TestProcessorRestartsRightAfterDrain(t *testing.T) {
	p := NewProcessor(&fakePredictor{})
	for i := range 200 {
		events, err := p.Start(context.Background(), Request{Paths: []string{"a.jpg"}})
		require.NoError(t, err, "run %d", i)
		drain(events)
	}
	summary := p.Wait()
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.OK)
	assert.False(t, p.Busy())
}

func TestProcessorBusy(t *testing.T) {
	pred := &fakePredictor{gate: make(chan struct{})}
	p := NewProcessor(pred)

	events, err := p.Start(context.Background(), Request{Paths: []string{"a.jpg"}})
	require.NoError(t, err)
	assert.True(t, p.Busy())

	_, err = p.Start(context.Background(), Request{Paths: []string{"b.jpg"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBusy))
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	close(pred.gate)
	drain(events)
	p.Wait()
	assert.False(t, p.Busy())

	events, err = p.Start(context.Background(), Request{Paths: []string{"b.jpg"}})
	require.NoError(t, err)
	drain(events)
	p.Wait()
}

func TestProcessorCancel(t *testing.T) {
	paths := make([]string, 20)
	for i := range paths {
		paths[i] = fmt.Sprintf("img%02d.jpg", i)
	}
	pred := &fakePredictor{gate: make(chan struct{})}
	rec := &fakeRecorder{}
	p := NewProcessor(pred, WithRecorder(rec))

	events, err := p.Start(context.Background(), Request{Paths: paths})
	require.NoError(t, err)

	const k = 3
	var all []Event
	released := 0
	for ev := range events {
		all = append(all, ev)
		if ev.Kind != EventProgress {
			continue
		}
		if released == k {
			p.Cancel()
		}
		pred.gate <- struct{}{}
		released++
	}
	summary := p.Wait()

	require.NotNil(t, summary)
	assert.True(t, summary.Cancelled)
	assert.LessOrEqual(t, summary.OK+summary.Failed, k+1)
	assert.Less(t, summary.OK+summary.Failed, len(paths))
	assert.True(t, rec.cancelled)

	var sawCancelled bool
	for _, ev := range all {
		if ev.Kind == EventCancelled {
			sawCancelled = true
		}
	}
	assert.True(t, sawCancelled)
	assert.Equal(t, EventFinished, all[len(all)-1].Kind)
}

func TestProcessorContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewProcessor(&fakePredictor{})
	events, err := p.Start(ctx, Request{Paths: []string{"a.jpg", "b.jpg"}})
	require.NoError(t, err)
	drain(events)
	summary := p.Wait()

	assert.True(t, summary.Cancelled)
	assert.Zero(t, summary.OK+summary.Failed)
}

func TestProcessorEnumeratesDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.png", "notes.txt", "c.xml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "d.jpeg"), []byte("x"), 0o644))

	flat, err := Enumerate(dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.jpg")}, flat)

	deep, err := Enumerate(dir, true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.jpg"),
		filepath.Join(sub, "d.jpeg"),
	}, deep)

	pred := &fakePredictor{}
	p := NewProcessor(pred)
	events, err := p.Start(context.Background(), Request{Dir: dir})
	require.NoError(t, err)
	drain(events)
	summary := p.Wait()
	assert.Equal(t, 2, summary.OK)
}

func TestProcessorMissingDirectory(t *testing.T) {
	p := NewProcessor(&fakePredictor{})
	_, err := p.Start(context.Background(), Request{Dir: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
	assert.False(t, p.Busy())
}
