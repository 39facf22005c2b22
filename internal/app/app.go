// Package app wires configuration to the stores and services the commands
// use. Every service is created on first use so a command only opens the
// files it needs.
package app

import (
	"path/filepath"
	"sync"

	"github.com/tphakala/boxlabel/internal/classes"
	"github.com/tphakala/boxlabel/internal/conf"
	"github.com/tphakala/boxlabel/internal/confidence"
	"github.com/tphakala/boxlabel/internal/format"
	"github.com/tphakala/boxlabel/internal/history"
	"github.com/tphakala/boxlabel/internal/logger"
	"github.com/tphakala/boxlabel/internal/observability"
	"github.com/tphakala/boxlabel/internal/predefined"
	"github.com/tphakala/boxlabel/internal/predictor"
	"github.com/tphakala/boxlabel/internal/predictor/tflite"
	"github.com/tphakala/boxlabel/internal/settings"
	"github.com/tphakala/boxlabel/internal/training"
	"github.com/tphakala/boxlabel/internal/workspace"
)

// App holds the lazily opened services of one CLI run.
type App struct {
	Settings *conf.Settings

	mu          sync.Mutex
	registry    *classes.Registry
	history     *history.Store
	preferences *training.Store
	userStore   *settings.Store
	labels      *predefined.Store
	metrics     *observability.Metrics
	predictor   *predictor.Predictor
}

// New returns an App for settings.
func New(s *conf.Settings) *App {
	return &App{Settings: s}
}

// Registry opens the class registry.
func (a *App) Registry() (*classes.Registry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.registry == nil {
		reg, err := classes.Load(a.Settings.ClassRegistryPath())
		if err != nil {
			return nil, err
		}
		a.registry = reg
	}
	return a.registry, nil
}

// History opens the training history.
func (a *App) History() (*history.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.history == nil {
		h, err := history.Open(a.Settings.TrainingHistoryPath())
		if err != nil {
			return nil, err
		}
		a.history = h
	}
	return a.history, nil
}

// Preferences opens the training preferences.
func (a *App) Preferences() (*training.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.preferences == nil {
		p, err := training.Open(a.Settings.TrainingPreferencesPath())
		if err != nil {
			return nil, err
		}
		a.preferences = p
	}
	return a.preferences, nil
}

// UserSettings opens the per-user settings store.
func (a *App) UserSettings() (*settings.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.userStore == nil {
		dir, err := conf.UserDataDir()
		if err != nil {
			return nil, err
		}
		s, err := settings.Open(filepath.Join(dir, settings.FileName))
		if err != nil {
			return nil, err
		}
		a.userStore = s
	}
	return a.userStore, nil
}

// PredefinedLabels opens the predefined label list.
func (a *App) PredefinedLabels() (*predefined.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.labels == nil {
		dir, err := conf.UserDataDir()
		if err != nil {
			return nil, err
		}
		s, err := predefined.Open(filepath.Join(dir, predefined.FileName))
		if err != nil {
			return nil, err
		}
		a.labels = s
	}
	return a.labels, nil
}

// Metrics returns the metrics registry.
func (a *App) Metrics() (*observability.Metrics, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.metrics == nil {
		m, err := observability.NewMetrics()
		if err != nil {
			return nil, err
		}
		a.metrics = m
	}
	return a.metrics, nil
}

// LabelFile returns a facade saving in the configured format, resolving
// YOLO class ids through the registry.
func (a *App) LabelFile() (*format.LabelFile, error) {
	reg, err := a.Registry()
	if err != nil {
		return nil, err
	}
	return format.NewLabelFile(a.Settings.Annotation.Format, reg, a.Settings.Annotation.AutoInsertClasses)
}

// Filter returns the confidence filter and clean-up parameters from the
// predictor settings.
func (a *App) Filter() (confidence.Filter, confidence.Params) {
	p := a.Settings.Predictor
	return confidence.Filter{Threshold: p.Conf, PerClass: p.PerClass},
		confidence.Params{IOU: p.IOU, MinBoxSize: p.MinBoxSize, MaxOverlap: p.MaxOverlap}
}

// Workspace returns a workspace using the configured save directory,
// filter, predefined labels and delete policy.
func (a *App) Workspace() (*workspace.Workspace, error) {
	reg, err := a.Registry()
	if err != nil {
		return nil, err
	}
	lf, err := a.LabelFile()
	if err != nil {
		return nil, err
	}
	labels, err := a.PredefinedLabels()
	if err != nil {
		return nil, err
	}
	store, err := a.UserSettings()
	if err != nil {
		return nil, err
	}
	filter, params := a.Filter()
	return workspace.New(lf,
		workspace.WithSaveDir(a.Settings.Annotation.SaveDir),
		workspace.WithClassRegistry(reg),
		workspace.WithPredefinedLabels(labels),
		workspace.WithDeletePolicy(settings.NewDeletePolicy(store)),
		workspace.WithFilter(filter, params),
	), nil
}

// Predictor loads the configured model on first use. observers only take
// effect on that first call.
func (a *App) Predictor(observers ...predictor.Observer) (*predictor.Predictor, error) {
	m, err := a.Metrics()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.predictor != nil {
		return a.predictor, nil
	}

	ps := a.Settings.Predictor
	opts := []predictor.Option{
		predictor.WithDevice(ps.Device),
		predictor.WithThreads(ps.Threads),
		predictor.WithLabelPath(ps.LabelPath),
		predictor.WithRecorder(m.Predictor),
	}
	for _, o := range observers {
		opts = append(opts, predictor.WithObserver(o))
	}
	p := predictor.New(tflite.Loader{}, opts...)
	if err := p.Load(ps.ModelPath); err != nil {
		return nil, err
	}
	a.predictor = p
	return p, nil
}

// PredictParams returns the inference parameters from the settings.
func (a *App) PredictParams() predictor.Params {
	ps := a.Settings.Predictor
	return predictor.Params{Conf: ps.Conf, IOU: ps.IOU, MaxDet: ps.MaxDet}
}

// Close releases the model, saves class ids assigned during the run and
// exports metrics.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.predictor != nil {
		a.predictor.Unload()
	}
	if a.registry != nil && a.registry.Dirty() {
		if err := a.registry.Save(); err != nil {
			GetLogger().Warn("Failed to save class registry", logger.Error(err))
			return err
		}
	}
	if a.metrics != nil {
		if err := a.metrics.WriteTextfile(a.Settings.Metrics.File); err != nil {
			GetLogger().Warn("Failed to export metrics", logger.Error(err))
			return err
		}
	}
	return nil
}
