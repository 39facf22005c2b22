// Package dataset converts a directory of VOC-annotated images into a
// YOLO-layout training dataset with a deterministic train/val split.
package dataset

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/boxlabel/internal/classes"
	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/format"
	"github.com/tphakala/boxlabel/internal/fsutil"
	"github.com/tphakala/boxlabel/internal/history"
	"github.com/tphakala/boxlabel/internal/logger"
)

const (
	splitTrain = "train"
	splitVal   = "val"
)

var (
	// ErrIntegrityMismatch is returned when the written dataset does not add
	// up to the discovered pairs.
	ErrIntegrityMismatch = errors.NewStd("dataset integrity mismatch")
	// ErrInvalidOptions is returned for unusable build options.
	ErrInvalidOptions = errors.NewStd("invalid dataset options")
)

// Options controls one dataset build.
type Options struct {
	SourceDir         string
	TargetDir         string
	Name              string
	TrainRatio        float64
	Seed              int64
	UseClassRegistry  bool
	CleanExisting     bool
	BackupExisting    bool
	ExcludeTrained    bool
	AutoInsertClasses bool
}

// Skipped records a pair left out of the dataset.
type Skipped struct {
	Stem   string
	Reason string
}

// Report summarizes a finished build.
type Report struct {
	Root         string
	DataYAML     string
	BackupDir    string
	Pairs        int
	Excluded     int
	Train        int
	Val          int
	Skipped      []Skipped
	Unknown      []string
	Classes      []string
	ClassCounts  map[string]int
	DroppedBoxes int
	Elapsed      time.Duration
}

// Registry is the class registry surface the builder needs.
type Registry interface {
	format.ClassResolver
	Names() []string
	Len() int
	AddAll(names []string, source string) error
	IncrementUsage(name string, n int)
	Save() error
}

// TrainedFilter removes already trained images from a path list.
type TrainedFilter interface {
	FilterUntrained(paths []string) []string
}

// Builder builds datasets against one class registry and training history.
type Builder struct {
	registry Registry
	history  TrainedFilter
	now      func() time.Time
}

// NewBuilder returns a Builder. Either argument may be nil when the
// corresponding options are not used.
func NewBuilder(registry Registry, hist TrainedFilter) *Builder {
	return &Builder{registry: registry, history: hist, now: time.Now}
}

type job struct {
	pair  *Pair
	split string
	lines []string
}

func (o *Options) validate() error {
	var problems []string
	if o.SourceDir == "" {
		problems = append(problems, "source directory is required")
	}
	if o.TargetDir == "" {
		problems = append(problems, "target directory is required")
	}
	if o.Name == "" || strings.ContainsAny(o.Name, `/\`) {
		problems = append(problems, "dataset name must be a plain directory name")
	}
	if o.TrainRatio <= 0 || o.TrainRatio >= 1 {
		problems = append(problems, fmt.Sprintf("train ratio %.3f must be in (0,1)", o.TrainRatio))
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New(fmt.Errorf("%w: %s", ErrInvalidOptions, strings.Join(problems, "; "))).
		Component("dataset").
		Category(errors.CategoryValidation).
		Build()
}

// Build runs discovery, optional backup and clean, class resolution, the
// seeded split, emission, index files and the integrity check. Per-pair
// failures are recorded in the report and do not abort the build.
func (b *Builder) Build(ctx context.Context, opts Options) (*Report, error) {
	start := b.now()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.UseClassRegistry && b.registry == nil {
		return nil, errors.Newf("%w: class registry requested but not configured", ErrInvalidOptions).
			Component("dataset").
			Category(errors.CategoryConfiguration).
			Build()
	}

	root, err := filepath.Abs(filepath.Join(opts.TargetDir, opts.Name))
	if err != nil {
		return nil, err
	}
	report := &Report{
		Root:        root,
		DataYAML:    filepath.Join(root, DataYAMLName),
		ClassCounts: make(map[string]int),
	}
	log := GetLogger().With(logger.String("dataset", opts.Name))

	pairs, err := Discover(opts.SourceDir)
	if err != nil {
		return nil, errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			Context("operation", "discover_pairs").
			FileContext(opts.SourceDir, 0).
			Build()
	}

	if opts.ExcludeTrained {
		staged, cleanup, excluded, err := b.stageUntrained(pairs)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := cleanup(); err != nil {
				log.Warn("Failed to remove staging directory", logger.Error(err))
			}
		}()
		pairs = staged
		report.Excluded = excluded
	}
	report.Pairs = len(pairs)
	log.Info("Discovered annotation pairs",
		logger.Int("pairs", len(pairs)),
		logger.Int("excluded", report.Excluded))

	if err := b.prepareTarget(root, opts, report); err != nil {
		return nil, err
	}

	b.parsePairs(pairs, report)

	resolver, err := b.resolveClasses(pairs, opts)
	if err != nil {
		return nil, err
	}

	order := shuffle(len(pairs), opts.Seed)
	nTrain := int(float64(len(pairs)) * opts.TrainRatio)

	jobs := make([]job, 0, len(pairs))
	codec := format.YOLOCodec{Classes: resolver, AutoInsert: opts.AutoInsertClasses}
	unknown := make(map[string]struct{})
	for rank, idx := range order {
		p := &pairs[idx]
		if p.annotation == nil {
			continue
		}
		split := splitVal
		if rank < nTrain {
			split = splitTrain
		}

		ann := p.annotation
		report.DroppedBoxes += ann.Dropped
		kept := ann.Shapes[:0]
		for _, s := range ann.Shapes {
			if !s.ClipTo(float64(ann.Width), float64(ann.Height)) {
				report.DroppedBoxes++
				continue
			}
			kept = append(kept, s)
		}
		ann.Shapes = kept

		lines, skippedLabels, err := codec.Encode(ann)
		if err != nil {
			report.skip(p.Stem, err.Error())
			continue
		}
		for _, l := range skippedLabels {
			unknown[l] = struct{}{}
		}
		for _, s := range ann.Shapes {
			if !slices.Contains(skippedLabels, s.Label) {
				report.ClassCounts[s.Label]++
			}
		}
		jobs = append(jobs, job{pair: p, split: split, lines: lines})
	}
	for l := range unknown {
		report.Unknown = append(report.Unknown, l)
	}
	sort.Strings(report.Unknown)

	if err := b.emit(ctx, root, jobs, report); err != nil {
		return nil, err
	}

	report.Classes = resolver.Names()
	if err := format.WriteClassesFile(filepath.Join(root, format.ClassesFileName), report.Classes); err != nil {
		return nil, err
	}
	if err := writeDataYAML(report.DataYAML, root, report.Classes); err != nil {
		return nil, errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			Context("operation", "write_data_yaml").
			Build()
	}

	if opts.UseClassRegistry {
		for name, n := range report.ClassCounts {
			b.registry.IncrementUsage(name, n)
		}
		if err := b.registry.Save(); err != nil {
			return nil, err
		}
	}

	if err := verify(root, report); err != nil {
		return report, err
	}

	report.Elapsed = b.now().Sub(start)
	for _, name := range report.Classes {
		log.Debug("Class object count",
			logger.String("class", name),
			logger.Int("objects", report.ClassCounts[name]))
	}
	log.Info("Dataset built",
		logger.String("root", root),
		logger.Int("train", report.Train),
		logger.Int("val", report.Val),
		logger.Int("skipped", len(report.Skipped)),
		logger.Int("unknown_classes", len(report.Unknown)),
		logger.Duration("elapsed", report.Elapsed))
	return report, nil
}

func (r *Report) skip(stem, reason string) {
	r.Skipped = append(r.Skipped, Skipped{Stem: stem, Reason: reason})
	GetLogger().Warn("Skipping pair",
		logger.String("stem", stem),
		logger.String("reason", reason))
}

func (b *Builder) stageUntrained(pairs []Pair) (staged []Pair, cleanup func() error, excluded int, err error) {
	if b.history == nil {
		return nil, nil, 0, errors.Newf("%w: training history requested but not configured", ErrInvalidOptions).
			Component("dataset").
			Category(errors.CategoryConfiguration).
			Build()
	}

	images := make([]string, len(pairs))
	for i, p := range pairs {
		images[i] = p.ImagePath
	}
	untrained := b.history.FilterUntrained(images)

	files := make([]string, 0, 2*len(untrained))
	for _, p := range pairs {
		if slices.Contains(untrained, p.ImagePath) {
			files = append(files, p.ImagePath, p.XMLPath)
		}
	}

	dir, cleanup, err := history.Stage(files)
	if err != nil {
		return nil, nil, 0, err
	}
	staged, err = Discover(dir)
	if err != nil {
		_ = cleanup()
		return nil, nil, 0, err
	}
	return staged, cleanup, len(pairs) - len(untrained), nil
}

func (b *Builder) prepareTarget(root string, opts Options, report *Report) error {
	if opts.BackupExisting && fsutil.IsDir(root) {
		backup := fmt.Sprintf("%s_backup_%s", root, b.now().UTC().Format("20060102_150405"))
		if err := fsutil.CopyDir(root, backup); err != nil {
			return errors.New(err).
				Component("dataset").
				Category(errors.CategoryFileIO).
				Context("operation", "backup_dataset").
				FileContext(root, 0).
				Build()
		}
		report.BackupDir = backup
		GetLogger().Info("Existing dataset backed up", logger.String("backup", backup))
	}

	for _, kind := range []string{"images", "labels"} {
		for _, split := range []string{splitTrain, splitVal} {
			dir := filepath.Join(root, kind, split)
			if opts.CleanExisting {
				if err := os.RemoveAll(dir); err != nil {
					return errors.New(err).
						Component("dataset").
						Category(errors.CategoryFileIO).
						Context("operation", "clean_dataset").
						FileContext(dir, 0).
						Build()
				}
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.New(err).
					Component("dataset").
					Category(errors.CategoryFileIO).
					Context("operation", "create_dataset_dirs").
					FileContext(dir, 0).
					Build()
			}
		}
	}
	return nil
}

// parsePairs decodes every annotation and checks that its image opens.
// Pairs that fail keep a nil annotation and are recorded as skipped.
func (b *Builder) parsePairs(pairs []Pair, report *Report) {
	var voc format.VOCCodec
	for i := range pairs {
		p := &pairs[i]
		ann, err := voc.Read(p.XMLPath, format.ReadContext{})
		if err != nil {
			report.skip(p.Stem, err.Error())
			continue
		}
		if !ann.HasSize() {
			report.skip(p.Stem, "annotation has no image size")
			continue
		}
		if _, _, err := format.ImageSize(p.ImagePath); err != nil {
			report.skip(p.Stem, "image unreadable: "+err.Error())
			continue
		}
		p.annotation = ann
	}
}

// resolveClasses returns the id resolver for emission. A cold registry is
// seeded with the sorted union of all labels so ids do not depend on
// encounter order.
func (b *Builder) resolveClasses(pairs []Pair, opts Options) (interface {
	format.ClassResolver
	Names() []string
}, error) {
	var names []string
	for _, p := range pairs {
		if p.annotation == nil {
			continue
		}
		for _, s := range p.annotation.Shapes {
			if !slices.Contains(names, s.Label) {
				names = append(names, s.Label)
			}
		}
	}
	sort.Strings(names)

	if !opts.UseClassRegistry {
		return newNameTable(names), nil
	}
	if b.registry.Len() == 0 && len(names) > 0 {
		if err := b.registry.AddAll(names, classes.SourceDataset); err != nil {
			return nil, err
		}
		GetLogger().Info("Seeded empty class registry",
			logger.Int("classes", len(names)),
			logger.Strings("names", names))
	}
	return b.registry, nil
}

func shuffle(n int, seed int64) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // split must be reproducible
	rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	return order
}

func (b *Builder) emit(ctx context.Context, root string, jobs []job, report *Report) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := writePair(root, j)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.skip(j.pair.Stem, err.Error())
			case j.split == splitTrain:
				report.Train++
			default:
				report.Val++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return errors.New(err).
			Component("dataset").
			Category(errors.CategoryCancellation).
			Build()
	}
	return nil
}

func writePair(root string, j job) error {
	imgDst := filepath.Join(root, "images", j.split, filepath.Base(j.pair.ImagePath))
	lblDst := filepath.Join(root, "labels", j.split, j.pair.Stem+format.ExtYOLO)

	var content strings.Builder
	for _, l := range j.lines {
		content.WriteString(l)
		content.WriteByte('\n')
	}
	if err := fsutil.WriteFileAtomic(lblDst, []byte(content.String()), 0o644); err != nil {
		return err
	}
	if err := fsutil.CopyFile(j.pair.ImagePath, imgDst); err != nil {
		_ = os.Remove(lblDst)
		return err
	}
	return nil
}

func countFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n, nil
}

func verify(root string, report *Report) error {
	var problems []string
	for _, split := range []string{splitTrain, splitVal} {
		imgs, err := countFiles(filepath.Join(root, "images", split))
		if err != nil {
			return err
		}
		lbls, err := countFiles(filepath.Join(root, "labels", split))
		if err != nil {
			return err
		}
		if imgs != lbls {
			problems = append(problems, fmt.Sprintf("%s: %d images vs %d labels", split, imgs, lbls))
		}
	}
	if report.Train+report.Val != report.Pairs-len(report.Skipped) {
		problems = append(problems, fmt.Sprintf("emitted %d of %d pairs with %d skipped",
			report.Train+report.Val, report.Pairs, len(report.Skipped)))
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New(fmt.Errorf("%w: %s", ErrIntegrityMismatch, strings.Join(problems, "; "))).
		Component("dataset").
		Category(errors.CategoryDataset).
		Context("root", root).
		Build()
}
