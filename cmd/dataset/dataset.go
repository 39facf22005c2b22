// Package dataset implements the dataset command.
package dataset

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/boxlabel/internal/app"
	"github.com/tphakala/boxlabel/internal/conf"
	"github.com/tphakala/boxlabel/internal/dataset"
)

// Command creates the dataset command.
func Command(a *app.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Build training datasets",
	}
	cmd.AddCommand(buildCommand(a))
	return cmd
}

func buildCommand(a *app.App) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "build [source] [target]",
		Short: "Build a YOLO dataset from images with VOC annotations",
		Long: `Pair every image in source with its VOC annotation, split the pairs into
train and val, and write images, labels, classes.txt and data.yaml under
target/name.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), cmd.OutOrStdout(), a, args[0], args[1], name)
		},
	}

	setupFlags(cmd, a.Settings, &name)
	return cmd
}

// setupFlags defines flags specific to the dataset build command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings, name *string) {
	flags := cmd.Flags()
	flags.StringVarP(name, "name", "n", "dataset", "Dataset directory name under target")
	flags.Float64("train-ratio", settings.Dataset.TrainRatio, "Share of pairs assigned to the train split")
	flags.Int64("seed", settings.Dataset.Seed, "Shuffle seed")
	flags.Bool("clean", settings.Dataset.Clean, "Remove an existing dataset first")
	flags.Bool("backup", settings.Dataset.Backup, "Back up an existing dataset before cleaning")
	flags.Bool("exclude-trained", settings.Dataset.ExcludeTrained, "Leave out images recorded in the training history")
	flags.Bool("registry", settings.Dataset.UseRegistry, "Resolve class ids through the class registry")

	if err := conf.BindFlags(flags, map[string]string{
		"dataset.trainratio":     "train-ratio",
		"dataset.seed":           "seed",
		"dataset.clean":          "clean",
		"dataset.backup":         "backup",
		"dataset.excludetrained": "exclude-trained",
		"dataset.useregistry":    "registry",
	}); err != nil {
		conf.GetLogger().Warn(err.Error())
	}
}

func runBuild(ctx context.Context, out io.Writer, a *app.App, source, target, name string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ds := a.Settings.Dataset

	var registry dataset.Registry
	if ds.UseRegistry {
		reg, err := a.Registry()
		if err != nil {
			return err
		}
		registry = reg
	}
	var filter dataset.TrainedFilter
	if ds.ExcludeTrained {
		hist, err := a.History()
		if err != nil {
			return err
		}
		filter = hist
	}

	m, err := a.Metrics()
	if err != nil {
		return err
	}

	report, err := dataset.NewBuilder(registry, filter).Build(ctx, dataset.Options{
		SourceDir:         source,
		TargetDir:         target,
		Name:              name,
		TrainRatio:        ds.TrainRatio,
		Seed:              ds.Seed,
		UseClassRegistry:  ds.UseRegistry,
		CleanExisting:     ds.Clean,
		BackupExisting:    ds.Backup,
		ExcludeTrained:    ds.ExcludeTrained,
		AutoInsertClasses: a.Settings.Annotation.AutoInsertClasses,
	})
	if report != nil {
		m.Dataset.RecordBuild(err, report.Elapsed.Seconds(), report.Train, report.Val, len(report.Skipped), len(report.Classes))
	}
	if err != nil {
		return err
	}

	printReport(out, report)
	return nil
}

func printReport(out io.Writer, r *dataset.Report) {
	fmt.Fprintf(out, "Dataset written to %s\n", r.Root)
	fmt.Fprintf(out, "  data.yaml: %s\n", r.DataYAML)
	if r.BackupDir != "" {
		fmt.Fprintf(out, "  backup:    %s\n", r.BackupDir)
	}
	fmt.Fprintf(out, "  pairs: %d  train: %d  val: %d  skipped: %d  excluded: %d\n",
		r.Pairs, r.Train, r.Val, len(r.Skipped), r.Excluded)
	if r.DroppedBoxes > 0 {
		fmt.Fprintf(out, "  dropped zero-area boxes: %d\n", r.DroppedBoxes)
	}

	fmt.Fprintf(out, "  classes (%d):\n", len(r.Classes))
	for id, name := range r.Classes {
		fmt.Fprintf(out, "    %3d %-24s %d objects\n", id, name, r.ClassCounts[name])
	}

	if len(r.Unknown) > 0 {
		unknown := append([]string(nil), r.Unknown...)
		sort.Strings(unknown)
		fmt.Fprintf(out, "  unknown classes skipped: %v\n", unknown)
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(out, "  skipped %s: %s\n", s.Stem, s.Reason)
	}
	fmt.Fprintf(out, "Finished in %s\n", r.Elapsed.Round(time.Millisecond))
}
