// Package epochs implements the epochs command.
package epochs

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tphakala/boxlabel/internal/app"
	calc "github.com/tphakala/boxlabel/internal/epochs"
	"github.com/tphakala/boxlabel/internal/training"
)

// Command creates the epochs command.
func Command(a *app.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "epochs",
		Short: "Recommend and track training epoch counts",
	}
	cmd.AddCommand(recommendCommand(a), adjustCommand(a))
	return cmd
}

func recommendCommand(a *app.App) *cobra.Command {
	var (
		stats   calc.Stats
		model   string
		batch   int
		dataset string
	)

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend an epoch count for a dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, err := a.Preferences()
			if err != nil {
				return err
			}
			defaults := prefs.Defaults()
			if model == "" {
				model = defaults.ModelType
			}
			if batch <= 0 {
				batch = defaults.BatchSize
			}

			rec := calc.Recommend(stats, model, batch)
			out := cmd.OutOrStdout()
			printRecommendation(out, rec)

			if dataset != "" {
				if adj, ok := prefs.UserOverride(dataset); ok {
					fmt.Fprintf(out, "Previously you changed %d to %d for this dataset", adj.Original, adj.Adjusted)
					if adj.Reason != "" {
						fmt.Fprintf(out, " (%s)", adj.Reason)
					}
					fmt.Fprintln(out)
				}
			}
			for _, m := range prefs.Similar(stats) {
				fmt.Fprintf(out, "Similar run: %d images, %d classes, model %s -> %d epochs (%.0f%% similar)\n",
					m.Record.Stats.Total(), m.Record.Stats.NumClasses, m.Record.Model, m.Record.Recommended, m.Similarity*100)
			}

			key := dataset
			if key == "" {
				key = "."
			}
			return prefs.RecordRecommendation(key, stats, model, batch, rec)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&stats.TrainImages, "train", 0, "Images in the train split")
	flags.IntVar(&stats.ValImages, "val", 0, "Images in the val split")
	flags.IntVar(&stats.NumClasses, "classes", 0, "Number of classes")
	flags.StringVar(&model, "model", "", "Model size n, s, m, l or x, or a model name ending in one")
	flags.IntVar(&batch, "batch", 0, "Batch size, default from the training preferences")
	flags.StringVar(&dataset, "dataset", "", "Dataset directory, used to look up earlier adjustments")
	return cmd
}

func printRecommendation(out io.Writer, rec calc.Recommendation) {
	fmt.Fprintf(out, "Recommended epochs: %d (range %d-%d, confidence %s)\n",
		rec.Recommended, rec.Min, rec.Max, rec.Confidence)
	for _, r := range rec.Rationale {
		fmt.Fprintf(out, "  - %s\n", r)
	}
	for _, n := range rec.Notes {
		fmt.Fprintf(out, "  note: %s\n", n)
	}
}

func adjustCommand(a *app.App) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "adjust [dataset] [original] [adjusted]",
		Short: "Record that you overrode a recommendation for a dataset",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			original, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("original epochs: %w", err)
			}
			adjusted, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("adjusted epochs: %w", err)
			}
			prefs, err := a.Preferences()
			if err != nil {
				return err
			}
			if err := prefs.RecordAdjustment(args[0], original, adjusted, reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Adjustment stored for %s\n", training.DatasetKey(args[0]))
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the recommendation was changed")
	return cmd
}
