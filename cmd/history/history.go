// Package history implements the history command.
package history

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/boxlabel/internal/app"
	"github.com/tphakala/boxlabel/internal/batch"
	hist "github.com/tphakala/boxlabel/internal/history"
)

// Command creates the history command.
func Command(a *app.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and record training sessions",
	}
	cmd.AddCommand(statsCommand(a), listCommand(a), recordCommand(a))
	return cmd
}

func statsCommand(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the training history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.History()
			if err != nil {
				return err
			}
			st := store.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sessions:       %d\n", st.Sessions)
			fmt.Fprintf(out, "Trained images: %d\n", st.TrainedImages)
			fmt.Fprintf(out, "Total epochs:   %d\n", st.TotalEpochs)
			if !st.LastSession.IsZero() {
				fmt.Fprintf(out, "Last session:   %s\n", st.LastSession.Local().Format(time.DateTime))
			}
			models := make([]string, 0, len(st.Models))
			for m := range st.Models {
				models = append(models, m)
			}
			sort.Strings(models)
			for _, m := range models {
				fmt.Fprintf(out, "  %-16s %d sessions\n", m, st.Models[m])
			}
			return nil
		},
	}
}

func listCommand(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.History()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tTIME\tMODEL\tEPOCHS\tIMAGES\tDATASET")
			for _, r := range store.Sessions() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					r.SessionID, r.Timestamp.Local().Format(time.DateTime), r.Model, r.Epochs, len(r.ImageFingerprints), r.DatasetPath)
			}
			return tw.Flush()
		},
	}
}

func recordCommand(a *app.App) *cobra.Command {
	var rec hist.Record

	cmd := &cobra.Command{
		Use:   "record [image or directory]...",
		Short: "Record a finished training run and the source images it used",
		Long: `Record a finished training run. Pass the source images, or directories of
them, that went into the dataset; later builds with --exclude-trained leave
them out.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := collectImages(args)
			if err != nil {
				return err
			}
			store, err := a.History()
			if err != nil {
				return err
			}
			rec.ImageFingerprints = paths
			id, err := store.AddSession(rec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded session %s with %d images\n", id, len(paths))
			return nil
		},
	}

	cmd.Flags().StringVar(&rec.Model, "model", "", "Model the run trained")
	cmd.Flags().IntVar(&rec.Epochs, "epochs", 0, "Epochs trained")
	cmd.Flags().StringVar(&rec.DatasetPath, "dataset", "", "Dataset directory the run used")
	cmd.Flags().StringVar(&rec.Notes, "notes", "", "Free-form notes")
	return cmd
}

func collectImages(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := batch.Enumerate(arg, true)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	return paths, nil
}
