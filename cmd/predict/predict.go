// Package predict implements the predict command.
package predict

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/boxlabel/internal/app"
	"github.com/tphakala/boxlabel/internal/batch"
	"github.com/tphakala/boxlabel/internal/conf"
	"github.com/tphakala/boxlabel/internal/detection"
	"github.com/tphakala/boxlabel/internal/predictor"
)

// Command creates the predict command.
func Command(a *app.App) *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "predict [image or directory]",
		Short: "Run the detection model on an image or a directory of images",
		Long: `Run the configured detection model. A directory is processed as a batch
that Ctrl-C stops after the image in progress. With --write the filtered
detections are merged into each image's annotation in the configured
format; hand-drawn boxes are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return run(ctx, cmd.OutOrStdout(), a, args[0], write)
		},
	}

	setupFlags(cmd, a.Settings, &write)
	return cmd
}

// setupFlags defines flags specific to the predict command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings, write *bool) {
	flags := cmd.Flags()
	flags.BoolVarP(write, "write", "w", false, "Write detections into annotation files")
	flags.StringP("model", "m", settings.Predictor.ModelPath, "Path to the .tflite detection model")
	flags.String("labels", settings.Predictor.LabelPath, "Label file, default is searched next to the model")
	flags.String("device", settings.Predictor.Device, "Inference device: auto or cpu")
	flags.Int("threads", settings.Predictor.Threads, "CPU threads, 0 selects from the CPU topology")
	flags.Float64("conf", settings.Predictor.Conf, "Confidence threshold")
	flags.Float64("iou", settings.Predictor.IOU, "NMS IoU threshold")
	flags.Int("max-det", settings.Predictor.MaxDet, "Maximum detections per image")
	flags.BoolP("recursive", "r", settings.Batch.Recursive, "Include subdirectories")

	if err := conf.BindFlags(flags, map[string]string{
		"predictor.modelpath": "model",
		"predictor.labelpath": "labels",
		"predictor.device":    "device",
		"predictor.threads":   "threads",
		"predictor.conf":      "conf",
		"predictor.iou":       "iou",
		"predictor.maxdet":    "max-det",
		"batch.recursive":     "recursive",
	}); err != nil {
		conf.GetLogger().Warn(err.Error())
	}
}

// fallbackNotice tells the user once that inference moved to the CPU.
type fallbackNotice struct {
	predictor.NopObserver
	out io.Writer
}

func (f fallbackNotice) DeviceFallback(status predictor.Status, cause error) {
	fmt.Fprintf(f.out, "Accelerated backend unavailable (%v), continuing on %s\n", cause, status.Device)
}

func run(ctx context.Context, out io.Writer, a *app.App, target string, write bool) error {
	info, err := os.Stat(target)
	if err != nil {
		return err
	}

	p, err := a.Predictor(fallbackNotice{out: out})
	if err != nil {
		return err
	}
	status := p.Status()
	fmt.Fprintf(out, "Model %s loaded on %s (%d labels)\n", status.Model, status.Device, status.Labels)

	var writer batch.ResultWriter
	if write {
		ws, err := a.Workspace()
		if err != nil {
			return err
		}
		writer = ws
	}

	if !info.IsDir() {
		result, err := p.PredictSingle(ctx, target, a.PredictParams())
		if err != nil {
			return err
		}
		printResult(out, result)
		if writer != nil {
			return writer.WriteResult(result)
		}
		return nil
	}

	return runBatch(ctx, out, a, p, target, writer)
}

func runBatch(ctx context.Context, out io.Writer, a *app.App, p *predictor.Predictor, dir string, writer batch.ResultWriter) error {
	m, err := a.Metrics()
	if err != nil {
		return err
	}
	proc := batch.NewProcessor(p, batch.WithRecorder(m.Batch))

	events, err := proc.Start(ctx, batch.Request{
		Dir:       dir,
		Recursive: a.Settings.Batch.Recursive,
		Params:    a.PredictParams(),
		Writer:    writer,
	})
	if err != nil {
		return err
	}

	var summary *batch.Summary
	for ev := range events {
		switch ev.Kind {
		case batch.EventFileDone:
			if ev.Err != nil {
				fmt.Fprintf(out, "[%d/%d] %s: %v\n", ev.Current, ev.Total, ev.Path, ev.Err)
				continue
			}
			fmt.Fprintf(out, "[%d/%d] %s: %d detections\n", ev.Current, ev.Total, ev.Path, len(ev.Result.Detections))
		case batch.EventCancelled:
			fmt.Fprintf(out, "Cancelled after %d of %d images\n", ev.Current, ev.Total)
		case batch.EventFinished:
			summary = ev.Summary
		}
	}
	proc.Wait()

	if summary != nil {
		fmt.Fprintf(out, "Processed %d images: %d ok, %d failed in %s (avg %s)\n",
			summary.OK+summary.Failed, summary.OK, summary.Failed,
			summary.Elapsed.Round(time.Millisecond), summary.Avg.Round(time.Millisecond))
		if summary.Failed > 0 {
			return fmt.Errorf("%d images failed", summary.Failed)
		}
	}
	return nil
}

func printResult(out io.Writer, r *detection.Result) {
	fmt.Fprintf(out, "%s: %d detections in %s on %s\n",
		r.ImagePath, len(r.Detections), r.InferenceTime.Round(time.Millisecond), r.Model.Device)
	for _, d := range r.Detections {
		fmt.Fprintf(out, "  %-20s %.2f  (%.0f,%.0f)-(%.0f,%.0f)\n",
			d.ClassName, d.Confidence, d.Box.XMin, d.Box.YMin, d.Box.XMax, d.Box.YMax)
	}
}
