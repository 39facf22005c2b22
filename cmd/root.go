// Package cmd assembles the boxlabel command tree.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/boxlabel/cmd/classes"
	"github.com/tphakala/boxlabel/cmd/convert"
	"github.com/tphakala/boxlabel/cmd/dataset"
	"github.com/tphakala/boxlabel/cmd/epochs"
	"github.com/tphakala/boxlabel/cmd/history"
	"github.com/tphakala/boxlabel/cmd/labels"
	"github.com/tphakala/boxlabel/cmd/predict"
	"github.com/tphakala/boxlabel/cmd/settings"
	"github.com/tphakala/boxlabel/internal/app"
	"github.com/tphakala/boxlabel/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(a *app.App, version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "boxlabel",
		Short:         "Bounding-box annotation toolkit",
		Long:          "Convert annotations, manage classes, build training datasets and pre-annotate images with a detection model.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, a.Settings); err != nil {
		conf.GetLogger().Warn(err.Error())
	}

	rootCmd.AddCommand(
		dataset.Command(a),
		predict.Command(a),
		classes.Command(a),
		labels.Command(a),
		history.Command(a),
		epochs.Command(a),
		convert.Command(a),
		settings.Command(a),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Flags were bound to viper after the config was read; re-sync so
		// they take precedence.
		return conf.Sync(a.Settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, cfg *conf.Settings) error {
	flags := rootCmd.PersistentFlags()
	flags.BoolP("debug", "d", cfg.Debug, "Enable debug output")
	flags.String("config-dir", cfg.Project.ConfigDir, "Directory holding class_config.yaml and the training files")
	flags.StringP("format", "f", cfg.Annotation.Format, "Annotation format: voc, yolo, createml")
	flags.String("save-dir", cfg.Annotation.SaveDir, "Directory annotations are saved to, empty for next to the image")
	flags.String("metrics-file", cfg.Metrics.File, "Write Prometheus metrics to this textfile on exit")

	bindings := map[string]string{
		"debug":              "debug",
		"project.configdir":  "config-dir",
		"annotation.format":  "format",
		"annotation.savedir": "save-dir",
		"metrics.file":       "metrics-file",
	}
	return conf.BindFlags(flags, bindings)
}
