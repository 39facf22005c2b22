// Package convert implements the convert command.
package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/boxlabel/internal/app"
	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/format"
)

// Command creates the convert command.
func Command(a *app.App) *cobra.Command {
	var to, image, outDir string

	cmd := &cobra.Command{
		Use:   "convert [annotation]...",
		Short: "Re-encode annotations in another format",
		Long: `Re-encode annotation files between Pascal VOC XML, YOLO text and CreateML
JSON. The source format is taken from the file suffix. YOLO class ids are
resolved through the class registry.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if image != "" && len(args) > 1 {
				return fmt.Errorf("--image applies to a single annotation")
			}
			reg, err := a.Registry()
			if err != nil {
				return err
			}
			target, err := format.NewLabelFile(to, reg, a.Settings.Annotation.AutoInsertClasses)
			if err != nil {
				return err
			}

			for _, src := range args {
				written, err := convertOne(target, src, image, outDir)
				if err != nil && !errors.Is(err, format.ErrUnknownClass) {
					return err
				}
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", src, written)
			}
			if reg.Dirty() {
				return reg.Save()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&to, "to", "t", format.FormatYOLO, "Target format: voc, yolo, createml")
	cmd.Flags().StringVar(&image, "image", "", "Image the annotation belongs to, default is found by name")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory, default is next to the source")
	return cmd
}

func convertOne(target *format.LabelFile, src, image, outDir string) (string, error) {
	loaded, err := target.Load(src, image)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(src)
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return "", err
		}
		dir = outDir
	}
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	dst := filepath.Join(dir, stem+target.Ext())
	if filepath.Clean(dst) == filepath.Clean(src) {
		return "", fmt.Errorf("%s is already in the target format", src)
	}
	return target.Save(dst, loaded.Annotation, loaded.ImageBytes)
}
