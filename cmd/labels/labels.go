// Package labels implements the labels command for the predefined label
// list offered when drawing a box.
package labels

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/boxlabel/internal/app"
)

// Command creates the labels command.
func Command(a *app.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Manage the predefined label list",
	}
	cmd.AddCommand(listCommand(a), addCommand(a), clearCommand(a))
	return cmd
}

func listCommand(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the predefined labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.PredefinedLabels()
			if err != nil {
				return err
			}
			for _, l := range store.List() {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
}

func addCommand(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "add [label]...",
		Short: "Add labels; CJK text is transliterated",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.Workspace()
			if err != nil {
				return err
			}
			for _, raw := range args {
				label, err := ws.AddLabel(raw)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", label)
			}
			return nil
		},
	}
}

func clearCommand(a *app.App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every predefined label",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.PredefinedLabels()
			if err != nil {
				return err
			}
			if err := store.Clear(yes); err != nil {
				return fmt.Errorf("%w (pass --yes)", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "predefined labels cleared")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm clearing the list")
	return cmd
}
