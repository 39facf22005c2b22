// Package classes implements the classes command.
package classes

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/boxlabel/internal/app"
	classreg "github.com/tphakala/boxlabel/internal/classes"
	"github.com/tphakala/boxlabel/internal/errors"
)

// Command creates the classes command.
func Command(a *app.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classes",
		Short: "Inspect and extend the class registry",
	}
	cmd.AddCommand(listCommand(a), addCommand(a))
	return cmd
}

func listCommand(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered classes with their ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.Registry()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tUSAGE\tSOURCE\tDESCRIPTION")
			for id, name := range reg.Names() {
				meta, _ := reg.Metadata(name)
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", id, name, meta.UsageCount, meta.Source, meta.Description)
			}
			return tw.Flush()
		},
	}
}

func addCommand(a *app.App) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "add [name]...",
		Short: "Append classes to the registry",
		Long:  "Append classes to the registry. Existing ids never change; a name already present keeps its id.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.Registry()
			if err != nil {
				return err
			}
			for _, name := range args {
				id, err := reg.AddClass(name, description)
				switch {
				case errors.Is(err, classreg.ErrDuplicateClass):
					fmt.Fprintf(cmd.OutOrStdout(), "%s already registered as %d\n", name, id)
				case err != nil:
					return err
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "%s registered as %d\n", name, id)
				}
			}
			return reg.Save()
		},
	}

	cmd.Flags().StringVar(&description, "desc", "", "Description stored with the new classes")
	return cmd
}
