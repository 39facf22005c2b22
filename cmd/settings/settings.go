// Package settings implements the settings command for the per-user editor
// settings.
package settings

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/boxlabel/internal/app"
	store "github.com/tphakala/boxlabel/internal/settings"
)

// Command creates the settings command.
func Command(a *app.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and change per-user editor settings",
	}
	cmd.AddCommand(
		listCommand(a),
		getCommand(a),
		setCommand(a),
		resetCommand(a),
		resetDeleteCommand(a),
	)
	return cmd
}

func listCommand(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every stored key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.UserSettings()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", s.Path())
			for _, key := range s.Keys() {
				v, _ := s.Get(key)
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, render(v))
			}
			return nil
		},
	}
}

func getCommand(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print one value as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.UserSettings()
			if err != nil {
				return err
			}
			v, ok := s.Get(args[0])
			if !ok {
				return fmt.Errorf("setting %q is not set", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), render(v))
			return nil
		},
	}
}

func setCommand(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Store a value; JSON is parsed, anything else is kept as a string",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.UserSettings()
			if err != nil {
				return err
			}
			var v any
			if err := json.Unmarshal([]byte(args[1]), &v); err != nil {
				v = args[1]
			}
			s.Set(args[0], v)
			return s.Save()
		},
	}
}

func resetCommand(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard every stored setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.UserSettings()
			if err != nil {
				return err
			}
			return s.Reset()
		},
	}
}

func resetDeleteCommand(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-delete-confirmations",
		Short: "Show the full confirmation dialog again for every delete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.UserSettings()
			if err != nil {
				return err
			}
			if err := store.NewDeletePolicy(s).ResetAll(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "delete confirmations reset")
			return nil
		},
	}
}

func render(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
