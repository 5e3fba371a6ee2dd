package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oriys/nova/internal/domain"
)

func solutionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solution",
		Short: "Manage pipeline solution templates",
	}
	cmd.AddCommand(
		solutionListCmd(),
		solutionGetCmd(),
		solutionRegisterCmd(),
		solutionDeleteCmd(),
	)
	return cmd
}

func solutionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List every registered solution",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				all := a.solutions.GetAll()
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SOLUTION ID\tDISPLAY NAME\tTYPE\tDEFAULT")
				for id, s := range all {
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", id, s.DisplayName, s.Type, s.IsDefault)
				}
				return w.Flush()
			})
		},
	}
}

func solutionGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <solution-id>",
		Short: "Show a solution's node template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				s, ok := a.solutions.Get(args[0])
				if !ok {
					return fmt.Errorf("solution %q not found", args[0])
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			})
		},
	}
}

func solutionRegisterCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a custom solution from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var s domain.Solution
			if err := json.Unmarshal(data, &s); err != nil {
				return fmt.Errorf("invalid solution JSON: %w", err)
			}
			return withApp(func(ctx context.Context, a *app) error {
				return a.solutions.Register(&s)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a solution JSON document")
	cmd.MarkFlagRequired("file")
	return cmd
}

func solutionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <solution-id>",
		Short: "Delete a custom solution (built-ins cannot be deleted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.solutions.Delete(args[0])
			})
		},
	}
}
