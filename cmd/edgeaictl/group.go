package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oriys/nova/internal/domain"
)

func groupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage instance groups",
	}
	cmd.AddCommand(
		groupListCmd(),
		groupCreateCmd(),
		groupUpdateCmd(),
		groupDeleteCmd(),
	)
	return cmd
}

func groupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List every group with its instance count",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "GROUP ID\tDISPLAY NAME\tINSTANCES\tDEFAULT\tREAD-ONLY")
				for _, g := range a.groups.List() {
					fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%t\n", g.GroupID, g.DisplayName, g.InstanceCount, g.IsDefault, g.ReadOnly)
				}
				return w.Flush()
			})
		},
	}
}

func groupCreateCmd() *cobra.Command {
	var id, name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.groups.Create(&domain.Group{GroupID: id, DisplayName: name, Description: desc})
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "group id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.MarkFlagRequired("id")
	return cmd
}

func groupUpdateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "update <group-id>",
		Short: "Update a group's display name/description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.groups.Update(args[0], name, desc)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&desc, "description", "", "new description")
	return cmd
}

func groupDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <group-id>",
		Short: "Delete an empty, non-default group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.groups.Delete(args[0])
			})
		},
	}
}
