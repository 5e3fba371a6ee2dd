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

func createCmd() *cobra.Command {
	var (
		name, group, sol, rtsp, rtmp, file string
		persistent, autoStart, autoRestart bool
		frameRateLimit                     float64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				req := domain.CreateRequest{
					Name:           name,
					Group:          group,
					Solution:       sol,
					Persistent:     persistent,
					AutoStart:      autoStart,
					AutoRestart:    autoRestart,
					FrameRateLimit: frameRateLimit,
				}
				if rtsp != "" {
					if req.AdditionalParams == nil {
						req.AdditionalParams = map[string]string{}
					}
					req.AdditionalParams["RTSP_URL"] = rtsp
				}
				if rtmp != "" {
					if req.AdditionalParams == nil {
						req.AdditionalParams = map[string]string{}
					}
					req.AdditionalParams["RTMP_URL"] = rtmp
				}
				if file != "" {
					if req.AdditionalParams == nil {
						req.AdditionalParams = map[string]string{}
					}
					req.AdditionalParams["FILE_PATH"] = file
				}
				inst, err := a.mgr.Create(ctx, req)
				if err != nil {
					return err
				}
				fmt.Println(inst.InstanceID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&group, "group", "", "group id (default: \"default\")")
	cmd.Flags().StringVar(&sol, "solution", "", "solution id")
	cmd.Flags().StringVar(&rtsp, "rtsp-url", "", "RTSP source URL")
	cmd.Flags().StringVar(&rtmp, "rtmp-url", "", "RTMP sink URL")
	cmd.Flags().StringVar(&file, "file-path", "", "file source path")
	cmd.Flags().BoolVar(&persistent, "persistent", false, "survive daemon restarts")
	cmd.Flags().BoolVar(&autoStart, "auto-start", false, "start immediately after create")
	cmd.Flags().BoolVar(&autoRestart, "auto-restart", false, "restart automatically on worker crash")
	cmd.Flags().Float64Var(&frameRateLimit, "frame-rate-limit", 0, "max frames per second (0 = unlimited)")
	cmd.MarkFlagRequired("solution")
	return cmd
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <instance-id>",
		Short: "Start an instance's pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.mgr.Start(ctx, args[0])
			})
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <instance-id>",
		Short: "Stop an instance's pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.mgr.Stop(ctx, args[0])
			})
		},
	}
}

func restartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <instance-id>",
		Short: "Stop then start an instance's pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.mgr.Restart(ctx, args[0])
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <instance-id>",
		Short: "Stop and remove an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.mgr.Delete(ctx, args[0])
			})
		},
	}
}

func updateCmd() *cobra.Command {
	var patchJSON string
	cmd := &cobra.Command{
		Use:   "update <instance-id>",
		Short: "Apply a partial config update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch map[string]interface{}
			if err := json.Unmarshal([]byte(patchJSON), &patch); err != nil {
				return fmt.Errorf("invalid --patch JSON: %w", err)
			}
			return withApp(func(ctx context.Context, a *app) error {
				return a.mgr.Update(ctx, args[0], patch)
			})
		},
	}
	cmd.Flags().StringVar(&patchJSON, "patch", "{}", "JSON-encoded partial instance config")
	cmd.MarkFlagRequired("patch")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				instances := a.mgr.GetAllInstances()
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "INSTANCE ID\tNAME\tGROUP\tSOLUTION\tRUNNING\tLOADED")
				for _, inst := range instances {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%t\n",
						inst.InstanceID, inst.DisplayName, inst.Group, inst.Solution, inst.Running, inst.Loaded)
				}
				return w.Flush()
			})
		},
	}
}

func getCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <instance-id>",
		Short: "Show an instance's full config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				inst, err := a.mgr.GetInstance(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(inst)
				}
				fmt.Printf("instance id:     %s\n", inst.InstanceID)
				fmt.Printf("name:            %s\n", inst.DisplayName)
				fmt.Printf("group:           %s\n", inst.Group)
				fmt.Printf("solution:        %s\n", inst.Solution)
				fmt.Printf("running/loaded:  %t/%t\n", inst.Running, inst.Loaded)
				fmt.Printf("retry count:     %d\n", inst.RetryCount)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "output-json", "j", false, "print the full record as JSON")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <instance-id>",
		Short: "Show an instance's live statistics (fps, state)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				stats, err := a.mgr.GetInstanceStatistics(args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			})
		},
	}
}
