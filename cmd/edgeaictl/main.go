// Command edgeaictl is the operator CLI for the edge-AI control plane:
// it drives the Instance Manager, Solution Registry, and Group Registry
// in-process, the same way the daemon's own bootstrap does, for anyone
// scripting instance lifecycle from a shell.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oriys/nova/internal/config"
	"github.com/oriys/nova/internal/group"
	"github.com/oriys/nova/internal/groupstore"
	"github.com/oriys/nova/internal/instancestore"
	"github.com/oriys/nova/internal/manager"
	"github.com/oriys/nova/internal/solution"
	"github.com/oriys/nova/internal/solutionstore"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "edgeaictl",
		Short: "Operator CLI for the edge-AI instance control plane",
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a JSON or YAML config file (optional, defaults + env otherwise)")

	rootCmd.AddCommand(
		createCmd(),
		startCmd(),
		stopCmd(),
		restartCmd(),
		deleteCmd(),
		updateCmd(),
		listCmd(),
		getCmd(),
		statsCmd(),
		solutionCmd(),
		groupCmd(),
		daemonCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles the bootstrapped components every subcommand needs;
// built fresh per invocation since the CLI is one-shot, not a daemon.
type app struct {
	cfg       *config.Config
	store     *instancestore.Store
	mgr       manager.Manager
	solutions *solution.Registry
	groups    *group.Registry
}

// bootstrap loads config (file, then env overrides, matching the
// daemon's own layering) and constructs the same store/registry/manager
// graph the daemon runs, so a CLI mutation and a running daemon always
// observe the same persisted state.
func bootstrap() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := instancestore.New(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open instance store: %w", err)
	}
	solStore, err := solutionstore.New(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open solution store: %w", err)
	}
	grpStore, err := groupstore.New(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open group store: %w", err)
	}

	solutions := solution.New(solStore)
	solutions.InitializeDefaults()
	if err := solutions.LoadPersisted(); err != nil {
		return nil, fmt.Errorf("load solutions: %w", err)
	}

	mgr := manager.New(cfg, store, solutions, nil)
	groups := group.New(grpStore, func(groupID string) int {
		count := 0
		for _, inst := range mgr.GetAllInstances() {
			if inst.Group == groupID {
				count++
			}
		}
		return count
	})
	if err := groups.LoadPersisted(); err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}

	return &app{cfg: cfg, store: store, mgr: mgr, solutions: solutions, groups: groups}, nil
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = loadConfigFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

func loadConfigFile(path string) (*config.Config, error) {
	if isYAML(path) {
		return config.LoadFromYAMLFile(path)
	}
	return config.LoadFromFile(path)
}

func isYAML(path string) bool {
	for _, ext := range []string{".yaml", ".yml"} {
		if len(path) > len(ext) && path[len(path)-len(ext):] == ext {
			return true
		}
	}
	return false
}

// withApp bootstraps an app, runs fn, then shuts the manager down so a
// subprocess-backed manager tears down its supervisor's child workers
// cleanly before the CLI process exits.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.mgr.Shutdown()
	return fn(context.Background(), a)
}
