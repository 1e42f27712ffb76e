// Command schelling runs the Schelling segregation model: agents on a grid
// relocate away from neighborhoods they are unhappy with until the city
// settles or the step budget runs out.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/schelling/internal/api"
	"github.com/talgya/schelling/internal/config"
	"github.com/talgya/schelling/internal/engine"
	"github.com/talgya/schelling/internal/observability"
	"github.com/talgya/schelling/internal/persistence"
	"github.com/talgya/schelling/internal/sim"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "schelling",
		Short: "Schelling segregation model simulator",
		Long: `schelling simulates residential segregation dynamics on a 2-D grid:
agents belonging to discrete groups evaluate their neighborhood and
relocate when too few neighbors share their group, until the population
stabilizes or the step budget is exhausted.`,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().Int64("seed", 0, "Random seed (overrides config; 0 = random)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("schelling version %s\n", version)
		},
	}
}

// loadConfig reads the config file, applies flag overrides, and sets up
// logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("seed") {
		cfg.Run.Seed, _ = cmd.Flags().GetInt64("seed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	setupLogging(cfg.Logging.Level)
	return cfg, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

// openDB opens the run history store, creating the parent directory. An
// empty path disables persistence.
func openDB(cfg *config.Config) (*persistence.DB, error) {
	if cfg.Database.Path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return persistence.Open(cfg.Database.Path)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the simulation headless until convergence",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			params, err := cfg.SimParams()
			if err != nil {
				return err
			}

			s, err := sim.New(params)
			if err != nil {
				return err
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			var runID string
			if db != nil {
				defer db.Close()
				runID, err = db.CreateRun(params, s.Seed())
				if err != nil {
					return err
				}
				if err := db.SaveSnapshot(runID, s.Snapshot()); err != nil {
					return err
				}
			}

			var last sim.StepStats
			for !s.Converged() && s.StepCount() < s.MaxSteps() {
				last = s.Step()
				slog.Info("step complete",
					"step", last.Step,
					"unhappy", last.Unhappy,
					"moved", last.Moved,
					"unmovable", last.Unmovable,
				)
				if db != nil {
					if err := db.SaveStep(runID, last); err != nil {
						return err
					}
					if cfg.Run.SnapshotEvery > 0 && last.Step%cfg.Run.SnapshotEvery == 0 {
						if err := db.SaveSnapshot(runID, s.Snapshot()); err != nil {
							return err
						}
					}
				}
			}

			res := sim.RunResult{
				Steps:      s.StepCount(),
				FinalMoved: last.Moved,
				Converged:  s.Converged(),
			}
			if db != nil {
				if err := db.SaveSnapshot(runID, s.Snapshot()); err != nil {
					return err
				}
				if err := db.FinishRun(runID, res); err != nil {
					return err
				}
			}

			if res.Converged {
				fmt.Printf("Converged after %d steps (final step moved %d agents).\n",
					res.Steps, res.FinalMoved)
			} else {
				fmt.Printf("Step budget of %d exhausted; final step moved %d agents, %d still unhappy.\n",
					res.Steps, res.FinalMoved, s.UnhappyCount())
			}
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation paced, with the HTTP observation API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			params, err := cfg.SimParams()
			if err != nil {
				return err
			}

			s, err := sim.New(params)
			if err != nil {
				return err
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			var runID string
			if db != nil {
				defer db.Close()
				runID, err = db.CreateRun(params, s.Seed())
				if err != nil {
					return err
				}
				if err := db.SaveSnapshot(runID, s.Snapshot()); err != nil {
					return err
				}
			}

			metrics, err := observability.NewCollector(nil)
			if err != nil {
				return fmt.Errorf("register metrics: %w", err)
			}

			runner := engine.NewRunner()
			runner.Interval = time.Duration(cfg.Server.StepIntervalMS) * time.Millisecond

			server := &api.Server{
				Sim:           s,
				Runner:        runner,
				DB:            db,
				Metrics:       metrics,
				RunID:         runID,
				Port:          cfg.Server.Port,
				AdminKey:      cfg.Server.AdminKey,
				SnapshotEvery: cfg.Run.SnapshotEvery,
			}
			runner.OnStep = server.StepOnce
			server.Start()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				slog.Info("received signal, shutting down", "signal", sig)
				runner.Stop()
				os.Exit(0)
			}()

			fmt.Printf("Simulating %d agents on a %dx%d grid.\n",
				len(s.Agents), params.NX, params.NY)
			fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Server.Port)

			runner.Run()

			// Keep serving the final state until interrupted.
			slog.Info("run complete, API still serving", "port", cfg.Server.Port)
			select {}
		},
	}
}
