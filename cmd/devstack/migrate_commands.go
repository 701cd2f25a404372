package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chaty/devstack/internal/config"
	"github.com/chaty/devstack/internal/logger"
	"github.com/chaty/devstack/internal/migrate"
)

// MigrateFlags holds flags shared by the migrate subcommands.
type MigrateFlags struct {
	Engine  string
	Name    string
	Steps   int
	Version int
	Yes     bool
}

func createMigrateCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage schema migrations",
		Long: `Create and apply versioned schema migrations per engine.

Examples:
  devstack migrate new --engine=sql --name=create_users
  devstack migrate up --engine=sql
  devstack migrate down --engine=nosql --steps=2
  devstack migrate force --engine=sql --version=3`,
	}

	cmd.AddCommand(
		createMigrateNewCommand(globalFlags),
		createMigrateUpCommand(globalFlags),
		createMigrateDownCommand(globalFlags),
		createMigrateForceCommand(globalFlags),
	)

	return cmd
}

func createMigrateNewCommand(globalFlags *GlobalFlags) *cobra.Command {
	flags := &MigrateFlags{}

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create an empty up/down migration pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			engine := migrate.Engine(flags.Engine)
			if !engine.Valid() {
				return fmt.Errorf("unknown engine %q (want sql or nosql)", flags.Engine)
			}
			dir := filepath.Join(cfg.MigrationsDir, string(engine))
			up, down, err := migrate.CreateFiles(dir, engine, flags.Name)
			if err != nil {
				return err
			}
			fmt.Println(up)
			fmt.Println(down)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.Engine, "engine", "", "target engine: sql or nosql (required)")
	cmd.Flags().StringVar(&flags.Name, "name", "", "migration label (required)")
	if err := cmd.MarkFlagRequired("engine"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}

	return cmd
}

func createMigrateUpCommand(globalFlags *GlobalFlags) *cobra.Command {
	flags := &MigrateFlags{}

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Long: `Apply every unapplied migration in ascending order. With --steps=N
the newest N catalog entries are held back, staging the schema behind the
head for rollout testing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(globalFlags, flags, func(ctx context.Context, r *migrate.Runner) error {
				if !flags.Yes {
					ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
						fmt.Sprintf("Apply pending %s migrations?", flags.Engine))
					if err != nil || !ok {
						return err
					}
				}
				applied, err := r.Up(ctx, flags.Steps)
				if err != nil {
					return err
				}
				fmt.Printf("applied %d migration(s)\n", len(applied))
				return nil
			})
		},
	}

	addRunnerFlags(cmd, flags)
	cmd.Flags().IntVar(&flags.Steps, "steps", 0, "hold back this many newest migrations")

	return cmd
}

func createMigrateDownCommand(globalFlags *GlobalFlags) *cobra.Command {
	flags := &MigrateFlags{}

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Revert applied migrations",
		Long:  `Revert the most recently applied migration, or --steps of them in descending order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(globalFlags, flags, func(ctx context.Context, r *migrate.Runner) error {
				if !flags.Yes {
					ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
						fmt.Sprintf("Revert %s migration(s)?", flags.Engine))
					if err != nil || !ok {
						return err
					}
				}
				reverted, err := r.Down(ctx, flags.Steps)
				if err != nil {
					return err
				}
				fmt.Printf("reverted %d migration(s)\n", len(reverted))
				return nil
			})
		},
	}

	addRunnerFlags(cmd, flags)
	cmd.Flags().IntVar(&flags.Steps, "steps", 1, "number of migrations to revert")

	return cmd
}

func createMigrateForceCommand(globalFlags *GlobalFlags) *cobra.Command {
	flags := &MigrateFlags{}

	cmd := &cobra.Command{
		Use:   "force",
		Short: "Overwrite the version marker without running migrations",
		Long: `Set the recorded migration version without executing any statement
body. This is an escape hatch for recovering from a run that left the
tracking state inconsistent with the actual schema. The target version must
exist in the catalog (0 resets to a clean slate).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(globalFlags, flags, func(ctx context.Context, r *migrate.Runner) error {
				if !flags.Yes {
					ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
						fmt.Sprintf("Force %s version marker to %d without executing anything?",
							flags.Engine, flags.Version))
					if err != nil || !ok {
						return err
					}
				}
				return r.Force(ctx, flags.Version)
			})
		},
	}

	addRunnerFlags(cmd, flags)
	cmd.Flags().IntVar(&flags.Version, "version", -1, "version to record (required)")
	if err := cmd.MarkFlagRequired("version"); err != nil {
		panic(err)
	}

	return cmd
}

func addRunnerFlags(cmd *cobra.Command, flags *MigrateFlags) {
	cmd.Flags().StringVar(&flags.Engine, "engine", "", "target engine: sql or nosql (required)")
	cmd.Flags().BoolVar(&flags.Yes, "yes", false, "skip the confirmation prompt")
	if err := cmd.MarkFlagRequired("engine"); err != nil {
		panic(err)
	}
}

// withRunner loads config, opens the engine target, and hands a ready Runner
// to fn, closing everything afterwards.
func withRunner(globalFlags *GlobalFlags, flags *MigrateFlags, fn func(context.Context, *migrate.Runner) error) error {
	cfg, err := config.Load(globalFlags.ConfigPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)

	engine := migrate.Engine(flags.Engine)
	if !engine.Valid() {
		return fmt.Errorf("unknown engine %q (want sql or nosql)", flags.Engine)
	}

	target, err := openTarget(cfg, engine)
	if err != nil {
		return err
	}
	defer func() { _ = target.Close() }()

	runner, err := migrate.NewRunner(engine, filepath.Join(cfg.MigrationsDir, string(engine)), target, log)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	return fn(ctx, runner)
}

func openTarget(cfg config.Config, engine migrate.Engine) (migrate.Target, error) {
	if engine == migrate.EngineNoSQL {
		return migrate.NewCQLTarget(cfg.NoSQL.Hosts, cfg.NoSQL.Keyspace)
	}
	return migrate.NewSQLTarget(cfg.SQL.DSN)
}
