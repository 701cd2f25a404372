package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chaty/devstack/internal/config"
	"github.com/chaty/devstack/internal/logger"
	"github.com/chaty/devstack/internal/provision"
)

func createTopicsCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "Provision broker topics only",
		Long: `Run just the topic-provisioning pass against an already-running
broker. Existing topics are left untouched.

Examples:
  devstack topics
  devstack topics --config=devstack.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log)

			ctx, stop := signalContext()
			defer stop()

			topics := provision.NewTopics(cfg.Broker.Brokers, log)
			if err := topics.Ensure(ctx, cfg.Broker.Topics); err != nil {
				return err
			}
			names, err := topics.List(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("ensured %d topic(s); broker reports %d\n", len(cfg.Broker.Topics), len(names))
			return nil
		},
	}
}
