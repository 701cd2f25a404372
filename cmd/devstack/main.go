package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all subcommands.
type GlobalFlags struct {
	ConfigPath string
}

// buildRoot creates the root command and attaches all subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "devstack",
		Short: "Bootstrap the chaty development environment",
		Long: `Devstack brings the multi-service development environment to a
consistent, query-ready state: it starts the containers, waits for each
service to become ready, provisions databases, the keyspace, broker topics
and an OAuth client, runs schema migrations, and propagates the issued
client id into downstream configuration.

Examples:
  devstack run                          # full bootstrap
  devstack run --config=devstack.toml
  devstack migrate up --engine=sql
  devstack migrate new --engine=nosql --name=add_messages`,
	}

	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file (optional)")

	root.AddCommand(
		createRunCommand(globalFlags),
		createMigrateCommand(globalFlags),
		createTopicsCommand(globalFlags),
	)

	return root
}
