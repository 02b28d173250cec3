package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/charges.report/internal/db"
)

func newMigrateCmd(g *globalFlags) *cobra.Command {
	m := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run history schema",
		Long: `Apply, roll back or inspect the embedded schema migrations of the run
history database. Opening the database for analysis or the runs commands
applies pending migrations automatically.`,
	}

	m.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withHistory(g, func(cmd *cobra.Command, database *db.DB, _ []string) error {
				if err := database.MigrateUp(); err != nil {
					return err
				}
				return printVersion(cmd, database)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: withHistory(g, func(cmd *cobra.Command, database *db.DB, _ []string) error {
				if err := database.MigrateDown(); err != nil {
					return err
				}
				return printVersion(cmd, database)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withHistory(g, func(cmd *cobra.Command, database *db.DB, _ []string) error {
				return printVersion(cmd, database)
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Long:  "Set the schema version without running migrations. Only use this to recover from a dirty migration.",
			Args:  cobra.ExactArgs(1),
			RunE: withHistory(g, func(cmd *cobra.Command, database *db.DB, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				if err := database.MigrateForce(v); err != nil {
					return err
				}
				return printVersion(cmd, database)
			}),
		},
	)
	return m
}

// withHistory opens the database without migrating it so the migrate
// subcommands see the schema as it is.
func withHistory(g *globalFlags, fn func(*cobra.Command, *db.DB, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		database, err := openHistory(g, false)
		if err != nil {
			return err
		}
		defer database.Close()
		return fn(cmd, database, args)
	}
}

func printVersion(cmd *cobra.Command, database *db.DB) error {
	v, dirty, err := database.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version: %d\ndirty: %v\n", v, dirty)
	return nil
}
