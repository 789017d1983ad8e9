package main

import (
	"fmt"
	"strconv"

	"github.com/banshee-data/trial.report/internal/catalog"
	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage catalogue schema migrations",
	}

	withCatalog := func(fn func(cmd *cobra.Command, c *catalog.Catalog, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c, err := catalog.OpenDB(opts.dbPath)
			if err != nil {
				return fmt.Errorf("open catalogue %s: %w", opts.dbPath, err)
			}
			defer c.Close()
			return fn(cmd, c, args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withCatalog(func(cmd *cobra.Command, c *catalog.Catalog, _ []string) error {
			if err := c.MigrateUp(); err != nil {
				return err
			}
			return printVersion(cmd, c)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: withCatalog(func(cmd *cobra.Command, c *catalog.Catalog, _ []string) error {
			if err := c.MigrateDown(); err != nil {
				return err
			}
			return printVersion(cmd, c)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: withCatalog(func(cmd *cobra.Command, c *catalog.Catalog, _ []string) error {
			return printVersion(cmd, c)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations, clearing the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: withCatalog(func(cmd *cobra.Command, c *catalog.Catalog, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			if err := c.MigrateForce(v); err != nil {
				return err
			}
			return printVersion(cmd, c)
		}),
	})
	return cmd
}

func printVersion(cmd *cobra.Command, c *catalog.Catalog) error {
	v, dirty, err := c.MigrateVersion()
	if err != nil {
		return err
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d%s\n", v, suffix)
	return nil
}
