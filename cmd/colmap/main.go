// Command colmap runs column mappings headless: it lists target schemas and their groups
// and converts files with a saved mapping profile.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rpattn/colmap/internal/domain"
	"github.com/rpattn/colmap/internal/grouping"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "colmap",
		Short:        "Map spreadsheet columns onto a fixed target schema",
		SilenceUsage: true,
	}
	root.AddCommand(newSchemasCommand(), newGroupsCommand(), newConvertCommand())
	return root
}

func newSchemasCommand() *cobra.Command {
	var showColumns bool
	cmd := &cobra.Command{
		Use:   "schemas",
		Short: "List the built-in target schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, name := range domain.BuiltinSchemaNames() {
				schema, _ := domain.BuiltinSchema(name)
				fmt.Fprintf(out, "%s\t%d columns\n", schema.Name, len(schema.Columns))
				if !showColumns {
					continue
				}
				for _, column := range schema.Columns {
					fmt.Fprintf(out, "  %s\t%s\n", column, schema.Kind(column))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showColumns, "columns", false, "print every column with its value kind")
	return cmd
}

func newGroupsCommand() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "groups <schema>",
		Short: "Show how a schema's columns are grouped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, ok := domain.BuiltinSchema(args[0])
			if !ok {
				return fmt.Errorf("unknown schema %q (available: %s)", args[0], strings.Join(domain.BuiltinSchemaNames(), ", "))
			}
			groups := grouping.IdentifyGroups(schema.Columns)
			visible := grouping.FilterColumns(schema.Columns, filter, nil)

			out := cmd.OutOrStdout()
			for _, entry := range grouping.Arrange(schema.Columns, groups, visible) {
				if !entry.IsGroup() {
					fmt.Fprintln(out, entry.Column)
					continue
				}
				fmt.Fprintf(out, "[%s] %s (%d)\n", entry.Group.Kind, entry.Group.Name, len(entry.Group.Columns))
				for _, column := range entry.Group.Columns {
					fmt.Fprintf(out, "  %s\n", column)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "only show columns containing this text")
	return cmd
}
