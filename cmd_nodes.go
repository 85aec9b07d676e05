package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var nodesSchema bool

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List the available node types",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		types := app.NodeTypes()
		if jsonOutput || nodesSchema {
			if !nodesSchema {
				for i := range types {
					types[i].Schema = nil
				}
			}
			return printJSON(types)
		}
		category := ""
		for _, t := range types {
			if t.Category != category {
				category = t.Category
				fmt.Printf("%s:\n", category)
			}
			fmt.Printf("  %-14s %s\n", t.Tag, t.Description)
		}
		return nil
	},
}

func init() {
	nodesCmd.Flags().BoolVar(&nodesSchema, "schema", false, "include each type's property JSON Schema")
}
