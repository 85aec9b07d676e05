package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsedov/penpal-studio/pkg/graph"
)

var evalCmd = &cobra.Command{
	Use:   "eval <project>",
	Short: "Evaluate a project and report each node's result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := graph.LoadProjectFile(args[0])
		if err != nil {
			return err
		}
		result := app.EvaluateProject(p)
		if jsonOutput {
			return printJSON(result)
		}

		for _, n := range p.Nodes {
			r := result.Results[n.ID]
			marker := " "
			if n.IsOutput {
				marker = "*"
			}
			switch {
			case r.Failed():
				fmt.Printf("%s %-24s %-14s error: %s\n", marker, n.ID, n.Type, r.Err)
			case r.Canvas == nil:
				fmt.Printf("%s %-24s %-14s (empty)\n", marker, n.ID, n.Type)
			default:
				fmt.Printf("%s %-24s %-14s %d points, %d lines\n", marker, n.ID, n.Type, len(r.Canvas.Points), len(r.Canvas.Lines))
			}
		}
		for _, w := range result.Warnings {
			fmt.Printf("warning: %s\n", w.Message)
		}
		if result.Output == nil && len(result.Errors) > 0 {
			return fmt.Errorf("%d error(s)", len(result.Errors))
		}
		return nil
	},
}
