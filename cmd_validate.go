package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsedov/penpal-studio/pkg/graph"
)

var validateCmd = &cobra.Command{
	Use:   "validate <project>...",
	Short: "Check projects for structural problems and invalid properties",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		for _, path := range args {
			findings, err := app.Validate(path)
			if err != nil {
				return err
			}
			for _, f := range findings {
				fmt.Printf("%s: %s\n", path, f.Error())
			}
			if graph.HasErrors(findings) {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d project(s) invalid", failed, len(args))
		}
		return nil
	},
}
