package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var newForce bool

var newCmd = &cobra.Command{
	Use:   "new <project>",
	Short: "Create a starter project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err == nil && !newForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		p, err := app.StarterProject()
		if err != nil {
			return err
		}
		if err := p.SaveFile(path); err != nil {
			return err
		}
		fmt.Printf("Created %s\n", path)
		return nil
	},
}

func init() {
	newCmd.Flags().BoolVar(&newForce, "force", false, "overwrite an existing file")
}
