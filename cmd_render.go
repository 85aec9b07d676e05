package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dsedov/penpal-studio/pkg/graph"
)

var (
	renderOut      string
	renderParallel int
)

var renderCmd = &cobra.Command{
	Use:   "render <project>...",
	Short: "Render the output node of one or more projects to SVG",
	Long: `Render evaluates each project and writes its output canvas as SVG.

With a single project, --out may name the target file or s3://bucket/key.
Otherwise --out is a directory (or s3://bucket/prefix) and each project is
written as <name>.svg. Projects are rendered concurrently.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, _ := errgroup.WithContext(cmd.Context())
		g.SetLimit(renderParallel)
		for _, path := range args {
			target := renderTarget(path, renderOut, len(args) == 1)
			g.Go(func() error {
				p, err := graph.LoadProjectFile(path)
				if err != nil {
					return err
				}
				if err := app.ExportSVG(p, target); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Printf("%s -> %s\n", path, target)
				return nil
			})
		}
		return g.Wait()
	},
}

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", ".", "output file, directory or s3:// location")
	renderCmd.Flags().IntVarP(&renderParallel, "parallel", "j", 4, "projects rendered at once")
}

// renderTarget picks where a project's SVG goes. A single project may be
// written straight to an .svg target.
func renderTarget(project, out string, single bool) string {
	if single && strings.HasSuffix(strings.ToLower(out), ".svg") {
		return out
	}
	name := strings.TrimSuffix(filepath.Base(project), filepath.Ext(project)) + ".svg"
	if strings.HasPrefix(out, "s3://") {
		return strings.TrimSuffix(out, "/") + "/" + name
	}
	return filepath.Join(out, name)
}
