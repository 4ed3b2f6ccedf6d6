package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joouha/termview/pkg/errors"
	"github.com/joouha/termview/pkg/graphdump"
)

// newGraphCmd dumps the converter registry as DOT or renders it to SVG.
func newGraphCmd(configPath *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Dump the conversion graph",
		Long: `Graph prints the converter registry as a Graphviz DOT digraph, or renders
it to an SVG file with --output. Converters that are currently unusable
(missing external tools) are drawn dashed.`,
		Example: `  termview graph
  termview graph --output conversions.svg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), graphdump.ToDOT(a.reg))
				return nil
			}

			spin := newSpinnerWithContext(ctx, "Rendering conversion graph")
			spin.Start()
			svg, err := graphdump.RenderSVG(ctx, a.reg)
			if err != nil {
				spin.StopWithError("Rendering failed")
				return err
			}
			if err := os.WriteFile(output, svg, 0o644); err != nil {
				spin.StopWithError("Write failed")
				return errors.Wrap(errors.ErrCodeInternal, err, "writing SVG file")
			}
			spin.StopWithSuccess(fmt.Sprintf("Wrote %s", StyleValue.Render(output)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "render to an SVG file instead of printing DOT")
	return cmd
}
