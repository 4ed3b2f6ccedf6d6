package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joouha/termview/pkg/convert"
	"github.com/joouha/termview/pkg/errors"
)

// newConvertCmd converts a file to another format and writes the result to
// stdout or a file.
func newConvertCmd(configPath *string) *cobra.Command {
	var (
		from   string
		cols   int
		rows   int
		output string
	)

	cmd := &cobra.Command{
		Use:   "convert FILE FORMAT",
		Short: "Convert a file to another display format",
		Long: `Convert reads a file, determines its format and converts it to the target
format using the cheapest available conversion route. The result is written
to stdout, or to a file with --output.`,
		Example: `  termview convert plot.png sixel
  termview convert README.md ansi --cols 100
  termview convert diagram.svg png --output diagram.png`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			path, to := args[0], args[1]

			raw, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrap(errors.ErrCodeFileNotFound, err, "reading input file")
			}
			if from == "" {
				from = sniffFormat(path, raw)
			}
			logger.Debug("Detected format", "file", path, "format", from)

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if a.reg.FindRoute(from, to) == nil && from != to {
				return errors.New(errors.ErrCodeRouteNotFound,
					"no conversion route from %q to %q", from, to)
			}

			prog := newProgress(logger)
			d := a.reg.NewDatum(convert.Bytes(raw), from, convert.WithPath(path))
			out, err := d.Convert(ctx, to, cols, rows)
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Converted %s %s %s", path, iconArrow, to))

			var result []byte
			if b, ok := out.Bytes(); ok {
				result = b
			} else {
				result = []byte(out.AsText())
			}

			if output != "" {
				if err := os.WriteFile(output, result, 0o644); err != nil {
					return errors.Wrap(errors.ErrCodeInternal, err, "writing output file")
				}
				printSuccess("Wrote %s", StyleValue.Render(output))
				return nil
			}
			_, err = cmd.OutOrStdout().Write(result)
			return err
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "source format (default: detect from file)")
	cmd.Flags().IntVar(&cols, "cols", 0, "target width in terminal columns")
	cmd.Flags().IntVar(&rows, "rows", 0, "target height in terminal rows")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write result to a file instead of stdout")
	return cmd
}
