package cli

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joouha/termview/pkg/convert"
	"github.com/joouha/termview/pkg/errors"
	"github.com/joouha/termview/pkg/ft"
	"github.com/joouha/termview/pkg/graphics"
)

// newShowCmd displays a file inline in the terminal.
func newShowCmd(configPath *string) *cobra.Command {
	var (
		from string
		cols int
		rows int
	)

	cmd := &cobra.Command{
		Use:   "show FILE",
		Short: "Display a file inline in the terminal",
		Long: `Show renders a file directly in the terminal. Images use the best
graphics protocol the terminal supports (iTerm, kitty or sixel, in that
order of preference); markdown and text render as styled ANSI output.`,
		Example: `  termview show photo.jpg
  termview show README.md
  termview show plot.svg --cols 60`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			path := args[0]

			raw, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrap(errors.ErrCodeFileNotFound, err, "reading input file")
			}
			if from == "" {
				from = sniffFormat(path, raw)
			}

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			width := cols
			if width <= 0 {
				if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
					width = w
				} else {
					width = 80
				}
			}

			d := a.reg.NewDatum(convert.Bytes(raw), from, convert.WithPath(path))
			out := graphics.NewTermOutput(cmd.OutOrStdout())

			control := graphics.SelectControl(a.reg, d, a.term, out,
				a.cfg.Graphics.Protocol, a.cfg.Graphics.Force)
			if control != nil {
				height := rows
				if height <= 0 {
					height = control.PreferredHeight(ctx, control.PreferredWidth(ctx, width), 1<<15)
				}
				logger.Debug("Selected graphics control",
					"type", controlName(control), "width", width, "height", height)

				lines := control.RenderedLines(ctx, control.PreferredWidth(ctx, width), height)
				out.WriteRaw(ft.Raw(lines))
				out.WriteRaw("\n")
				out.Flush()
				return nil
			}

			// No graphics protocol available; fall back to ANSI art.
			logger.Debug("No graphics protocol available, converting to ansi")
			p, err := d.Convert(ctx, "ansi", width, rows)
			if err != nil {
				return err
			}
			out.WriteRaw(p.AsText())
			out.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "source format (default: detect from file)")
	cmd.Flags().IntVar(&cols, "cols", 0, "display width in columns (default: terminal width)")
	cmd.Flags().IntVar(&rows, "rows", 0, "display height in rows")
	return cmd
}

func controlName(c graphics.Control) string {
	switch c.(type) {
	case *graphics.SixelControl:
		return "sixel"
	case *graphics.KittyControl:
		return "kitty"
	case *graphics.ItermControl:
		return "iterm"
	default:
		return "unknown"
	}
}
