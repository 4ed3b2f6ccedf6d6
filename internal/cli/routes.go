package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newRoutesCmd lists the conversion routes between two formats.
func newRoutesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes FROM TO",
		Short: "List conversion routes between two formats",
		Long: `Routes prints every acyclic conversion chain from one format to another,
ordered by total cost. The first route listed is the one conversions will
use. Routes through converters whose external tools are missing are not
shown.`,
		Example: `  termview routes svg sixel
  termview routes markdown ft`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to := args[0], args[1]

			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			routes := a.reg.Routes(from, to)
			if len(routes) == 0 {
				printWarning("No conversion route from %q to %q", from, to)
				return nil
			}

			fmt.Println(StyleTitle.Render(fmt.Sprintf("%s %s %s", from, iconArrow, to)))
			for i, route := range routes {
				marker := " "
				if i == 0 {
					marker = styleIconSuccess.Render(iconSuccess)
				}
				fmt.Printf("%s %s\n", marker,
					StyleValue.Render(strings.Join(route, " "+iconArrow+" ")))
			}
			printDetail("%d route(s) found", len(routes))
			return nil
		},
	}
	return cmd
}
