// Package graphdump renders a converter registry as a Graphviz graph, for
// inspecting which formats are reachable from which and at what cost.
package graphdump

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"

	"github.com/joouha/termview/pkg/convert"
)

// ToDOT returns a Graphviz DOT representation of the registry's conversion
// graph. Formats are nodes; each converter contributes a weighted edge.
// Converters whose filter currently rejects them (a missing external tool,
// say) are drawn dashed.
func ToDOT(reg *convert.Registry) string {
	var buf bytes.Buffer
	buf.WriteString("digraph conversions {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [fontname=\"SF Mono, Menlo, monospace\", fontsize=12, shape=box, style=\"filled,rounded\", fillcolor=white];\n")
	buf.WriteString("  edge [fontsize=10];\n\n")

	for _, format := range reg.Formats() {
		fmt.Fprintf(&buf, "  %q;\n", format)
	}
	buf.WriteString("\n")

	for _, edge := range reg.Edges() {
		attrs := fmt.Sprintf("label=\"%d\"", edge.Weight)
		if !edge.Applicable {
			attrs += ", style=dashed, color=gray"
		}
		fmt.Fprintf(&buf, "  %q -> %q [%s];\n", edge.From, edge.To, attrs)
	}

	buf.WriteString("}\n")
	return buf.String()
}

// RenderSVG renders the conversion graph as an SVG document.
//
// Requires the Graphviz library (github.com/goccy/go-graphviz). Errors are
// returned if Graphviz cannot initialize, the DOT is malformed, or
// rendering fails.
func RenderSVG(ctx context.Context, reg *convert.Registry) ([]byte, error) {
	dot := ToDOT(reg)

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
