package graph

import (
	"fmt"
	"strings"

	"yqhp/jobflow/pkg/types"
	"yqhp/jobflow/pkg/utils"
)

// Format is an output format for a rendered graph.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatDOT, FormatJSON:
		return f, nil
	case "":
		return FormatDOT, nil
	default:
		return "", fmt.Errorf("unknown graph format %q (want dot or json)", s)
	}
}

// Ext returns the file extension for the format.
func (f Format) Ext() string {
	return "." + string(f)
}

// Render renders g in format f.
func Render(g *types.Graph, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return RenderJSON(g)
	case FormatDOT, "":
		return []byte(RenderDOT(g)), nil
	default:
		return nil, fmt.Errorf("unknown graph format %q", f)
	}
}

// RenderJSON renders g as indented JSON.
func RenderJSON(g *types.Graph) ([]byte, error) {
	return utils.ToJSONPretty(g)
}

// RenderDOT renders g in the Graphviz DOT language.
func RenderDOT(g *types.Graph) string {
	var sb strings.Builder
	sb.WriteString("digraph {\n")
	sb.WriteString(`node [style="filled",fontsize=10,fillcolor=aliceblue,color=gray,fixedsize=true]` + "\n")
	sb.WriteString("edge [fontsize=9,fontcolor=dodgerblue3]\n")

	for _, n := range g.Nodes {
		sb.WriteString(n.ID)
		sb.WriteString(" [")
		sb.WriteString(nodeAttrs(n))
		sb.WriteString("]\n")
	}
	sb.WriteString("\n")

	for _, e := range g.Edges {
		fmt.Fprintf(&sb, "%s -> %s", e.From, e.To)
		var attrs []string
		if e.Label != "" {
			attrs = append(attrs, "label="+quote(e.Label))
		}
		if e.Style != "" {
			attrs = append(attrs, "style="+quote(e.Style))
		}
		if len(attrs) > 0 {
			sb.WriteString(" [" + strings.Join(attrs, ",") + "]")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n")
	return sb.String()
}

func nodeAttrs(n types.Node) string {
	attrs := []string{"shape=" + n.Shape}
	switch n.Shape {
	case ShapeTerminal:
		attrs = append(attrs, "color=gray")
	case ShapeJoin:
		return strings.Join(attrs, ",")
	case ShapeFork, ShapeFor, ShapeCondition:
		attrs = append(attrs, "fillcolor=cornsilk", `fontcolor="dodgerblue3"`)
	}
	if n.Label != "" {
		attrs = append(attrs, "label="+quote(n.Label))
	}
	return strings.Join(attrs, ",")
}

// quote returns s as a DOT string literal.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}
