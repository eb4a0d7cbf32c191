package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/papapumpkin/tempo/internal/dag"
	"github.com/papapumpkin/tempo/internal/work"
)

// maxBoxesPerRow wraps wide layers onto several rows.
const maxBoxesPerRow = 4

// Layers renders each dependency layer as a row of boxes. Every box shows
// the item id, its status and its direct dependencies.
func (p *Printer) Layers(layers []dag.Layer, plan *work.Plan) {
	fmt.Fprint(p.Out, RenderLayers(layers, plan))
}

// RenderLayers returns the layer view as a string.
func RenderLayers(layers []dag.Layer, plan *work.Plan) string {
	var sb strings.Builder
	for i, l := range layers {
		if i > 0 {
			sb.WriteString(styleMuted.Render("  │") + "\n" + styleMuted.Render("  ▼") + "\n")
		}
		sb.WriteString(styleHeader.Render(fmt.Sprintf("layer %d", l.Number)) + "\n")
		var boxes []string
		for _, id := range l.NodeIDs {
			boxes = append(boxes, layerBox(id, plan))
		}
		for start := 0; start < len(boxes); start += maxBoxesPerRow {
			end := min(start+maxBoxesPerRow, len(boxes))
			sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes[start:end]...) + "\n")
		}
	}
	return sb.String()
}

func layerBox(id string, plan *work.Plan) string {
	it := plan.Find(id)
	if it == nil {
		return styleBox.Render(id)
	}
	lines := []string{
		styleRef.Render(id),
		statusStyle(it.Status).Render(statusIcon(it.Status) + " " + string(it.Status)),
	}
	if deps := it.DependsOn; len(deps) > 0 {
		lines = append(lines, styleMuted.Render("← "+strings.Join(deps, ", ")))
	}
	if children := plan.Children(id); len(children) > 0 {
		lines = append(lines, styleMuted.Render(fmt.Sprintf("%d child(ren)", len(children))))
	}
	return styleBox.Render(strings.Join(lines, "\n"))
}
