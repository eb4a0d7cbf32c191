package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/papapumpkin/tempo/internal/knowledge"
	"github.com/papapumpkin/tempo/internal/schedule"
	"github.com/papapumpkin/tempo/internal/work"
)

func (p *Printer) newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(p.Out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

// Items lists every item of a snapshot. Unblocked items are marked ready.
func (p *Printer) Items(snap *schedule.Snapshot) {
	p.Skipped(snap.Skipped)
	ready := make(map[string]bool)
	for _, c := range snap.Resolver.Unblocked() {
		ready[c.Key] = true
	}
	tw := p.newTable(table.Row{"Ref", "Title", "Status", "P", "Depends on", "Attempts"})
	for _, plan := range snap.Plans {
		for _, it := range plan.Items() {
			ref := work.Ref{SpecID: plan.SpecID, ItemID: it.ID}.String()
			status := statusStyle(it.Status).Render(statusIcon(it.Status) + " " + string(it.Status))
			if ready[ref] {
				status += styleSuccess.Render(" (ready)")
			}
			title := it.Title
			if plan.IsContainer(it.ID) {
				title = styleHeader.Render(title)
			}
			tw.AppendRow(table.Row{ref, title, status, it.Priority, strings.Join(it.DependsOn, ", "), it.Attempts})
		}
	}
	tw.Render()
}

// Specs lists specs with their status.
func (p *Printer) Specs(specs []work.Spec) {
	tw := p.newTable(table.Row{"Spec", "Title", "Status", "Updated"})
	for _, s := range specs {
		tw.AppendRow(table.Row{s.ID, s.Title, s.Status, s.Updated.Local().Format(time.DateTime)})
	}
	tw.Render()
}

// Stuck lists stalled items and orphaned reservations.
func (p *Printer) Stuck(items []schedule.StuckItem) {
	if len(items) == 0 {
		p.Success("nothing stuck")
		return
	}
	tw := p.newTable(table.Row{"Kind", "ID", "Age", "Details"})
	for _, s := range items {
		tw.AppendRow(table.Row{s.Kind, s.ID, s.Age.Round(time.Second), s.Details})
	}
	tw.Render()
}

// Classifications lists the freshness of many entries.
func (p *Printer) Classifications(cs []knowledge.Classification) {
	tw := p.newTable(table.Row{"Entry", "State", "Anchors", "Detail"})
	counts := make(map[knowledge.Freshness]int)
	for _, c := range cs {
		counts[c.State]++
		detail := c.Error
		switch {
		case len(c.Missing) > 0:
			detail = "missing " + strings.Join(c.Missing, ", ")
		case len(c.Newer) > 0:
			detail = "changed " + strings.Join(c.Newer, ", ")
		}
		tw.AppendRow(table.Row{c.ID, freshnessStyle(c.State).Render(string(c.State)), len(c.Anchors), detail})
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d fresh", counts[knowledge.Fresh]),
		fmt.Sprintf("%d stale", counts[knowledge.Stale]),
		fmt.Sprintf("%d orphaned, %d unknown", counts[knowledge.Orphaned], counts[knowledge.Unknown])})
	tw.Render()
}

// Index lists the knowledge index by directory.
func (p *Printer) Index(idx *work.Index) {
	dirs := make([]string, 0, len(idx.Dirs))
	for d := range idx.Dirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	tw := p.newTable(table.Row{"Directory", "Entry", "Summary"})
	for _, d := range dirs {
		for _, e := range idx.Dirs[d] {
			tw.AppendRow(table.Row{d, e.ID, e.Summary})
		}
	}
	tw.Render()
}
