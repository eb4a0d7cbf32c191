// Package ui renders tempo results for humans. Status lines go to the error
// stream, listings to the output stream, and --json output bypasses the
// Printer entirely.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/papapumpkin/tempo/internal/knowledge"
	"github.com/papapumpkin/tempo/internal/schedule"
	"github.com/papapumpkin/tempo/internal/telemetry"
	"github.com/papapumpkin/tempo/internal/work"
)

// Printer writes human-readable output.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

// New returns a Printer on stdout and stderr.
func New() *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr}
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Error prints msg as an error.
func (p *Printer) Error(msg string) {
	fmt.Fprintf(p.Err, "%s %s\n", styleError.Render("error:"), msg)
}

// Warn prints a warning.
func (p *Printer) Warn(msg string) {
	fmt.Fprintf(p.Err, "%s %s\n", styleWarn.Render(iconWarn), msg)
}

// Info prints a muted status line.
func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.Err, styleMuted.Render(msg))
}

// Success prints a confirmation.
func (p *Printer) Success(msg string) {
	fmt.Fprintf(p.Err, "%s %s\n", styleSuccess.Render(iconDone), msg)
}

// Skipped warns about documents an aggregate operation could not use.
func (p *Printer) Skipped(skips []work.Skip) {
	for _, s := range skips {
		name := s.Path
		if name == "" {
			name = s.ID
		}
		p.Warn(fmt.Sprintf("skipped %s: %s", name, s.Reason()))
	}
}

// Selection prints the chosen item or explains why there is none.
func (p *Printer) Selection(sel schedule.Selection) {
	p.Skipped(sel.Skipped)
	if sel.Item != nil {
		fmt.Fprintf(p.Out, "%s %s  %s %s\n", styleHeader.Render(iconNext), styleRef.Render(sel.Item.Key),
			sel.Item.Item.Title, styleMuted.Render(fmt.Sprintf("(p%d)", sel.Item.Item.Priority)))
		return
	}
	p.Diagnosis(sel.Diagnosis)
}

// Wave prints a wave and any scope conflicts among its members.
func (p *Printer) Wave(w schedule.Wave) {
	p.Skipped(w.Skipped)
	if len(w.Items) == 0 {
		p.Diagnosis(w.Diagnosis)
		return
	}
	fmt.Fprintln(p.Out, styleHeader.Render(fmt.Sprintf("wave  priority %d  (%d item(s))", w.Priority, len(w.Items))))
	for _, c := range w.Items {
		fmt.Fprintf(p.Out, "  %s %-24s %s\n", styleHeader.Render(iconNext), c.Key, c.Item.Title)
	}
	for _, c := range w.Conflicts {
		p.Warn(fmt.Sprintf("scope overlap %s ↔ %s on %s", c.A, c.B, c.Match))
	}
}

// Diagnosis explains an empty selection.
func (p *Printer) Diagnosis(d schedule.Diagnosis) {
	switch d.Reason {
	case schedule.ReasonAllDone:
		fmt.Fprintf(p.Out, "%s all done\n", styleSuccess.Render(iconDone))
		return
	case schedule.ReasonCoolingDown:
		msg := "every unblocked item is cooling down"
		if d.RetryAt != nil {
			msg += "; next retry at " + d.RetryAt.Local().Format(time.RFC3339)
		}
		fmt.Fprintf(p.Out, "%s %s\n", styleWarn.Render(iconRetry), msg)
	default:
		fmt.Fprintf(p.Out, "%s nothing is unblocked\n", styleError.Render(iconFailed))
	}
	if len(d.InProgress) > 0 {
		fmt.Fprintf(p.Out, "  in progress: %s\n", strings.Join(d.InProgress, ", "))
	}
	if len(d.Blockers) > 0 {
		fmt.Fprintf(p.Out, "  waiting on:  %s\n", strings.Join(d.Blockers, ", "))
	}
	for _, poison := range d.Poisoned {
		fmt.Fprintf(p.Out, "  %s spec %s has a dependency cycle: %s\n",
			styleError.Render(iconFailed), poison.Spec, strings.Join(poison.Cycle, " → "))
	}
}

// Outcome reports a transition made by verb (begin, complete, fail, retry).
func (p *Printer) Outcome(verb string, o schedule.Outcome) {
	to := o.Item.Status
	switch {
	case o.Retrying:
		msg := fmt.Sprintf("%s %s failed (attempt %d), back to pending", styleWarn.Render(iconRetry), o.Ref, o.Item.Attempts)
		if o.RetryAt != nil {
			msg += ", retry after " + o.RetryAt.Local().Format(time.RFC3339)
		}
		fmt.Fprintln(p.Err, msg)
	case to == work.StatusBlocked:
		fmt.Fprintf(p.Err, "%s %s blocked after %d attempt(s)\n", styleError.Render(iconFailed), o.Ref, o.Item.Attempts)
	default:
		fmt.Fprintf(p.Err, "%s %s %s  %s → %s\n", statusStyle(to).Render(statusIcon(to)), verb, styleRef.Render(o.Ref),
			o.From, statusStyle(to).Render(string(to)))
	}
	for _, ref := range o.Cascaded {
		fmt.Fprintf(p.Err, "  %s %s → %s\n", styleMuted.Render("cascade"), ref, to)
	}
	if len(o.Stranded) > 0 {
		fmt.Fprintf(p.Err, "  %s %s\n", styleWarn.Render("stranded:"), strings.Join(o.Stranded, ", "))
	}
}

// Classification prints the freshness of one entry with its anchors.
func (p *Printer) Classification(c knowledge.Classification) {
	fmt.Fprintf(p.Out, "%s  %s\n", styleRef.Render(c.ID), freshnessStyle(c.State).Render(string(c.State)))
	if !c.EntryTime.IsZero() {
		fmt.Fprintf(p.Out, "  entry time: %s\n", c.EntryTime.Local().Format(time.RFC3339))
	}
	for _, a := range c.Anchors {
		switch {
		case !a.Exists:
			fmt.Fprintf(p.Out, "  %s %s %s\n", styleError.Render(iconFailed), a.Path, styleMuted.Render("(missing)"))
		case a.Time.After(c.EntryTime):
			fmt.Fprintf(p.Out, "  %s %s %s\n", styleWarn.Render(iconWarn), a.Path,
				styleMuted.Render(fmt.Sprintf("(%s %s)", a.Source, a.Time.Local().Format(time.RFC3339))))
		default:
			fmt.Fprintf(p.Out, "  %s %s %s\n", styleSuccess.Render(iconDone), a.Path,
				styleMuted.Render(fmt.Sprintf("(%s %s)", a.Source, a.Time.Local().Format(time.RFC3339))))
		}
	}
	if c.Error != "" {
		fmt.Fprintf(p.Out, "  %s\n", styleError.Render(c.Error))
	}
}

// Rebuild summarizes a rebuild pass.
func (p *Printer) Rebuild(r knowledge.RebuildReport) {
	p.Skipped(r.Skipped)
	for _, id := range r.Pruned {
		fmt.Fprintf(p.Out, "  %s %s %s\n", styleWarn.Render("~"), id, styleMuted.Render("anchors pruned"))
	}
	for _, id := range r.Deleted {
		fmt.Fprintf(p.Out, "  %s %s %s\n", styleError.Render("×"), id, styleMuted.Render("deleted"))
	}
	fmt.Fprintf(p.Err, "%s rebuild complete: valid: %d, pruned: %d, deleted: %d, skipped: %d\n",
		styleSuccess.Render(iconDone), r.Valid, len(r.Pruned), len(r.Deleted), len(r.Skipped))
}

// SpecDetail prints a spec's metadata, body and item summary.
func (p *Printer) SpecDetail(spec work.Spec, plan *work.Plan) {
	fmt.Fprintf(p.Out, "%s  %s  %s\n", styleHeader.Render(spec.ID), spec.Title, styleMuted.Render(string(spec.Status)))
	if body := strings.TrimSpace(spec.Body); body != "" {
		fmt.Fprintf(p.Out, "\n%s\n", body)
	}
	if plan == nil {
		return
	}
	counts := make(map[work.Status]int)
	items := plan.Items()
	for _, it := range items {
		counts[it.Status]++
	}
	fmt.Fprintf(p.Out, "\n%d item(s): %d done, %d in progress, %d pending, %d blocked\n", len(items),
		counts[work.StatusDone], counts[work.StatusInProgress], counts[work.StatusPending], counts[work.StatusBlocked])
}

// Event prints one telemetry event on a single line.
func (p *Printer) Event(e telemetry.Event) {
	ts := e.Timestamp.Local().Format("15:04:05")
	subject := e.Ref
	if subject == "" {
		subject = e.Spec
	}
	var detail string
	switch d := e.Data.(type) {
	case map[string]any:
		if from, ok := d["from"]; ok {
			detail = fmt.Sprintf("%v → %v", from, d["to"])
			if r, ok := d["reason"]; ok && r != "" {
				detail += fmt.Sprintf(" (%v)", r)
			}
		} else if len(d) > 0 {
			b, _ := json.Marshal(d)
			detail = string(b)
		}
	case nil:
	default:
		b, _ := json.Marshal(d)
		detail = string(b)
	}
	fmt.Fprintf(p.Out, "%s  %-18s %-24s %s\n", styleMuted.Render(ts), e.Kind, subject, detail)
}
