package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/joshharrison/schedcheck/internal/batch"
	"github.com/joshharrison/schedcheck/internal/report"
	"github.com/joshharrison/schedcheck/internal/ui"
)

// Reporter renders a schedulability report.
type Reporter struct {
	Report *report.Report
}

// New creates a new Reporter.
func New(r *report.Report) *Reporter {
	return &Reporter{Report: r}
}

// Print writes a terminal-friendly report table.
func (r *Reporter) Print(w io.Writer) {
	rep := r.Report

	fmt.Fprintf(w, "%s %s — %s — %d tasks\n",
		ui.BoldCyan("⏱ schedcheck"),
		ui.Bold(rep.TaskSet),
		ui.Bold(strings.ToUpper(string(rep.Discipline))),
		rep.TaskCount)
	fmt.Fprintf(w, "  Utilization: %s  Bound: %s  (%s)\n\n",
		ui.Bold(fmt.Sprintf("%.4f", rep.Utilization)),
		fmt.Sprintf("%.4f", rep.Bound),
		ui.Dim("bound verdict: "+rep.BoundVerdict.String()))

	fmt.Fprintf(w, "    %-2s %-16s %4s %10s %10s %10s %10s %10s\n",
		"", "TASK", "PRIO", "PERIOD", "WCET", "DEADLINE", "RESPONSE", "SLACK")
	for _, t := range rep.Tasks {
		r.printTask(w, t)
	}
	fmt.Fprintln(w)

	exact := ""
	if !rep.Exact {
		exact = ui.Yellow(" (sufficient test only)")
	}
	fmt.Fprintf(w, "  %s %s via %s%s\n",
		ui.VerdictIcon(rep.Verdict.String()),
		ui.Verdict(rep.Verdict.String()),
		ui.Bold(string(rep.Method)),
		exact)
	for _, n := range rep.Notes {
		fmt.Fprintf(w, "  %s %s\n", ui.Dim("•"), ui.Dim(n))
	}
}

func (r *Reporter) printTask(w io.Writer, t report.TaskResult) {
	name := truncateName(t.Name, 16)

	resp, slack := "-", "-"
	if t.ResponseTime != nil {
		resp = fmt.Sprintf("%d", *t.ResponseTime)
	}
	if t.Slack != nil {
		slack = fmt.Sprintf("%d", *t.Slack)
		if *t.Slack < 0 {
			slack = ui.Red(slack)
		}
	}

	fmt.Fprintf(w, "    %s  %-16s %4d %10d %10d %10d %10s %10s\n",
		ui.TaskIcon(t.Schedulable), name, t.Priority, t.Period, t.WCET, t.Deadline, resp, slack)
}

// truncateName shortens name to at most limit runes, marking the cut with "...".
func truncateName(name string, limit int) string {
	runes := []rune(name)
	if len(runes) <= limit {
		return name
	}
	return string(runes[:limit-3]) + "..."
}

// JSON returns the report as indented JSON.
func (r *Reporter) JSON() ([]byte, error) {
	return json.MarshalIndent(r.Report, "", "  ")
}

// Summary returns a one-paragraph summary string.
func (r *Reporter) Summary() string {
	var b strings.Builder
	rep := r.Report

	statusEmoji := "✅"
	if !rep.Schedulable() {
		statusEmoji = "❌"
	}

	fmt.Fprintf(&b, "\n%s %s\n", statusEmoji, ui.BoldCyan("Schedulability Summary"))
	fmt.Fprintf(&b, "%s\n", ui.Cyan("══════════════════════"))
	fmt.Fprintf(&b, "Task set:    %s\n", rep.TaskSet)
	fmt.Fprintf(&b, "Report:      %s\n", ui.Dim(rep.ID))
	fmt.Fprintf(&b, "Discipline:  %s\n", rep.Discipline)
	fmt.Fprintf(&b, "Utilization: %.4f of %.4f\n", rep.Utilization, rep.Bound)
	fmt.Fprintf(&b, "Verdict:     %s\n", ui.Verdict(rep.Verdict.String()))

	if failed := rep.Failed(); len(failed) > 0 && rep.Method == report.MethodRTA {
		fmt.Fprintf(&b, "\n%s\n", ui.BoldRed("Deadline misses:"))
		for _, t := range failed {
			resp := ""
			if t.ResponseTime != nil {
				resp = fmt.Sprintf("R=%d > D=%d", *t.ResponseTime, t.Deadline)
			}
			fmt.Fprintf(&b, "  %s %s  %s\n", ui.Red("✗"), ui.BoldMagenta(t.Name), ui.Dim(resp))
		}
	}
	return b.String()
}

// PrintBatch writes one line per outcome followed by totals.
func PrintBatch(w io.Writer, outcomes []batch.Outcome) {
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(w, "  %s %s  %s\n", ui.Yellow("!"), ui.TaskPrefix(o.Path), ui.Red(o.Err.Error()))
			continue
		}
		rep := o.Report
		fmt.Fprintf(w, "  %s %s  %s  U=%.4f  %s\n",
			ui.VerdictIcon(rep.Verdict.String()),
			ui.TaskPrefix(o.Path),
			ui.Verdict(rep.Verdict.String()),
			rep.Utilization,
			ui.Dim(string(rep.Method)))
	}

	ok, notOK, errored := batch.Tally(outcomes)
	fmt.Fprintf(w, "%s\n", ui.Cyan("──────────────────────────"))
	fmt.Fprintf(w, "Totals:  %s  %s  %s\n",
		ui.Green(fmt.Sprintf("%d schedulable", ok)),
		ui.Red(fmt.Sprintf("%d not schedulable", notOK)),
		ui.Yellow(fmt.Sprintf("%d errors", errored)))
}
