package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Sprint color functions for building styled strings.
var (
	Bold        = color.New(color.Bold).SprintFunc()
	Dim         = color.New(color.Faint).SprintFunc()
	Cyan        = color.New(color.FgCyan).SprintFunc()
	Green       = color.New(color.FgGreen).SprintFunc()
	Red         = color.New(color.FgRed).SprintFunc()
	Yellow      = color.New(color.FgYellow).SprintFunc()
	Magenta     = color.New(color.FgMagenta).SprintFunc()
	BoldCyan    = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldGreen   = color.New(color.Bold, color.FgGreen).SprintFunc()
	BoldRed     = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldYellow  = color.New(color.Bold, color.FgYellow).SprintFunc()
	BoldMagenta = color.New(color.Bold, color.FgMagenta).SprintFunc()
	BoldWhite   = color.New(color.Bold, color.FgWhite).SprintFunc()
)

// DisableColor turns off all styling, for --no-color and non-terminals.
func DisableColor() {
	color.NoColor = true
}

// PrintLogo renders the colored schedcheck banner to stderr.
func PrintLogo() {
	w := os.Stderr
	frame := color.New(color.FgCyan)
	ticks := color.New(color.FgYellow)
	brand := color.New(color.Bold, color.FgMagenta)
	tag := color.New(color.Faint)

	fmt.Fprintln(w)
	frame.Fprintln(w, "   +--------------------------------+")
	ticks.Fprintln(w, "   |  |‾‾|__|‾‾‾‾|____|‾|_|‾‾|___   |")
	brand.Fprintln(w, "   |   S C H E D C H E C K          |")
	ticks.Fprintln(w, "   |  ^    ^    ^    ^    ^    ^   |")
	frame.Fprintln(w, "   +--------------------------------+")
	tag.Fprintf(w, "   %s Real-time schedulability analysis\n", Dim("⏱"))
	fmt.Fprintln(w)
}

// Warn writes a warning line to stderr.
func Warn(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", Yellow("⚠️  Warning:"), fmt.Sprintf(format, args...))
}

// taskColors is a palette of distinct bold colors for differentiating tasks.
var taskColors = []func(a ...interface{}) string{
	BoldMagenta,
	BoldCyan,
	BoldYellow,
	BoldGreen,
	color.New(color.Bold, color.FgHiBlue).SprintFunc(),
	color.New(color.Bold, color.FgHiRed).SprintFunc(),
}

// taskColorIndex hashes a name to a palette index.
func taskColorIndex(name string) int {
	var h uint32
	for _, c := range name {
		h = h*31 + uint32(c)
	}
	return int(h % uint32(len(taskColors)))
}

// TaskPrefix returns a colored [name] prefix string. The same name always
// gets the same color.
func TaskPrefix(name string) string {
	c := taskColors[taskColorIndex(name)]
	return Dim("[") + c(name) + Dim("]")
}

// VerdictIcon returns a colored icon for a verdict string as produced by
// analysis.Verdict.String.
func VerdictIcon(verdict string) string {
	switch verdict {
	case "schedulable":
		return Green("✓")
	case "not-schedulable":
		return Red("✗")
	case "indeterminate":
		return Yellow("?")
	default:
		return Dim("◌")
	}
}

// Verdict returns a colored verdict label.
func Verdict(verdict string) string {
	switch verdict {
	case "schedulable":
		return BoldGreen("SCHEDULABLE")
	case "not-schedulable":
		return BoldRed("NOT SCHEDULABLE")
	case "indeterminate":
		return BoldYellow("INDETERMINATE")
	default:
		return Dim(verdict)
	}
}

// TaskIcon returns ✓ or ✗ for a single task outcome.
func TaskIcon(ok bool) string {
	if ok {
		return Green("✓")
	}
	return Red("✗")
}
