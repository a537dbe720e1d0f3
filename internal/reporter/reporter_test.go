package reporter

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/joshharrison/schedcheck/internal/batch"
	"github.com/joshharrison/schedcheck/internal/report"
	"github.com/joshharrison/schedcheck/internal/taskset"
)

func init() {
	color.NoColor = true
}

func makeReport(t *testing.T, opts report.Options, tasks ...taskset.Task) *report.Report {
	t.Helper()
	ts, err := taskset.New("rover", "ms", tasks)
	if err != nil {
		t.Fatalf("build task set: %v", err)
	}
	rep, err := report.Generate(ts, opts)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return rep
}

func task(name string, period, wcet int64, prio int) taskset.Task {
	return taskset.Task{Name: name, Period: period, WCET: wcet, Deadline: period, Priority: prio}
}

func schedulableRTA(t *testing.T) *report.Report {
	return makeReport(t, report.Options{ForceRTA: true},
		task("sensor", 10, 2, 0), task("control", 20, 5, 1), task("telemetry", 50, 10, 2))
}

func missingRTA(t *testing.T) *report.Report {
	return makeReport(t, report.Options{}, task("a", 4, 2, 0), task("b", 6, 3, 1))
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	New(schedulableRTA(t)).Print(&buf)
	output := buf.String()

	for _, want := range []string{"schedcheck", "rover", "RM", "sensor", "telemetry", "SCHEDULABLE", "response-time", "19"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
}

func TestPrint_Miss(t *testing.T) {
	var buf bytes.Buffer
	New(missingRTA(t)).Print(&buf)
	output := buf.String()

	if !strings.Contains(output, "NOT SCHEDULABLE") {
		t.Error("expected NOT SCHEDULABLE verdict")
	}
	if !strings.Contains(output, "✗") {
		t.Error("expected a failed task marker")
	}
}

func TestTruncateName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"sensor", "sensor"},
		{"exactly-sixteen!", "exactly-sixteen!"},
		{"telemetry-downlink-2", "telemetry-dow..."},
		{"ステレオカメラ処理タスク優先度高い制御ループ", "ステレオカメラ処理タスク優..."},
	}
	for _, c := range cases {
		got := truncateName(c.in, 16)
		if got != c.want {
			t.Errorf("truncateName(%q) = %q, want %q", c.in, got, c.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncateName(%q) produced invalid UTF-8", c.in)
		}
	}
}

func TestJSON(t *testing.T) {
	rep := schedulableRTA(t)
	data, err := New(rep).JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["verdict"] != "schedulable" {
		t.Errorf("expected verdict string, got %v", decoded["verdict"])
	}
	if decoded["id"] != rep.ID {
		t.Errorf("expected id %s, got %v", rep.ID, decoded["id"])
	}
	tasks, ok := decoded["tasks"].([]interface{})
	if !ok || len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %v", decoded["tasks"])
	}
	if rt := tasks[2].(map[string]interface{})["response_time"]; rt != float64(19) {
		t.Errorf("expected telemetry response_time 19, got %v", rt)
	}
}

func TestSummary(t *testing.T) {
	s := New(missingRTA(t)).Summary()
	if !strings.Contains(s, "Deadline misses") {
		t.Error("expected deadline miss section")
	}
	if !strings.Contains(s, "R=7 > D=6") {
		t.Errorf("expected response detail for b, got:\n%s", s)
	}

	s = New(schedulableRTA(t)).Summary()
	if strings.Contains(s, "Deadline misses") {
		t.Error("did not expect deadline miss section")
	}
}

func TestMarkdown_Default(t *testing.T) {
	md, err := New(schedulableRTA(t)).Markdown("")
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if !strings.Contains(md, "# Schedulability report: rover") {
		t.Error("expected title")
	}
	if !strings.Contains(md, "| telemetry | 2 | 50 | 10 | 50 | 19 | 31 | yes |") {
		t.Errorf("expected telemetry row, got:\n%s", md)
	}
	if !strings.Contains(md, "**schedulable**") {
		t.Error("expected bold verdict")
	}
}

func TestMarkdown_WithoutRTA(t *testing.T) {
	rep := makeReport(t, report.Options{}, task("a", 10, 1, 0), task("b", 20, 2, 1))
	md, err := New(rep).Markdown("")
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if !strings.Contains(md, "| a | 0 | 10 | 1 | 10 | - | - | yes |") {
		t.Errorf("expected placeholder response cells, got:\n%s", md)
	}
}

func TestMarkdown_CustomTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.tmpl")
	if err := os.WriteFile(path, []byte("{{.TaskSet}}={{.Verdict}}"), 0644); err != nil {
		t.Fatal(err)
	}
	md, err := New(missingRTA(t)).Markdown(path)
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if md != "rover=not-schedulable" {
		t.Errorf("expected custom render, got %q", md)
	}
}

func TestMarkdown_MissingTemplate(t *testing.T) {
	if _, err := New(missingRTA(t)).Markdown("/nonexistent/template.tmpl"); err == nil {
		t.Error("expected error for missing template file")
	}
}

func TestPrintBatch(t *testing.T) {
	outcomes := []batch.Outcome{
		{Path: "ok.yaml", Report: schedulableRTA(t)},
		{Path: "miss.yaml", Report: missingRTA(t)},
		{Path: "broken.yaml", Err: errors.New("broken.yaml: parse failed")},
	}
	var buf bytes.Buffer
	PrintBatch(&buf, outcomes)
	output := buf.String()

	for _, want := range []string{"ok.yaml", "miss.yaml", "parse failed", "1 schedulable", "1 not schedulable", "1 errors"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
}
