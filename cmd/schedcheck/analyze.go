package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshharrison/schedcheck/internal/batch"
	"github.com/joshharrison/schedcheck/internal/config"
	"github.com/joshharrison/schedcheck/internal/history"
	"github.com/joshharrison/schedcheck/internal/profiler"
	"github.com/joshharrison/schedcheck/internal/report"
	"github.com/joshharrison/schedcheck/internal/reporter"
	"github.com/joshharrison/schedcheck/internal/taskfile"
	"github.com/joshharrison/schedcheck/internal/taskset"
	"github.com/joshharrison/schedcheck/internal/ui"
)

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Analyse one or more task-set files",
		Long: `Analyse task-set files (YAML or JSON). With one file the full report is
printed; with several the files are analysed in parallel and summarised.
Exits with status 2 when any task set is not schedulable.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			opts, policy, err := analysisOptions(cfg)
			if err != nil {
				return err
			}
			if flagJSON {
				flagFormat = "json"
			}
			switch flagFormat {
			case "text", "json", "markdown":
			default:
				return fmt.Errorf("unknown format %q (want text, json or markdown)", flagFormat)
			}

			var store *history.Store
			if !flagNoHistory {
				store = openHistory(cfg)
				if store != nil {
					defer store.Close()
				}
			}

			ctx, cancel := signalContext()
			defer cancel()

			analyze := newAnalyzer(cfg, opts, policy, store)

			if len(args) == 1 {
				rep, err := analyze(ctx, args[0])
				if err != nil {
					return err
				}
				if err := render(rep); err != nil {
					return err
				}
				if !rep.Schedulable() {
					return errNotSchedulable
				}
				return nil
			}

			outcomes := batch.Run(ctx, args, analyze, cfg.MaxParallel)
			if err := renderBatch(outcomes); err != nil {
				return err
			}
			_, notOK, errored := batch.Tally(outcomes)
			if errored > 0 {
				return fmt.Errorf("%d of %d files could not be analysed", errored, len(outcomes))
			}
			if notOK > 0 {
				return errNotSchedulable
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagDiscipline, "discipline", "", "Scheduling discipline: rm or edf")
	cmd.Flags().BoolVar(&flagAllowConstrained, "allow-constrained", false, "EDF: accept deadlines shorter than periods (sufficient test only)")
	cmd.Flags().BoolVar(&flagRTA, "rta", false, "RM: run response-time analysis even when the bound decides")
	cmd.Flags().StringVar(&flagPriorities, "priorities", "", "Priority policy: auto, explicit, rm or dm")
	cmd.Flags().IntVar(&flagMaxIterations, "max-iterations", 0, "RTA iteration limit per task")
	cmd.Flags().StringVar(&flagSelect, "select", "", "gjson path to the task array (JSON files)")
	cmd.Flags().StringVar(&flagFormat, "format", "text", "Output format: text, json or markdown")
	cmd.Flags().StringVar(&flagTemplate, "template", "", "Custom markdown template path")
	cmd.Flags().StringVar(&flagOutput, "output", "", "Write the report to a file instead of stdout")
	cmd.Flags().StringVar(&flagProfiler, "profiler", "", "WCET profiler binary; measured WCETs replace declared ones")
	cmd.Flags().StringVar(&flagTarget, "target", "", "Profiler --target value")
	cmd.Flags().StringVar(&flagWindow, "window", "", "Profiler measurement window (e.g. 10s)")
	cmd.Flags().BoolVar(&flagNoHistory, "no-history", false, "Do not record the report")

	return cmd
}

// newAnalyzer returns the per-file pipeline: load, optionally measure,
// validate, analyse and record.
func newAnalyzer(cfg *config.Config, opts report.Options, policy taskset.PriorityPolicy, store *history.Store) batch.Analyzer {
	var measurer profiler.Measurer
	if cfg.ProfilerBin != "" {
		measurer = profiler.NewClient(cfg.ProfilerBin, flagTarget)
	}

	return func(ctx context.Context, path string) (*report.Report, error) {
		doc, err := taskfile.Load(path, taskfile.Options{Select: flagSelect})
		if err != nil {
			return nil, err
		}

		if measurer != nil {
			changes, err := profiler.Apply(ctx, doc, measurer, cfg.ProfilerWindow)
			if err != nil {
				return nil, err
			}
			for _, c := range changes {
				if c.Exceeded() {
					ui.Warn("%s %s measured WCET %d exceeds declared %d", ui.TaskPrefix(path), c.Task, c.Measured, c.Declared)
				}
			}
		}

		ts, err := taskset.BuildFromRaw(doc, policy)
		if err != nil {
			return nil, err
		}
		rep, err := report.Generate(ts, opts)
		if err != nil {
			return nil, fmt.Errorf("analyse %s: %w", ts.Name(), err)
		}

		if store != nil {
			if err := store.Record(ctx, rep); err != nil {
				ui.Warn("record report %s: %v", rep.ID, err)
			}
		}
		return rep, nil
	}
}

// render writes a single report in the selected format to stdout or --output.
func render(rep *report.Report) error {
	var buf bytes.Buffer
	r := reporter.New(rep)

	switch flagFormat {
	case "json":
		data, err := r.JSON()
		if err != nil {
			return err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	case "markdown":
		md, err := r.Markdown(flagTemplate)
		if err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		buf.WriteString(md)
	default:
		r.Print(&buf)
	}

	if err := writeOutput(buf.Bytes()); err != nil {
		return err
	}
	if flagFormat == "text" && flagOutput == "" {
		fmt.Fprint(os.Stderr, r.Summary())
	}
	return nil
}

type batchItem struct {
	Path   string         `json:"path"`
	Report *report.Report `json:"report,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func renderBatch(outcomes []batch.Outcome) error {
	if flagFormat != "json" {
		var buf bytes.Buffer
		reporter.PrintBatch(&buf, outcomes)
		return writeOutput(buf.Bytes())
	}

	items := make([]batchItem, len(outcomes))
	for i, o := range outcomes {
		items[i] = batchItem{Path: o.Path, Report: o.Report}
		if o.Err != nil {
			items[i].Error = o.Err.Error()
		}
	}
	if flagOutput == "" {
		return outputJSON(items)
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	return writeOutput(append(data, '\n'))
}

func writeOutput(data []byte) error {
	if flagOutput != "" {
		return os.WriteFile(flagOutput, data, 0644)
	}
	_, err := os.Stdout.Write(data)
	return err
}
