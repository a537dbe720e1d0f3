package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joshharrison/schedcheck/internal/analysis"
	"github.com/joshharrison/schedcheck/internal/api"
	"github.com/joshharrison/schedcheck/internal/config"
	"github.com/joshharrison/schedcheck/internal/history"
	"github.com/joshharrison/schedcheck/internal/report"
	"github.com/joshharrison/schedcheck/internal/reporter"
	"github.com/joshharrison/schedcheck/internal/sim"
	"github.com/joshharrison/schedcheck/internal/taskfile"
	"github.com/joshharrison/schedcheck/internal/taskset"
	"github.com/joshharrison/schedcheck/internal/ui"
)

// errNotSchedulable makes the process exit with status 2.
var errNotSchedulable = errors.New("task set not schedulable")

var (
	flagConfig      string
	flagEnvFile     string
	flagDB          string
	flagJSON        bool
	flagMaxParallel int
	flagNoColor     bool

	flagDiscipline       string
	flagAllowConstrained bool
	flagRTA              bool
	flagPriorities       string
	flagMaxIterations    int
	flagSelect           string
	flagFormat           string
	flagTemplate         string
	flagOutput           string
	flagProfiler         string
	flagTarget           string
	flagWindow           string
	flagNoHistory        bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "schedcheck",
		Short: "Schedulability analysis for periodic real-time task sets",
		Long: `schedcheck decides whether a set of periodic real-time tasks meets every
deadline on one preemptive processor, under rate-monotonic fixed priorities
(Liu-Layland bound and exact response-time analysis) or earliest deadline
first (utilization test).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagNoColor {
				ui.DisableColor()
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default .schedcheck/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Environment file to load before SCHEDCHECK_* overrides")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "History database path")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")
	rootCmd.PersistentFlags().IntVar(&flagMaxParallel, "max-parallel", 0, "Max concurrent analyses in batch mode")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(boundCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errNotSchedulable) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.Red("❌ Error:"), err)
		os.Exit(1)
	}
}

// loadConfig resolves configuration and applies any flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfig, flagEnvFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = flagDB
	}
	if flags.Changed("max-parallel") {
		cfg.MaxParallel = flagMaxParallel
	}
	if flags.Lookup("discipline") != nil && flags.Changed("discipline") {
		cfg.Discipline = flagDiscipline
	}
	if flags.Lookup("priorities") != nil && flags.Changed("priorities") {
		cfg.Priorities = flagPriorities
	}
	if flags.Lookup("allow-constrained") != nil && flags.Changed("allow-constrained") {
		cfg.AllowConstrained = flagAllowConstrained
	}
	if flags.Lookup("max-iterations") != nil && flags.Changed("max-iterations") {
		cfg.MaxIterations = flagMaxIterations
	}
	if flags.Lookup("profiler") != nil && flags.Changed("profiler") {
		cfg.ProfilerBin = flagProfiler
	}
	if flags.Lookup("window") != nil && flags.Changed("window") {
		if cfg.ProfilerWindow, err = time.ParseDuration(flagWindow); err != nil {
			return nil, fmt.Errorf("--window: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// analysisOptions converts configuration into report options and a priority policy.
func analysisOptions(cfg *config.Config) (report.Options, taskset.PriorityPolicy, error) {
	d, err := report.ParseDiscipline(cfg.Discipline)
	if err != nil {
		return report.Options{}, "", err
	}
	policy, err := taskset.ParsePolicy(cfg.Priorities)
	if err != nil {
		return report.Options{}, "", err
	}
	return report.Options{
		Discipline:       d,
		AllowConstrained: cfg.AllowConstrained,
		ForceRTA:         flagRTA,
		MaxIterations:    cfg.MaxIterations,
	}, policy, nil
}

// openHistory opens the history store, warning and returning nil on failure.
func openHistory(cfg *config.Config) *history.Store {
	store, err := history.New(cfg.DBPath)
	if err != nil {
		ui.Warn("history disabled: %v", err)
		return nil
	}
	return store
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintf(os.Stderr, "\n🛑 %s\n", ui.Yellow("Received interrupt, cancelling..."))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func boundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bound N...",
		Short: "Print the Liu-Layland utilization bound for N tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			type row struct {
				N     int     `json:"n"`
				Bound float64 `json:"bound"`
			}
			rows := make([]row, 0, len(args))
			for _, a := range args {
				n, err := strconv.Atoi(a)
				if err != nil || n < 1 {
					return fmt.Errorf("N must be a positive integer, got %q", a)
				}
				rows = append(rows, row{N: n, Bound: analysis.LiuLaylandBound(n)})
			}

			if flagJSON {
				return outputJSON(rows)
			}
			for _, r := range rows {
				fmt.Printf("  n=%-4d %s\n", r.N, ui.Bold(fmt.Sprintf("%.6f", r.Bound)))
			}
			return nil
		},
	}
}

func simulateCmd() *cobra.Command {
	var flagPolicy string
	var flagMaxHorizon int64

	cmd := &cobra.Command{
		Use:   "simulate FILE",
		Short: "Simulate the task set over one hyperperiod and report deadline misses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			policy, err := taskset.ParsePolicy(cfg.Priorities)
			if err != nil {
				return err
			}

			if flagPolicy == "" {
				d, err := report.ParseDiscipline(cfg.Discipline)
				if err != nil {
					return err
				}
				flagPolicy = "fp"
				if d == report.EDF {
					flagPolicy = "edf"
				}
			}
			simPolicy, err := sim.ParsePolicy(flagPolicy)
			if err != nil {
				return err
			}
			if flagMaxHorizon > 0 {
				cfg.SimMaxHorizon = flagMaxHorizon
			}

			doc, err := taskfile.Load(args[0], taskfile.Options{Select: flagSelect})
			if err != nil {
				return err
			}
			ts, err := taskset.BuildFromRaw(doc, policy)
			if err != nil {
				return err
			}
			if ts.HasBlocking() {
				ui.Warn("blocking terms are not simulated")
			}

			trace, err := sim.Run(ts, sim.Options{Policy: simPolicy, MaxHorizon: cfg.SimMaxHorizon})
			if err != nil {
				return err
			}

			if flagJSON {
				if err := outputJSON(trace); err != nil {
					return err
				}
			} else {
				printTrace(ts, trace)
			}
			if !trace.Schedulable() {
				return errNotSchedulable
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagPolicy, "policy", "", "Scheduling policy: edf or fp (default follows --discipline)")
	cmd.Flags().StringVar(&flagDiscipline, "discipline", "", "Discipline used to pick the default policy")
	cmd.Flags().StringVar(&flagPriorities, "priorities", "", "Priority policy: auto, explicit, rm or dm")
	cmd.Flags().StringVar(&flagSelect, "select", "", "gjson path to the task array (JSON files)")
	cmd.Flags().Int64Var(&flagMaxHorizon, "max-horizon", 0, "Largest hyperperiod to simulate")

	return cmd
}

func printTrace(ts *taskset.TaskSet, trace *sim.Trace) {
	fmt.Printf("%s %s — %s — H=%d %s\n",
		ui.BoldCyan("⏱ simulate"), ui.Bold(ts.Name()), ui.Bold(string(trace.Policy)), trace.Hyperperiod, ts.Unit())
	fmt.Printf("  Busy %d of %d, %d preemptions\n\n", trace.Busy, trace.End, trace.Preemptions)

	fmt.Printf("    %-2s %-16s %6s %10s %8s\n", "", "TASK", "JOBS", "WORST", "MISSES")
	for _, st := range trace.Tasks {
		fmt.Printf("    %s  %-16s %6d %10d %8d\n", ui.TaskIcon(st.Misses == 0), st.Task, st.Jobs, st.WorstResponse, st.Misses)
	}
	fmt.Println()

	const shown = 10
	for i, m := range trace.Misses {
		if i == shown {
			fmt.Printf("  %s\n", ui.Dim(fmt.Sprintf("... %d more", len(trace.Misses)-shown)))
			break
		}
		finished := "never"
		if m.Finished >= 0 {
			finished = strconv.FormatInt(m.Finished, 10)
		}
		fmt.Printf("  %s %s released %d, deadline %d, finished %s\n",
			ui.Red("✗"), ui.TaskPrefix(m.Task), m.Release, m.Deadline, finished)
	}

	if trace.Schedulable() {
		fmt.Printf("  %s %s\n", ui.VerdictIcon("schedulable"), ui.BoldGreen("no deadline misses"))
	} else {
		fmt.Printf("  %s %s\n", ui.VerdictIcon("not-schedulable"), ui.BoldRed(fmt.Sprintf("%d deadline misses", len(trace.Misses))))
	}
}

func historyCmd() *cobra.Command {
	var flagLimit int

	cmd := &cobra.Command{
		Use:   "history [REPORT-ID]",
		Short: "List recorded reports, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := history.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			if len(args) == 1 {
				rep, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if rep == nil {
					return fmt.Errorf("report %s not found", args[0])
				}
				if flagJSON {
					return outputJSON(rep)
				}
				reporter.New(rep).Print(os.Stdout)
				return nil
			}

			entries, err := store.List(ctx, flagLimit)
			if err != nil {
				return err
			}
			if flagJSON {
				if entries == nil {
					entries = []history.Entry{}
				}
				return outputJSON(entries)
			}
			if len(entries) == 0 {
				fmt.Println(ui.Dim("No reports recorded."))
				return nil
			}
			for _, e := range entries {
				fmt.Printf("  %s %s  %-20s %-4s U=%.4f  %s\n",
					ui.VerdictIcon(e.Verdict.String()),
					ui.Dim(e.ID),
					e.TaskSet,
					e.Discipline,
					e.Utilization,
					ui.Dim(e.CreatedAt.Local().Format("2006-01-02 15:04:05")))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&flagLimit, "limit", history.DefaultLimit, "Number of reports to list")
	return cmd
}

func serveCmd() *cobra.Command {
	var flagAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if flagAddr != "" {
				cfg.Addr = flagAddr
			}
			d, err := report.ParseDiscipline(cfg.Discipline)
			if err != nil {
				return err
			}
			policy, err := taskset.ParsePolicy(cfg.Priorities)
			if err != nil {
				return err
			}

			var store api.Store
			if !flagNoHistory {
				if s := openHistory(cfg); s != nil {
					defer s.Close()
					store = s
				}
			}

			ctx, cancel := signalContext()
			defer cancel()

			ui.PrintLogo()
			srv := api.New(store, api.Defaults{
				Discipline:       d,
				Priorities:       policy,
				AllowConstrained: cfg.AllowConstrained,
				MaxIterations:    cfg.MaxIterations,
			})
			return srv.Serve(ctx, cfg.Addr)
		},
	}

	cmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (default :8080)")
	cmd.Flags().StringVar(&flagDiscipline, "discipline", "", "Default discipline: rm or edf")
	cmd.Flags().StringVar(&flagPriorities, "priorities", "", "Default priority policy")
	cmd.Flags().BoolVar(&flagAllowConstrained, "allow-constrained", false, "Accept D != T under EDF by default")
	cmd.Flags().BoolVar(&flagNoHistory, "no-history", false, "Do not record reports")
	return cmd
}

func configCmd() *cobra.Command {
	var flagWrite bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration, or write it with --write",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if flagWrite {
				path := flagConfig
				if path == "" {
					path = config.DefaultPath()
				}
				if err := config.Save(path, cfg); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "%s %s\n", ui.Green("✓ Wrote"), path)
				return nil
			}
			if flagJSON {
				return outputJSON(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagWrite, "write", false, "Save the effective configuration to the config file")
	return cmd
}

func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
