package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"extendaudit/internal/config"
	"extendaudit/internal/finding"
	"extendaudit/internal/graph"
	"extendaudit/internal/logging"
	"extendaudit/internal/pipeline"
	"extendaudit/internal/ruleconfig"
	"extendaudit/internal/rules"
	"extendaudit/internal/script"
	"extendaudit/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	rootCmd = &cobra.Command{
		Use:           "extendaudit",
		Short:         "Static auditor for Workday Extend applications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	configPath string
	dbPath     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(pipeline.ExitUsage)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "extendaudit.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the run history database (SQLite); defaults to storage.path")

	scanCmd.Flags().String("format", "text", "Output format: text or json")
	scanCmd.Flags().StringSlice("rules", nil, "Additional rule configuration files, applied in order")
	scanCmd.Flags().Duration("timeout", 0, "Run budget; defaults to run.timeout")
	scanCmd.Flags().Int("workers", 0, "Parallel workers; defaults to run.workers or GOMAXPROCS")
	scanCmd.Flags().String("changed-since", "", "Only report findings in files affected by changes since this git ref")
	scanCmd.Flags().Bool("no-store", false, "Do not record the run in the history database")
	scanCmd.Flags().Bool("watch", false, "Rescan whenever an artifact under path changes")

	historyCmd.Flags().Int("limit", 20, "Number of runs to list")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(graphCmd)
}

// loadConfig loads the configuration file and builds the logger from it.
func loadConfig() (*config.Config, *zap.Logger) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load config: %v\n", err)
		os.Exit(pipeline.ExitUsage)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(pipeline.ExitUsage)
	}
	return cfg, logger
}

// initStore opens the run history database.
func initStore(cfg *config.Config) (*storage.SQLiteStore, error) {
	path := dbPath
	if path == "" {
		path = cfg.Storage.Path
	}
	return storage.NewSQLiteStore(path)
}

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Audit an application directory or a single artifact",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		format, _ := cmd.Flags().GetString("format")
		if format != "text" && format != "json" {
			fmt.Fprintf(os.Stderr, "❌ Unknown format %q (want text or json)\n", format)
			os.Exit(pipeline.ExitUsage)
		}

		cfg, logger := loadConfig()
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		s := pipeline.NewScan(path)
		s.Config = cfg
		s.DBPath = dbPath
		s.Logger = logger
		s.RuleFiles, _ = cmd.Flags().GetStringSlice("rules")
		s.Timeout, _ = cmd.Flags().GetDuration("timeout")
		s.Workers, _ = cmd.Flags().GetInt("workers")
		s.ChangedSince, _ = cmd.Flags().GetString("changed-since")
		s.NoStore, _ = cmd.Flags().GetBool("no-store")

		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			err := s.Watch(ctx, pipeline.DefaultDebounce, func(report *pipeline.Report, err error) {
				if err != nil && report == nil {
					fmt.Fprintf(os.Stderr, "❌ Scan failed: %v\n", err)
					return
				}
				writeReport(format, report)
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "❌ Watch failed: %v\n", err)
				os.Exit(pipeline.ExitCodeFor(err))
			}
			return
		}

		report, err := s.Run(ctx)
		if err != nil && report == nil {
			fmt.Fprintf(os.Stderr, "❌ Scan failed: %v\n", err)
			os.Exit(pipeline.ExitCodeFor(err))
		}
		writeReport(format, report)
		os.Exit(report.ExitCode)
	},
}

func writeReport(format string, report *pipeline.Report) {
	var err error
	if format == "json" {
		err = pipeline.WriteJSON(os.Stdout, report)
	} else {
		err = pipeline.WriteText(os.Stdout, report)
	}
	if err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the rule catalog with the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger := loadConfig()
		defer logger.Sync()

		all := rules.Registry()
		configs, warnings := ruleconfig.Resolve(rules.Specs(all), cfg.Layers()...)
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "⚠️  Config: %s\n", w)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RULE\tCATEGORY\tSEVERITY\tENABLED\tREQUIRES\tDESCRIPTION")
		for _, r := range all {
			d := r.Descriptor()
			eff := configs[d.ID]
			requires := "-"
			if len(d.Requires) > 0 {
				names := make([]string, len(d.Requires))
				for i, k := range d.Requires {
					names[i] = string(k)
				}
				requires = strings.Join(names, ",")
				if d.PartialExecution {
					requires += " (partial)"
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n", d.ID, d.Category, eff.Severity(d.Severity), eff.Enabled, requires, d.Description)
		}
		if err := tw.Flush(); err != nil {
			log.Fatalf("Failed to write rules: %v", err)
		}
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger := loadConfig()
		defer logger.Sync()

		store, err := initStore(cfg)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := store.ListRuns(cmd.Context(), limit)
		if err != nil {
			log.Fatalf("Failed to list runs: %v", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tROOT\tACTION\tADVICE\tEXIT")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%d\t%d\t%d\n",
				r.ID, r.StartedAt.Local().Format(time.DateTime), r.Duration, r.Root, r.Action, r.Advice, r.ExitCode)
		}
		if err := tw.Flush(); err != nil {
			log.Fatalf("Failed to write runs: %v", err)
		}
	},
}

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the findings of a recorded run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger := loadConfig()
		defer logger.Sync()

		store, err := initStore(cfg)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer store.Close()

		run, err := store.LoadRun(cmd.Context(), args[0])
		if errors.Is(err, storage.ErrRunNotFound) {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(pipeline.ExitUsage)
		}
		if err != nil {
			log.Fatalf("Failed to load run: %v", err)
		}

		fmt.Printf("Run %s of %s at %s\n", run.ID, run.Root, run.StartedAt.Local().Format(time.DateTime))
		for _, f := range run.Findings {
			fmt.Println(f)
		}
		action, advice := finding.CountBySeverity(run.Findings)
		fmt.Printf("Summary: %d ACTION, %d ADVICE\n", action, advice)
		if !run.Context.IsComplete() {
			fmt.Println("⚠️  Some rules did not run or ran partially in this run.")
		}
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph <file.script>",
	Short: "Print the reference graph of a standalone script as a Mermaid diagram",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(pipeline.ExitUsage)
		}

		prog, err := script.Parse(script.Standalone(args[0], string(data)))
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to parse %s: %v\n", args[0], err)
			os.Exit(pipeline.ExitUsage)
		}

		fmt.Print(graph.Mermaid(graph.FromProgram(prog)))
	},
}
