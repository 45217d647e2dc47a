package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"pca-viewer/internal/analyzer"
	"pca-viewer/internal/analyzer/remote"
	"pca-viewer/internal/collector"
	"pca-viewer/internal/dashboard"
	"pca-viewer/internal/pca"
	"pca-viewer/internal/runs"
	"pca-viewer/internal/shared/config"
	"pca-viewer/internal/shared/storage/db"
)

const resultFile = "result.json"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pcactl",
		Short:         "Submit .xyz point clouds for PCA and render the results",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newAnalyzeCmd(), newRenderCmd())
	return root
}

func newAnalyzeCmd() *cobra.Command {
	var endpoint string
	var timeout time.Duration
	var outDir string
	var format string
	var record bool

	cmd := &cobra.Command{
		Use:   "analyze [paths...]",
		Short: "Send .xyz files to the PCA service and write charts and an export",
		Long: `Send every .xyz file among the given paths to the PCA service.

Directories contribute their files one level deep. Files without the .xyz
suffix are skipped. The endpoint defaults to ANALYSIS_ENDPOINT.

Example: pcactl analyze ./frames --out ./pca-out --format svg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, ok := dashboard.ParseFormat(format)
			if !ok {
				return fmt.Errorf("unknown format %q (use png or svg)", format)
			}
			cfg := config.Load()
			if endpoint == "" {
				endpoint = cfg.AnalysisEndpoint
			}
			if timeout <= 0 {
				timeout = cfg.AnalysisTimeout
			}
			databaseURL := ""
			if record {
				databaseURL = cfg.DatabaseURL
			}
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), analyzeOptions{
				paths:       args,
				endpoint:    endpoint,
				timeout:     timeout,
				outDir:      outDir,
				format:      f,
				record:      record,
				databaseURL: databaseURL,
			})
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "PCA service URL (default $ANALYSIS_ENDPOINT)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Request timeout (default $ANALYSIS_TIMEOUT)")
	cmd.Flags().StringVar(&outDir, "out", "pca-out", "Directory for charts, export and result.json")
	cmd.Flags().StringVar(&format, "format", "png", "Chart format: png|svg")
	cmd.Flags().BoolVar(&record, "record", false, "Record the run in the history database ($DATABASE_URL)")
	return cmd
}

func newRenderCmd() *cobra.Command {
	var outDir string
	var format string

	cmd := &cobra.Command{
		Use:   "render [result.json]",
		Short: "Render charts and an export from a saved analysis result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, ok := dashboard.ParseFormat(format)
			if !ok {
				return fmt.Errorf("unknown format %q (use png or svg)", format)
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			result, err := pca.Decode(raw)
			if err != nil {
				return err
			}
			if err := writeOutputs(outDir, result, f, false); err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), result, outDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "pca-out", "Directory for charts and export")
	cmd.Flags().StringVar(&format, "format", "png", "Chart format: png|svg")
	return cmd
}

type analyzeOptions struct {
	paths       []string
	endpoint    string
	timeout     time.Duration
	outDir      string
	format      dashboard.Format
	record      bool
	databaseURL string
}

func runAnalyze(ctx context.Context, stdout, stderr io.Writer, opts analyzeOptions) error {
	files, err := collector.FromPaths(opts.paths)
	if err != nil {
		return err
	}
	sel := collector.Collect(files)
	for _, name := range sel.Rejected {
		fmt.Fprintf(stderr, "skipping %s (not %s)\n", name, collector.Suffix)
	}
	if !sel.CanSubmit() {
		return errors.New(analyzer.UserMessage(analyzer.ErrNoFiles))
	}

	client := remote.NewClient(opts.endpoint, opts.timeout)
	started := time.Now()
	result, analyzeErr := client.Analyze(ctx, sel.Files)
	finished := time.Now()

	if opts.record {
		sub := runs.Submission{
			Source:     runs.SourceCLI,
			Files:      sel.Files,
			Rejected:   sel.Rejected,
			Err:        analyzeErr,
			StartedAt:  started,
			FinishedAt: finished,
		}
		if analyzeErr == nil {
			sub.Result = &result
		}
		if err := recordRun(ctx, stdout, opts.databaseURL, sub); err != nil {
			fmt.Fprintf(stderr, "record run: %v\n", err)
		}
	}

	if analyzeErr != nil {
		return errors.New(analyzer.UserMessage(analyzeErr))
	}

	if err := writeOutputs(opts.outDir, result, opts.format, true); err != nil {
		return err
	}
	printSummary(stdout, result, opts.outDir)
	return nil
}

func recordRun(ctx context.Context, stdout io.Writer, databaseURL string, sub runs.Submission) error {
	if databaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	sqlDB, err := db.Connect(ctx, databaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return err
	}

	svc := &runs.Service{Repo: &runs.PGRepo{DB: sqlDB}}
	run, err := svc.Record(ctx, sub)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "run %s recorded (%s)\n", run.ID, run.Status)
	return nil
}

func writeOutputs(outDir string, result pca.Result, format dashboard.Format, withResult bool) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	board := dashboard.Build(result)
	for _, name := range dashboard.ChartNames {
		if !board.HasData(name) {
			continue
		}
		if err := writeFile(filepath.Join(outDir, name.FileName(format)), func(w io.Writer) error {
			return dashboard.RenderChart(board, name, format, w)
		}); err != nil {
			return fmt.Errorf("chart %s: %w", name, err)
		}
	}

	if err := writeFile(filepath.Join(outDir, runs.ExportName), func(w io.Writer) error {
		return dashboard.WriteWorkbook(result, w)
	}); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if !withResult {
		return nil
	}
	return writeFile(filepath.Join(outDir, resultFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	})
}

func writeFile(path string, fill func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSummary(w io.Writer, result pca.Result, outDir string) {
	board := dashboard.Build(result)
	for _, card := range board.Cards {
		fmt.Fprintf(w, "%-20s %s\n", card.Caption, card.Value)
	}
	s := board.Spread
	fmt.Fprintf(w, "%-20s min %.3f max %.3f mean %.3f sd %.3f\n", "PC1 spread", s.PC1.Min, s.PC1.Max, s.PC1.Mean, s.PC1.StdDev)
	fmt.Fprintf(w, "%-20s min %.3f max %.3f mean %.3f sd %.3f\n", "PC2 spread", s.PC2.Min, s.PC2.Max, s.PC2.Mean, s.PC2.StdDev)
	fmt.Fprintf(w, "wrote %s\n", outDir)
}
