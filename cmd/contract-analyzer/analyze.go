package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/contract-analyzer/constants"
	"github.com/joseph-ayodele/contract-analyzer/internal/entity"
	"github.com/joseph-ayodele/contract-analyzer/internal/export"
	"github.com/joseph-ayodele/contract-analyzer/internal/ingest"
	"github.com/joseph-ayodele/contract-analyzer/internal/pipeline"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <path>",
	Short: "Analyze a contract file or every contract under a directory",
	Long:  "Runs extraction, analysis, clause location and scoring synchronously without the job store. Prints a risk table, or JSON with --json, and optionally writes an XLSX report.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

var (
	analyzeJSON       bool
	analyzeXLSX       string
	analyzeSkipHidden bool
)

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print results as JSON")
	analyzeCmd.Flags().StringVarP(&analyzeXLSX, "xlsx", "x", "", "write an XLSX risk report to this path")
	analyzeCmd.Flags().BoolVar(&analyzeSkipHidden, "skip-hidden", true, "skip hidden files and directories")
	rootCmd.AddCommand(analyzeCmd)
}

type fileReport struct {
	Path   string                `json:"path"`
	Result *entity.ResultPayload `json:"result,omitempty"`
	Level  constants.RiskLevel   `json:"risk_level,omitempty"`
	Error  string                `json:"error,omitempty"`
	raw    *entity.DocumentResult
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	logger := slog.Default()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths, err := ingest.Discover(args[0], analyzeSkipHidden)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no supported documents under %s", args[0])
	}

	ctx := cmd.Context()
	stack, err := buildAnalysisStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()
	orch := pipeline.NewOrchestrator(nil, stack.engine, stack.client, nil, logger)

	reports := analyzeFiles(ctx, orch, paths, cfg.Pipeline.MaxUploadBytes)

	if analyzeXLSX != "" {
		if err := writeReport(analyzeXLSX, reports, logger); err != nil {
			return err
		}
	}
	out := cmd.OutOrStdout()
	if analyzeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		printTable(out, reports)
	}

	for _, r := range reports {
		if r.Error != "" {
			return fmt.Errorf("%d of %d documents failed", countFailed(reports), len(reports))
		}
	}
	return nil
}

func analyzeFiles(ctx context.Context, orch *pipeline.Orchestrator, paths []string, maxBytes int64) []fileReport {
	reports := make([]fileReport, 0, len(paths))
	for _, p := range paths {
		rep := fileReport{Path: p}
		content, err := os.ReadFile(p)
		switch {
		case err != nil:
			rep.Error = err.Error()
		case maxBytes > 0 && int64(len(content)) > maxBytes:
			rep.Error = fmt.Sprintf("document of %d bytes exceeds the %d byte limit", len(content), maxBytes)
		default:
			res, err := orch.AnalyzeDocument(ctx, filepath.Base(p), content)
			if err != nil {
				rep.Error = err.Error()
				break
			}
			rep.Result = entity.ToResultPayload(res)
			rep.Level = constants.LevelFor(res.OverallRiskScore)
			rep.raw = &res
		}
		reports = append(reports, rep)
	}
	return reports
}

func writeReport(path string, reports []fileReport, logger *slog.Logger) error {
	var entries []export.Entry
	for _, r := range reports {
		if r.raw != nil {
			entries = append(entries, export.Entry{Filename: filepath.Base(r.Path), Result: *r.raw})
		}
	}
	data, err := export.NewService(logger).ReportXLSX(entries)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func printTable(w io.Writer, reports []fileReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DOCUMENT\tSCORE\tLEVEL\tCLAUSES\tERROR")
	for _, r := range reports {
		if r.Result == nil {
			_, _ = fmt.Fprintf(tw, "%s\t-\t-\t-\t%s\n", r.Path, r.Error)
			continue
		}
		_, _ = fmt.Fprintf(tw, "%s\t%.2f\t%s\t%d\t\n", r.Path, r.Result.OverallRiskScore, r.Level, len(r.Result.Clauses))
	}
	_ = tw.Flush()
}

func countFailed(reports []fileReport) int {
	n := 0
	for _, r := range reports {
		if r.Error != "" {
			n++
		}
	}
	return n
}
