package export

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/contract-analyzer/constants"
	"github.com/joseph-ayodele/contract-analyzer/internal/entity"
)

const (
	SummarySheet = "Summary"
	ClausesSheet = "Clauses"
)

// Entry is one analyzed document in a report.
type Entry struct {
	Filename string
	Result   entity.DocumentResult
}

// Service renders analysis results as XLSX workbooks.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ReportXLSX returns a workbook with one Summary row per document and one Clauses row per clause.
func (s *Service) ReportXLSX(entries []Entry) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(ClausesSheet); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(SummarySheet)
	f.SetActiveSheet(idx)

	writeRow(f, SummarySheet, 1, "Document", "Overall Risk Score", "Risk Level", "Clauses", "Unresolved", "Parties", "Summary")
	writeRow(f, ClausesSheet, 1, "Document", "#", "Clause Type", "Risk Score", "Risk Level", "Page",
		"Start Offset", "End Offset", "Exact Text", "Risk Description", "Consequences", "Mitigation")

	clauseRow := 2
	for i, e := range entries {
		r := e.Result
		unresolved := 0
		for n, c := range r.Clauses {
			page, startOff, endOff := any(""), any(""), any("")
			if c.Location != nil {
				page, startOff, endOff = c.Location.Page, c.Location.StartOffset, c.Location.EndOffset
			} else {
				unresolved++
			}
			writeRow(f, ClausesSheet, clauseRow,
				e.Filename, n+1, c.ClauseType, c.RiskScore, string(constants.LevelFor(c.RiskScore)), page,
				startOff, endOff, truncate(c.ExactText, 2000), c.RiskDescription, c.Consequences, c.Mitigation)
			clauseRow++
		}
		writeRow(f, SummarySheet, i+2,
			e.Filename, r.OverallRiskScore, string(constants.LevelFor(r.OverallRiskScore)),
			len(r.Clauses), unresolved, formatParties(r.Parties), r.Summary)
	}

	_ = f.SetColWidth(SummarySheet, "A", "A", 32)
	_ = f.SetColWidth(SummarySheet, "B", "E", 16)
	_ = f.SetColWidth(SummarySheet, "F", "F", 40)
	_ = f.SetColWidth(SummarySheet, "G", "G", 80)
	_ = f.SetColWidth(ClausesSheet, "A", "A", 32)
	_ = f.SetColWidth(ClausesSheet, "C", "C", 22)
	_ = f.SetColWidth(ClausesSheet, "I", "L", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"documents", len(entries),
		"clauses", clauseRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func formatParties(parties []entity.Party) string {
	out := make([]string, 0, len(parties))
	for _, p := range parties {
		if p.Role != "" {
			out = append(out, fmt.Sprintf("%s (%s)", p.Name, p.Role))
		} else {
			out = append(out, p.Name)
		}
	}
	return strings.Join(out, "; ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
