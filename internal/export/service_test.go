package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/contract-analyzer/internal/entity"
)

func TestReportXLSX(t *testing.T) {
	entries := []Entry{{
		Filename: "msa.pdf",
		Result: entity.DocumentResult{
			Summary: "Services agreement.",
			Parties: []entity.Party{{Name: "Acme", Role: "client"}, {Name: "Globex"}},
			Clauses: []entity.Clause{
				{ClauseType: "Termination", ExactText: "Termination Fee: $50,000", RiskScore: 62.5,
					Location: &entity.Location{Page: 2, StartOffset: 120, EndOffset: 144}},
				{ClauseType: "Liability", ExactText: "unlimited liability", RiskScore: 80},
			},
			OverallRiskScore: 71,
		},
	}}

	data, err := NewService(nil).ReportXLSX(entries)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	summary, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, []string{"msa.pdf", "71", "UNSAFE", "2", "1", "Acme (client); Globex", "Services agreement."}, summary[1])

	clauses, err := f.GetRows(ClausesSheet)
	require.NoError(t, err)
	require.Len(t, clauses, 3)
	assert.Equal(t, "Termination", clauses[1][2])
	assert.Equal(t, "WARNING", clauses[1][4])
	assert.Equal(t, "2", clauses[1][5])
	assert.Equal(t, "Liability", clauses[2][2])
	assert.Equal(t, "", clauses[2][5], "unresolved clauses have no page")
}

func TestReportXLSXEmpty(t *testing.T) {
	data, err := NewService(nil).ReportXLSX(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(ClausesSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}
