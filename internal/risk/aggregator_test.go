package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/contract-analyzer/constants"
	"github.com/joseph-ayodele/contract-analyzer/internal/entity"
	"github.com/joseph-ayodele/contract-analyzer/internal/llm"
)

func f(v float64) *float64 { return &v }

func TestClauseScoreWeightedSum(t *testing.T) {
	factors := llm.RiskFactors{
		FinancialImpact:      f(90),
		BusinessDisruption:   f(50),
		LegalRisk:            f(40),
		Likelihood:           f(80),
		MitigationDifficulty: f(30),
	}
	// 0.3*90 + 0.25*50 + 0.2*40 + 0.15*80 + 0.1*30
	assert.Equal(t, 62.5, ClauseScore(factors, nil))
}

func TestClauseScoreInference(t *testing.T) {
	tests := []struct {
		name     string
		factors  llm.RiskFactors
		reported *float64
		want     float64
	}{
		{name: "nothing reported is neutral", want: 50},
		{name: "reported score fills every factor", reported: f(85), want: 85},
		{name: "mean of reported factors fills the rest", factors: llm.RiskFactors{FinancialImpact: f(80), LegalRisk: f(40)}, want: 0.3*80 + 0.2*40 + 0.5*60},
		{name: "out of range factors are clamped", factors: llm.RiskFactors{
			FinancialImpact: f(400), BusinessDisruption: f(250), LegalRisk: f(120), Likelihood: f(101), MitigationDifficulty: f(1000),
		}, want: 100},
		{name: "negative factors are clamped", factors: llm.RiskFactors{
			FinancialImpact: f(-10), BusinessDisruption: f(-1), LegalRisk: f(0), Likelihood: f(-50), MitigationDifficulty: f(0),
		}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClauseScore(tt.factors, tt.reported)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 100.0)
		})
	}
}

func TestOverallScore(t *testing.T) {
	assert.Equal(t, 0.0, OverallScore(nil))
	assert.Equal(t, 62.5, OverallScore([]float64{62.5}))
	// one severe clause among mild ones: 0.6*95 beats the mean
	assert.Equal(t, 57.0, OverallScore([]float64{95, 10, 10, 10, 10}))
	// dense risk: the mean wins
	assert.Equal(t, 70.0, OverallScore([]float64{70, 70, 70}))
}

func TestAggregate(t *testing.T) {
	a := llm.Analysis{
		Summary: " Services agreement. ",
		Parties: []llm.Party{{Name: "Acme", Role: "client"}},
		Clauses: []llm.AnalyzedClause{
			{ClauseType: "Termination", ExactText: "Termination Fee: $50,000", RiskFactors: llm.RiskFactors{
				FinancialImpact: f(90), BusinessDisruption: f(50), LegalRisk: f(40), Likelihood: f(80), MitigationDifficulty: f(30),
			}},
			{ClauseType: "Governing Law", ExactText: "laws of utopia", RiskScore: f(20)},
		},
	}
	loc := &entity.Location{Page: 1, StartOffset: 0, EndOffset: 24}

	res := Aggregate(a, []*entity.Location{loc})
	assert.Equal(t, "Services agreement.", res.Summary)
	require.Len(t, res.Clauses, 2)
	assert.Equal(t, 62.5, res.Clauses[0].RiskScore)
	assert.Equal(t, loc, res.Clauses[0].Location)
	assert.Equal(t, 20.0, res.Clauses[1].RiskScore)
	assert.Nil(t, res.Clauses[1].Location)
	assert.Equal(t, 41.25, res.OverallRiskScore)
	assert.Equal(t, constants.RiskWarning, constants.LevelFor(res.OverallRiskScore))
}

func TestAggregateNoClauses(t *testing.T) {
	res := Aggregate(llm.Analysis{Summary: "Nothing notable."}, nil)
	assert.Equal(t, 0.0, res.OverallRiskScore)
	assert.NotNil(t, res.Clauses)
	assert.Empty(t, res.Clauses)
	assert.NotNil(t, res.Parties)
}
