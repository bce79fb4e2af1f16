package risk

import (
	"math"
	"strings"

	"github.com/joseph-ayodele/contract-analyzer/constants"
	"github.com/joseph-ayodele/contract-analyzer/internal/entity"
	"github.com/joseph-ayodele/contract-analyzer/internal/llm"
)

// neutralFactor stands in for a sub-factor when nothing was reported for the clause.
const neutralFactor = 50.0

// ClauseScore is the weighted sum of the five sub-factors, clamped to [0,100].
// A missing sub-factor is inferred from the clause's reported overall score,
// else from the mean of the reported sub-factors, else it is neutral.
func ClauseScore(f llm.RiskFactors, reported *float64) float64 {
	factors := []*float64{f.FinancialImpact, f.BusinessDisruption, f.LegalRisk, f.Likelihood, f.MitigationDifficulty}
	weights := []float64{
		constants.WeightFinancialImpact,
		constants.WeightBusinessDisruption,
		constants.WeightLegalRisk,
		constants.WeightLikelihood,
		constants.WeightMitigationDifficulty,
	}

	fill := neutralFactor
	if reported != nil {
		fill = clamp(*reported)
	} else {
		var sum float64
		var n int
		for _, v := range factors {
			if v != nil {
				sum += clamp(*v)
				n++
			}
		}
		if n > 0 {
			fill = sum / float64(n)
		}
	}

	var score float64
	for i, v := range factors {
		x := fill
		if v != nil {
			x = clamp(*v)
		}
		score += weights[i] * x
	}
	return round2(clamp(score))
}

// OverallScore is max(mean, 0.6 * highest) so a single severe clause is not diluted
// by many mild ones. It is 0 for no clauses.
func OverallScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum, highest float64
	for _, s := range scores {
		sum += s
		highest = math.Max(highest, s)
	}
	mean := sum / float64(len(scores))
	return round2(clamp(math.Max(mean, constants.DominantClauseFactor*highest)))
}

// Aggregate scores every clause and builds the document result. locations[i] is the
// resolved location of clause i; nil or missing entries leave the clause unresolved.
func Aggregate(a llm.Analysis, locations []*entity.Location) entity.DocumentResult {
	res := entity.DocumentResult{
		Summary: strings.TrimSpace(a.Summary),
		Parties: make([]entity.Party, 0, len(a.Parties)),
		Clauses: make([]entity.Clause, 0, len(a.Clauses)),
	}
	for _, p := range a.Parties {
		res.Parties = append(res.Parties, entity.Party{Name: p.Name, Role: p.Role})
	}
	scores := make([]float64, 0, len(a.Clauses))
	for i, c := range a.Clauses {
		score := ClauseScore(c.RiskFactors, c.RiskScore)
		scores = append(scores, score)
		var loc *entity.Location
		if i < len(locations) {
			loc = locations[i]
		}
		res.Clauses = append(res.Clauses, entity.Clause{
			ClauseType:      c.ClauseType,
			RiskDescription: c.RiskDescription,
			Consequences:    c.Consequences,
			Mitigation:      c.Mitigation,
			ExactText:       c.ExactText,
			RiskScore:       score,
			Location:        loc,
		})
	}
	res.OverallRiskScore = OverallScore(scores)
	return res
}

func clamp(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Min(100, math.Max(0, x))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
