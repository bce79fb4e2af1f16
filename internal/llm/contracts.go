package llm

import "context"

// Request is one analysis call over one chunk of document text.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	ChunkIndex   int
	ChunkCount   int
}

// Provider is an analysis backend: prompts in, raw model content out.
// Implementations classify failures with ProviderError so callers can tell
// transient faults from permanent ones.
type Provider interface {
	Name() string
	Invoke(ctx context.Context, req Request) ([]byte, error)
}

// Analysis is a schema-validated analysis response.
type Analysis struct {
	Summary string           `json:"summary"`
	Parties []Party          `json:"parties"`
	Clauses []AnalyzedClause `json:"clauses"`
}

type Party struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// AnalyzedClause is a clause as reported by the model, before location and scoring.
type AnalyzedClause struct {
	ClauseType      string      `json:"clause_type"`
	ExactText       string      `json:"exact_text"`
	RiskDescription string      `json:"risk_description"`
	Consequences    string      `json:"consequences"`
	Mitigation      string      `json:"mitigation"`
	RiskScore       *float64    `json:"risk_score,omitempty"`
	RiskFactors     RiskFactors `json:"risk_factors"`
}

// RiskFactors are 0-100 sub-scores. Nil means the model did not report it.
type RiskFactors struct {
	FinancialImpact      *float64 `json:"financial_impact,omitempty"`
	BusinessDisruption   *float64 `json:"business_disruption,omitempty"`
	LegalRisk            *float64 `json:"legal_risk,omitempty"`
	Likelihood           *float64 `json:"likelihood,omitempty"`
	MitigationDifficulty *float64 `json:"mitigation_difficulty,omitempty"`
}
