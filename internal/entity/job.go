package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/contract-analyzer/constants"
)

// Job is one document's analysis attempt and its lifecycle state.
// Values handed out by the store are snapshots; Result is never mutated after it is attached.
type Job struct {
	ID              uuid.UUID           `json:"id"`
	OwnerRef        string              `json:"owner_ref"`
	Filename        string              `json:"filename"`
	Status          constants.JobStatus `json:"status"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	ProgressPercent int                 `json:"progress_percent"`
	ErrorMessage    *string             `json:"error_message,omitempty"`
	Result          *DocumentResult     `json:"result,omitempty"`
}

// DocumentResult is attached to a job exactly once, when it completes.
type DocumentResult struct {
	Summary          string   `json:"summary"`
	Parties          []Party  `json:"parties"`
	Clauses          []Clause `json:"clauses"`
	OverallRiskScore float64  `json:"overall_risk_score"`
}

type Party struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Clause is one risk-bearing passage. Location is nil when the quote could not be found in the source text.
type Clause struct {
	ClauseType      string    `json:"clause_type"`
	RiskDescription string    `json:"risk_description"`
	Consequences    string    `json:"consequences"`
	Mitigation      string    `json:"mitigation"`
	ExactText       string    `json:"exact_text"`
	RiskScore       float64   `json:"risk_score"`
	Location        *Location `json:"location"`
}

// Location is a page and a half-open character range [StartOffset, EndOffset) into the extracted full text.
type Location struct {
	Page        int `json:"page"`
	StartOffset int `json:"start_offset"`
	EndOffset   int `json:"end_offset"`
}
