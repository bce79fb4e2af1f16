package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/contract-analyzer/constants"
)

// StatusView is what pollers see. Result is present only when Status is complete.
type StatusView struct {
	Status          constants.JobStatus `json:"status"`
	ProgressPercent int                 `json:"progress_percent"`
	ErrorMessage    *string             `json:"error_message,omitempty"`
	Result          *ResultPayload      `json:"result,omitempty"`
}

// ResultPayload is the public result shape. Its field set is fixed; internal
// clause fields such as the risk description are not part of it.
type ResultPayload struct {
	Summary          string          `json:"summary"`
	Parties          []PartyPayload  `json:"parties"`
	Clauses          []ClausePayload `json:"clauses"`
	OverallRiskScore float64         `json:"overall_risk_score"`
}

type PartyPayload struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type ClausePayload struct {
	ClauseType   string    `json:"clause_type"`
	ExactText    string    `json:"exact_text"`
	RiskScore    float64   `json:"risk_score"`
	Consequences string    `json:"consequences"`
	Mitigation   string    `json:"mitigation"`
	Location     *Location `json:"location"`
}

// JobSummary is one row of an owner's document list.
type JobSummary struct {
	ID              uuid.UUID           `json:"id"`
	Filename        string              `json:"filename"`
	Status          constants.JobStatus `json:"status"`
	ProgressPercent int                 `json:"progress_percent"`
	ErrorMessage    *string             `json:"error_message,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// ToStatusView projects a job snapshot onto the polling payload.
func ToStatusView(j Job) StatusView {
	v := StatusView{
		Status:          j.Status,
		ProgressPercent: j.ProgressPercent,
		ErrorMessage:    j.ErrorMessage,
	}
	if j.Status == constants.JobStatusComplete && j.Result != nil {
		v.Result = ToResultPayload(*j.Result)
	}
	return v
}

// ToResultPayload drops internal fields and guarantees non-nil lists.
func ToResultPayload(r DocumentResult) *ResultPayload {
	p := &ResultPayload{
		Summary:          r.Summary,
		Parties:          make([]PartyPayload, 0, len(r.Parties)),
		Clauses:          make([]ClausePayload, 0, len(r.Clauses)),
		OverallRiskScore: r.OverallRiskScore,
	}
	for _, pt := range r.Parties {
		p.Parties = append(p.Parties, PartyPayload{Name: pt.Name, Role: pt.Role})
	}
	for _, c := range r.Clauses {
		p.Clauses = append(p.Clauses, ClausePayload{
			ClauseType:   c.ClauseType,
			ExactText:    c.ExactText,
			RiskScore:    c.RiskScore,
			Consequences: c.Consequences,
			Mitigation:   c.Mitigation,
			Location:     c.Location,
		})
	}
	return p
}

// ToJobSummary projects a job snapshot onto a list row.
func ToJobSummary(j Job) JobSummary {
	return JobSummary{
		ID:              j.ID,
		Filename:        j.Filename,
		Status:          j.Status,
		ProgressPercent: j.ProgressPercent,
		ErrorMessage:    j.ErrorMessage,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
}
