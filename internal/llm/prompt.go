package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BuildSystemPrompt states the scoring rubric and the response contract.
// maxClauses <= 0 leaves the number of clauses to the model.
func BuildSystemPrompt(maxClauses int) string {
	var b strings.Builder
	b.WriteString("You are a contract risk analyst. Identify the clauses of the document that carry legal, financial or operational risk for the reader.\n\n")
	b.WriteString("Score every clause on five sub-factors, each 0-100:\n")
	b.WriteString("- financial_impact (weight 30%): money at stake, penalties, uncapped exposure\n")
	b.WriteString("- business_disruption (weight 25%): effect on operations, lock-in, termination exposure\n")
	b.WriteString("- legal_risk (weight 20%): liability, jurisdiction, enforceability\n")
	b.WriteString("- likelihood (weight 15%): how likely the risk materialises\n")
	b.WriteString("- mitigation_difficulty (weight 10%): how hard it is to negotiate away or insure\n\n")
	b.WriteString("Risk bands: 0-30 safe, 31-69 warning, 70-100 unsafe.\n\n")
	if maxClauses > 0 {
		fmt.Fprintf(&b, "Report at most %d clauses, the most significant first.\n", maxClauses)
	}
	b.WriteString("Rules:\n")
	b.WriteString("- exact_text MUST be copied verbatim from the document, without paraphrasing, ellipses or added quotes.\n")
	b.WriteString("- parties lists every contracting party with its role (e.g. client, provider, landlord).\n")
	b.WriteString("- Return ONLY a JSON object, no markdown, matching this JSON Schema:\n")
	b.WriteString(mustJSON(BuildAnalysisJSONSchema()))
	return b.String()
}

// BuildUserPrompt wraps one chunk of the document.
func BuildUserPrompt(text string, chunkIndex, chunkCount int) string {
	var b strings.Builder
	if chunkCount > 1 {
		fmt.Fprintf(&b, "This is part %d of %d of a longer document. Analyse only the text below; summarise this part.\n\n", chunkIndex+1, chunkCount)
	}
	b.WriteString("DOCUMENT TEXT:\n<<<\n")
	b.WriteString(text)
	b.WriteString("\n>>>\n")
	return b.String()
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
