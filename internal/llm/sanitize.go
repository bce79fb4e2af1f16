package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

var reFence = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

// CleanJSONBlock strips markdown code fences and any prose around the outermost JSON object.
func CleanJSONBlock(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if m := reFence.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		s = s[i : j+1]
	}
	return []byte(s)
}

var topLevelSynonyms = map[string]string{
	"executive_summary":   "summary",
	"overview":            "summary",
	"identified_risks":    "clauses",
	"risks":               "clauses",
	"contracting_parties": "parties",
}

var clauseSynonyms = map[string]string{
	"type":                      "clause_type",
	"category":                  "clause_type",
	"risk_category":             "clause_type",
	"quote":                     "exact_text",
	"clause_quote":              "exact_text",
	"text":                      "exact_text",
	"clause":                    "risk_description",
	"description":               "risk_description",
	"risk_explanation":          "risk_description",
	"mitigation_recommendation": "mitigation",
	"recommendation":            "mitigation",
	"consequence":               "consequences",
	"factors":                   "risk_factors",
	"scores":                    "risk_factors",
}

// NormalizeAnalysisJSON rewrites common model deviations into the schema's shape:
// synonym keys are renamed, numeric strings are coerced, party strings become objects,
// and a clause carrying only an overall risk_score gets an empty risk_factors object.
// It returns the rewritten document and a list of applied changes.
func NormalizeAnalysisJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("%w: decode: %v", ErrInvalidSchema, err)
	}

	var changes []string
	rename := func(obj map[string]any, synonyms map[string]string, prefix string) {
		for from, to := range synonyms {
			v, ok := obj[from]
			if !ok {
				continue
			}
			if _, exists := obj[to]; !exists {
				obj[to] = v
				changes = append(changes, prefix+from+"->"+to)
			}
			delete(obj, from)
		}
	}
	rename(m, topLevelSynonyms, "")

	if parties, ok := m["parties"].([]any); ok {
		for i, p := range parties {
			if s, ok := p.(string); ok {
				parties[i] = map[string]any{"name": s, "role": ""}
				changes = append(changes, fmt.Sprintf("parties[%d](string)", i))
			}
		}
	}

	if clauses, ok := m["clauses"].([]any); ok {
		for i, c := range clauses {
			obj, ok := c.(map[string]any)
			if !ok {
				continue
			}
			prefix := fmt.Sprintf("clauses[%d].", i)
			rename(obj, clauseSynonyms, prefix)
			if v, ok := coerceNumber(obj["risk_score"]); ok {
				obj["risk_score"] = v
			}
			factors, ok := obj["risk_factors"].(map[string]any)
			if !ok {
				if _, hasScore := obj["risk_score"].(float64); hasScore && obj["risk_factors"] == nil {
					obj["risk_factors"] = map[string]any{}
					changes = append(changes, prefix+"risk_factors(inferred)")
				}
				continue
			}
			for k, v := range factors {
				if n, ok := coerceNumber(v); ok {
					factors[k] = n
				} else if v == nil {
					delete(factors, k)
				}
			}
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, changes, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(changes) > 0 {
		logger.Debug("llm.analysis.normalize_sanitize", "changes", changes)
	}
	return out, changes, nil
}

// coerceNumber turns "85", "85%" or 85 into 85.0.
func coerceNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "%"))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// DecodeAnalysis turns raw model content into a validated Analysis.
// Any failure wraps ErrInvalidSchema.
func DecodeAnalysis(raw []byte, logger *slog.Logger) (Analysis, error) {
	cleaned, _, err := NormalizeAnalysisJSON(CleanJSONBlock(raw), logger)
	if err != nil {
		return Analysis{}, err
	}
	if err := ValidateAnalysisJSON(cleaned); err != nil {
		return Analysis{}, err
	}
	var out Analysis
	if err := json.Unmarshal(cleaned, &out); err != nil {
		return Analysis{}, fmt.Errorf("%w: unmarshal: %v", ErrInvalidSchema, err)
	}
	return out, nil
}
