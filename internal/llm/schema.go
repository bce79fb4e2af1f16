package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Factor keys inside risk_factors.
const (
	FactorFinancialImpact      = "financial_impact"
	FactorBusinessDisruption   = "business_disruption"
	FactorLegalRisk            = "legal_risk"
	FactorLikelihood           = "likelihood"
	FactorMitigationDifficulty = "mitigation_difficulty"
)

var factorKeys = []string{
	FactorFinancialImpact,
	FactorBusinessDisruption,
	FactorLegalRisk,
	FactorLikelihood,
	FactorMitigationDifficulty,
}

// BuildAnalysisJSONSchema returns the response contract as a generic map.
// It is embedded in the prompt and used locally to validate.
func BuildAnalysisJSONSchema() map[string]any {
	factors := map[string]any{}
	for _, k := range factorKeys {
		factors[k] = map[string]any{"type": "number"}
	}
	clause := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"clause_type":      map[string]any{"type": "string", "minLength": 1},
			"exact_text":       map[string]any{"type": "string", "minLength": 1},
			"risk_description": map[string]any{"type": "string"},
			"consequences":     map[string]any{"type": "string"},
			"mitigation":       map[string]any{"type": "string"},
			"risk_score":       map[string]any{"type": "number"},
			"risk_factors": map[string]any{
				"type":       "object",
				"properties": factors,
			},
		},
		"required": []string{"clause_type", "exact_text", "risk_factors"},
	}
	party := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "minLength": 1},
			"role": map[string]any{"type": "string"},
		},
		"required": []string{"name"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{"type": "string"},
			"parties": map[string]any{"type": "array", "items": party},
			"clauses": map[string]any{"type": "array", "items": clause},
		},
		"required": []string{"summary", "parties", "clauses"},
	}
}

var (
	compiledOnce   sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func analysisSchema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		compiledSchema, compileErr = CompileSchema(BuildAnalysisJSONSchema())
	})
	return compiledSchema, compileErr
}

// CompileSchema compiles a schema given as a generic map.
func CompileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("analysis.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("analysis.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateAnalysisJSON validates data against the analysis schema.
func ValidateAnalysisJSON(data []byte) error {
	schema, err := analysisSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", ErrInvalidSchema, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return nil
}
