package constants

import (
	"strings"
	"unicode"
)

// RiskLevel is the human band a 0-100 score falls into.
type RiskLevel string

const (
	RiskSafe    RiskLevel = "SAFE"
	RiskWarning RiskLevel = "WARNING"
	RiskUnsafe  RiskLevel = "UNSAFE"
)

// Sub-factor weights of a clause risk score. They sum to 1.
const (
	WeightFinancialImpact      = 0.30
	WeightBusinessDisruption   = 0.25
	WeightLegalRisk            = 0.20
	WeightLikelihood           = 0.15
	WeightMitigationDifficulty = 0.10
)

// Overall score policy: max(mean, DominantClauseFactor * highest clause).
const DominantClauseFactor = 0.6

// LevelFor buckets a score: 0-30 safe, 31-69 warning, 70-100 unsafe.
func LevelFor(score float64) RiskLevel {
	switch {
	case score >= 70:
		return RiskUnsafe
	case score > 30:
		return RiskWarning
	default:
		return RiskSafe
	}
}

var clauseTypeSynonyms = map[string]string{
	"termination":             "Termination",
	"termination fee":         "Termination",
	"early termination":       "Termination",
	"liability":               "Liability",
	"limitation of liability": "Liability",
	"indemnity":               "Indemnification",
	"indemnification":         "Indemnification",
	"payment":                 "Payment",
	"payment terms":           "Payment",
	"fees":                    "Payment",
	"governing law":           "Governing Law",
	"jurisdiction":            "Governing Law",
	"confidentiality":         "Confidentiality",
	"non-disclosure":          "Confidentiality",
	"renewal":                 "Renewal",
	"auto-renewal":            "Renewal",
	"automatic renewal":       "Renewal",
	"non-compete":             "Restrictive Covenant",
	"exclusivity":             "Restrictive Covenant",
	"intellectual property":   "Intellectual Property",
	"ip":                      "Intellectual Property",
}

// CanonicalClauseType maps common model spellings to a stable label and
// title-cases anything it does not know.
func CanonicalClauseType(s string) string {
	k := strings.ToLower(strings.Join(strings.Fields(s), " "))
	if k == "" {
		return "Other"
	}
	if v, ok := clauseTypeSynonyms[k]; ok {
		return v
	}
	words := strings.Fields(k)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
