package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/joseph-ayodele/contract-analyzer/internal/llm"
)

type rule struct {
	re           *regexp.Regexp
	clauseType   string
	factors      [5]float64
	description  string
	consequences string
	mitigation   string
}

var rules = []rule{
	{
		re:           regexp.MustCompile(`(?i)terminat\w*\s+fee|early\s+terminat`),
		clauseType:   "Termination",
		factors:      [5]float64{90, 50, 40, 80, 30},
		description:  "A fixed fee is owed when the agreement ends early.",
		consequences: "Exiting the relationship carries a significant one-off cost.",
		mitigation:   "Negotiate a fee that declines over the term or is waived for cause.",
	},
	{
		re:           regexp.MustCompile(`(?i)unlimited\s+liability|liable\s+for\s+any\s+and\s+all`),
		clauseType:   "Liability",
		factors:      [5]float64{95, 60, 85, 50, 70},
		description:  "Liability is not capped.",
		consequences: "A single claim could exceed the contract value many times over.",
		mitigation:   "Cap liability at the fees paid in the preceding twelve months.",
	},
	{
		re:           regexp.MustCompile(`(?i)indemnif`),
		clauseType:   "Indemnification",
		factors:      [5]float64{80, 40, 75, 40, 60},
		description:  "Broad indemnity obligations.",
		consequences: "Third-party claims may be shifted onto the indemnifying party.",
		mitigation:   "Limit indemnity to claims caused by the indemnifying party's breach.",
	},
	{
		re:           regexp.MustCompile(`(?i)renews?\s+automatically|auto-?renew`),
		clauseType:   "Renewal",
		factors:      [5]float64{50, 60, 30, 70, 40},
		description:  "The agreement renews without action.",
		consequences: "Missing the notice window locks in another term.",
		mitigation:   "Shorten the renewal term and the notice period.",
	},
	{
		re:           regexp.MustCompile(`(?i)late\s+payments?|interest\s+at`),
		clauseType:   "Payment",
		factors:      [5]float64{60, 30, 30, 60, 30},
		description:  "Late payment triggers interest charges.",
		consequences: "Small delays compound into material costs.",
		mitigation:   "Agree a grace period and a statutory interest rate.",
	},
	{
		re:           regexp.MustCompile(`(?i)governed\s+by\s+the\s+laws|exclusive\s+jurisdiction`),
		clauseType:   "Governing Law",
		factors:      [5]float64{30, 20, 70, 40, 50},
		description:  "Disputes are decided under a chosen law or forum.",
		consequences: "Litigation may be more expensive or less predictable.",
		mitigation:   "Choose the law and courts of your home jurisdiction.",
	},
	{
		re:           regexp.MustCompile(`(?i)non-?compete|exclusiv(e|ity)\s+(supplier|provider|dealing)`),
		clauseType:   "Restrictive Covenant",
		factors:      [5]float64{40, 70, 50, 50, 60},
		description:  "Restricts working with others.",
		consequences: "Limits future business options.",
		mitigation:   "Narrow the scope and duration of the restriction.",
	},
}

// fallback mirrors the fixed offline analysis used when nothing in the text matches a rule.
var fallback = []llm.AnalyzedClause{
	{
		ClauseType:      "Financial",
		ExactText:       "The party of the first part shall hold unlimited liability for any and all damages arising from the execution of this agreement.",
		RiskDescription: "Unlimited liability exposes the party to significant financial risk.",
		Consequences:    "Potential bankruptcy in case of a major lawsuit.",
		Mitigation:      "Negotiate a liability cap equal to the contract value.",
		RiskScore:       ptr(85),
	},
	{
		ClauseType:      "Legal",
		ExactText:       "This agreement shall be governed by the laws of the state of utopia, without regard to its conflict of law provisions.",
		RiskDescription: "Jurisdiction is in a fictional or unfavorable location.",
		Consequences:    "Legal disputes would be costly and unpredictable.",
		Mitigation:      "Change governing law to your local jurisdiction.",
		RiskScore:       ptr(70),
	},
}

var reParties = regexp.MustCompile(`(?is)between\s+(.+?)\s*\(\s*["“]([^"”]+)["”]\s*\)\s*and\s+(.+?)\s*\(\s*["“]([^"”]+)["”]\s*\)`)

// Provider is a deterministic offline analysis backend driven by keyword rules.
type Provider struct{}

func NewProvider() *Provider { return &Provider{} }

func (p *Provider) Name() string { return "mock" }

func (p *Provider) Invoke(ctx context.Context, req llm.Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &llm.ProviderError{Provider: "mock", Err: err}
	}
	text := documentText(req.UserPrompt)
	out := Analyze(text)
	return json.Marshal(out)
}

// Analyze applies the keyword rules to text. Each rule reports at most one clause.
func Analyze(text string) llm.Analysis {
	out := llm.Analysis{Parties: []llm.Party{}, Clauses: []llm.AnalyzedClause{}}
	if m := reParties.FindStringSubmatch(text); m != nil {
		out.Parties = append(out.Parties,
			llm.Party{Name: collapse(m[1]), Role: strings.ToLower(m[2])},
			llm.Party{Name: collapse(m[3]), Role: strings.ToLower(m[4])},
		)
	}

	segments := segments(text)
	for _, r := range rules {
		for _, seg := range segments {
			if !r.re.MatchString(seg) {
				continue
			}
			out.Clauses = append(out.Clauses, llm.AnalyzedClause{
				ClauseType:      r.clauseType,
				ExactText:       seg,
				RiskDescription: r.description,
				Consequences:    r.consequences,
				Mitigation:      r.mitigation,
				RiskFactors: llm.RiskFactors{
					FinancialImpact:      ptr(r.factors[0]),
					BusinessDisruption:   ptr(r.factors[1]),
					LegalRisk:            ptr(r.factors[2]),
					Likelihood:           ptr(r.factors[3]),
					MitigationDifficulty: ptr(r.factors[4]),
				},
			})
			break
		}
	}
	if len(out.Clauses) == 0 && strings.TrimSpace(text) != "" {
		out.Clauses = append(out.Clauses, fallback...)
	}
	out.Summary = fmt.Sprintf("Offline analysis identified %d risk clause(s).", len(out.Clauses))
	return out
}

// documentText pulls the document body out of a user prompt, or returns the prompt unchanged.
func documentText(prompt string) string {
	const openMark, closeMark = "<<<\n", "\n>>>"
	i := strings.Index(prompt, openMark)
	j := strings.LastIndex(prompt, closeMark)
	if i < 0 || j < i+len(openMark) {
		return prompt
	}
	return prompt[i+len(openMark) : j]
}

var reSentence = regexp.MustCompile(`[^.!?]+[.!?]*`)

// segments splits text into trimmed lines, breaking long lines into sentences.
func segments(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) <= 300 {
			out = append(out, line)
			continue
		}
		for _, s := range reSentence.FindAllString(line, -1) {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func ptr(f float64) *float64 { return &f }

// Step is one scripted response: raw content or an error.
type Step struct {
	Content string
	Err     error
}

// Scripted replays steps in order and repeats the last one once exhausted.
// Safe for concurrent use.
type Scripted struct {
	mu    sync.Mutex
	steps []Step
	calls []llm.Request
}

func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Invoke(ctx context.Context, req llm.Request) ([]byte, error) {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &llm.ProviderError{Provider: "scripted", Err: err}
	}
	if len(s.steps) == 0 {
		return nil, &llm.ProviderError{Provider: "scripted", Permanent: true, Err: fmt.Errorf("no scripted steps")}
	}
	if n >= len(s.steps) {
		n = len(s.steps) - 1
	}
	st := s.steps[n]
	if st.Err != nil {
		return nil, st.Err
	}
	return []byte(st.Content), nil
}

// Calls returns the requests seen so far.
func (s *Scripted) Calls() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Request, len(s.calls))
	copy(out, s.calls)
	return out
}
