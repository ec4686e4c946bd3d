package agents

import (
	"fmt"
	"strings"

	"github.com/dyluth/drey/pkg/blackboard"
)

// Default keyword rules, checked case-insensitively against clause text.
// Policy rules with keys "high_risk_terms" and "medium_risk_terms" override
// the respective tier with a comma-separated term list.
var (
	defaultHighTerms = []string{
		"indemnif",
		"unlimited liability",
		"liquidated damages",
		"penalty",
		"irrevocab",
		"waive",
	}
	defaultMediumTerms = []string{
		"terminate",
		"exclusiv",
		"auto-renew",
		"automatically renew",
		"assign",
		"confidential",
	}
)

// ScoreText classifies a clause against the keyword rules. The first matching
// high-tier term wins, then the first medium-tier term; anything else is LOW.
func ScoreText(text string, policyRules map[string]string) (blackboard.RiskLevel, string) {
	lower := strings.ToLower(text)

	for _, term := range termsFor(policyRules, "high_risk_terms", defaultHighTerms) {
		if strings.Contains(lower, term) {
			return blackboard.RiskHigh, fmt.Sprintf("clause contains high risk term %q", term)
		}
	}
	for _, term := range termsFor(policyRules, "medium_risk_terms", defaultMediumTerms) {
		if strings.Contains(lower, term) {
			return blackboard.RiskMedium, fmt.Sprintf("clause contains medium risk term %q", term)
		}
	}
	return blackboard.RiskLow, "no risk terms matched"
}

func termsFor(policyRules map[string]string, key string, defaults []string) []string {
	raw, ok := policyRules[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return defaults
	}
	var terms []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return defaults
	}
	return terms
}

// softenClause produces the mechanical redline revision: liability-shifting
// language is qualified and a review marker is appended so a human drafter
// can finish the edit.
func softenClause(text string) string {
	replacer := strings.NewReplacer(
		"unlimited liability", "liability capped at the fees paid in the preceding 12 months",
		"shall indemnify", "shall, subject to the limitations in this agreement, indemnify",
		"irrevocably", "subject to the termination provisions herein,",
	)
	revised := replacer.Replace(text)
	if revised == text {
		revised = text + " Notwithstanding the foregoing, the parties' aggregate liability under this clause is limited as set out in the limitation of liability section."
	}
	return revised
}
