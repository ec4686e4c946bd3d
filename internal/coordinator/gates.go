package coordinator

import (
	"fmt"

	"github.com/dyluth/drey/pkg/blackboard"
)

// Canonical gate stage names for the document-review flow. Paths are free
// to define additional, distinctly named stages.
const (
	StageRiskApproval  = "risk_approval"
	StageFinalApproval = "final_approval"
)

// Predicate is a domain-supplied gate condition evaluated against the board
// after a step completes. Predicates must be read-only.
type Predicate func(board *blackboard.Blackboard) bool

// GateSpec binds a named HITL stage to the step it fires after. A gate
// triggers at most once per run: once an approval for its stage is recorded
// on the board, the predicate is no longer consulted.
type GateSpec struct {
	Stage string    // approval stage name, e.g. "risk_approval"
	After string    // step name the gate is evaluated after
	When  Predicate // condition; nil means Always
}

// Validate checks the gate spec is well formed.
func (g GateSpec) Validate() error {
	if g.Stage == "" {
		return fmt.Errorf("gate stage cannot be empty")
	}
	if g.After == "" {
		return fmt.Errorf("gate %q: after step cannot be empty", g.Stage)
	}
	return nil
}

// HighRisk returns a predicate that fires when any assessment on the board
// is HIGH risk.
func HighRisk() Predicate {
	return func(board *blackboard.Blackboard) bool {
		for _, a := range board.Assessments {
			if a.Risk == blackboard.RiskHigh {
				return true
			}
		}
		return false
	}
}

// Always returns a predicate that fires unconditionally.
func Always() Predicate {
	return func(*blackboard.Blackboard) bool { return true }
}
