// Package agents provides the built-in document-review agents: a clause
// parser, a risk scorer, a redline generator, and the manager/worker pair
// for decomposed review. They are deliberately simple rule-driven
// implementations - real NLP lives behind the same contract, outside the
// engine - but they are complete enough to drive every topology end to end.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/drey/pkg/agent"
	"github.com/dyluth/drey/pkg/blackboard"
	"github.com/google/uuid"
)

// base carries the identity fields shared by all built-in agents.
type base struct {
	name string
	role string
	caps []string
}

func (b base) Name() string           { return b.name }
func (b base) Role() string           { return b.role }
func (b base) Capabilities() []string { return b.caps }

// ClauseParser splits the task document into clauses and writes them to the
// board. Clauses are paragraph-shaped: blank lines separate them.
type ClauseParser struct{ base }

// NewClauseParser creates a parser agent with the given name.
func NewClauseParser(name, role string) *ClauseParser {
	if role == "" {
		role = "parsing"
	}
	return &ClauseParser{base{name: name, role: role, caps: []string{"parse_document"}}}
}

// Execute writes one clause per paragraph of the task content.
func (p *ClauseParser) Execute(_ context.Context, task agent.Task, board *blackboard.Blackboard) agent.Result {
	paragraphs := SplitClauses(task.Content)
	if len(paragraphs) == 0 {
		return agent.Result{
			AgentName: p.name,
			Status:    agent.StatusFailed,
			Error:     "document contains no clauses",
		}
	}

	for i, text := range paragraphs {
		board.AddClauses(blackboard.Clause{
			ID:      uuid.New().String(),
			Index:   i + 1,
			Heading: clauseHeading(text),
			Text:    text,
		})
	}

	return agent.Result{
		AgentName: p.name,
		Status:    agent.StatusSuccess,
		Output: map[string]any{
			"output":       task.Content,
			"clause_count": len(paragraphs),
		},
	}
}

// RiskScorer assesses every unassessed clause on the board against keyword
// rules, which the task's policy_rules may override.
type RiskScorer struct{ base }

// NewRiskScorer creates a risk scoring agent with the given name.
func NewRiskScorer(name, role string) *RiskScorer {
	if role == "" {
		role = "analysis"
	}
	return &RiskScorer{base{name: name, role: role, caps: []string{"assess_risk"}}}
}

// Execute appends one assessment per clause that has none yet.
func (s *RiskScorer) Execute(_ context.Context, task agent.Task, board *blackboard.Blackboard) agent.Result {
	assessed := make(map[string]bool, len(board.Assessments))
	for _, a := range board.Assessments {
		assessed[a.ClauseID] = true
	}

	counts := map[blackboard.RiskLevel]int{}
	for _, clause := range board.Clauses {
		if assessed[clause.ID] {
			continue
		}
		risk, rationale := ScoreText(clause.Text, task.PolicyRules)
		board.AddAssessments(blackboard.Assessment{
			ClauseID:   clause.ID,
			Risk:       risk,
			Rationale:  rationale,
			AssessedBy: s.name,
		})
		counts[risk]++
	}

	return agent.Result{
		AgentName: s.name,
		Status:    agent.StatusSuccess,
		Output: map[string]any{
			"output": task.Content,
			"high":   counts[blackboard.RiskHigh],
			"medium": counts[blackboard.RiskMedium],
			"low":    counts[blackboard.RiskLow],
		},
	}
}

// RedlineGenerator proposes revisions for HIGH risk clauses. When a risk
// approval has been recorded, only approved clause IDs get proposals;
// rejected ones are skipped.
type RedlineGenerator struct{ base }

// NewRedlineGenerator creates a redline agent with the given name.
func NewRedlineGenerator(name, role string) *RedlineGenerator {
	if role == "" {
		role = "drafting"
	}
	return &RedlineGenerator{base{name: name, role: role, caps: []string{"generate_redline"}}}
}

// Execute appends one proposal per eligible HIGH risk clause.
func (g *RedlineGenerator) Execute(_ context.Context, _ agent.Task, board *blackboard.Blackboard) agent.Result {
	var allowed map[string]bool
	if approval, ok := board.Approvals["risk_approval"]; ok {
		allowed = make(map[string]bool, len(approval.ApprovedIDs))
		for _, id := range approval.ApprovedIDs {
			allowed[id] = true
		}
	}

	proposed := 0
	for _, a := range board.Assessments {
		if a.Risk != blackboard.RiskHigh {
			continue
		}
		if allowed != nil && !allowed[a.ClauseID] {
			continue
		}
		clause := board.ClauseByID(a.ClauseID)
		if clause == nil {
			continue
		}
		board.AddProposals(blackboard.Proposal{
			ID:         uuid.New().String(),
			ClauseID:   clause.ID,
			Original:   clause.Text,
			Revised:    softenClause(clause.Text),
			Rationale:  fmt.Sprintf("mitigates %s risk: %s", a.Risk, a.Rationale),
			ProposedBy: g.name,
		})
		proposed++
	}

	return agent.Result{
		AgentName: g.name,
		Status:    agent.StatusSuccess,
		Output:    map[string]any{"proposals": proposed},
	}
}

// ReviewManager decomposes the document into one assessment subtask per
// clause. If no parser ran before it, the manager parses the document
// itself first.
type ReviewManager struct{ base }

// NewReviewManager creates a manager agent with the given name.
func NewReviewManager(name, role string) *ReviewManager {
	if role == "" {
		role = "management"
	}
	return &ReviewManager{base{name: name, role: role, caps: []string{"decompose_task"}}}
}

// Execute writes one pending subtask per clause to the board.
func (m *ReviewManager) Execute(_ context.Context, task agent.Task, board *blackboard.Blackboard) agent.Result {
	if len(board.Clauses) == 0 {
		paragraphs := SplitClauses(task.Content)
		if len(paragraphs) == 0 {
			return agent.Result{
				AgentName: m.name,
				Status:    agent.StatusFailed,
				Error:     "document contains no clauses to decompose",
			}
		}
		for i, text := range paragraphs {
			board.AddClauses(blackboard.Clause{
				ID:      uuid.New().String(),
				Index:   i + 1,
				Heading: clauseHeading(text),
				Text:    text,
			})
		}
	}

	for _, clause := range board.Clauses {
		board.AddSubtasks(blackboard.Subtask{
			ID:       uuid.New().String(),
			ClauseID: clause.ID,
			Kind:     "assess_clause",
			Payload:  clause.Text,
			Status:   blackboard.SubtaskPending,
		})
	}

	return agent.Result{
		AgentName: m.name,
		Status:    agent.StatusSuccess,
		Output:    map[string]any{"subtasks": len(board.Clauses)},
	}
}

// ClauseWorker assesses a single clause handed to it as a subtask: the task
// DocID carries the clause ID and the content carries the clause text.
type ClauseWorker struct{ base }

// NewClauseWorker creates a worker agent with the given name.
func NewClauseWorker(name, role string) *ClauseWorker {
	if role == "" {
		role = "analysis"
	}
	return &ClauseWorker{base{name: name, role: role, caps: []string{"assess_clause"}}}
}

// Execute appends exactly one assessment for the subtask's clause.
func (w *ClauseWorker) Execute(_ context.Context, task agent.Task, board *blackboard.Blackboard) agent.Result {
	if task.Content == "" {
		return agent.Result{
			AgentName: w.name,
			Status:    agent.StatusFailed,
			Error:     "empty clause payload",
		}
	}

	risk, rationale := ScoreText(task.Content, task.PolicyRules)
	board.AddAssessments(blackboard.Assessment{
		ClauseID:   task.DocID,
		Risk:       risk,
		Rationale:  rationale,
		AssessedBy: w.name,
	})

	return agent.Result{
		AgentName: w.name,
		Status:    agent.StatusSuccess,
		Output:    map[string]any{"risk": string(risk)},
	}
}

// SplitClauses splits a document into clause-sized chunks on blank lines.
func SplitClauses(text string) []string {
	var clauses []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			clauses = append(clauses, block)
		}
	}
	return clauses
}

func clauseHeading(text string) string {
	line := text
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	if len(line) > 40 {
		line = line[:40]
	}
	return strings.TrimSpace(line)
}
