// Package blackboard provides the run-scoped shared state for the drey
// orchestration engine. Every run owns exactly one Blackboard for its entire
// lifetime: agents read clauses from it and write assessments, proposals and
// subtasks into it, while the engine appends an audit history and captures
// deep-copied checkpoints.
//
// The Blackboard itself performs no locking. Ownership discipline is enforced
// by the callers: the coordinator serializes stage execution per run, and
// teams running agents concurrently give each agent a private Clone and merge
// the results back in a single critical section. See the coordinator and team
// packages for the merge discipline.
package blackboard
