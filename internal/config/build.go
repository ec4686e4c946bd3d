package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/dyluth/drey/internal/agents"
	"github.com/dyluth/drey/internal/coordinator"
	"github.com/dyluth/drey/internal/team"
	"github.com/dyluth/drey/pkg/agent"
)

// ContainerFactory builds an agent for kind "container". Kept as a callback
// so config stays decoupled from the Docker client; callers without Docker
// pass nil and container agents become a configuration error.
type ContainerFactory func(AgentConfig) (agent.Agent, error)

// PathSpec is a fully materialized agent path, ready for registration.
type PathSpec struct {
	Name  string
	Team  *team.Team
	Gates []coordinator.GateSpec
}

// BuildPaths materializes every configured path into teams and gates,
// sorted by path name for deterministic registration order.
func (c *DreyConfig) BuildPaths(containers ContainerFactory) ([]PathSpec, error) {
	specs := make([]PathSpec, 0, len(c.Paths))
	for name, p := range c.Paths {
		spec, err := buildPath(name, p, containers)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs, nil
}

func buildPath(name string, p Path, containers ContainerFactory) (PathSpec, error) {
	var members []agent.Agent
	for _, ac := range p.Team.Agents {
		replicas := ac.Replicas
		if replicas <= 1 {
			a, err := buildAgent(ac, ac.Name, containers)
			if err != nil {
				return PathSpec{}, fmt.Errorf("path '%s': %w", name, err)
			}
			members = append(members, a)
			continue
		}
		for i := 1; i <= replicas; i++ {
			a, err := buildAgent(ac, fmt.Sprintf("%s-%d", ac.Name, i), containers)
			if err != nil {
				return PathSpec{}, fmt.Errorf("path '%s': %w", name, err)
			}
			members = append(members, a)
		}
	}

	t, err := team.New(p.Team.Name, team.Pattern(p.Team.Pattern), buildPolicy(p.Team.Policy), members...)
	if err != nil {
		return PathSpec{}, fmt.Errorf("path '%s': %w", name, err)
	}

	gates := make([]coordinator.GateSpec, 0, len(p.Gates))
	for _, g := range p.Gates {
		gates = append(gates, coordinator.GateSpec{
			Stage: g.Stage,
			After: g.After,
			When:  predicateFor(g.When),
		})
	}

	return PathSpec{Name: name, Team: t, Gates: gates}, nil
}

func buildAgent(ac AgentConfig, name string, containers ContainerFactory) (agent.Agent, error) {
	switch ac.Kind {
	case KindClauseParser:
		return agents.NewClauseParser(name, ac.Role), nil
	case KindRiskScorer:
		return agents.NewRiskScorer(name, ac.Role), nil
	case KindRedlineGenerator:
		return agents.NewRedlineGenerator(name, ac.Role), nil
	case KindReviewManager:
		return agents.NewReviewManager(name, ac.Role), nil
	case KindClauseWorker:
		return agents.NewClauseWorker(name, ac.Role), nil
	case KindContainer:
		if containers == nil {
			return nil, fmt.Errorf("agent '%s': container agents require Docker", name)
		}
		scoped := ac
		scoped.Name = name
		return containers(scoped)
	default:
		return nil, fmt.Errorf("agent '%s': invalid kind: %s", name, ac.Kind)
	}
}

func buildPolicy(pc *PolicyConfig) team.Policy {
	policy := team.DefaultPolicy()
	if pc == nil {
		return policy
	}
	policy.ContinueOnError = pc.ContinueOnError
	policy.FailOnSubtaskFailure = pc.FailOnSubtaskFailure
	if pc.JoinTimeout != "" {
		// Validate already parsed these
		if d, err := time.ParseDuration(pc.JoinTimeout); err == nil {
			policy.JoinTimeout = d
		}
	}
	if pc.SubtaskTimeout != "" {
		if d, err := time.ParseDuration(pc.SubtaskTimeout); err == nil {
			policy.SubtaskTimeout = d
		}
	}
	return policy
}

func predicateFor(when string) coordinator.Predicate {
	switch when {
	case WhenHighRisk:
		return coordinator.HighRisk()
	default:
		return coordinator.Always()
	}
}
