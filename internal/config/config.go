// Package config loads and validates drey.yml, the declarative description
// of agent paths: which team serves each path, its collaboration pattern,
// its agents, and the approval gates around them.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Valid agent kinds. "container" agents run an external Docker image; the
// rest are built-in review agents.
const (
	KindClauseParser     = "clause_parser"
	KindRiskScorer       = "risk_scorer"
	KindRedlineGenerator = "redline_generator"
	KindReviewManager    = "review_manager"
	KindClauseWorker     = "clause_worker"
	KindContainer        = "container"
)

// Valid gate conditions.
const (
	WhenAlways   = "always"
	WhenHighRisk = "high_risk"
)

// DreyConfig represents the top-level drey.yml configuration.
type DreyConfig struct {
	Version     string            `yaml:"version"`
	Instance    string            `yaml:"instance,omitempty"` // defaults to "default"
	Redis       *RedisConfig      `yaml:"redis,omitempty"`
	Paths       map[string]Path   `yaml:"paths"`
	PolicyRules map[string]string `yaml:"policy_rules,omitempty"`
}

// RedisConfig specifies the archive connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"` // host:port
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// Path binds a team and its gates to an agent path name.
type Path struct {
	Team  TeamConfig   `yaml:"team"`
	Gates []GateConfig `yaml:"gates,omitempty"`
}

// TeamConfig describes one team.
type TeamConfig struct {
	Name    string        `yaml:"name"`
	Pattern string        `yaml:"pattern"` // sequential, pipeline, parallel, manager_worker
	Policy  *PolicyConfig `yaml:"policy,omitempty"`
	Agents  []AgentConfig `yaml:"agents"`
}

// PolicyConfig tunes team execution. Timeouts are Go duration strings.
type PolicyConfig struct {
	ContinueOnError      bool   `yaml:"continue_on_error,omitempty"`
	JoinTimeout          string `yaml:"join_timeout,omitempty"`
	SubtaskTimeout       string `yaml:"subtask_timeout,omitempty"`
	FailOnSubtaskFailure bool   `yaml:"fail_on_subtask_failure,omitempty"`
}

// AgentConfig describes a single team member.
type AgentConfig struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Role     string   `yaml:"role,omitempty"`
	Replicas int      `yaml:"replicas,omitempty"` // worker fan-out, manager_worker only
	Image    string   `yaml:"image,omitempty"`    // container kind only
	Command  []string `yaml:"command,omitempty"`
	Env      []string `yaml:"environment,omitempty"`
}

// GateConfig describes one approval gate.
type GateConfig struct {
	Stage string `yaml:"stage"`
	After string `yaml:"after"`
	When  string `yaml:"when,omitempty"` // defaults to always
}

// Validate performs strict validation on the configuration.
func (c *DreyConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}
	if c.Instance == "" {
		c.Instance = "default"
	}
	if len(c.Paths) == 0 {
		return fmt.Errorf("no agent paths defined")
	}

	for name, p := range c.Paths {
		if err := p.Validate(name); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks a single path configuration.
func (p *Path) Validate(name string) error {
	t := &p.Team
	if t.Name == "" {
		return fmt.Errorf("path '%s': team name is required", name)
	}

	switch t.Pattern {
	case "sequential", "pipeline", "parallel", "manager_worker":
	default:
		return fmt.Errorf("path '%s': invalid pattern: %s (must be 'sequential', 'pipeline', 'parallel', or 'manager_worker')", name, t.Pattern)
	}

	if len(t.Agents) == 0 {
		return fmt.Errorf("path '%s': at least one agent is required", name)
	}

	seen := make(map[string]bool, len(t.Agents))
	for i, a := range t.Agents {
		if err := a.Validate(name); err != nil {
			return err
		}
		if a.Replicas > 1 && t.Pattern != "manager_worker" {
			return fmt.Errorf("path '%s': agent '%s': replicas only apply to manager_worker teams", name, a.Name)
		}
		if a.Replicas > 1 && i == 0 {
			return fmt.Errorf("path '%s': agent '%s': the manager cannot be replicated", name, a.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("path '%s': duplicate agent name '%s'", name, a.Name)
		}
		seen[a.Name] = true
	}

	if t.Policy != nil {
		if err := t.Policy.Validate(name); err != nil {
			return err
		}
	}

	stages := make(map[string]bool, len(p.Gates))
	for _, g := range p.Gates {
		if g.Stage == "" {
			return fmt.Errorf("path '%s': gate stage is required", name)
		}
		if g.After == "" {
			return fmt.Errorf("path '%s': gate '%s': after is required", name, g.Stage)
		}
		if g.When != "" && g.When != WhenAlways && g.When != WhenHighRisk {
			return fmt.Errorf("path '%s': gate '%s': invalid when: %s (must be 'always' or 'high_risk')", name, g.Stage, g.When)
		}
		if stages[g.Stage] {
			return fmt.Errorf("path '%s': duplicate gate stage '%s'", name, g.Stage)
		}
		stages[g.Stage] = true
	}

	return nil
}

// Validate checks a single agent configuration.
func (a *AgentConfig) Validate(pathName string) error {
	if a.Name == "" {
		return fmt.Errorf("path '%s': agent name is required", pathName)
	}

	switch a.Kind {
	case KindClauseParser, KindRiskScorer, KindRedlineGenerator, KindReviewManager, KindClauseWorker:
	case KindContainer:
		if a.Image == "" {
			return fmt.Errorf("path '%s': agent '%s': image is required for container agents", pathName, a.Name)
		}
	default:
		return fmt.Errorf("path '%s': agent '%s': invalid kind: %s", pathName, a.Name, a.Kind)
	}

	if a.Replicas < 0 {
		return fmt.Errorf("path '%s': agent '%s': replicas must be >= 0", pathName, a.Name)
	}
	if a.Kind != KindContainer && a.Image != "" {
		return fmt.Errorf("path '%s': agent '%s': image only applies to container agents", pathName, a.Name)
	}

	return nil
}

// Validate checks duration fields parse.
func (p *PolicyConfig) Validate(pathName string) error {
	for field, raw := range map[string]string{
		"join_timeout":    p.JoinTimeout,
		"subtask_timeout": p.SubtaskTimeout,
	} {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("path '%s': invalid %s: %w", pathName, field, err)
		}
		if d <= 0 {
			return fmt.Errorf("path '%s': %s must be positive", pathName, field)
		}
	}
	return nil
}

// Load reads and validates drey.yml from the specified path.
func Load(path string) (*DreyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config DreyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
