// Package coordinator owns every run: it registers teams under named agent
// paths, drives the run state machine one stage at a time, detects HITL gate
// conditions, resolves approvals, and manages checkpoints.
//
// Concurrency model: distinct runs execute fully concurrently against
// independent blackboards; within a run, at most one stage executes at a
// time on a dedicated driver goroutine that holds the run's mutex for the
// duration of the stage. The coordinator's own registries are guarded by a
// separate mutex so runs can be started and looked up concurrently.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/dyluth/drey/internal/team"
	"github.com/dyluth/drey/pkg/agent"
	"github.com/dyluth/drey/pkg/blackboard"
	"github.com/google/uuid"
)

// registeredPath binds a team and its gates to an agent path name.
// Registration happens process-wide before any run starts; paths are
// read-only afterwards.
type registeredPath struct {
	team  *team.Team
	steps []team.Step
	gates []GateSpec
}

// Coordinator is the single-process orchestration engine.
type Coordinator struct {
	mu    sync.Mutex
	paths map[string]*registeredPath
	runs  map[string]*run
	sink  EventSink
}

// New creates a Coordinator. A nil sink disables event publication.
func New(sink EventSink) *Coordinator {
	if sink == nil {
		sink = nopSink{}
	}
	return &Coordinator{
		paths: make(map[string]*registeredPath),
		runs:  make(map[string]*run),
		sink:  sink,
	}
}

// Register binds a team (and its approval gates) to an agent path name.
// Registering the same path twice is an error; gate After names must refer
// to steps the team actually exposes.
func (c *Coordinator) Register(path string, t *team.Team, gates ...GateSpec) error {
	if path == "" {
		return fmt.Errorf("agent path cannot be empty")
	}

	steps := t.Steps()
	stepNames := make(map[string]bool, len(steps))
	for _, s := range steps {
		stepNames[s.Name()] = true
	}
	for _, g := range gates {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("path %q: %w", path, err)
		}
		if !stepNames[g.After] {
			return fmt.Errorf("path %q: gate %q references unknown step %q", path, g.Stage, g.After)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.paths[path]; exists {
		return fmt.Errorf("agent path %q is already registered", path)
	}
	c.paths[path] = &registeredPath{team: t, steps: steps, gates: gates}
	return nil
}

// PathInfo describes a registered path for introspection.
type PathInfo struct {
	Path    string       `json:"path"`
	Team    string       `json:"team"`
	Pattern team.Pattern `json:"pattern"`
	Agents  []AgentInfo  `json:"agents"`
	Gates   []GateInfo   `json:"gates"`
}

// AgentInfo describes one agent of a registered team.
type AgentInfo struct {
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// GateInfo describes one gate of a registered path.
type GateInfo struct {
	Stage string `json:"stage"`
	After string `json:"after"`
}

// Paths returns the registered agent paths and their team composition,
// sorted by path name.
func (c *Coordinator) Paths() []PathInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	infos := make([]PathInfo, 0, len(c.paths))
	for name, p := range c.paths {
		info := PathInfo{Path: name, Team: p.team.Name, Pattern: p.team.Pattern}
		for _, a := range p.team.Agents {
			info.Agents = append(info.Agents, AgentInfo{
				Name:         a.Name(),
				Role:         a.Role(),
				Capabilities: a.Capabilities(),
			})
		}
		for _, g := range p.gates {
			info.Gates = append(info.Gates, GateInfo{Stage: g.Stage, After: g.After})
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos
}

// StartRun validates the agent path, creates a run with a fresh blackboard,
// and begins driving it on a background goroutine. Returns the run ID
// immediately; progress is observable via GetRun and the event sink.
//
// The provided ctx covers only this call. Runs get their own context so
// they outlive the caller; Abort cancels it.
func (c *Coordinator) StartRun(ctx context.Context, docID, text, path string, policyRules map[string]string) (string, error) {
	c.mu.Lock()
	p, ok := c.paths[path]
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPath, path)
	}

	runID := uuid.New().String()
	runCtx, cancel := context.WithCancel(context.Background())
	now := time.Now().UnixMilli()

	r := &run{
		id:          runID,
		docID:       docID,
		path:        path,
		policyRules: policyRules,
		status:      RunPending,
		createdAtMs: now,
		updatedAtMs: now,
		board:       blackboard.New(runID),
		task: agent.Task{
			DocID:       docID,
			Content:     text,
			PolicyRules: policyRules,
		},
		ctx:    runCtx,
		cancel: cancel,
	}

	c.mu.Lock()
	c.runs[runID] = r
	c.mu.Unlock()

	r.mu.Lock()
	r.status = RunRunning
	c.logEvent("run_started", map[string]interface{}{
		"run_id": runID,
		"doc_id": docID,
		"path":   path,
	})
	c.emit(r, EventRunStarted, "", docID)
	r.mu.Unlock()

	go c.drive(r, p)

	return runID, nil
}

// GetRun returns a read-only snapshot of a run: status, history and score.
// Idempotent and side-effect free.
func (c *Coordinator) GetRun(runID string) (RunInfo, error) {
	r, err := c.lookup(runID)
	if err != nil {
		return RunInfo{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info(), nil
}

// GetBlackboard returns a deep copy of the run's full board state.
// Idempotent and side-effect free.
func (c *Coordinator) GetBlackboard(runID string) (*blackboard.Blackboard, error) {
	r, err := c.lookup(runID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.board.Clone(), nil
}

func (c *Coordinator) lookup(runID string) (*run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRunNotFound, runID)
	}
	return r, nil
}

func (c *Coordinator) pathFor(r *run) *registeredPath {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paths[r.path]
}

// logEvent logs a structured event in JSON format.
func (c *Coordinator) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "coordinator"
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Coordinator] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
