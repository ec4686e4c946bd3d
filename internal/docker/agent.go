// Package docker runs external review agents as ephemeral containers. The
// container contract is environment in, stdout out: the task arrives in
// DREY_* variables, the agent writes its result text to stdout and signals
// failure with a non-zero exit code.
package docker

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/dyluth/drey/pkg/agent"
	"github.com/dyluth/drey/pkg/blackboard"
)

// ContainerAgent adapts a Docker image to the agent contract. Each Execute
// call launches a fresh container, waits for it to exit, and captures its
// logs as the agent output.
type ContainerAgent struct {
	cli          *client.Client
	instanceName string

	name    string
	role    string
	caps    []string
	image   string
	command []string
	env     []string
}

// Spec describes the container to run for an agent.
type Spec struct {
	Name         string
	Role         string
	Capabilities []string
	Image        string
	Command      []string
	Env          []string
}

// NewContainerAgent creates a container-backed agent.
func NewContainerAgent(cli *client.Client, instanceName string, spec Spec) (*ContainerAgent, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("container agent name cannot be empty")
	}
	if spec.Image == "" {
		return nil, fmt.Errorf("container agent %q: image cannot be empty", spec.Name)
	}

	return &ContainerAgent{
		cli:          cli,
		instanceName: instanceName,
		name:         spec.Name,
		role:         spec.Role,
		caps:         spec.Capabilities,
		image:        spec.Image,
		command:      spec.Command,
		env:          spec.Env,
	}, nil
}

func (a *ContainerAgent) Name() string           { return a.name }
func (a *ContainerAgent) Role() string           { return a.role }
func (a *ContainerAgent) Capabilities() []string { return a.caps }

// Execute launches the container for one task. The board is not passed into
// the container; external agents contribute through their output text only.
func (a *ContainerAgent) Execute(ctx context.Context, task agent.Task, board *blackboard.Blackboard) agent.Result {
	containerName := AgentContainerName(a.instanceName, a.name, board.RunID)

	env := append([]string{
		fmt.Sprintf("DREY_INSTANCE_NAME=%s", a.instanceName),
		fmt.Sprintf("DREY_AGENT_NAME=%s", a.name),
		fmt.Sprintf("DREY_AGENT_ROLE=%s", a.role),
		fmt.Sprintf("DREY_DOC_ID=%s", task.DocID),
		fmt.Sprintf("DREY_TASK_CONTENT=%s", task.Content),
	}, a.env...)

	containerConfig := &container.Config{
		Image:  a.image,
		Cmd:    a.command,
		Env:    env,
		Labels: BuildLabels(a.instanceName, board.RunID, "agent"),
	}
	hostConfig := &container.HostConfig{
		AutoRemove: false, // removed explicitly after log capture
	}

	resp, err := a.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return agent.Failed(a.name, fmt.Errorf("failed to create agent container: %w", err))
	}
	defer a.remove(resp.ID)

	if err := a.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return agent.Failed(a.name, fmt.Errorf("failed to start agent container: %w", err))
	}

	statusCh, errCh := a.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return agent.Failed(a.name, fmt.Errorf("error waiting for agent container: %w", err))
	case <-ctx.Done():
		return agent.Failed(a.name, ctx.Err())
	case status := <-statusCh:
		logs := a.logs(resp.ID)
		if status.StatusCode != 0 {
			return agent.Result{
				AgentName: a.name,
				Status:    agent.StatusFailed,
				Error:     fmt.Sprintf("agent container exited with code %d: %s", status.StatusCode, logs),
			}
		}
		return agent.Result{
			AgentName: a.name,
			Status:    agent.StatusSuccess,
			Output: map[string]any{
				"output":    logs,
				"exit_code": int(status.StatusCode),
			},
		}
	}
}

// logs retrieves the last 100 lines of container output.
func (a *ContainerAgent) logs(containerID string) string {
	options := types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "100",
	}

	// Log capture runs on a background context so a cancelled task can still
	// report what the container printed.
	reader, err := a.cli.ContainerLogs(context.Background(), containerID, options)
	if err != nil {
		return fmt.Sprintf("(failed to retrieve logs: %v)", err)
	}
	defer reader.Close()

	logs, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Sprintf("(failed to read logs: %v)", err)
	}

	return strings.TrimSpace(string(logs))
}

func (a *ContainerAgent) remove(containerID string) {
	err := a.cli.ContainerRemove(context.Background(), containerID, types.ContainerRemoveOptions{Force: true})
	if err != nil {
		log.Printf("[ContainerAgent] Failed to remove container %s: %v", containerID, err)
	}
}
