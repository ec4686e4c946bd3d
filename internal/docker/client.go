package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// NewClient creates a Docker client and verifies the daemon is reachable.
// Paths with container agents cannot run without it.
func NewClient(ctx context.Context) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	// Fail here rather than mid-run when the first container agent launches
	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf(`Docker daemon not accessible: %w

drey.yml declares container agents, which need a running Docker daemon:
  • macOS: start Docker Desktop
  • Linux: sudo systemctl start docker`, err)
	}

	return cli, nil
}
