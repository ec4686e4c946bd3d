package commands

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/drey/internal/config"
	"github.com/dyluth/drey/internal/coordinator"
	dockerpkg "github.com/dyluth/drey/internal/docker"
	"github.com/dyluth/drey/internal/printer"
	"github.com/dyluth/drey/internal/store"
	"github.com/dyluth/drey/pkg/agent"
)

// loadConfig reads drey.yml from the --config path.
func loadConfig() (*config.DreyConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.Error(
			"failed to load configuration",
			err.Error(),
			[]string{fmt.Sprintf("Check that %s exists and is valid drey.yml", configPath)},
		)
	}
	return cfg, nil
}

// archiveClient connects to the configured Redis archive. Requires a redis
// section in drey.yml.
func archiveClient(ctx context.Context, cfg *config.DreyConfig) (*store.Client, error) {
	if cfg.Redis == nil || cfg.Redis.Addr == "" {
		return nil, printer.Error(
			"no archive configured",
			"This command needs the Redis archive, but drey.yml has no redis section.",
			[]string{"Add redis.addr (e.g. localhost:6379) to drey.yml"},
		)
	}

	client, err := store.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.Instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.Error(
			"archive not reachable",
			fmt.Sprintf("Redis at %s did not respond: %v", cfg.Redis.Addr, err),
			[]string{"Start Redis or fix redis.addr in drey.yml"},
		)
	}

	return client, nil
}

// usesContainers reports whether any configured path needs Docker.
func usesContainers(cfg *config.DreyConfig) bool {
	for _, p := range cfg.Paths {
		for _, a := range p.Team.Agents {
			if a.Kind == config.KindContainer {
				return true
			}
		}
	}
	return false
}

// buildCoordinator materializes the configured paths into a registered
// coordinator. The optional archive becomes the event sink. Returns a
// cleanup func for the Docker client, if one was needed.
func buildCoordinator(ctx context.Context, cfg *config.DreyConfig, archive *store.Client) (*coordinator.Coordinator, func(), error) {
	cleanup := func() {}

	var factory config.ContainerFactory
	if usesContainers(cfg) {
		cli, err := dockerpkg.NewClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { cli.Close() }
		factory = func(ac config.AgentConfig) (agent.Agent, error) {
			return dockerpkg.NewContainerAgent(cli, cfg.Instance, dockerpkg.Spec{
				Name:    ac.Name,
				Role:    ac.Role,
				Image:   ac.Image,
				Command: ac.Command,
				Env:     ac.Env,
			})
		}
	}

	paths, err := cfg.BuildPaths(factory)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var sink coordinator.EventSink
	if archive != nil {
		sink = archive
	}
	coord := coordinator.New(sink)
	for _, p := range paths {
		if err := coord.Register(p.Name, p.Team, p.Gates...); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	return coord, cleanup, nil
}
