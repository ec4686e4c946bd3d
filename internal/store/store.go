// Package store archives runs and blackboards to Redis and relays run
// lifecycle events over Pub/Sub. The engine itself is in-memory; the store
// is the durability and observation edge around it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/drey/internal/coordinator"
	"github.com/dyluth/drey/pkg/blackboard"
)

// Client provides instance-scoped Redis operations for the run archive.
// All keys and channels are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new archive client for the specified instance.
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// ArchiveRun writes a run snapshot to Redis and adds it to the run index.
// Idempotent: archiving the same run again replaces the snapshot.
//
// The run is stored as a Redis hash at drey:{instance}:run:{id}.
func (c *Client) ArchiveRun(ctx context.Context, info coordinator.RunInfo) error {
	if info.ID == "" {
		return fmt.Errorf("run ID cannot be empty")
	}

	hash, err := RunToHash(info)
	if err != nil {
		return fmt.Errorf("failed to serialize run: %w", err)
	}

	key := RunKey(c.instanceName, info.ID)
	if err := c.rdb.HSet(ctx, key, hash).Err(); err != nil {
		return fmt.Errorf("failed to write run to Redis: %w", err)
	}

	if err := c.rdb.SAdd(ctx, RunIndexKey(c.instanceName), info.ID).Err(); err != nil {
		return fmt.Errorf("failed to index run: %w", err)
	}

	return nil
}

// GetRun retrieves an archived run by ID.
// Returns redis.Nil if the run doesn't exist; use IsNotFound() to check.
func (c *Client) GetRun(ctx context.Context, runID string) (coordinator.RunInfo, error) {
	key := RunKey(c.instanceName, runID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return coordinator.RunInfo{}, fmt.Errorf("failed to read run from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return coordinator.RunInfo{}, redis.Nil
	}

	info, err := HashToRun(hashData)
	if err != nil {
		return coordinator.RunInfo{}, fmt.Errorf("failed to deserialize run: %w", err)
	}

	return info, nil
}

// ListRuns retrieves all archived runs, newest first.
func (c *Client) ListRuns(ctx context.Context) ([]coordinator.RunInfo, error) {
	ids, err := c.rdb.SMembers(ctx, RunIndexKey(c.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run index: %w", err)
	}

	runs := make([]coordinator.RunInfo, 0, len(ids))
	for _, id := range ids {
		info, err := c.GetRun(ctx, id)
		if err != nil {
			// Index entries can outlive expired run hashes; skip them.
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		runs = append(runs, info)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAtMs > runs[j].CreatedAtMs })
	return runs, nil
}

// ArchiveBoard writes a full blackboard snapshot to Redis.
// The board is stored as a Redis hash at drey:{instance}:board:{run_id}.
func (c *Client) ArchiveBoard(ctx context.Context, b *blackboard.Blackboard) error {
	if b == nil || b.RunID == "" {
		return fmt.Errorf("board must carry a run ID")
	}

	hash, err := BoardToHash(b)
	if err != nil {
		return fmt.Errorf("failed to serialize board: %w", err)
	}

	key := BoardKey(c.instanceName, b.RunID)
	if err := c.rdb.HSet(ctx, key, hash).Err(); err != nil {
		return fmt.Errorf("failed to write board to Redis: %w", err)
	}

	return nil
}

// GetBoard retrieves an archived blackboard by run ID.
// Returns (nil, redis.Nil) if no board was archived for the run.
func (c *Client) GetBoard(ctx context.Context, runID string) (*blackboard.Blackboard, error) {
	key := BoardKey(c.instanceName, runID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read board from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	board, err := HashToBoard(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize board: %w", err)
	}

	return board, nil
}

// PublishRunEvent publishes a run lifecycle event as JSON to the instance's
// run_events channel.
func (c *Client) PublishRunEvent(ctx context.Context, e coordinator.RunEvent) error {
	eventJSON, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}

	channel := RunEventsChannel(c.instanceName)
	if err := c.rdb.Publish(ctx, channel, eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish run event: %w", err)
	}

	return nil
}

// RunEvent implements coordinator.EventSink. Publish failures are logged by
// Redis client internals and otherwise swallowed: the engine never blocks a
// run on the archive.
func (c *Client) RunEvent(ctx context.Context, e coordinator.RunEvent) {
	_ = c.PublishRunEvent(ctx, e)
}

// Subscription represents an active Pub/Sub subscription to run events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *coordinator.RunEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of run events.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *coordinator.RunEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures and other non-fatal issues.
// The subscription continues after errors - messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeRunEvents subscribes to run lifecycle events for this instance.
// Caller must call subscription.Close() when done.
// Context cancellation also stops the subscription.
//
// Events are delivered on a buffered channel (size 10) to prevent blocking.
// If the subscriber is too slow, events may be dropped by Redis Pub/Sub
// (at-most-once delivery).
func (c *Client) SubscribeRunEvents(ctx context.Context) (*Subscription, error) {
	channel := RunEventsChannel(c.instanceName)
	pubsub := c.rdb.Subscribe(ctx, channel)

	eventsChan := make(chan *coordinator.RunEvent, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event coordinator.RunEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal run event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error
// (redis.Nil). Use this to check if GetRun or GetBoard returned "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
