package store

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so
// multiple drey instances can safely share a single Redis server.
//
// Key pattern: drey:{instance_name}:{entity}:{uuid}
// Channel pattern: drey:{instance_name}:{event_type}_events

// RunKey returns the Redis key for an archived run.
// Pattern: drey:{instance_name}:run:{run_id}
func RunKey(instanceName, runID string) string {
	return fmt.Sprintf("drey:%s:run:%s", instanceName, runID)
}

// RunIndexKey returns the Redis key for the set of archived run IDs.
// Pattern: drey:{instance_name}:runs
func RunIndexKey(instanceName string) string {
	return fmt.Sprintf("drey:%s:runs", instanceName)
}

// BoardKey returns the Redis key for an archived blackboard.
// Pattern: drey:{instance_name}:board:{run_id}
func BoardKey(instanceName, runID string) string {
	return fmt.Sprintf("drey:%s:board:%s", instanceName, runID)
}

// RunEventsChannel returns the Pub/Sub channel name for run lifecycle events.
// Pattern: drey:{instance_name}:run_events
func RunEventsChannel(instanceName string) string {
	return fmt.Sprintf("drey:%s:run_events", instanceName)
}
