package docker

import "fmt"

// Label keys used for drey resources
const (
	LabelProject      = "drey.project"
	LabelInstanceName = "drey.instance.name"
	LabelRunID        = "drey.run.id"
	LabelComponent    = "drey.component"
	LabelAgentName    = "drey.agent.name"
)

// BuildLabels creates the standard label set for all drey resources.
// All parameters are required except component (which is resource-specific).
func BuildLabels(instanceName, runID, component string) map[string]string {
	labels := map[string]string{
		LabelProject:      "true",
		LabelInstanceName: instanceName,
		LabelRunID:        runID,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// AgentContainerName returns the container name for one agent invocation.
// The run short ID keeps concurrent runs of the same agent distinguishable.
func AgentContainerName(instanceName, agentName, runID string) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("drey-%s-%s-%s", instanceName, agentName, short)
}
