package domain

// MachineStatus is the coarse status broadcast by the heartbeat.
type MachineStatus string

const (
	MachineUnknown     MachineStatus = "UNKNOWN"
	MachineInitialized MachineStatus = "INITIALIZED"
	MachineLoading     MachineStatus = "LOADING"
	MachineRunning     MachineStatus = "RUNNING"
	MachinePaused      MachineStatus = "PAUSED"
)

// ComputeStatus derives the coarse status from the controller flags.
// Loading dominates; a paused machine reports PAUSED only while running.
func ComputeStatus(loading, loaded, running, paused bool) MachineStatus {
	switch {
	case loading:
		return MachineLoading
	case running && paused:
		return MachinePaused
	case running:
		return MachineRunning
	case loaded:
		return MachineInitialized
	default:
		return MachineUnknown
	}
}
