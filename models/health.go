package models

// HealthStatus is the disease state of an agent. The simulation stores and
// transports statuses without interpreting them; the one exception is
// HealthDead, which retires the agent from movement and contact detection.
type HealthStatus string

const (
	HealthSusceptible HealthStatus = "susceptible"
	HealthExposed     HealthStatus = "exposed"
	HealthInfectious  HealthStatus = "infectious"
	HealthRecovered   HealthStatus = "recovered"
	HealthDead        HealthStatus = "dead"
)

// Terminal reports whether the status permanently retires the agent from
// the world.
func (s HealthStatus) Terminal() bool {
	return s == HealthDead
}

// HealthUpdate is a status change for a single agent, produced by an
// infection model and applied by the simulation before the next tick.
type HealthUpdate struct {
	AgentID uint32       `json:"agent_id"`
	Status  HealthStatus `json:"status"`

	// SourceID is the infecting agent for new exposures. It is zero for
	// index cases and for updates that are not exposures.
	SourceID uint32 `json:"source_id,omitempty"`
}
