// Package agents provides the agent record, the id spawner, and the store that
// owns every live agent, bucketed by population and depth.
package agents

import "errors"

// ID uniquely identifies a live agent.
type ID string

// Agent is one unit of the hierarchy. Depth 0 is the base population; an agent
// at depth d+1 is the composite of agents from depth d.
type Agent struct {
	ID         ID      `json:"id" db:"id"`
	Energy     float64 `json:"energy" db:"energy"`
	Depth      int     `json:"depth" db:"depth"`
	Population int     `json:"population" db:"population"` // always 0 in single-population runs
	BornCycle  uint64  `json:"born_cycle" db:"born_cycle"`
}

// Alive reports whether the agent still has positive energy.
func (a *Agent) Alive() bool {
	return a.Energy > 0
}

// Store errors.
var (
	ErrNotFound    = errors.New("agent not found")
	ErrDuplicateID = errors.New("duplicate agent id")
	ErrOutOfRange  = errors.New("depth or population out of range")
)
