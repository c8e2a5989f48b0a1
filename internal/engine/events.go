package engine

import (
	"fmt"

	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/agents"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/phi"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/reality"
)

// State is the driver state.
type State int

const (
	Running State = iota
	TerminatedCap
	TerminatedExtinct
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case TerminatedCap:
		return "terminated_cap"
	case TerminatedExtinct:
		return "terminated_extinct"
	default:
		return "unknown"
	}
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for _, st := range []State{Running, TerminatedCap, TerminatedExtinct} {
		if st.String() == s {
			return st, nil
		}
	}
	return Running, fmt.Errorf("unknown state %q", s)
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	st, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Terminal reports whether no further cycles will run.
func (s State) Terminal() bool {
	return s != Running
}

// EventKind categorises an Event.
type EventKind string

const (
	EventComposition   EventKind = "composition"
	EventDecomposition EventKind = "decomposition"
	EventBirth         EventKind = "birth"
	EventDeath         EventKind = "death"
	EventMigration     EventKind = "migration"
)

// Event records one agent transition. Parents are the agents consumed (or the
// agent acted on), Children the agents produced. Energies are index-aligned.
type Event struct {
	Kind         EventKind   `json:"kind"`
	Cycle        uint64      `json:"cycle"`
	Population   int         `json:"population"`
	ToPopulation int         `json:"to_population"`
	FromDepth    int         `json:"from_depth"`
	ToDepth      int         `json:"to_depth"`
	Parents      []agents.ID `json:"parents"`
	ParentEnergy []float64   `json:"parent_energy"`
	Children     []agents.ID `json:"children,omitempty"`
	ChildEnergy  []float64   `json:"child_energy,omitempty"`
}

// CycleStats is the per-cycle summary kept in the simulation history.
type CycleStats struct {
	Cycle            uint64  `json:"cycle"`
	State            State   `json:"state"`
	Total            int     `json:"total"`
	DepthCounts      []int   `json:"depth_counts"`
	PopulationCounts [][]int `json:"population_counts"`
	Births           int     `json:"births"`
	Deaths           int     `json:"deaths"`
	Compositions     int     `json:"compositions"`
	Decompositions   int     `json:"decompositions"`
	Migrations       int     `json:"migrations"`
}

// RealityReading is the telemetry sampled at the start of a cycle.
type RealityReading struct {
	Snapshot reality.Snapshot `json:"snapshot"`
	Phase    phi.PhaseState   `json:"phase"`
	// Resonance is the state resonance with the previous cycle's reading
	// (1 for the first reading).
	Resonance float64 `json:"resonance"`
}

// CycleReport is everything one cycle produced.
type CycleReport struct {
	CycleStats

	ReproductionGated bool            `json:"reproduction_gated"`
	Reality           *RealityReading `json:"reality,omitempty"`
	Events            []Event         `json:"events"`
}

func (r *CycleReport) record(ev Event) {
	r.Events = append(r.Events, ev)
	switch ev.Kind {
	case EventComposition:
		r.Compositions++
	case EventDecomposition:
		r.Decompositions++
	case EventBirth:
		r.Births++
	case EventDeath:
		r.Deaths++
	case EventMigration:
		r.Migrations++
	}
}
