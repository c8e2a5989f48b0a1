package agents

import "fmt"

// Spawner issues agent ids and builds new agents. Ids come from a monotonic
// counter, so they never collide within a run.
type Spawner struct {
	nextID uint64
}

// NewSpawner creates a spawner whose first id is a000001.
func NewSpawner() *Spawner {
	return &Spawner{nextID: 1}
}

// SetNextID sets the counter for the next issued id (used when resuming a run).
func (s *Spawner) SetNextID(n uint64) {
	s.nextID = n
}

// NextID returns the counter value the next Spawn will use.
func (s *Spawner) NextID() uint64 {
	return s.nextID
}

// Spawn creates an agent with a fresh id.
func (s *Spawner) Spawn(energy float64, depth, population int, cycle uint64) *Agent {
	id := ID(fmt.Sprintf("a%06d", s.nextID))
	s.nextID++
	return &Agent{
		ID:         id,
		Energy:     energy,
		Depth:      depth,
		Population: population,
		BornCycle:  cycle,
	}
}

// SpawnPopulation creates count agents at depth 0 of one population, all with
// the same starting energy.
func (s *Spawner) SpawnPopulation(count int, energy float64, population int) []*Agent {
	out := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, s.Spawn(energy, 0, population, 0))
	}
	return out
}
