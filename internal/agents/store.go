package agents

import "fmt"

// location is where a live agent currently sits.
type location struct {
	population int
	depth      int
}

// bucket keeps one (population, depth) cell in insertion order with O(1) removal.
type bucket struct {
	agents []*Agent
	pos    map[ID]int
}

func newBucket() *bucket {
	return &bucket{pos: make(map[ID]int)}
}

func (b *bucket) add(a *Agent) {
	b.pos[a.ID] = len(b.agents)
	b.agents = append(b.agents, a)
}

// remove swaps the last agent into the vacated slot.
func (b *bucket) remove(id ID) (*Agent, bool) {
	i, ok := b.pos[id]
	if !ok {
		return nil, false
	}
	a := b.agents[i]
	last := len(b.agents) - 1
	if i != last {
		moved := b.agents[last]
		b.agents[i] = moved
		b.pos[moved.ID] = i
	}
	b.agents[last] = nil
	b.agents = b.agents[:last]
	delete(b.pos, id)
	return a, true
}

// Store owns every live agent. Each agent is in exactly one bucket, and the
// global index rejects an id that is already live anywhere.
//
// Store is not safe for concurrent use; a single simulation owns it.
type Store struct {
	depths      int
	populations int
	buckets     [][]*bucket // [population][depth]
	index       map[ID]location
}

// NewStore creates an empty store with the given number of depth levels and populations.
func NewStore(depths, populations int) *Store {
	if populations < 1 {
		populations = 1
	}
	buckets := make([][]*bucket, populations)
	for p := range buckets {
		buckets[p] = make([]*bucket, depths)
		for d := range buckets[p] {
			buckets[p][d] = newBucket()
		}
	}
	return &Store{
		depths:      depths,
		populations: populations,
		buckets:     buckets,
		index:       make(map[ID]location),
	}
}

// Depths returns the number of depth levels.
func (s *Store) Depths() int { return s.depths }

// Populations returns the number of populations.
func (s *Store) Populations() int { return s.populations }

func (s *Store) inRange(population, depth int) bool {
	return population >= 0 && population < s.populations && depth >= 0 && depth < s.depths
}

// Add places a into the bucket named by its Population and Depth.
func (s *Store) Add(a *Agent) error {
	if !s.inRange(a.Population, a.Depth) {
		return fmt.Errorf("add %s at population %d depth %d: %w", a.ID, a.Population, a.Depth, ErrOutOfRange)
	}
	if _, ok := s.index[a.ID]; ok {
		return fmt.Errorf("add %s: %w", a.ID, ErrDuplicateID)
	}
	s.buckets[a.Population][a.Depth].add(a)
	s.index[a.ID] = location{population: a.Population, depth: a.Depth}
	return nil
}

// Remove takes the agent out of the given bucket and returns it.
func (s *Store) Remove(id ID, population, depth int) (*Agent, error) {
	if !s.inRange(population, depth) {
		return nil, fmt.Errorf("remove %s at population %d depth %d: %w", id, population, depth, ErrOutOfRange)
	}
	a, ok := s.buckets[population][depth].remove(id)
	if !ok {
		return nil, fmt.Errorf("remove %s from population %d depth %d: %w", id, population, depth, ErrNotFound)
	}
	delete(s.index, id)
	return a, nil
}

// Move transfers a live agent to another population, keeping its depth and energy.
func (s *Store) Move(id ID, toPopulation int) error {
	loc, ok := s.index[id]
	if !ok {
		return fmt.Errorf("move %s: %w", id, ErrNotFound)
	}
	if !s.inRange(toPopulation, loc.depth) {
		return fmt.Errorf("move %s to population %d: %w", id, toPopulation, ErrOutOfRange)
	}
	if toPopulation == loc.population {
		return nil
	}
	a, _ := s.buckets[loc.population][loc.depth].remove(id)
	a.Population = toPopulation
	s.buckets[toPopulation][loc.depth].add(a)
	s.index[id] = location{population: toPopulation, depth: loc.depth}
	return nil
}

// Get returns the live agent with the given id.
func (s *Store) Get(id ID) (*Agent, bool) {
	loc, ok := s.index[id]
	if !ok {
		return nil, false
	}
	b := s.buckets[loc.population][loc.depth]
	return b.agents[b.pos[id]], true
}

// List returns a copy of one bucket in its current order. Mutating the
// returned slice does not affect the store; the agents are shared.
func (s *Store) List(population, depth int) []*Agent {
	if !s.inRange(population, depth) {
		return nil
	}
	src := s.buckets[population][depth].agents
	out := make([]*Agent, len(src))
	copy(out, src)
	return out
}

// Len returns the size of one bucket.
func (s *Store) Len(population, depth int) int {
	if !s.inRange(population, depth) {
		return 0
	}
	return len(s.buckets[population][depth].agents)
}

// CountAll returns the number of live agents.
func (s *Store) CountAll() int {
	return len(s.index)
}

// CountDepth returns the number of live agents at depth across all populations.
func (s *Store) CountDepth(depth int) int {
	n := 0
	for p := 0; p < s.populations; p++ {
		n += s.Len(p, depth)
	}
	return n
}

// CountPopulation returns the number of live agents in one population.
func (s *Store) CountPopulation(population int) int {
	n := 0
	for d := 0; d < s.depths; d++ {
		n += s.Len(population, d)
	}
	return n
}

// DepthCounts returns live counts per depth, summed over populations.
func (s *Store) DepthCounts() []int {
	out := make([]int, s.depths)
	for d := range out {
		out[d] = s.CountDepth(d)
	}
	return out
}

// PopulationCounts returns live counts indexed [population][depth].
func (s *Store) PopulationCounts() [][]int {
	out := make([][]int, s.populations)
	for p := range out {
		out[p] = make([]int, s.depths)
		for d := range out[p] {
			out[p][d] = s.Len(p, d)
		}
	}
	return out
}

// Each visits every live agent population by population, depth by depth, in
// bucket order. fn must not add or remove agents.
func (s *Store) Each(fn func(a *Agent)) {
	for p := 0; p < s.populations; p++ {
		for d := 0; d < s.depths; d++ {
			for _, a := range s.buckets[p][d].agents {
				fn(a)
			}
		}
	}
}

// Snapshot returns value copies of every live agent in Each order.
func (s *Store) Snapshot() []Agent {
	out := make([]Agent, 0, len(s.index))
	s.Each(func(a *Agent) {
		out = append(out, *a)
	})
	return out
}
