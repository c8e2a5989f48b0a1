package topology

import "math/rand"

func fullyConnected(n int) *Graph {
	g := newGraph(KindFullyConnected, n)
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			g.connect(a, b)
		}
	}
	return g.seal()
}

func ring(n int) *Graph {
	g := newGraph(KindRing, n)
	for a := 0; a < n; a++ {
		g.connect(a, (a+1)%n)
	}
	return g.seal()
}

// star uses node 0 as the hub.
func star(n int) *Graph {
	g := newGraph(KindStar, n)
	for a := 1; a < n; a++ {
		g.connect(0, a)
	}
	return g.seal()
}

// erdosRenyi draws every pair once, in (a, b) order with a < b.
func erdosRenyi(n int, p float64, rng *rand.Rand) *Graph {
	g := newGraph(KindRandom, n)
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			if rng.Float64() < p {
				g.connect(a, b)
			}
		}
	}
	return g.seal()
}

// scaleFree grows a Barabási–Albert graph: a fully connected core of m+1 nodes,
// then each new node links to m distinct existing nodes chosen with
// probability proportional to their degree.
func scaleFree(n, m int, rng *rand.Rand) *Graph {
	g := newGraph(KindScaleFree, n)
	core := m + 1
	if core > n {
		core = n
	}

	// Every edge endpoint appears once here, so a uniform pick is degree-weighted.
	var endpoints []int
	for a := 0; a < core; a++ {
		for b := a + 1; b < core; b++ {
			g.connect(a, b)
			endpoints = append(endpoints, a, b)
		}
	}

	for v := core; v < n; v++ {
		chosen := make(map[int]bool, m)
		targets := make([]int, 0, m)
		for len(targets) < m {
			t := endpoints[rng.Intn(len(endpoints))]
			if chosen[t] {
				continue
			}
			chosen[t] = true
			targets = append(targets, t)
		}
		for _, t := range targets {
			g.connect(v, t)
			endpoints = append(endpoints, v, t)
		}
	}
	return g.seal()
}
