package searcher

import "sync"

// Graph is the adjacency a beam search walks.
type Graph interface {
	// Len returns the number of nodes.
	Len() int
	// Neighbors appends the out-neighbors of node to buf and returns it.
	Neighbors(node uint32, buf []uint32) []uint32
}

// DistanceFunc returns the distance from the search target to node.
type DistanceFunc func(node uint32) float32

// Params controls one beam search.
type Params struct {
	// Entries seed the frontier. Out-of-range entries are ignored.
	Entries []uint32
	// EF is the beam width (result pool size).
	EF int
	// Want is the number of results the caller needs. When traversal from
	// the entries ends with fewer accepted nodes, the search restarts from
	// the lowest unvisited node until Want is met or every node is visited.
	Want int
	// Accept filters results; traversal still passes through rejected nodes.
	Accept func(node uint32) bool
}

// Searcher owns the scratch state of a search. It is not safe for
// concurrent use; obtain one per goroutine from a Pool.
type Searcher struct {
	Visited    *VisitedSet
	candidates *Heap
	results    *Heap
	nbuf       []uint32
}

// New creates a searcher sized for n nodes.
func New(n int) *Searcher {
	return &Searcher{
		Visited:    NewVisitedSet(n),
		candidates: NewHeap(false, 64),
		results:    NewHeap(true, 64),
		nbuf:       make([]uint32, 0, 64),
	}
}

// Search runs best-first beam search and returns at most EF accepted nodes,
// closest first.
func (s *Searcher) Search(g Graph, dist DistanceFunc, p Params) []Candidate {
	n := g.Len()
	s.Visited.Reset()
	s.Visited.EnsureCapacity(n)
	s.candidates.Reset()
	s.results.Reset()

	ef := max(p.EF, p.Want, 1)
	want := min(p.Want, n)

	for _, e := range p.Entries {
		if int(e) < n && s.Visited.Visit(e) {
			s.candidates.Push(Candidate{Node: e, Distance: dist(e)})
		}
	}

	cursor := uint32(0)
	for {
		s.expand(g, dist, ef, p.Accept)

		if s.results.Len() >= want || s.Visited.Count() >= n {
			break
		}
		// Disconnected or filtered out: restart from the next unvisited node.
		for int(cursor) < n && s.Visited.Visited(cursor) {
			cursor++
		}
		if int(cursor) >= n {
			break
		}
		s.Visited.Visit(cursor)
		s.candidates.Push(Candidate{Node: cursor, Distance: dist(cursor)})
	}

	return s.results.Sorted()
}

func (s *Searcher) expand(g Graph, dist DistanceFunc, ef int, accept func(uint32) bool) {
	for s.candidates.Len() > 0 {
		cur, _ := s.candidates.Pop()
		if s.results.Len() >= ef {
			if worst, _ := s.results.Top(); worst.Less(cur) {
				break
			}
		}
		if accept == nil || accept(cur.Node) {
			s.results.PushBounded(cur, ef)
		}

		s.nbuf = g.Neighbors(cur.Node, s.nbuf[:0])
		for _, nb := range s.nbuf {
			if !s.Visited.Visit(nb) {
				continue
			}
			c := Candidate{Node: nb, Distance: dist(nb)}
			if s.results.Len() < ef {
				s.candidates.Push(c)
				continue
			}
			if worst, _ := s.results.Top(); c.Less(worst) {
				s.candidates.Push(c)
			}
		}
	}
	s.candidates.Reset()
}

// Pool recycles searchers across queries.
type Pool struct {
	pool sync.Pool
}

// Get returns a searcher sized for at least n nodes.
func (p *Pool) Get(n int) *Searcher {
	if s, ok := p.pool.Get().(*Searcher); ok {
		s.Visited.EnsureCapacity(n)
		return s
	}
	return New(n)
}

// Put returns s to the pool.
func (p *Pool) Put(s *Searcher) {
	if s != nil {
		p.pool.Put(s)
	}
}
