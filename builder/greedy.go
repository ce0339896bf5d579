package builder

import (
	"github.com/hupe1980/vecforge/internal/searcher"
)

// partial is the graph of the first n inserted nodes.
type partial struct {
	n     int
	lists [][]searcher.Candidate
}

func (p *partial) Len() int { return p.n }

func (p *partial) Neighbors(node uint32, buf []uint32) []uint32 {
	for _, c := range p.lists[node] {
		buf = append(buf, c.Node)
	}
	return buf
}

// greedy inserts nodes in position order. Each node is located by beam
// search over the graph built so far and linked both ways; lists are capped
// at inter entries by distance.
func (w *work) greedy(inter int) ([][]uint32, error) {
	n := w.ds.Len()
	knn := make([][]uint32, n)
	if inter <= 0 {
		return knn, nil
	}

	g := &partial{lists: make([][]searcher.Candidate, n)}
	s := searcher.New(n)

	for i := 1; i < n; i++ {
		if i%1024 == 0 {
			if err := w.ctx.Err(); err != nil {
				return nil, err
			}
		}
		g.n = i
		q := w.ds.Row(i)
		found := s.Search(g, func(node uint32) float32 {
			return w.distFn(q, w.ds.Row(int(node)))
		}, searcher.Params{
			Entries: []uint32{0},
			EF:      inter,
			Want:    inter,
		})
		found = found[:min(len(found), inter)]

		g.lists[i] = found
		for _, c := range found {
			g.lists[c.Node] = insertBounded(g.lists[c.Node], searcher.Candidate{Node: uint32(i), Distance: c.Distance}, inter)
		}
	}

	for i, list := range g.lists {
		row := make([]uint32, len(list))
		for r, c := range list {
			row[r] = c.Node
		}
		knn[i] = row
	}
	return knn, nil
}

// insertBounded inserts c into the sorted list, keeping at most limit entries.
func insertBounded(list []searcher.Candidate, c searcher.Candidate, limit int) []searcher.Candidate {
	pos := len(list)
	for pos > 0 && c.Less(list[pos-1]) {
		pos--
	}
	if pos >= limit {
		return list
	}
	if len(list) < limit {
		list = append(list, searcher.Candidate{})
	}
	copy(list[pos+1:], list[pos:len(list)-1])
	list[pos] = c
	return list
}
