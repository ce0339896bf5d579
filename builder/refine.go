package builder

import (
	"cmp"
	"slices"
)

// refine turns exact-distance-sorted candidate lists into rows of at most
// degree neighbors.
//
// For node a with candidate b at rank r(a,b), a detour is any candidate c
// with max(r(a,c), r(c,b)) < r(a,b): b is then reachable through c. Each
// list is reordered by (detour count, rank) and cut to degree. The upper
// half of each row keeps these forward edges; reverse edges of the pruned
// graph fill the lower half and the remaining slots are topped up from the
// candidates.
func (w *work) refine(knn [][]uint32, degree int) ([][]uint32, error) {
	n := len(knn)
	rows := make([][]uint32, n)
	if degree <= 0 {
		return rows, nil
	}

	pruned := make([][]uint32, n)
	err := w.parallel(n, func(lo, hi int) error {
		rank := make(map[uint32]int)
		var detours []int
		var order []int

		for a := lo; a < hi; a++ {
			list := knn[a]
			clear(rank)
			for r, v := range list {
				rank[v] = r
			}
			detours = slices.Grow(detours[:0], len(list))[:len(list)]
			clear(detours)

			for rc, c := range list {
				for rcb, b := range knn[c] {
					if rcb >= len(list) {
						break
					}
					rab, ok := rank[b]
					if ok && max(rc, rcb) < rab {
						detours[rab]++
					}
				}
			}

			order = order[:0]
			for r := range list {
				order = append(order, r)
			}
			slices.SortStableFunc(order, func(x, y int) int {
				return cmp.Or(cmp.Compare(detours[x], detours[y]), cmp.Compare(x, y))
			})

			keep := min(degree, len(list))
			out := make([]uint32, keep)
			for i, r := range order[:keep] {
				out[i] = list[r]
			}
			pruned[a] = out
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	type reverseEdge struct {
		src  uint32
		rank int
	}
	reverse := make([][]reverseEdge, n)
	for a, row := range pruned {
		for r, b := range row {
			reverse[b] = append(reverse[b], reverseEdge{src: uint32(a), rank: r})
		}
	}
	for _, edges := range reverse {
		slices.SortStableFunc(edges, func(x, y reverseEdge) int {
			return cmp.Compare(x.rank, y.rank)
		})
	}

	half := (degree + 1) / 2
	err = w.parallel(n, func(lo, hi int) error {
		for a := lo; a < hi; a++ {
			row := make([]uint32, 0, degree)
			add := func(v uint32) {
				if len(row) < degree && !slices.Contains(row, v) {
					row = append(row, v)
				}
			}

			fwd := pruned[a]
			for _, v := range fwd[:min(half, len(fwd))] {
				add(v)
			}
			for _, e := range reverse[a] {
				add(e.src)
			}
			for _, v := range fwd {
				add(v)
			}
			for _, v := range knn[a] {
				add(v)
			}
			rows[a] = row
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
