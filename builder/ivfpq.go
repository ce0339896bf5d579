package builder

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecforge/internal/kmeans"
	"github.com/hupe1980/vecforge/internal/searcher"
)

// ivfpq generates inter candidates per node from an IVF-PQ index over the
// dataset itself. Probed lists are scored with PQ asymmetric distances and
// the best RefineRate*inter are re-ranked exactly.
func (w *work) ivfpq(inter int) ([][]uint32, error) {
	n, dim := w.ds.Len(), w.ds.Dim()
	knn := make([][]uint32, n)

	if err := w.trainPQ(); err != nil {
		return nil, err
	}
	if inter <= 0 {
		return knn, nil
	}

	centroids, err := kmeans.Train(w.ctx, w.trainset(), dim, kmeans.Config{
		K:       w.ivf.NLists,
		Iters:   w.ivf.KMeansIters,
		Metric:  w.metric,
		Seed:    w.seed(),
		Workers: w.workers,
	})
	if err != nil {
		return nil, err
	}
	nLists := len(centroids) / dim

	assign := make([]int, n)
	if err := w.parallel(n, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			c, err := kmeans.Assign(w.ds.Row(i), centroids, dim, w.metric)
			if err != nil {
				return err
			}
			assign[i] = c
		}
		return nil
	}); err != nil {
		return nil, err
	}

	lists := make([]*roaring.Bitmap, nLists)
	for c := range lists {
		lists[c] = roaring.New()
	}
	for i, c := range assign {
		lists[c].Add(uint32(i))
	}
	for _, l := range lists {
		l.RunOptimize()
	}
	w.log.DebugContext(w.ctx, "coarse quantizer trained", "lists", nLists, "pq_dim", w.pq.M(), "pq_bits", w.pq.Bits())

	pool := max(int(math.Ceil(w.ivf.RefineRate*float64(inter))), inter)
	m := w.pq.M()

	err = w.parallel(n, func(lo, hi int) error {
		approx := searcher.NewHeap(true, pool)
		exact := searcher.NewHeap(true, inter)
		members := roaring.New()

		for i := lo; i < hi; i++ {
			q := w.ds.Row(i)
			order, err := kmeans.Closest(q, centroids, dim, nLists, w.metric)
			if err != nil {
				return err
			}

			// Probe NProbes lists, widening until the lists hold enough members.
			members.Clear()
			for p, c := range order {
				if p >= w.ivf.NProbes && members.GetCardinality() > uint64(inter) {
					break
				}
				members.Or(lists[c])
			}
			members.Remove(uint32(i))

			table := w.pq.DistanceTable(q)
			approx.Reset()
			it := members.Iterator()
			for it.HasNext() {
				j := it.Next()
				approx.PushBounded(searcher.Candidate{
					Node:     j,
					Distance: table.Distance(w.codes[int(j)*m : (int(j)+1)*m]),
				}, pool)
			}

			exact.Reset()
			for _, c := range approx.Sorted() {
				exact.PushBounded(searcher.Candidate{
					Node:     c.Node,
					Distance: w.distFn(q, w.ds.Row(int(c.Node))),
				}, inter)
			}

			found := exact.Sorted()
			row := make([]uint32, len(found))
			for r, c := range found {
				row[r] = c.Node
			}
			knn[i] = row
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return knn, nil
}
