// Package searcher provides the traversal primitives shared by graph
// construction and query: bounded binary heaps, a resettable visited set
// and a pooled best-first beam search over any adjacency.
package searcher
