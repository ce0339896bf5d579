package graph

import (
	"fmt"
	"math"
)

// InvalidNode pads unused slots of dense adjacency rows.
const InvalidNode = math.MaxUint32

type adjacency interface {
	len() int
	degree(node uint32) int
	appendNeighbors(node uint32, buf []uint32) []uint32
	edges() int
}

// checkNeighbors verifies every neighbor id names an existing node.
func checkNeighbors(a adjacency) error {
	n := a.len()
	var buf []uint32
	for i := 0; i < n; i++ {
		buf = a.appendNeighbors(uint32(i), buf[:0])
		for _, nb := range buf {
			if int(nb) >= n {
				return fmt.Errorf("node %d links to %d, outside [0, %d)", i, nb, n)
			}
		}
	}
	return nil
}

// dense is a row-major n x width matrix padded with InvalidNode.
type dense struct {
	n, width int
	data     []uint32
}

func newDense(rows [][]uint32, width int) *dense {
	d := &dense{n: len(rows), width: width, data: make([]uint32, len(rows)*width)}
	for i, row := range rows {
		dst := d.data[i*width : (i+1)*width]
		c := copy(dst, row)
		for j := c; j < width; j++ {
			dst[j] = InvalidNode
		}
	}
	return d
}

func (d *dense) len() int { return d.n }

func (d *dense) row(node uint32) []uint32 {
	return d.data[int(node)*d.width : (int(node)+1)*d.width]
}

func (d *dense) degree(node uint32) int {
	for j, nb := range d.row(node) {
		if nb == InvalidNode {
			return j
		}
	}
	return d.width
}

func (d *dense) appendNeighbors(node uint32, buf []uint32) []uint32 {
	for _, nb := range d.row(node) {
		if nb == InvalidNode {
			break
		}
		buf = append(buf, nb)
	}
	return buf
}

func (d *dense) edges() int {
	total := 0
	for i := 0; i < d.n; i++ {
		total += d.degree(uint32(i))
	}
	return total
}

// csr stores neighbor lists back to back; node i owns
// neighbors[offsets[i]:offsets[i+1]].
type csr struct {
	offsets   []uint64
	neighbors []uint32
}

func newCSR(rows [][]uint32) *csr {
	c := &csr{offsets: make([]uint64, len(rows)+1)}
	total := 0
	for i, row := range rows {
		total += len(row)
		c.offsets[i+1] = uint64(total)
	}
	c.neighbors = make([]uint32, 0, total)
	for _, row := range rows {
		c.neighbors = append(c.neighbors, row...)
	}
	return c
}

func (c *csr) check() error {
	if len(c.offsets) == 0 || c.offsets[0] != 0 {
		return fmt.Errorf("offsets must start at 0")
	}
	for i := 1; i < len(c.offsets); i++ {
		if c.offsets[i] < c.offsets[i-1] {
			return fmt.Errorf("offsets decrease at node %d", i-1)
		}
	}
	if last := c.offsets[len(c.offsets)-1]; last != uint64(len(c.neighbors)) {
		return fmt.Errorf("offsets end at %d, have %d neighbors", last, len(c.neighbors))
	}
	return nil
}

func (c *csr) len() int { return len(c.offsets) - 1 }

func (c *csr) degree(node uint32) int {
	return int(c.offsets[node+1] - c.offsets[node])
}

func (c *csr) appendNeighbors(node uint32, buf []uint32) []uint32 {
	return append(buf, c.neighbors[c.offsets[node]:c.offsets[node+1]]...)
}

func (c *csr) edges() int { return len(c.neighbors) }
