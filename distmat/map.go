// Package distmat provides the distributed sparse-matrix objects the
// benchmark operates on: index maps, the importer describing a matrix's
// halo-exchange pattern, compressed-row matrices, and distributed vectors.
package distmat

import (
	"fmt"

	"spmvbench/comm"
)

// Map is an ordered assignment of global indices to ranks. Each rank holds
// a list of global IDs (GIDs); the local ID (LID) of a GID is its position
// in that list. Row, domain and range maps partition the global index space
// one-to-one; column maps may overlap across ranks (ghost entries).
//
// All constructors are collective: every rank of the communicator must call
// them in the same order.
type Map struct {
	c           *comm.Comm
	globalCount int64
	gids        []int64
	lidOf       map[int64]int
	counts      []int64 // local count per rank, gathered at construction
	starts      []int64 // first GID per rank, valid only when contiguous
	contiguous  bool
}

// NewContiguousMap builds a uniform block partition of [0, globalCount):
// rank r owns a single ascending run, runs stacked in rank order.
func NewContiguousMap(c *comm.Comm, globalCount int64) *Map {
	if globalCount < 0 {
		panic(fmt.Sprintf("distmat: negative global count %d", globalCount))
	}
	size := int64(c.Size())
	rank := int64(c.Rank())
	base := globalCount / size
	rem := globalCount % size
	local := base
	if rank < rem {
		local++
	}
	start := rank*base + min64(rank, rem)
	gids := make([]int64, local)
	for i := range gids {
		gids[i] = start + int64(i)
	}
	return newMap(c, globalCount, gids, true)
}

// NewContiguousMapLocal builds a globally contiguous map from per-rank
// local counts: rank r's run starts where rank r-1's ends. Used to renumber
// an existing distribution without changing how many rows each rank holds.
func NewContiguousMapLocal(c *comm.Comm, localCount int) *Map {
	if localCount < 0 {
		panic(fmt.Sprintf("distmat: negative local count %d", localCount))
	}
	counts := comm.AllGather(c, []int64{int64(localCount)})
	var start, total int64
	for r := 0; r < c.Size(); r++ {
		if r < c.Rank() {
			start += counts[r][0]
		}
		total += counts[r][0]
	}
	gids := make([]int64, localCount)
	for i := range gids {
		gids[i] = start + int64(i)
	}
	return newMap(c, total, gids, true)
}

// NewMapFromGIDs builds a map from an explicit GID list. globalCount may be
// -1, in which case the map is assumed one-to-one and the count is the sum
// of local counts; overlapping (column) maps must pass it explicitly.
func NewMapFromGIDs(c *comm.Comm, globalCount int64, gids []int64) *Map {
	counts := comm.AllGather(c, []int64{int64(len(gids))})
	var start, total int64
	for r := 0; r < c.Size(); r++ {
		if r < c.Rank() {
			start += counts[r][0]
		}
		total += counts[r][0]
	}
	if globalCount < 0 {
		globalCount = total
	}

	// Contiguous iff every rank holds the run starting at its prefix offset.
	localContig := int64(1)
	for i, g := range gids {
		if g != start+int64(i) {
			localContig = 0
			break
		}
	}
	contig := c.AllReduceInt64(localContig, comm.Min) == 1

	own := make([]int64, len(gids))
	copy(own, gids)
	return newMap(c, globalCount, own, contig)
}

func newMap(c *comm.Comm, globalCount int64, gids []int64, contiguous bool) *Map {
	lidOf := make(map[int64]int, len(gids))
	for i, g := range gids {
		if g < 0 || g >= globalCount {
			panic(fmt.Sprintf("distmat: GID %d outside [0, %d)", g, globalCount))
		}
		lidOf[g] = i
	}
	counts := make([]int64, c.Size())
	starts := make([]int64, c.Size())
	all := comm.AllGather(c, []int64{int64(len(gids))})
	var off int64
	for r := 0; r < c.Size(); r++ {
		counts[r] = all[r][0]
		starts[r] = off
		off += counts[r]
	}
	return &Map{
		c:           c,
		globalCount: globalCount,
		gids:        gids,
		lidOf:       lidOf,
		counts:      counts,
		starts:      starts,
		contiguous:  contiguous,
	}
}

// Comm returns the communicator the map was built on.
func (m *Map) Comm() *comm.Comm {
	return m.c
}

// LocalCount returns the number of indices this rank holds.
func (m *Map) LocalCount() int {
	return len(m.gids)
}

// GlobalCount returns the size of the global index space.
func (m *Map) GlobalCount() int64 {
	return m.globalCount
}

// IsContiguous reports whether the GIDs form one unbroken ascending run per
// rank, runs stacked in rank order starting at zero.
func (m *Map) IsContiguous() bool {
	return m.contiguous
}

// GID returns the global index for a local index.
func (m *Map) GID(lid int) int64 {
	return m.gids[lid]
}

// LID returns the local index for a global index, if this rank holds it.
func (m *Map) LID(gid int64) (int, bool) {
	lid, ok := m.lidOf[gid]
	return lid, ok
}

// GIDs returns the rank's global index list. Callers must not modify it.
func (m *Map) GIDs() []int64 {
	return m.gids
}

// MinGID returns the smallest global index this rank holds.
func (m *Map) MinGID() int64 {
	if len(m.gids) == 0 {
		return -1
	}
	g := m.gids[0]
	for _, v := range m.gids[1:] {
		if v < g {
			g = v
		}
	}
	return g
}

// MaxGID returns the largest global index this rank holds.
func (m *Map) MaxGID() int64 {
	if len(m.gids) == 0 {
		return -1
	}
	g := m.gids[0]
	for _, v := range m.gids[1:] {
		if v > g {
			g = v
		}
	}
	return g
}

// SameAs reports whether the two maps describe the identical distribution.
func (m *Map) SameAs(o *Map) bool {
	if m == o {
		return true
	}
	if m.globalCount != o.globalCount || len(m.gids) != len(o.gids) {
		return false
	}
	for i, g := range m.gids {
		if o.gids[i] != g {
			return false
		}
	}
	return true
}

// Owners resolves the owning rank of each queried GID. Only valid for
// one-to-one maps. Collective: every rank must call it together, though the
// queries may differ per rank. Contiguous maps answer arithmetically; other
// maps gather a directory first.
func (m *Map) Owners(query []int64) []int {
	out := make([]int, len(query))
	if m.contiguous {
		for i, g := range query {
			out[i] = m.ownerOfContiguous(g)
		}
		return out
	}
	all := comm.AllGather(m.c, m.gids)
	dir := make(map[int64]int, m.globalCount)
	for r := range all {
		for _, g := range all[r] {
			dir[g] = r
		}
	}
	for i, g := range query {
		r, ok := dir[g]
		if !ok {
			panic(fmt.Sprintf("distmat: GID %d owned by no rank", g))
		}
		out[i] = r
	}
	return out
}

func (m *Map) ownerOfContiguous(gid int64) int {
	if gid < 0 || gid >= m.globalCount {
		panic(fmt.Sprintf("distmat: GID %d outside [0, %d)", gid, m.globalCount))
	}
	for r := 0; r < len(m.starts); r++ {
		if gid < m.starts[r]+m.counts[r] {
			return r
		}
	}
	panic(fmt.Sprintf("distmat: GID %d beyond last rank's run", gid))
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
