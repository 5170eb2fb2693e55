package distmat

import (
	"fmt"
	"sort"

	"spmvbench/comm"
)

// AssembleFromTriplets builds a distributed CSR matrix from this rank's
// (globalRow, globalCol, value) entries. Rows follow the uniform contiguous
// partition of [0, nRows); every entry passed here must belong to a row this
// rank owns. The column map lists owned domain GIDs first, then ghost GIDs
// ascending; an importer is built whenever any rank has ghosts. Collective.
func AssembleFromTriplets(c *comm.Comm, nRows, nCols int64,
	rows, cols []int64, vals []float64) (*CSRMatrix, error) {

	if len(rows) != len(cols) || len(rows) != len(vals) {
		return nil, fmt.Errorf("distmat: triplet arrays disagree: %d rows, %d cols, %d values",
			len(rows), len(cols), len(vals))
	}
	rowMap := NewContiguousMap(c, nRows)
	domainMap := NewContiguousMap(c, nCols)

	// Owned domain GIDs first, ghosts ascending. For a contiguous domain
	// partition ascending ghost order also groups them by owning rank.
	ghostSet := make(map[int64]bool)
	for i, g := range rows {
		if _, ok := rowMap.LID(g); !ok {
			return nil, fmt.Errorf("distmat: entry %d has row %d not owned by rank %d", i, g, c.Rank())
		}
		if cols[i] < 0 || cols[i] >= nCols {
			return nil, fmt.Errorf("distmat: entry %d has column %d outside [0, %d)", i, cols[i], nCols)
		}
		if _, ok := domainMap.LID(cols[i]); !ok {
			ghostSet[cols[i]] = true
		}
	}
	ghosts := make([]int64, 0, len(ghostSet))
	for g := range ghostSet {
		ghosts = append(ghosts, g)
	}
	sort.Slice(ghosts, func(a, b int) bool { return ghosts[a] < ghosts[b] })
	colGIDs := append(append([]int64{}, domainMap.GIDs()...), ghosts...)
	colMap := NewMapFromGIDs(c, nCols, colGIDs)

	// An importer is needed unless every rank's column map matches its
	// domain map exactly. All ranks must agree, since construction is
	// collective.
	localTrivial := int64(0)
	if colMap.SameAs(domainMap) {
		localTrivial = 1
	}
	var importer *Import
	if c.AllReduceInt64(localTrivial, comm.Min) == 0 {
		importer = NewImport(domainMap, colMap)
	}

	// Sort entries by (row, column GID) and compress.
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if rows[ia] != rows[ib] {
			return rows[ia] < rows[ib]
		}
		return cols[ia] < cols[ib]
	})

	m := rowMap.LocalCount()
	rowPtr := make([]int64, m+1)
	colInd := make([]int32, len(order))
	values := make([]float64, len(order))
	for _, idx := range order {
		lid, _ := rowMap.LID(rows[idx])
		rowPtr[lid+1]++
	}
	for i := 0; i < m; i++ {
		rowPtr[i+1] += rowPtr[i]
	}
	next := make([]int64, m)
	copy(next, rowPtr[:m])
	for _, idx := range order {
		lid, _ := rowMap.LID(rows[idx])
		clid, ok := colMap.LID(cols[idx])
		if !ok {
			return nil, fmt.Errorf("distmat: column %d missing from column map", cols[idx])
		}
		colInd[next[lid]] = int32(clid)
		values[next[lid]] = vals[idx]
		next[lid]++
	}

	return NewCSRMatrix(rowMap, colMap, domainMap, rowMap,
		rowPtr, colInd, values, importer)
}

// NewLaplace2D builds the standard 5-point finite-difference Laplacian on
// an nx-by-ny grid, rows uniformly block-partitioned: 4 on the diagonal,
// -1 toward each in-grid neighbor. Grid point (i,j) is row j*nx+i.
// Collective.
func NewLaplace2D(c *comm.Comm, nx, ny int) (*CSRMatrix, error) {
	if nx < 1 || ny < 1 {
		return nil, fmt.Errorf("distmat: grid %dx%d must be at least 1x1", nx, ny)
	}
	n := int64(nx) * int64(ny)
	rowMap := NewContiguousMap(c, n)

	var rows, cols []int64
	var vals []float64
	add := func(r, col int64, v float64) {
		rows = append(rows, r)
		cols = append(cols, col)
		vals = append(vals, v)
	}
	for _, g := range rowMap.GIDs() {
		i := int(g % int64(nx))
		j := int(g / int64(nx))
		if j > 0 {
			add(g, g-int64(nx), -1)
		}
		if i > 0 {
			add(g, g-1, -1)
		}
		add(g, g, 4)
		if i < nx-1 {
			add(g, g+1, -1)
		}
		if j < ny-1 {
			add(g, g+int64(nx), -1)
		}
	}
	return AssembleFromTriplets(c, n, n, rows, cols, vals)
}
