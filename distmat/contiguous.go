package distmat

// MakeContiguousMaps derives contiguous row, column and domain maps for a
// matrix, for kernels whose storage assumes contiguous global numbering.
// Existing maps are reused untouched whenever they already qualify:
//
//   - a contiguous row map is returned as-is;
//   - a contiguous domain map keeps both the domain and column maps;
//   - otherwise the domain is renumbered contiguously without moving any
//     entry between ranks, and the new numbering is pushed through the
//     matrix's importer to translate the column map.
//
// Collective.
func MakeContiguousMaps(a *CSRMatrix) (rowMap, colMap, domainMap *Map) {
	c := a.RowMap().Comm()

	rowMap = a.RowMap()
	if !rowMap.IsContiguous() {
		rowMap = NewContiguousMapLocal(c, a.LocalRows())
	}
	if a.DomainMap().IsContiguous() {
		return rowMap, a.ColMap(), a.DomainMap()
	}

	domainMap = NewContiguousMapLocal(c, a.DomainMap().LocalCount())
	if a.Importer() == nil {
		// No ghosts: the column map is the domain map under any numbering.
		return rowMap, domainMap, domainMap
	}
	// Each rank knows the new GIDs of its owned domain entries; the halo
	// pattern delivers the new GIDs of the ghosts.
	translated := make([]int64, a.ColMap().LocalCount())
	a.Importer().DoImportInt64(domainMap.GIDs(), translated)
	colMap = NewMapFromGIDs(c, domainMap.GlobalCount(), translated)
	return rowMap, colMap, domainMap
}
