package distmat

import (
	"fmt"
	"sort"

	"spmvbench/comm"
)

// Import describes how to fill a target-map-ordered buffer (typically a
// column-map-sized gather of x) from a source-map-distributed vector. The
// target indices fall into four disjoint classes:
//
//   - same:    a leading run where target and source GIDs coincide in order;
//     copied directly.
//   - permute: owned by this rank but at a different local position.
//   - export:  source entries other ranks need; packed and sent.
//   - remote:  target entries owned elsewhere; received and unpacked.
//
// Construction is collective. The exchange pattern is immutable afterward.
type Import struct {
	src *Map // source (domain) map, one-to-one
	dst *Map // target (column) map, may overlap

	numSame         int
	permuteFromLIDs []int // source LIDs
	permuteToLIDs   []int // target LIDs

	// Exports, grouped by destination rank ascending.
	exportLIDs  []int
	sendPeers   []int
	sendCounts  []int
	sendOffsets []int

	// Remotes, grouped by owning rank ascending.
	remoteLIDs  []int
	recvPeers   []int
	recvCounts  []int
	recvOffsets []int
}

// NewImport builds the exchange pattern from a one-to-one source map to a
// target map. Collective.
func NewImport(src, dst *Map) *Import {
	im := &Import{src: src, dst: dst}
	c := src.Comm()

	// Leading same-GID run.
	n := dst.LocalCount()
	for im.numSame < n && im.numSame < src.LocalCount() &&
		dst.GID(im.numSame) == src.GID(im.numSame) {
		im.numSame++
	}

	// Classify the rest as permutes (owned) or remotes (foreign).
	var remoteGIDs []int64
	var remoteDstLIDs []int
	for i := im.numSame; i < n; i++ {
		gid := dst.GID(i)
		if lid, ok := src.LID(gid); ok {
			im.permuteFromLIDs = append(im.permuteFromLIDs, lid)
			im.permuteToLIDs = append(im.permuteToLIDs, i)
		} else {
			remoteGIDs = append(remoteGIDs, gid)
			remoteDstLIDs = append(remoteDstLIDs, i)
		}
	}

	// Group remotes by owning rank, stable in GID request order.
	owners := src.Owners(remoteGIDs)
	order := make([]int, len(remoteGIDs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return owners[order[a]] < owners[order[b]]
	})
	wanted := make([][]int64, c.Size())
	for _, idx := range order {
		r := owners[idx]
		wanted[r] = append(wanted[r], remoteGIDs[idx])
		im.remoteLIDs = append(im.remoteLIDs, remoteDstLIDs[idx])
	}
	off := 0
	for r := 0; r < c.Size(); r++ {
		if len(wanted[r]) > 0 {
			im.recvPeers = append(im.recvPeers, r)
			im.recvCounts = append(im.recvCounts, len(wanted[r]))
			im.recvOffsets = append(im.recvOffsets, off)
			off += len(wanted[r])
		}
	}

	// Tell every owner which of its GIDs we need; learn what we must send.
	for r := 0; r < c.Size(); r++ {
		if r != c.Rank() {
			comm.Send(c, r, wanted[r])
		}
	}
	requests := make([][]int64, c.Size())
	for r := 0; r < c.Size(); r++ {
		if r != c.Rank() {
			requests[r] = comm.Recv[int64](c, r)
		}
	}
	off = 0
	for r := 0; r < c.Size(); r++ {
		if len(requests[r]) == 0 {
			continue
		}
		im.sendPeers = append(im.sendPeers, r)
		im.sendCounts = append(im.sendCounts, len(requests[r]))
		im.sendOffsets = append(im.sendOffsets, off)
		off += len(requests[r])
		for _, gid := range requests[r] {
			lid, ok := src.LID(gid)
			if !ok {
				panic(fmt.Sprintf("distmat: rank %d asked rank %d for GID %d it does not own",
					r, c.Rank(), gid))
			}
			im.exportLIDs = append(im.exportLIDs, lid)
		}
	}
	return im
}

// SourceMap returns the one-to-one map values are imported from.
func (im *Import) SourceMap() *Map { return im.src }

// TargetMap returns the map the imported buffer is ordered by.
func (im *Import) TargetMap() *Map { return im.dst }

// NumSame returns the length of the leading identical-GID run.
func (im *Import) NumSame() int { return im.numSame }

// NumPermute returns the number of locally-owned reordered entries.
func (im *Import) NumPermute() int { return len(im.permuteToLIDs) }

// NumExport returns the number of source entries sent to other ranks.
func (im *Import) NumExport() int { return len(im.exportLIDs) }

// NumRemote returns the number of target entries received from other ranks.
func (im *Import) NumRemote() int { return len(im.remoteLIDs) }

// SendLengths returns the per-peer outgoing message lengths, in entries.
func (im *Import) SendLengths() []int {
	out := make([]int, len(im.sendCounts))
	copy(out, im.sendCounts)
	return out
}

// RecvLengths returns the per-peer incoming message lengths, in entries.
func (im *Import) RecvLengths() []int {
	out := make([]int, len(im.recvCounts))
	copy(out, im.recvCounts)
	return out
}

// DoImportFloat64 fills dst (target-map order, length TargetMap's local
// count) from src (source-map order). Collective.
func (im *Import) DoImportFloat64(src, dst []float64) {
	doImport(im, src, dst)
}

// DoImportInt64 is the integer variant, used to propagate renumbered global
// IDs when building contiguous maps. Collective.
func (im *Import) DoImportInt64(src, dst []int64) {
	doImport(im, src, dst)
}

func doImport[T int64 | float64](im *Import, src, dst []T) {
	if len(src) != im.src.LocalCount() || len(dst) != im.dst.LocalCount() {
		panic(fmt.Sprintf("distmat: import buffer lengths %d/%d, want %d/%d",
			len(src), len(dst), im.src.LocalCount(), im.dst.LocalCount()))
	}
	c := im.src.Comm()

	copy(dst[:im.numSame], src[:im.numSame])
	for i, from := range im.permuteFromLIDs {
		dst[im.permuteToLIDs[i]] = src[from]
	}

	// Pack and post all sends before receiving anything; the channel
	// buffering guarantees this cannot deadlock.
	for p, peer := range im.sendPeers {
		buf := make([]T, im.sendCounts[p])
		base := im.sendOffsets[p]
		for i := range buf {
			buf[i] = src[im.exportLIDs[base+i]]
		}
		comm.Send(c, peer, buf)
	}
	for p, peer := range im.recvPeers {
		buf := comm.Recv[T](c, peer)
		if len(buf) != im.recvCounts[p] {
			panic(fmt.Sprintf("distmat: import from rank %d delivered %d entries, want %d",
				peer, len(buf), im.recvCounts[p]))
		}
		base := im.recvOffsets[p]
		for i, v := range buf {
			dst[im.remoteLIDs[base+i]] = v
		}
	}
}

// Halopong performs one synthetic exchange over the import's peer pattern
// with bytesPerMsg-sized payloads, ignoring the real values. Used by the
// performance model to time the halo pattern at varying message sizes.
// Collective.
func (im *Import) Halopong(bytesPerMsg int) {
	c := im.src.Comm()
	payload := make([]byte, bytesPerMsg)
	for _, peer := range im.sendPeers {
		comm.Send(c, peer, payload)
	}
	for _, peer := range im.recvPeers {
		comm.Recv[byte](c, peer)
	}
}
