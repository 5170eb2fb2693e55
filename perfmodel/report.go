package perfmodel

import (
	"fmt"
	"io"
	"math"
	"strings"

	"spmvbench/comm"
	"spmvbench/distmat"
	"spmvbench/timing"
)

const gb = 1024.0 * 1024.0 * 1024.0

// sizes on the wire: local ordinals are int32, scalars and row pointers
// are 8 bytes.
const (
	loBytes     = 4
	scBytes     = 8
	rowptrBytes = 8
)

// ReportSpmv predicts the minimum achievable SpMV time from the model
// tables and compares it against every registered timer named
// "MV <kernel>: Total". Two local-compute estimates (a per-object composite
// with latency correction, and a single all-bytes stream lookup) combine
// with four communication estimates (pingpong vs halopong pattern, in-place
// vs out-of-place pack) into ten predicted/measured ratios per kernel.
//
// Collective: all ranks must call it together; only rank 0 writes. A nil
// registry prints a note instead of the ratio table (stacked timers carry
// no per-kernel counters).
func ReportSpmv(w io.Writer, m *Model, a *distmat.CSRMatrix, reg *timing.Registry, verbose bool) {
	c := m.c
	rank0 := c.Rank() == 0
	nproc := c.Size()

	localRows := int64(a.LocalRows())
	localCols := int64(a.LocalCols())
	nnz := int64(a.LocalNNZ())

	if verbose && rank0 {
		fmt.Fprintln(w, "********************************************************")
		fmt.Fprintf(w, "Performance model results on %d ranks\n", nproc)
		m.PrintStreamTables(w)
		m.PrintPingpongTable(w)
		m.PrintHalopongTable(w)
	}

	// Local compute model, one memory object per term:
	// rowptr = one read per row, colind/values = one read per entry,
	// x = one read per entry (cache assumed to do its magic),
	// y = one write per row.
	objects := []struct {
		name      string
		bytes     int64
		corrected bool
	}{
		{"colind", nnz * loBytes, true},
		{"rowptr", (localRows + 1) * rowptrBytes, true},
		{"vals", nnz * scBytes, true},
		{"x", localCols * scBytes, true},
		{"y", localRows * scBytes, true},
		{"all", (localRows+1)*rowptrBytes + nnz*loBytes + nnz*scBytes +
			localCols*scBytes + localRows*scBytes, false},
	}

	if verbose && rank0 {
		fmt.Fprintln(w, "****** Local Time Model Results ******")
	}
	times := make([]float64, len(objects))
	for i, obj := range objects {
		var t float64
		if obj.corrected {
			t = m.LookupStreamCorrected(obj.bytes)
		} else {
			t = m.LookupStream(obj.bytes)
		}
		if nproc > 1 {
			t = c.AllReduceFloat64(t, comm.Sum) / float64(nproc)
		}
		times[i] = t
		if verbose && rank0 {
			gbs := 0.0
			if t > 0 {
				gbs = float64(obj.bytes) / gb / t
			}
			fmt.Fprintf(w, "Local: %s # Scalars = %.0f time per call = %g us. GB/sec = %g\n",
				obj.name, float64(obj.bytes)/scBytes, t*1e6, gbs)
		}
	}
	avgLatency := m.LaunchLatency()

	compositeTime := avgLatency
	for i := 0; i < len(objects)-1; i++ {
		compositeTime += times[i]
	}
	allTime := times[len(objects)-1]

	// Remote part of the SpMV. Each of the same/permute/export/remote
	// classes is treated as one unified memory transaction even though that
	// is not strictly correct.
	var packInPlace, packOutOfPlace float64
	var commPing, commHalo float64
	if im := a.Importer(); im != nil {
		// Sames [pack]: 1 read SC, 1 write SC. Out-of-place only.
		var sameTime float64
		if n := int64(im.NumSame()); n > 0 {
			sameTime = 2*m.LookupStreamCorrected(n*scBytes) + avgLatency
		}
		// Permutes [pack]: 2 reads LO (to, from), 1 read SC, 1 write SC.
		var permuteTime float64
		if n := int64(im.NumPermute()); n > 0 {
			permuteTime = 2*m.LookupStreamCorrected(n*loBytes) +
				2*m.LookupStreamCorrected(n*scBytes) + avgLatency
		}
		// Exports [pack]: 1 read LO, 1 read SC, 1 write SC into the buffer.
		var exportTime float64
		if n := int64(im.NumExport()); n > 0 {
			exportTime = m.LookupStreamCorrected(n*loBytes) +
				2*m.LookupStreamCorrected(n*scBytes) + avgLatency
		}
		// Remotes [unpack]: 1 read LO, 1 read SC from the buffer, 1 write SC.
		// Out-of-place only.
		var remoteTime float64
		if n := int64(im.NumRemote()); n > 0 {
			remoteTime = m.LookupStreamCorrected(n*loBytes) +
				2*m.LookupStreamCorrected(n*scBytes) + avgLatency
		}
		packOutOfPlace = sameTime + permuteTime + exportTime + remoteTime
		packInPlace = permuteTime + exportTime

		// Per-message communication estimates from the distributor lengths.
		var sendTime, recvTime float64
		var totalSend, totalRecv int64
		sendLens := im.SendLengths()
		recvLens := im.RecvLengths()
		for _, l := range sendLens {
			sendTime += m.LookupPingpong(int64(l) * scBytes)
			totalSend += int64(l) * scBytes
		}
		for _, l := range recvLens {
			recvTime += m.LookupPingpong(int64(l) * scBytes)
			totalRecv += int64(l) * scBytes
		}
		var avgPerMsg float64
		if len(sendLens) > 0 && len(recvLens) > 0 {
			avgPerMsg = float64(totalSend)/(2*float64(len(sendLens))) +
				float64(totalRecv)/(2*float64(len(recvLens)))
		}
		haloTime := m.LookupHalopong(int64(avgPerMsg))

		if verbose && rank0 {
			fmt.Fprintln(w, "****** Remote Time Model Results ******")
			fmt.Fprintf(w, "Remote: same     = %g us.\n", sameTime*1e6)
			fmt.Fprintf(w, "Remote: permutes = %g us.\n", permuteTime*1e6)
			fmt.Fprintf(w, "Remote: exports  = %g us.\n", exportTime*1e6)
			fmt.Fprintf(w, "Remote: remotes  = %g us.\n", remoteTime*1e6)
			fmt.Fprintf(w, "Remote: sends len = %d time = %g us.\n", totalSend, sendTime*1e6)
			fmt.Fprintf(w, "Remote: recvs len = %d time = %g us.\n", totalRecv, recvTime*1e6)
			fmt.Fprintf(w, "Remote: halo avg = %d time = %g us.\n\n", int64(avgPerMsg), haloTime*1e6)
		}

		// Comm time as the larger of send and recv; not obviously optimal
		// but a defensible floor.
		commPing = math.Max(sendTime, recvTime)
		commHalo = haloTime
	}

	pingIn := commPing + packInPlace
	pingOut := commPing + packOutOfPlace
	haloIn := commHalo + packInPlace
	haloOut := commHalo + packOutOfPlace

	if !rank0 {
		return
	}
	fmt.Fprintln(w, "\n\n========================================================")
	fmt.Fprintf(w, "Minimum time model (composite) : %g\n", compositeTime)
	fmt.Fprintf(w, "Minimum time model (all)       : %g\n", allTime)
	fmt.Fprintf(w, "Pack/unpack in-place           : %g\n", packInPlace)
	fmt.Fprintf(w, "Pack/unpack out-of-place       : %g\n", packOutOfPlace)
	fmt.Fprintf(w, "Communication time (ping)      : %g\n", commPing)
	fmt.Fprintf(w, "Communication time (halo)      : %g\n", commHalo)

	if reg == nil {
		fmt.Fprintln(w, "Note: Minimum time model individual timers only work with stacked timers off.")
		return
	}

	labels := []string{
		"Comp", "Comp+ping+inplace", "Comp+ping+ooplace", "Comp+halo+inplace", "Comp+halo+ooplace",
		"All", "All+ping+inplace", "All+ping+ooplace", "All+halo+inplace", "All+halo+ooplace",
	}
	fmt.Fprintf(w, "%-40s", "Timer")
	for _, l := range labels {
		fmt.Fprintf(w, " %20s", l)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-40s", "-----")
	for range labels {
		fmt.Fprintf(w, " %20s", "-------------------")
	}
	fmt.Fprintln(w)
	for _, name := range reg.Names() {
		if !strings.HasPrefix(name, "MV ") || !strings.HasSuffix(name, ": Total") {
			continue
		}
		t := reg.Lookup(name)
		if t.Count() == 0 {
			continue
		}
		perCall := t.PerCall()
		comp := compositeTime / perCall
		alls := allTime / perCall
		pIn := pingIn / perCall
		pOut := pingOut / perCall
		hIn := haloIn / perCall
		hOut := haloOut / perCall
		fmt.Fprintf(w, "%-40s %20.2f %20.2f %20.2f %20.2f %20.2f %20.2f %20.2f %20.2f %20.2f %20.2f\n",
			name, comp, comp+pIn, comp+pOut, comp+hIn, comp+hOut,
			alls, alls+pIn, alls+pOut, alls+hIn, alls+hOut)
	}
}
