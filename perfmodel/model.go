// Package perfmodel builds analytic performance models of sparse
// matrix-vector products from microbenchmark lookup tables. Four tables are
// measured at power-of-two byte sizes — raw stream copy, latency-corrected
// stream, pingpong and halopong — and interpolated log-linearly to predict
// memory and communication costs, which the reporter compares against
// measured kernel times.
package perfmodel

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"spmvbench/comm"
	"spmvbench/distmat"
)

// Entry is one measured table point: moving Bytes took Seconds.
type Entry struct {
	Bytes   int64
	Seconds float64
}

// Model holds the measured tables. Tables are identical on every rank:
// builders reduce their measurements across the communicator.
type Model struct {
	c *comm.Comm

	launchLatency float64
	stream        []Entry
	corrected     []Entry
	pingpong      []Entry
	halopong      []Entry
}

// New returns an empty model on the communicator. Build the tables before
// looking anything up; lookups on an unbuilt table return 0.
func New(c *comm.Comm) *Model {
	return &Model{c: c}
}

// LaunchLatency returns the measured minimum cost of a near-zero-size
// operation, in seconds.
func (m *Model) LaunchLatency() float64 { return m.launchLatency }

// BuildStreamTables measures the copy-bandwidth table for sizes 2^0..2^logMax
// bytes, nrepeat trials each, recording the per-trial average. The launch
// latency is the minimum observed time of a single-element copy, and the
// corrected table is the raw table with that latency subtracted (floored at
// zero). Collective: entries are averaged across ranks so every rank holds
// the same tables.
func (m *Model) BuildStreamTables(nrepeat, logMax int) {
	m.stream = m.stream[:0]
	m.corrected = m.corrected[:0]

	lat := math.Inf(1)
	one := []float64{0}
	oneDst := []float64{0}
	for rep := 0; rep < nrepeat; rep++ {
		start := time.Now()
		copy(oneDst, one)
		if t := time.Since(start).Seconds(); t < lat {
			lat = t
		}
	}
	m.launchLatency = m.reduceMean(lat)

	for e := 0; e <= logMax; e++ {
		bytes := int64(1) << e
		n := int(bytes / 8)
		if n < 1 {
			n = 1
		}
		src := make([]float64, n)
		dst := make([]float64, n)
		for i := range src {
			src[i] = float64(i)
		}
		var total float64
		for rep := 0; rep < nrepeat; rep++ {
			start := time.Now()
			copy(dst, src)
			total += time.Since(start).Seconds()
		}
		avg := m.reduceMean(total / float64(nrepeat))
		corr := avg - m.launchLatency
		if corr < 0 {
			corr = 0
		}
		m.stream = append(m.stream, Entry{Bytes: bytes, Seconds: avg})
		m.corrected = append(m.corrected, Entry{Bytes: bytes, Seconds: corr})
	}
}

// BuildPingpongTable measures one-message transfer times between partner
// ranks (rank XOR 1) for sizes 2^0..2^logMax bytes. A recorded entry is half
// the averaged round trip. Ranks without a partner contribute zeros.
// Collective.
func (m *Model) BuildPingpongTable(nrepeat, logMax int) {
	m.pingpong = m.pingpong[:0]
	partner := m.c.Rank() ^ 1
	paired := partner < m.c.Size()

	for e := 0; e <= logMax; e++ {
		bytes := int64(1) << e
		var avg float64
		if paired {
			buf := make([]byte, bytes)
			var total float64
			for rep := 0; rep < nrepeat; rep++ {
				start := time.Now()
				m.c.PingPong(partner, buf)
				total += time.Since(start).Seconds()
			}
			avg = total / float64(nrepeat) / 2
		}
		m.pingpong = append(m.pingpong, Entry{Bytes: bytes, Seconds: m.reduceMean(avg)})
	}
}

// BuildHalopongTable measures the matrix's actual halo-exchange pattern with
// synthetic per-peer messages of 2^0..2^logMax bytes. Skipped (table left
// empty) when the importer is nil; halo lookups then return 0. Collective.
func (m *Model) BuildHalopongTable(nrepeat, logMax int, im *distmat.Import) {
	m.halopong = m.halopong[:0]
	if im == nil {
		return
	}
	for e := 0; e <= logMax; e++ {
		bytes := int64(1) << e
		var total float64
		for rep := 0; rep < nrepeat; rep++ {
			start := time.Now()
			im.Halopong(int(bytes))
			total += time.Since(start).Seconds()
		}
		m.halopong = append(m.halopong, Entry{Bytes: bytes, Seconds: total / float64(nrepeat)})
	}
	for i := range m.halopong {
		m.halopong[i].Seconds = m.reduceMean(m.halopong[i].Seconds)
	}
}

func (m *Model) reduceMean(v float64) float64 {
	if m.c.Size() == 1 {
		return v
	}
	return m.c.AllReduceFloat64(v, comm.Sum) / float64(m.c.Size())
}

// LookupStream predicts the raw stream time for a transfer of the given
// number of bytes.
func (m *Model) LookupStream(bytes int64) float64 { return lookup(m.stream, bytes) }

// LookupStreamCorrected predicts the latency-corrected stream time.
func (m *Model) LookupStreamCorrected(bytes int64) float64 { return lookup(m.corrected, bytes) }

// LookupPingpong predicts the one-way point-to-point message time.
func (m *Model) LookupPingpong(bytes int64) float64 { return lookup(m.pingpong, bytes) }

// LookupHalopong predicts one halo exchange with per-peer messages of the
// given size. Returns 0 when no halo table was built.
func (m *Model) LookupHalopong(bytes int64) float64 { return lookup(m.halopong, bytes) }

// lookup interpolates log-linearly in bytes between bracketing entries.
// Queries outside the table clamp to the boundary entries; exact sizes
// return the stored measurement.
func lookup(table []Entry, bytes int64) float64 {
	if len(table) == 0 {
		return 0
	}
	if bytes <= table[0].Bytes {
		return table[0].Seconds
	}
	if bytes >= table[len(table)-1].Bytes {
		return table[len(table)-1].Seconds
	}
	i := sort.Search(len(table), func(k int) bool { return table[k].Bytes >= bytes })
	if table[i].Bytes == bytes {
		return table[i].Seconds
	}
	lo, hi := table[i-1], table[i]
	f := (math.Log2(float64(bytes)) - math.Log2(float64(lo.Bytes))) /
		(math.Log2(float64(hi.Bytes)) - math.Log2(float64(lo.Bytes)))
	return lo.Seconds + f*(hi.Seconds-lo.Seconds)
}

// PrintStreamTables writes the raw and corrected stream tables.
func (m *Model) PrintStreamTables(w io.Writer) {
	fmt.Fprintf(w, "Launch latency: %e s\n", m.launchLatency)
	printTable(w, "Stream copy", m.stream)
	printTable(w, "Stream copy (latency-corrected)", m.corrected)
}

// PrintPingpongTable writes the pingpong table.
func (m *Model) PrintPingpongTable(w io.Writer) {
	printTable(w, "Pingpong", m.pingpong)
}

// PrintHalopongTable writes the halopong table, or a note when no halo
// pattern exists.
func (m *Model) PrintHalopongTable(w io.Writer) {
	if len(m.halopong) == 0 {
		fmt.Fprintln(w, "Halopong: no halo pattern (single rank or no ghosts)")
		return
	}
	printTable(w, "Halopong", m.halopong)
}

func printTable(w io.Writer, title string, table []Entry) {
	fmt.Fprintf(w, "%s table:\n", title)
	fmt.Fprintf(w, "  %12s %14s %14s\n", "Bytes", "Seconds", "GB/s")
	for _, e := range table {
		gbs := 0.0
		if e.Seconds > 0 {
			gbs = float64(e.Bytes) / e.Seconds / 1e9
		}
		fmt.Fprintf(w, "  %12d %14.6e %14.4f\n", e.Bytes, e.Seconds, gbs)
	}
}
