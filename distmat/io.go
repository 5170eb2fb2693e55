package distmat

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"spmvbench/comm"
)

// binaryMagic tags the little-endian triplet file format.
const binaryMagic = uint32(0x53504d42) // "SPMB"

// LoadMatrix reads a matrix from disk and distributes it across the
// communicator. Rank 0 parses the file — MatrixMarket coordinate text, or
// the binary triplet format when binary is set — and ships each rank the
// rows its uniform block partition owns. Collective.
func LoadMatrix(c *comm.Comm, path string, binaryFormat bool) (*CSRMatrix, error) {
	var header []int64 // status, nRows, nCols
	var rows, cols []int64
	var vals []float64

	if c.Rank() == 0 {
		var nRows, nCols int64
		var err error
		if binaryFormat {
			nRows, nCols, rows, cols, vals, err = readBinaryFile(path)
		} else {
			nRows, nCols, rows, cols, vals, err = readMatrixMarketFile(path)
		}
		if err != nil {
			// Everyone must learn about the failure or the world hangs.
			comm.Broadcast(c, 0, []int64{1, 0, 0})
			return nil, err
		}
		header = comm.Broadcast(c, 0, []int64{0, nRows, nCols})
	} else {
		header = comm.Broadcast[int64](c, 0, nil)
	}
	if header[0] != 0 {
		return nil, fmt.Errorf("distmat: rank 0 failed to read %q", path)
	}
	nRows, nCols := header[1], header[2]

	rowMap := NewContiguousMap(c, nRows)
	if c.Rank() == 0 {
		// Bucket triplets by owning rank and ship them out.
		bucketRows := make([][]int64, c.Size())
		bucketCols := make([][]int64, c.Size())
		bucketVals := make([][]float64, c.Size())
		owners := rowMap.Owners(rows)
		for i, r := range owners {
			bucketRows[r] = append(bucketRows[r], rows[i])
			bucketCols[r] = append(bucketCols[r], cols[i])
			bucketVals[r] = append(bucketVals[r], vals[i])
		}
		for r := 1; r < c.Size(); r++ {
			comm.Send(c, r, bucketRows[r])
			comm.Send(c, r, bucketCols[r])
			comm.Send(c, r, bucketVals[r])
		}
		rows, cols, vals = bucketRows[0], bucketCols[0], bucketVals[0]
	} else {
		// Owners is collective; participate with an empty query.
		rowMap.Owners(nil)
		rows = comm.Recv[int64](c, 0)
		cols = comm.Recv[int64](c, 0)
		vals = comm.Recv[float64](c, 0)
	}
	return AssembleFromTriplets(c, nRows, nCols, rows, cols, vals)
}

func readMatrixMarketFile(path string) (nRows, nCols int64, rows, cols []int64, vals []float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, nil, nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	line := 0
	sawHeader := false
	symmetric := false
	var nnz, stored int64
	nnz = -1
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if line == 1 {
			banner := strings.Fields(text)
			if len(banner) != 5 || banner[0] != "%%MatrixMarket" || banner[1] != "matrix" ||
				banner[2] != "coordinate" || banner[3] != "real" {
				return 0, 0, nil, nil, nil,
					fmt.Errorf("distmat: %s: unsupported MatrixMarket header %q", path, text)
			}
			// Symmetric files store the lower triangle only; the mirrored
			// entries must be materialized or half the matrix is lost.
			switch strings.ToLower(banner[4]) {
			case "general":
			case "symmetric":
				symmetric = true
			default:
				return 0, 0, nil, nil, nil,
					fmt.Errorf("distmat: %s: unsupported symmetry %q", path, banner[4])
			}
			continue
		}
		if text == "" || strings.HasPrefix(text, "%") {
			continue
		}
		fields := strings.Fields(text)
		if !sawHeader {
			if len(fields) != 3 {
				return 0, 0, nil, nil, nil,
					fmt.Errorf("distmat: %s:%d: size line needs 3 fields, got %d", path, line, len(fields))
			}
			nRows, err = strconv.ParseInt(fields[0], 10, 64)
			if err == nil {
				nCols, err = strconv.ParseInt(fields[1], 10, 64)
			}
			if err == nil {
				nnz, err = strconv.ParseInt(fields[2], 10, 64)
			}
			if err != nil {
				return 0, 0, nil, nil, nil, fmt.Errorf("distmat: %s:%d: %w", path, line, err)
			}
			sawHeader = true
			continue
		}
		if len(fields) != 3 {
			return 0, 0, nil, nil, nil,
				fmt.Errorf("distmat: %s:%d: entry needs 3 fields, got %d", path, line, len(fields))
		}
		r, err1 := strconv.ParseInt(fields[0], 10, 64)
		co, err2 := strconv.ParseInt(fields[1], 10, 64)
		v, err3 := strconv.ParseFloat(fields[2], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return 0, 0, nil, nil, nil, fmt.Errorf("distmat: %s:%d: malformed entry %q", path, line, text)
		}
		// MatrixMarket is one-based.
		rows = append(rows, r-1)
		cols = append(cols, co-1)
		vals = append(vals, v)
		stored++
		if symmetric && r != co {
			rows = append(rows, co-1)
			cols = append(cols, r-1)
			vals = append(vals, v)
		}
	}
	if err := sc.Err(); err != nil {
		return 0, 0, nil, nil, nil, err
	}
	if !sawHeader {
		return 0, 0, nil, nil, nil, fmt.Errorf("distmat: %s: missing size line", path)
	}
	if stored != nnz {
		return 0, 0, nil, nil, nil,
			fmt.Errorf("distmat: %s: header promises %d entries, file has %d", path, nnz, stored)
	}
	return nRows, nCols, rows, cols, vals, nil
}

func readBinaryFile(path string) (nRows, nCols int64, rows, cols []int64, vals []float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, nil, nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return 0, 0, nil, nil, nil, fmt.Errorf("distmat: %s: %w", path, err)
	}
	if magic != binaryMagic {
		return 0, 0, nil, nil, nil, fmt.Errorf("distmat: %s: bad magic %#x", path, magic)
	}
	var hdr [3]int64
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return 0, 0, nil, nil, nil, fmt.Errorf("distmat: %s: %w", path, err)
	}
	nRows, nCols = hdr[0], hdr[1]
	nnz := hdr[2]
	rows = make([]int64, nnz)
	cols = make([]int64, nnz)
	vals = make([]float64, nnz)
	for i := int64(0); i < nnz; i++ {
		var rec struct {
			Row, Col int64
			Val      float64
		}
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return 0, 0, nil, nil, nil, fmt.Errorf("distmat: %s: entry %d: %w", path, i, err)
		}
		rows[i], cols[i], vals[i] = rec.Row, rec.Col, rec.Val
	}
	return nRows, nCols, rows, cols, vals, nil
}

// WriteBinary writes triplets in the binary format LoadMatrix reads.
// Host-side utility, not collective.
func WriteBinary(w io.Writer, nRows, nCols int64, rows, cols []int64, vals []float64) error {
	if len(rows) != len(cols) || len(rows) != len(vals) {
		return fmt.Errorf("distmat: triplet arrays disagree: %d/%d/%d", len(rows), len(cols), len(vals))
	}
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, binaryMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, [3]int64{nRows, nCols, int64(len(rows))}); err != nil {
		return err
	}
	for i := range rows {
		rec := struct {
			Row, Col int64
			Val      float64
		}{rows[i], cols[i], vals[i]}
		if err := binary.Write(bw, binary.LittleEndian, rec); err != nil {
			return err
		}
	}
	return bw.Flush()
}
