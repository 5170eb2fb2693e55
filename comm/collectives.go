package comm

import (
	"fmt"
	"sync"
)

// barrier is a reusable generation-counted barrier.
type barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	n     int
	count int
	gen   int
}

func newBarrier(n int) *barrier {
	b := &barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) wait() {
	b.mu.Lock()
	gen := b.gen
	b.count++
	if b.count == b.n {
		b.count = 0
		b.gen++
		b.cond.Broadcast()
	} else {
		for gen == b.gen {
			b.cond.Wait()
		}
	}
	b.mu.Unlock()
}

// Barrier blocks until every rank has entered it.
func (c *Comm) Barrier() {
	c.w.bar.wait()
}

// Broadcast distributes root's data to all ranks and returns it. On the
// root the input slice is returned as-is; on other ranks the input is
// ignored and the received copy is returned.
func Broadcast[T any](c *Comm, root int, data []T) []T {
	if c.rank == root {
		for r := 0; r < c.w.size; r++ {
			if r != root {
				Send(c, r, data)
			}
		}
		return data
	}
	return Recv[T](c, root)
}

// AllGather exchanges each rank's slice with every other rank. The result
// is indexed by rank; entry c.Rank() is a copy of data.
func AllGather[T any](c *Comm, data []T) [][]T {
	out := make([][]T, c.w.size)
	for r := 0; r < c.w.size; r++ {
		if r != c.rank {
			Send(c, r, data)
		}
	}
	own := make([]T, len(data))
	copy(own, data)
	out[c.rank] = own
	for r := 0; r < c.w.size; r++ {
		if r != c.rank {
			out[r] = Recv[T](c, r)
		}
	}
	return out
}

// Op selects the reduction applied by the all-reduce collectives.
type Op int

const (
	Sum Op = iota
	Min
	Max
)

func (op Op) String() string {
	switch op {
	case Sum:
		return "Sum"
	case Min:
		return "Min"
	case Max:
		return "Max"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// AllReduceFloat64 reduces one value per rank; every rank gets the result.
func (c *Comm) AllReduceFloat64(v float64, op Op) float64 {
	all := AllGather(c, []float64{v})
	out := all[0][0]
	for r := 1; r < len(all); r++ {
		out = reduce(out, all[r][0], op)
	}
	return out
}

// AllReduceInt64 reduces one value per rank; every rank gets the result.
func (c *Comm) AllReduceInt64(v int64, op Op) int64 {
	all := AllGather(c, []int64{v})
	out := all[0][0]
	for r := 1; r < len(all); r++ {
		out = reduce(out, all[r][0], op)
	}
	return out
}

func reduce[T int64 | float64](a, b T, op Op) T {
	switch op {
	case Sum:
		return a + b
	case Min:
		if b < a {
			return b
		}
		return a
	case Max:
		if b > a {
			return b
		}
		return a
	default:
		panic(fmt.Sprintf("comm: unknown reduction %v", op))
	}
}

// PingPong performs one round trip of buf with the partner rank. The lower
// rank sends first; both ranks return once the echo has landed. Used by the
// performance model to time point-to-point transfers.
func (c *Comm) PingPong(partner int, buf []byte) {
	if partner == c.rank {
		panic("comm: pingpong with self")
	}
	if c.rank < partner {
		Send(c, partner, buf)
		Recv[byte](c, partner)
	} else {
		echo := Recv[byte](c, partner)
		Send(c, partner, echo)
	}
}
