// Package comm provides a fixed-size communicator for rank-parallel
// benchmarking. Ranks are goroutines inside one process, connected by
// buffered channels, and expose the collective operations the benchmark
// needs: barrier, broadcast, all-reduce, all-gather and point-to-point
// exchange. The world size is fixed at creation and never resized.
package comm

import (
	"fmt"
	"sync"
)

// World owns the channels and barrier shared by all ranks.
type World struct {
	size  int
	pairs [][]chan any // pairs[from][to], written by from, read by to
	bar   *barrier
}

// NewWorld creates a communicator world with the given number of ranks.
func NewWorld(size int) *World {
	if size < 1 {
		panic(fmt.Sprintf("comm: world size must be positive, got %d", size))
	}
	pairs := make([][]chan any, size)
	for from := 0; from < size; from++ {
		pairs[from] = make([]chan any, size)
		for to := 0; to < size; to++ {
			pairs[from][to] = make(chan any, 8)
		}
	}
	return &World{
		size:  size,
		pairs: pairs,
		bar:   newBarrier(size),
	}
}

// Size returns the number of ranks in the world.
func (w *World) Size() int {
	return w.size
}

// Run executes fn once per rank, each on its own goroutine, and waits for
// all of them. A panic on any rank is recovered and reported as that rank's
// error, so a failing rank never takes the process down without cleanup.
// The returned error is the lowest-rank failure.
func (w *World) Run(fn func(c *Comm) error) error {
	var wg sync.WaitGroup
	errs := make([]error, w.size)
	for r := 0; r < w.size; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					errs[rank] = fmt.Errorf("rank %d: panic: %v", rank, p)
				}
			}()
			errs[rank] = fn(&Comm{w: w, rank: rank})
		}(r)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Comm is one rank's handle on the world. A Comm must only be used from the
// goroutine Run started for that rank.
type Comm struct {
	w    *World
	rank int
}

// Rank returns this rank's index in [0, Size).
func (c *Comm) Rank() int {
	return c.rank
}

// Size returns the number of ranks in the world.
func (c *Comm) Size() int {
	return c.w.size
}

// Send delivers a copy of data to the given rank. The copy makes the
// exchange behave like a real message: the sender may reuse its buffer
// immediately.
func Send[T any](c *Comm, to int, data []T) {
	if to < 0 || to >= c.w.size {
		panic(fmt.Sprintf("comm: send to invalid rank %d (world size %d)", to, c.w.size))
	}
	buf := make([]T, len(data))
	copy(buf, data)
	c.w.pairs[c.rank][to] <- buf
}

// Recv blocks until a message from the given rank arrives and returns it.
func Recv[T any](c *Comm, from int) []T {
	if from < 0 || from >= c.w.size {
		panic(fmt.Sprintf("comm: recv from invalid rank %d (world size %d)", from, c.w.size))
	}
	v := <-c.w.pairs[from][c.rank]
	buf, ok := v.([]T)
	if !ok {
		panic(fmt.Sprintf("comm: rank %d received %T from rank %d, want []%T", c.rank, v, from, *new(T)))
	}
	return buf
}
