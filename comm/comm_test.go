package comm

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
)

func TestSendRecv(t *testing.T) {
	w := NewWorld(2)
	err := w.Run(func(c *Comm) error {
		if c.Rank() == 0 {
			Send(c, 1, []float64{1, 2, 3})
			got := Recv[int64](c, 1)
			if len(got) != 2 || got[0] != 10 || got[1] != 20 {
				return fmt.Errorf("rank 0 received %v", got)
			}
		} else {
			got := Recv[float64](c, 0)
			if len(got) != 3 || got[2] != 3 {
				return fmt.Errorf("rank 1 received %v", got)
			}
			Send(c, 0, []int64{10, 20})
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSendCopiesBuffer(t *testing.T) {
	w := NewWorld(2)
	err := w.Run(func(c *Comm) error {
		if c.Rank() == 0 {
			buf := []float64{1}
			Send(c, 1, buf)
			buf[0] = 99 // must not affect the message in flight
			Send(c, 1, []float64{2})
		} else {
			first := Recv[float64](c, 0)
			Recv[float64](c, 0)
			if first[0] != 1 {
				return fmt.Errorf("message mutated after send: %v", first)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBroadcast(t *testing.T) {
	w := NewWorld(4)
	err := w.Run(func(c *Comm) error {
		var data []int32
		if c.Rank() == 2 {
			data = []int32{7, 8, 9}
		}
		got := Broadcast(c, 2, data)
		if len(got) != 3 || got[0] != 7 || got[2] != 9 {
			return fmt.Errorf("rank %d got %v", c.Rank(), got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAllGather(t *testing.T) {
	w := NewWorld(3)
	err := w.Run(func(c *Comm) error {
		all := AllGather(c, []int64{int64(c.Rank() * 10)})
		for r := 0; r < 3; r++ {
			if all[r][0] != int64(r*10) {
				return fmt.Errorf("rank %d sees %v", c.Rank(), all)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAllReduce(t *testing.T) {
	w := NewWorld(4)
	err := w.Run(func(c *Comm) error {
		v := int64(c.Rank() + 1) // 1..4
		if got := c.AllReduceInt64(v, Sum); got != 10 {
			return fmt.Errorf("sum = %d", got)
		}
		if got := c.AllReduceInt64(v, Min); got != 1 {
			return fmt.Errorf("min = %d", got)
		}
		if got := c.AllReduceInt64(v, Max); got != 4 {
			return fmt.Errorf("max = %d", got)
		}
		if got := c.AllReduceFloat64(0.5, Sum); got != 2.0 {
			return fmt.Errorf("float sum = %v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBarrierOrdering(t *testing.T) {
	w := NewWorld(4)
	var phase atomic.Int32
	err := w.Run(func(c *Comm) error {
		phase.Add(1)
		c.Barrier()
		// Every rank must have entered phase 1 before any rank proceeds.
		if got := phase.Load(); got != 4 {
			return fmt.Errorf("rank %d passed barrier with phase %d", c.Rank(), got)
		}
		c.Barrier()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPingPong(t *testing.T) {
	w := NewWorld(2)
	err := w.Run(func(c *Comm) error {
		buf := make([]byte, 64)
		for i := 0; i < 10; i++ {
			c.PingPong(c.Rank()^1, buf)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	w := NewWorld(2)
	err := w.Run(func(c *Comm) error {
		if c.Rank() == 1 {
			panic("boom")
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected an error from the panicking rank")
	}
}

func TestRunReturnsLowestRankError(t *testing.T) {
	w := NewWorld(3)
	wantErr := errors.New("rank 1 failed")
	err := w.Run(func(c *Comm) error {
		switch c.Rank() {
		case 1:
			return wantErr
		case 2:
			return errors.New("rank 2 failed")
		}
		return nil
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want the rank 1 error", err)
	}
}
