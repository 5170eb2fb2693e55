package distmat

import (
	"fmt"
	"math"
	"testing"

	"spmvbench/comm"
)

func TestVectorNorm2(t *testing.T) {
	w := comm.NewWorld(2)
	err := w.Run(func(c *comm.Comm) error {
		m := NewContiguousMap(c, 4)
		v := NewVector(m)
		v.Fill(2) // norm = sqrt(4 * 4) = 4
		if got := v.Norm2(); math.Abs(got-4) > 1e-14 {
			return fmt.Errorf("norm = %v, want 4", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestVectorUpdateBetaZeroClearsNaN(t *testing.T) {
	w := comm.NewWorld(1)
	err := w.Run(func(c *comm.Comm) error {
		m := NewContiguousMap(c, 3)
		v := NewVector(m)
		v.Fill(math.NaN())
		u := NewVector(m)
		u.Fill(5)

		// beta == 0 must assign, not multiply: 0*NaN would stay NaN.
		v.Update(2, u, 0)
		for i, x := range v.Values {
			if x != 10 {
				return fmt.Errorf("v[%d] = %v, want 10", i, x)
			}
		}

		v.Update(1, u, 2) // v = u + 2v = 5 + 20
		for i, x := range v.Values {
			if x != 25 {
				return fmt.Errorf("after axpy v[%d] = %v, want 25", i, x)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestVectorEqual(t *testing.T) {
	w := comm.NewWorld(1)
	err := w.Run(func(c *comm.Comm) error {
		m := NewContiguousMap(c, 3)
		a := NewVector(m)
		b := NewVector(m)
		a.Fill(1)
		b.Fill(1)
		if !a.Equal(b) {
			return fmt.Errorf("identical vectors compare unequal")
		}
		b.Values[1] = 2
		if a.Equal(b) {
			return fmt.Errorf("different vectors compare equal")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
