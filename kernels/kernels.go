// Package kernels defines the SpMV backend contract and the registry the
// driver selects backends from. Each adapter wraps one way of performing
// y = alpha*A*x + beta*y over the shared matrix and vector buffers; the
// registry records what each backend can run on (rank-count limits) so the
// driver can skip what the current world cannot support.
package kernels

import (
	"fmt"

	"spmvbench/distmat"
)

// Kernel performs sparse matrix-vector products against the buffers it was
// built over. Spmv is synchronous: it returns only after all work, including
// any asynchronous dispatch, has completed and the result is visible in the
// shared y buffer.
type Kernel interface {
	Name() string

	// OwnsMemory reports whether the kernel computed on private deep
	// copies. Owning kernels write their result back into the shared y;
	// borrowing kernels work on the shared buffers directly.
	OwnsMemory() bool

	// Spmv computes y = alpha*A*x + beta*y. beta == 0 overwrites y without
	// reading it, so a NaN-filled y comes out clean.
	Spmv(alpha, beta float64) error

	// Free releases adapter-owned state only, never the borrowed buffers.
	// The kernel must not be used afterward.
	Free()
}

// Factory describes one registered backend.
type Factory struct {
	Name string

	// MaxRanks limits the world size the backend supports; 0 means
	// unlimited.
	MaxRanks int

	Build func(a *distmat.CSRMatrix, x, y *distmat.Vector) (Kernel, error)
}

var factories []Factory

// Register adds a backend factory. Called from adapter init functions;
// duplicate names are a programmer error.
func Register(f Factory) {
	for _, g := range factories {
		if g.Name == f.Name {
			panic(fmt.Sprintf("kernels: backend %q registered twice", f.Name))
		}
	}
	factories = append(factories, f)
}

// Factories returns the registered backends in registration order.
func Factories() []Factory {
	out := make([]Factory, len(factories))
	copy(out, factories)
	return out
}

// Lookup returns the factory with the given name.
func Lookup(name string) (Factory, bool) {
	for _, f := range factories {
		if f.Name == name {
			return f, true
		}
	}
	return Factory{}, false
}

// KernelError is a backend failure during a product. Unlike the
// configuration problems resolved at build time, these abort the run.
type KernelError struct {
	Backend string
	Op      string
	Err     error
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("kernels: %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *KernelError) Unwrap() error { return e.Err }

// scaleInto applies the alpha/beta combination y = alpha*t + beta*y given
// the raw product t = A*x. beta == 0 assigns without reading y.
func scaleInto(y, t []float64, alpha, beta float64) {
	if alpha == 1 && beta == 0 {
		copy(y, t)
		return
	}
	if beta == 0 {
		for i := range y {
			y[i] = alpha * t[i]
		}
		return
	}
	for i := range y {
		y[i] = alpha*t[i] + beta*y[i]
	}
}
