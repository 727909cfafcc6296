// Package scenarios holds the end-to-end dispatches run by computedemo.
package scenarios

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/chewxy/math32"

	"github.com/gogpu/compute"
)

// ErrUnknownScenario is returned by Lookup for names that are not registered.
var ErrUnknownScenario = errors.New("scenarios: unknown scenario")

// ErrMismatch is returned when a scenario reads back unexpected values.
var ErrMismatch = errors.New("scenarios: result mismatch")

// Func runs one scenario over n elements.
type Func func(ctx context.Context, c *compute.Context, n int) error

var registry = map[string]Func{
	"double":    DoublePairs,
	"chain":     Chain,
	"normalize": Normalize,
}

// Names returns the registered scenario names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the scenario registered under name.
func Lookup(name string) (Func, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
	}
	return fn, nil
}

// Result reports one scenario run.
type Result struct {
	Name     string
	Elements int
	Elapsed  time.Duration
	Err      error
}

// Run runs the named scenarios in order and logs each outcome. It stops at
// the first unknown name; scenario failures are recorded in the results.
func Run(ctx context.Context, c *compute.Context, names []string, n int, log *slog.Logger) ([]Result, error) {
	results := make([]Result, 0, len(names))
	for _, name := range names {
		fn, err := Lookup(name)
		if err != nil {
			return results, err
		}
		start := time.Now()
		err = fn(ctx, c, n)
		r := Result{Name: name, Elements: n, Elapsed: time.Since(start), Err: err}
		results = append(results, r)
		if err != nil {
			log.Error("scenario failed", "name", name, "err", err)
			continue
		}
		log.Info("scenario passed", "name", name, "elements", n, "elapsed", r.Elapsed)
	}
	return results, nil
}

// DoublePairs doubles both fields of n pairs.
func DoublePairs(ctx context.Context, c *compute.Context, n int) error {
	in := make([]Pair, n)
	for i := range in {
		in[i] = Pair{A: uint32(i), B: uint32(2 * i)}
	}
	input, err := compute.CreateStorageBufferWithData(c, in)
	if err != nil {
		return err
	}
	defer input.Release()
	output, err := compute.CreateStorageBuffer[Pair](c, n)
	if err != nil {
		return err
	}
	defer output.Release()

	shader, err := c.CreateShader(doublePairsWGSL, "main")
	if err != nil {
		return err
	}
	defer shader.Release()
	if err := shader.Bind("input", input.ToBinding(0, 0).NoCopy()); err != nil {
		return err
	}
	if err := shader.Bind("output", output.ToBinding(0, 1)); err != nil {
		return err
	}
	if err := shader.Execute(workgroups(n), 1, 1); err != nil {
		return err
	}

	got, ok := compute.Read[Pair](ctx, output)
	if !ok {
		return fmt.Errorf("double: %w: no result", ErrMismatch)
	}
	for i, p := range got {
		if p.A != in[i].A*2 || p.B != in[i].B*2 {
			return fmt.Errorf("double: %w at %d: got %+v", ErrMismatch, i, p)
		}
	}
	return nil
}

// Chain fills a buffer with one shader and squares it with another. The
// intermediate buffer is never copied back to the host.
func Chain(ctx context.Context, c *compute.Context, n int) error {
	values, err := compute.CreateStorageBuffer[uint32](c, n)
	if err != nil {
		return err
	}
	defer values.Release()
	squares, err := compute.CreateStorageBuffer[uint32](c, n)
	if err != nil {
		return err
	}
	defer squares.Release()

	generate, err := c.CreateShader(generateWGSL, "generate")
	if err != nil {
		return err
	}
	defer generate.Release()
	square, err := c.CreateShader(squareWGSL, "square")
	if err != nil {
		return err
	}
	defer square.Release()

	if err := generate.Bind("values", values.ToBinding(0, 0).NoCopy()); err != nil {
		return err
	}
	if err := square.Bind("values", values.ToBinding(0, 0).NoCopy()); err != nil {
		return err
	}
	if err := square.Bind("squares", squares.ToBinding(0, 1)); err != nil {
		return err
	}
	if err := generate.Execute(workgroups(n), 1, 1); err != nil {
		return err
	}
	if err := square.Execute(workgroups(n), 1, 1); err != nil {
		return err
	}

	got, ok := compute.Read[uint32](ctx, squares)
	if !ok {
		return fmt.Errorf("chain: %w: no result", ErrMismatch)
	}
	for i, v := range got {
		want := uint32(i+1) * uint32(i+1)
		if v != want {
			return fmt.Errorf("chain: %w at %d: got %d, want %d", ErrMismatch, i, v, want)
		}
	}
	return nil
}

const normalizeTolerance = 1e-5

// Normalize scales the xyz part of n vectors to unit length in place.
func Normalize(ctx context.Context, c *compute.Context, n int) error {
	vecs := make([]Vec4, n)
	for i := range vecs {
		f := float32(i + 1)
		vecs[i] = Vec4{X: f, Y: 2 * f, Z: -f, W: f}
	}
	vectors, err := compute.NewBuffer(c, compute.StorageHostReadWrite, compute.Sequence(vecs), "vectors")
	if err != nil {
		return err
	}
	defer vectors.Release()
	params, err := compute.CreateUniform(c, uint32(n))
	if err != nil {
		return err
	}
	defer params.Release()

	shader, err := c.CreateShader(normalizeWGSL, "normalize_main")
	if err != nil {
		return err
	}
	defer shader.Release()
	if err := shader.Bind("vectors", vectors.ToBinding(0, 0)); err != nil {
		return err
	}
	if err := shader.Bind("params", params.ToBinding(1, 0).NoCopy()); err != nil {
		return err
	}
	if err := shader.Execute(workgroups(n), 1, 1); err != nil {
		return err
	}

	got, ok := compute.Read[Vec4](ctx, vectors)
	if !ok {
		return fmt.Errorf("normalize: %w: no result", ErrMismatch)
	}
	for i, v := range got {
		l := math32.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
		if math32.Abs(l-1) > normalizeTolerance || v.W != vecs[i].W {
			return fmt.Errorf("normalize: %w at %d: got %+v (length %g)", ErrMismatch, i, v, l)
		}
	}
	return nil
}
