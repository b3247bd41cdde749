package vision

import (
	"context"
	"math"
	"math/cmplx"

	"golang.org/x/sync/errgroup"
)

// grid is a complex array of h rows of w values, both powers of two.
type grid struct {
	w, h int
	v    []complex128
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// twiddles returns exp(-2πik/n) for k < n/2.
func twiddles(n int) []complex128 {
	tw := make([]complex128, n/2)
	for k := range tw {
		sin, cos := math.Sincos(-2 * math.Pi * float64(k) / float64(n))
		tw[k] = complex(cos, sin)
	}
	return tw
}

// fft transforms a in place with the radix-2 forward DFT. len(a) must be
// a power of two and tw must come from twiddles(len(a)).
func fft(a, tw []complex128) {
	n := len(a)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		half, step := size>>1, n/size
		for start := 0; start < n; start += size {
			for k := range half {
				u := a[start+k]
				v := a[start+k+half] * tw[k*step]
				a[start+k] = u + v
				a[start+k+half] = u - v
			}
		}
	}
}

// chunks runs fn over [0,n) split into ranges, one per worker.
func chunks(ctx context.Context, n, workers int, fn func(lo, hi int)) error {
	size := max(1, (n+workers-1)/workers)
	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += size {
		hi := min(n, lo+size)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(lo, hi)
			return nil
		})
	}
	return g.Wait()
}

// transform applies the forward 2D DFT to g. Only the first rows rows
// are row-transformed; the rest must be zero, which the row pass keeps.
func (g *grid) transform(ctx context.Context, rows, workers int) error {
	rowTw, colTw := twiddles(g.w), twiddles(g.h)

	err := chunks(ctx, rows, workers, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			fft(g.v[y*g.w:(y+1)*g.w], rowTw)
		}
	})
	if err != nil {
		return err
	}

	return chunks(ctx, g.w, workers, func(lo, hi int) {
		col := make([]complex128, g.h)
		for x := lo; x < hi; x++ {
			for y := range g.h {
				col[y] = g.v[y*g.w+x]
			}
			fft(col, colTw)
			for y := range g.h {
				g.v[y*g.w+x] = col[y]
			}
		}
	})
}

// correlateFFT returns Σc Σ T·I for every placement of t, row-major with
// one row per valid y. Each channel's image and template share one
// complex transform as real and imaginary parts; their spectra are
// separated through conjugate symmetry. The true values are integers and
// the rounding error of float64 transforms at screen sizes is far below
// one half, so rounding recovers them exactly.
func (s *scene) correlateFFT(ctx context.Context, t *preparedTemplate, workers int) ([]int64, error) {
	pw, ph := nextPow2(s.p.w), nextPow2(s.p.h)
	z := &grid{w: pw, h: ph, v: make([]complex128, pw*ph)}
	acc := &grid{w: pw, h: ph, v: make([]complex128, pw*ph)}

	for ch := range 3 {
		clear(z.v)
		img, tc := s.p.c[ch], t.p.c[ch]
		for y := range s.p.h {
			for x := range s.p.w {
				z.v[y*pw+x] = complex(img[y*s.p.w+x], 0)
			}
		}
		for y := range t.h {
			for x := range t.w {
				i := y*pw + x
				z.v[i] = complex(real(z.v[i]), tc[y*t.w+x])
			}
		}
		if err := z.transform(ctx, s.p.h, workers); err != nil {
			return nil, err
		}

		// With Z the transform of I + iT:
		//   FI[k] = (Z[k] + conj(Z[-k])) / 2
		//   FT[k] = (Z[k] - conj(Z[-k])) / 2i
		// The correlation spectrum is FI·conj(FT). acc keeps its
		// conjugate so a forward transform can stand in for the inverse.
		err := chunks(ctx, ph, workers, func(lo, hi int) {
			for ky := lo; ky < hi; ky++ {
				ny := (ph - ky) % ph
				for kx := range pw {
					nx := (pw - kx) % pw
					zk := z.v[ky*pw+kx]
					zn := cmplx.Conj(z.v[ny*pw+nx])
					fi := (zk + zn) / 2
					ft := (zk - zn) / 2i
					acc.v[ky*pw+kx] += cmplx.Conj(fi) * ft
				}
			}
		})
		if err != nil {
			return nil, err
		}
	}

	if err := acc.transform(ctx, ph, workers); err != nil {
		return nil, err
	}

	rows, cols := s.p.h-t.h+1, s.p.w-t.w+1
	scale := float64(pw * ph)
	out := make([]int64, rows*cols)
	for y := range rows {
		for x := range cols {
			out[y*cols+x] = int64(math.Round(real(acc.v[y*pw+x]) / scale))
		}
	}
	return out, nil
}
