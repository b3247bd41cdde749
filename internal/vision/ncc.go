package vision

import (
	"context"
	"image"
	"image/draw"
	"math"
	"math/bits"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// planes holds an image as three float channels in row-major order,
// with the origin moved to (0,0). Values are the integers 0..255.
type planes struct {
	w, h int
	c    [3][]float64
}

// toPlanes converts any image into channel planes of 0..255 values.
func toPlanes(img image.Image) *planes {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	w, h := b.Dx(), b.Dy()
	p := &planes{w: w, h: h}
	for ch := range p.c {
		p.c[ch] = make([]float64, w*h)
	}
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+w*4]
		for x := 0; x < w; x++ {
			i := y*w + x
			p.c[0][i] = float64(row[x*4])
			p.c[1][i] = float64(row[x*4+1])
			p.c[2][i] = float64(row[x*4+2])
		}
	}
	return p
}

// integral holds summed-area tables of (w+1)*(h+1) entries: one sum table
// per channel and one table of squares summed across channels. Pixel
// values are integers, so the tables are exact.
type integral struct {
	w, h  int
	sum   [3][]int64
	sumSq []int64
}

func newIntegral(p *planes) *integral {
	stride := p.w + 1
	in := &integral{w: p.w, h: p.h, sumSq: make([]int64, stride*(p.h+1))}
	for ch := range in.sum {
		in.sum[ch] = make([]int64, stride*(p.h+1))
	}

	for y := 1; y <= p.h; y++ {
		var rowSq int64
		var row [3]int64
		for x := 1; x <= p.w; x++ {
			src := (y-1)*p.w + (x - 1)
			dst := y*stride + x
			for ch := range 3 {
				v := int64(p.c[ch][src])
				row[ch] += v
				rowSq += v * v
				in.sum[ch][dst] = in.sum[ch][dst-stride] + row[ch]
			}
			in.sumSq[dst] = in.sumSq[dst-stride] + rowSq
		}
	}
	return in
}

// rect returns the value of table t over the w×h window at (x,y).
func (in *integral) rect(t []int64, x, y, w, h int) int64 {
	stride := in.w + 1
	return t[(y+h)*stride+x+w] - t[y*stride+x+w] - t[(y+h)*stride+x] + t[y*stride+x]
}

// spread returns n*q - Σ a[i]*b[i] for non-negative operands. The
// products are formed in 128 bits, so a 4K window of near-white pixels
// cannot overflow and equal terms cancel to exactly zero.
func spread(n, q int64, a, b [3]int64) float64 {
	ph, pl := bits.Mul64(uint64(n), uint64(q))
	var sh, sl uint64
	for i := range a {
		hi, lo := bits.Mul64(uint64(a[i]), uint64(b[i]))
		var carry uint64
		sl, carry = bits.Add64(sl, lo, 0)
		sh, _ = bits.Add64(sh, hi, carry)
	}

	neg := ph < sh || (ph == sh && pl < sl)
	if neg {
		ph, pl, sh, sl = sh, sl, ph, pl
	}
	dl, borrow := bits.Sub64(pl, sl, 0)
	dh, _ := bits.Sub64(ph, sh, borrow)

	v := float64(dh)*0x1p64 + float64(dl)
	if neg {
		return -v
	}
	return v
}

// preparedTemplate is a template with the sums its score needs.
type preparedTemplate struct {
	w, h  int
	p     *planes
	sum   [3]int64
	sumSq int64

	// energy is n·ΣT² - Σc (ΣTc)², zero for a flat template.
	energy float64
}

func prepareTemplate(img image.Image) *preparedTemplate {
	p := toPlanes(img)
	t := &preparedTemplate{w: p.w, h: p.h, p: p}
	n := int64(p.w * p.h)
	if n == 0 {
		return t
	}

	for ch := range 3 {
		for _, v := range p.c[ch] {
			t.sum[ch] += int64(v)
			t.sumSq += int64(v) * int64(v)
		}
	}
	t.energy = spread(n, t.sumSq, t.sum, t.sum)
	return t
}

// scene is a snapshot prepared for repeated template searches.
type scene struct {
	p  *planes
	in *integral
}

func newScene(img image.Image) *scene {
	p := toPlanes(img)
	return &scene{p: p, in: newIntegral(p)}
}

// correlationAt returns Σc Σ T·I for t placed at (x,y), computed directly.
// Every term is an integer below 2^16, so the float sum is exact.
func (s *scene) correlationAt(t *preparedTemplate, x, y int) int64 {
	var c float64
	for ch := range 3 {
		img := s.p.c[ch]
		tc := t.p.c[ch]
		for v := 0; v < t.h; v++ {
			irow := img[(y+v)*s.p.w+x : (y+v)*s.p.w+x+t.w]
			trow := tc[v*t.w : (v+1)*t.w]
			for u, tv := range trow {
				c += tv * irow[u]
			}
		}
	}
	return int64(c)
}

// score turns the raw correlation c at (x,y) into the correlation
// coefficient. Flat windows and flat templates score 0.
func (s *scene) score(t *preparedTemplate, x, y int, c int64) float64 {
	if t.energy <= 0 {
		return 0
	}
	n := int64(t.w * t.h)

	var sums [3]int64
	for ch := range 3 {
		sums[ch] = s.in.rect(s.in.sum[ch], x, y, t.w, t.h)
	}
	wv := spread(n, s.in.rect(s.in.sumSq, x, y, t.w, t.h), sums, sums)
	if wv <= 0 {
		return 0
	}

	num := spread(n, c, t.sum, sums)
	r := num / (math.Sqrt(t.energy) * math.Sqrt(wv))
	return max(-1, min(1, r))
}

// scoreAt returns the correlation coefficient of t placed at (x,y).
func (s *scene) scoreAt(t *preparedTemplate, x, y int) float64 {
	return s.score(t, x, y, s.correlationAt(t, x, y))
}

// peak is the best score of a correlation surface and where it occurs.
type peak struct {
	score float64
	at    image.Point
}

// bestMatch scans every placement of t and returns the row-major first
// maximum. Large searches take the raw correlation from one FFT pass;
// small ones compute it per placement. Both give the same integers, so
// the choice never changes the result. Work is spread over up to workers
// goroutines. ok is false when t does not fit inside the scene.
func (s *scene) bestMatch(ctx context.Context, t *preparedTemplate, workers int) (peak, bool, error) {
	return s.search(ctx, t, workers, s.preferFFT(t))
}

// preferFFT compares the direct multiply count against a rough cost of
// the four padded transforms.
func (s *scene) preferFFT(t *preparedTemplate) bool {
	rows := s.p.h - t.h + 1
	cols := s.p.w - t.w + 1
	if rows <= 0 || cols <= 0 {
		return false
	}
	direct := float64(rows) * float64(cols) * float64(t.w*t.h) * 3
	pw, ph := nextPow2(s.p.w), nextPow2(s.p.h)
	transforms := 4 * 5 * float64(pw*ph) * math.Log2(float64(pw*ph))
	return direct > transforms
}

func (s *scene) search(ctx context.Context, t *preparedTemplate, workers int, useFFT bool) (peak, bool, error) {
	rows := s.p.h - t.h + 1
	cols := s.p.w - t.w + 1
	if rows <= 0 || cols <= 0 || t.w == 0 || t.h == 0 {
		return peak{}, false, nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	corr := s.correlationAt
	if useFFT {
		surface, err := s.correlateFFT(ctx, t, workers)
		if err != nil {
			return peak{}, false, err
		}
		corr = func(_ *preparedTemplate, x, y int) int64 { return surface[y*cols+x] }
	}

	perRow := make([]peak, rows)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for y := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			best := peak{score: math.Inf(-1)}
			for x := range cols {
				if sc := s.score(t, x, y, corr(t, x, y)); sc > best.score {
					best = peak{score: sc, at: image.Pt(x, y)}
				}
			}
			perRow[y] = best
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return peak{}, false, err
	}

	best := perRow[0]
	for _, p := range perRow[1:] {
		if p.score > best.score {
			best = p
		}
	}
	return best, true, nil
}
