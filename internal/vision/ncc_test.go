package vision

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"
)

// noiseImage returns a deterministic random RGB image.
func noiseImage(w, h int, seed uint64) *image.RGBA {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.IntN(256)),
				G: uint8(rng.IntN(256)),
				B: uint8(rng.IntN(256)),
				A: 255,
			})
		}
	}
	return img
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// crop copies r out of src into a new image at the origin.
func crop(src image.Image, r image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return dst
}

// naiveScore computes the coefficient directly from its definition.
func naiveScore(img, tmpl image.Image, x, y int) float64 {
	tb := tmpl.Bounds()
	n := float64(tb.Dx() * tb.Dy())
	var num, tv, iv float64
	for ch := range 3 {
		var tm, im float64
		for v := 0; v < tb.Dy(); v++ {
			for u := 0; u < tb.Dx(); u++ {
				tm += channel(tmpl.At(u, v), ch)
				im += channel(img.At(x+u, y+v), ch)
			}
		}
		tm /= n
		im /= n
		for v := 0; v < tb.Dy(); v++ {
			for u := 0; u < tb.Dx(); u++ {
				td := channel(tmpl.At(u, v), ch) - tm
				id := channel(img.At(x+u, y+v), ch) - im
				num += td * id
				tv += td * td
				iv += id * id
			}
		}
	}
	if tv == 0 || iv == 0 {
		return 0
	}
	return num / math.Sqrt(tv*iv)
}

func channel(c color.Color, ch int) float64 {
	r, g, b, _ := c.RGBA()
	return float64([3]uint32{r >> 8, g >> 8, b >> 8}[ch])
}

func TestScoreAt_MatchesDefinition(t *testing.T) {
	img := noiseImage(24, 18, 1)
	tmpl := noiseImage(7, 5, 2)

	sc := newScene(img)
	pt := prepareTemplate(tmpl)

	for _, p := range []image.Point{{0, 0}, {3, 4}, {17, 13}, {10, 1}} {
		got := sc.scoreAt(pt, p.X, p.Y)
		want := naiveScore(img, tmpl, p.X, p.Y)
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("scoreAt(%v) = %.12f, want %.12f", p, got, want)
		}
	}
}

func TestScoreAt_ExactCropIsOne(t *testing.T) {
	img := noiseImage(40, 30, 3)
	tmpl := crop(img, image.Rect(12, 9, 22, 17))

	sc := newScene(img)
	got := sc.scoreAt(prepareTemplate(tmpl), 12, 9)
	if math.Abs(got-1) > 1e-9 {
		t.Errorf("scoreAt(crop origin) = %v, want 1", got)
	}
}

func TestScoreAt_Degenerate(t *testing.T) {
	flat := solidImage(20, 20, color.RGBA{R: 90, G: 90, B: 90, A: 255})
	noisy := noiseImage(20, 20, 4)

	t.Run("flat window", func(t *testing.T) {
		sc := newScene(flat)
		if got := sc.scoreAt(prepareTemplate(crop(noisy, image.Rect(0, 0, 5, 5))), 3, 3); got != 0 {
			t.Errorf("score = %v, want 0", got)
		}
	})

	t.Run("flat template", func(t *testing.T) {
		sc := newScene(noisy)
		if got := sc.scoreAt(prepareTemplate(crop(flat, image.Rect(0, 0, 5, 5))), 3, 3); got != 0 {
			t.Errorf("score = %v, want 0", got)
		}
	})
}

func TestScoreAt_BrightnessInvariant(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 30, 30))
	src := noiseImage(30, 30, 5)
	// Keep values below 200 so the offset never clips.
	for i := range img.Pix {
		img.Pix[i] = src.Pix[i] % 200
		if i%4 == 3 {
			img.Pix[i] = 255
		}
	}
	tmpl := crop(img, image.Rect(4, 6, 14, 16))
	for i := range tmpl.Pix {
		if i%4 != 3 {
			tmpl.Pix[i] += 40
		}
	}

	sc := newScene(img)
	if got := sc.scoreAt(prepareTemplate(tmpl), 4, 6); got < 0.999999 {
		t.Errorf("score with brightness offset = %v, want 1", got)
	}
}

func TestBestMatch_RowMajorFirstPeak(t *testing.T) {
	img := noiseImage(60, 40, 6)
	patch := noiseImage(6, 6, 7)
	// Two identical copies: (30,10) comes first in row-major order.
	draw.Draw(img, image.Rect(5, 20, 11, 26), patch, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(30, 10, 36, 16), patch, image.Point{}, draw.Src)

	sc := newScene(img)
	for _, workers := range []int{1, 3, 0} {
		best, ok, err := sc.bestMatch(context.Background(), prepareTemplate(patch), workers)
		if err != nil || !ok {
			t.Fatalf("bestMatch(workers=%d) = ok %v, err %v", workers, ok, err)
		}
		if best.at != image.Pt(30, 10) {
			t.Errorf("bestMatch(workers=%d) at %v, want (30,10)", workers, best.at)
		}
	}
}

func TestSearch_FFTAndDirectAgree(t *testing.T) {
	img := noiseImage(61, 43, 13)
	patch := noiseImage(8, 5, 14)
	draw.Draw(img, image.Rect(40, 3, 48, 8), patch, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(2, 30, 10, 35), patch, image.Point{}, draw.Src)

	sc := newScene(img)
	pt := prepareTemplate(patch)

	direct, ok, err := sc.search(context.Background(), pt, 2, false)
	if err != nil || !ok {
		t.Fatalf("search(direct) = ok %v, err %v", ok, err)
	}
	viaFFT, ok, err := sc.search(context.Background(), pt, 2, true)
	if err != nil || !ok {
		t.Fatalf("search(fft) = ok %v, err %v", ok, err)
	}
	if direct != viaFFT {
		t.Errorf("fft peak %+v, direct peak %+v", viaFFT, direct)
	}
	if viaFFT.at != image.Pt(40, 3) || viaFFT.score != sc.scoreAt(pt, 40, 3) {
		t.Errorf("fft peak %+v, want first copy at (40,3) with its exact score", viaFFT)
	}
}

func TestBestMatch_TemplateTooLarge(t *testing.T) {
	sc := newScene(noiseImage(10, 10, 8))
	_, ok, err := sc.bestMatch(context.Background(), prepareTemplate(noiseImage(11, 4, 9)), 2)
	if err != nil {
		t.Fatalf("bestMatch() error = %v", err)
	}
	if ok {
		t.Error("bestMatch() ok = true for oversized template")
	}
}

func TestBestMatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := newScene(noiseImage(30, 30, 10))
	if _, _, err := sc.bestMatch(ctx, prepareTemplate(noiseImage(5, 5, 11)), 2); err == nil {
		t.Error("bestMatch() with cancelled context succeeded, want error")
	}
}

func TestSearch_FFTCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := newScene(noiseImage(30, 30, 15))
	if _, _, err := sc.search(ctx, prepareTemplate(noiseImage(5, 5, 16)), 2, true); err == nil {
		t.Error("search(fft) with cancelled context succeeded, want error")
	}
}

func TestPreferFFT(t *testing.T) {
	tests := []struct {
		name    string
		sw, sh  int
		tw, th  int
		wantFFT bool
	}{
		{name: "full hd screen, icon", sw: 1920, sh: 1080, tw: 64, th: 64, wantFFT: true},
		{name: "small crop", sw: 60, sh: 40, tw: 6, th: 6, wantFFT: false},
		{name: "template fills scene", sw: 200, sh: 100, tw: 200, th: 100, wantFFT: false},
		{name: "template too large", sw: 10, sh: 10, tw: 11, th: 4, wantFFT: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &scene{p: &planes{w: tt.sw, h: tt.sh}}
			if got := sc.preferFFT(&preparedTemplate{w: tt.tw, h: tt.th}); got != tt.wantFFT {
				t.Errorf("preferFFT() = %v, want %v", got, tt.wantFFT)
			}
		})
	}
}

// ─── Exact Arithmetic ──────────────────────────────────────────────

func TestCorrelateFFT_MatchesDirect(t *testing.T) {
	tests := []struct {
		name   string
		sw, sh int
		tw, th int
	}{
		{name: "odd sizes", sw: 50, sh: 37, tw: 9, th: 7},
		{name: "power of two scene", sw: 32, sh: 16, tw: 4, th: 4},
		{name: "single pixel template", sw: 13, sh: 11, tw: 1, th: 1},
		{name: "template fills scene", sw: 12, sh: 9, tw: 12, th: 9},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newScene(noiseImage(tt.sw, tt.sh, uint64(20+i)))
			pt := prepareTemplate(noiseImage(tt.tw, tt.th, uint64(40+i)))

			got, err := sc.correlateFFT(context.Background(), pt, 3)
			if err != nil {
				t.Fatalf("correlateFFT() error = %v", err)
			}
			cols := tt.sw - tt.tw + 1
			for y := 0; y <= tt.sh-tt.th; y++ {
				for x := 0; x < cols; x++ {
					if want := sc.correlationAt(pt, x, y); got[y*cols+x] != want {
						t.Fatalf("correlation at (%d,%d) = %d, want %d", x, y, got[y*cols+x], want)
					}
				}
			}
		})
	}
}

func TestFFT_KnownTransforms(t *testing.T) {
	impulse := []complex128{1, 0, 0, 0}
	fft(impulse, twiddles(4))
	for k, v := range impulse {
		if cmplx.Abs(v-1) > 1e-12 {
			t.Errorf("impulse spectrum[%d] = %v, want 1", k, v)
		}
	}

	flat := []complex128{1, 1, 1, 1, 1, 1, 1, 1}
	fft(flat, twiddles(8))
	for k, v := range flat {
		want := complex128(0)
		if k == 0 {
			want = 8
		}
		if cmplx.Abs(v-want) > 1e-12 {
			t.Errorf("flat spectrum[%d] = %v, want %v", k, v, want)
		}
	}
}

func TestSpread(t *testing.T) {
	// A 4K window of white pixels. n*q alone is about 1.3e19, past int64.
	const n = int64(3840 * 2160)
	const white = n * 255
	q := n * 3 * 255 * 255

	tests := []struct {
		name string
		n, q int64
		a, b [3]int64
		want float64
	}{
		{name: "flat 4k window", n: n, q: q, a: [3]int64{white, white, white}, b: [3]int64{white, white, white}, want: 0},
		// One red value lowered to 254: n - 1 after cancellation.
		{name: "4k window one pixel off", n: n, q: q - 255*255 + 254*254,
			a: [3]int64{white - 1, white, white}, b: [3]int64{white - 1, white, white}, want: float64(n - 1)},
		{name: "negative", n: 1, q: 0, a: [3]int64{1, 0, 0}, b: [3]int64{1, 0, 0}, want: -1},
		{name: "small", n: 4, q: 10, a: [3]int64{2, 1, 0}, b: [3]int64{3, 0, 5}, want: 34},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := spread(tt.n, tt.q, tt.a, tt.b); got != tt.want {
				t.Errorf("spread() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreAt_NearWhiteWindow(t *testing.T) {
	img := solidImage(200, 90, color.RGBA{R: 254, G: 255, B: 255, A: 255})
	img.SetRGBA(60, 45, color.RGBA{R: 250, G: 255, B: 255, A: 255})
	tmpl := crop(img, image.Rect(20, 15, 100, 75))

	sc := newScene(img)
	if got := sc.scoreAt(prepareTemplate(tmpl), 20, 15); math.Abs(got-1) > 1e-12 {
		t.Errorf("scoreAt(near-white crop) = %v, want 1", got)
	}
	if got := sc.scoreAt(prepareTemplate(tmpl), 120, 0); got != 0 {
		t.Errorf("scoreAt(flat window) = %v, want 0", got)
	}
}

func BenchmarkBestMatch_FullHD(b *testing.B) {
	img := noiseImage(1920, 1080, 50)
	tmpl := crop(img, image.Rect(900, 500, 964, 564))
	sc := newScene(img)
	pt := prepareTemplate(tmpl)

	b.ResetTimer()
	for b.Loop() {
		if _, _, err := sc.bestMatch(context.Background(), pt, 0); err != nil {
			b.Fatal(err)
		}
	}
}

func TestToPlanes_NonZeroOrigin(t *testing.T) {
	img := noiseImage(10, 10, 12)
	sub := img.SubImage(image.Rect(3, 4, 8, 9))

	p := toPlanes(sub)
	if p.w != 5 || p.h != 5 {
		t.Fatalf("planes size = %dx%d, want 5x5", p.w, p.h)
	}
	want := img.RGBAAt(3, 4)
	if p.c[0][0] != float64(want.R) || p.c[1][0] != float64(want.G) || p.c[2][0] != float64(want.B) {
		t.Errorf("first pixel = (%v,%v,%v), want %v", p.c[0][0], p.c[1][0], p.c[2][0], want)
	}
}
