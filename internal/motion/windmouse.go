package motion

import (
	"image"
	"iter"
	"math"
	"math/rand/v2"
	"sync/atomic"

	"github.com/nerrad567/sleepgrind/internal/infrastructure/config"
)

// maxIterations bounds a single trajectory. Real paths finish in a few
// hundred steps; the cap only matters for pathological parameters.
const maxIterations = 5000

var (
	sqrt3 = math.Sqrt(3)
	sqrt5 = math.Sqrt(5)
)

// Params shapes one trajectory.
type Params struct {
	// Gravity is the constant pull toward the destination.
	Gravity float64

	// Wind is the magnitude of the random perturbation.
	Wind float64

	// MaxStep bounds the per-step velocity.
	MaxStep float64

	// SlowdownRadius is the distance inside which wind decays and the
	// step limit shrinks.
	SlowdownRadius float64
}

// ParamsFrom converts a configured preset.
func ParamsFrom(p config.MotionPreset) Params {
	return Params{
		Gravity:        p.Gravity,
		Wind:           p.Wind,
		MaxStep:        p.MaxStep,
		SlowdownRadius: p.SlowdownRadius,
	}
}

// Path returns the integer cursor positions of a trajectory from start to
// dest. Consecutive positions always differ, the last position is exactly
// dest, and at least one position is produced.
//
// The sequence is single-use: randomness is drawn from rng while it is
// consumed, so a second pass could not repeat the first. Ranging over it
// again yields nothing.
func Path(start, dest image.Point, p Params, rng *rand.Rand) iter.Seq[image.Point] {
	var used atomic.Bool
	return func(yield func(image.Point) bool) {
		if used.Swap(true) {
			return
		}
		x, y := float64(start.X), float64(start.Y)
		tx, ty := float64(dest.X), float64(dest.Y)
		var vx, vy, wx, wy float64
		maxStep := p.MaxStep

		last := start
		emitted := false

		for range maxIterations {
			dist := math.Hypot(tx-x, ty-y)
			if dist < 1 {
				break
			}

			wMag := min(p.Wind, dist)
			if dist >= p.SlowdownRadius {
				wx = wx/sqrt3 + (2*rng.Float64()-1)*wMag/sqrt5
				wy = wy/sqrt3 + (2*rng.Float64()-1)*wMag/sqrt5
			} else {
				wx /= sqrt3
				wy /= sqrt3
				if maxStep < 3 {
					maxStep = rng.Float64()*3 + 3
				} else {
					maxStep /= sqrt5
				}
			}

			vx += wx + p.Gravity*(tx-x)/dist
			vy += wy + p.Gravity*(ty-y)/dist
			if vMag := math.Hypot(vx, vy); vMag > maxStep {
				clip := maxStep/2 + rng.Float64()*maxStep/2
				vx = vx / vMag * clip
				vy = vy / vMag * clip
			}

			x += vx
			y += vy

			pt := image.Pt(int(math.RoundToEven(x)), int(math.RoundToEven(y)))
			if pt == last {
				continue
			}
			last = pt
			emitted = true
			if !yield(pt) {
				return
			}
		}

		if !emitted || last != dest {
			yield(dest)
		}
	}
}
