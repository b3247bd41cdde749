package actions

import (
	"context"
	"errors"
	"image"
	"math/rand/v2"
	"testing"

	"github.com/nerrad567/sleepgrind/internal/infrastructure/config"
	"github.com/nerrad567/sleepgrind/internal/motion"
)

type fakeScreen struct {
	w, h int
	err  error
}

func (f fakeScreen) Capture(context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, f.w, f.h)), f.err
}

func (f fakeScreen) Size(context.Context) (int, int, error) {
	return f.w, f.h, f.err
}

type dragPointer struct {
	pos     image.Point
	pressAt *image.Point
	release *image.Point
	moves   int
}

func (d *dragPointer) MoveTo(_ context.Context, p image.Point) error {
	d.pos = p
	d.moves++
	return nil
}

func (d *dragPointer) Press(context.Context) error {
	p := d.pos
	d.pressAt = &p
	return nil
}

func (d *dragPointer) Release(context.Context) error {
	p := d.pos
	d.release = &p
	return nil
}

func (d *dragPointer) Position(context.Context) (image.Point, error) { return d.pos, nil }

func newGestures(seed uint64, screen fakeScreen, ptr *dragPointer) Gestures {
	return Gestures{
		Screen:  screen,
		Pointer: ptr,
		Motion:  motion.NewSynthesizer(config.MotionConfig{}, rand.New(rand.NewPCG(seed, 1))),
		Scroll:  motion.Params{Gravity: 9, Wind: 3, MaxStep: 30, SlowdownRadius: 25},
	}
}

func TestScrollDown(t *testing.T) {
	const w, h = 1920, 1080
	tolX, tolY := w/38, h/38

	for seed := range uint64(25) {
		ptr := &dragPointer{}
		r := NewRegistry()
		if err := RegisterBuiltins(r, newGestures(seed, fakeScreen{w: w, h: h}, ptr)); err != nil {
			t.Fatalf("RegisterBuiltins() error = %v", err)
		}
		fn, ok := r.Lookup(ScrollDown)
		if !ok {
			t.Fatal("scroll_down not registered")
		}
		if err := fn(context.Background()); err != nil {
			t.Fatalf("scroll_down error = %v", err)
		}

		if ptr.pressAt == nil || ptr.release == nil {
			t.Fatal("scroll_down did not press and release")
		}
		start, end := *ptr.pressAt, *ptr.release

		if start.X < w/2-tolX || start.X >= w/2+tolX || start.Y < h*3/4-tolY || start.Y >= h*3/4+tolY {
			t.Errorf("seed %d: drag started at %v, want near (%d,%d)", seed, start, w/2, h*3/4)
		}
		if end.X < w/2-tolX || end.X >= w/2+tolX || end.Y < h/3-tolY || end.Y >= h/3+tolY {
			t.Errorf("seed %d: drag ended at %v, want near (%d,%d)", seed, end, w/2, h/3)
		}
		if ptr.moves < 3 {
			t.Errorf("seed %d: drag made %d moves, want a trajectory", seed, ptr.moves)
		}
	}
}

func TestScrollUp(t *testing.T) {
	const w, h = 800, 600
	ptr := &dragPointer{}
	r := NewRegistry()
	if err := RegisterBuiltins(r, newGestures(3, fakeScreen{w: w, h: h}, ptr)); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}
	fn, _ := r.Lookup(ScrollUp)
	if err := fn(context.Background()); err != nil {
		t.Fatalf("scroll_up error = %v", err)
	}
	if ptr.pressAt.Y >= ptr.release.Y {
		t.Errorf("scroll_up dragged from y=%d to y=%d, want downward drag", ptr.pressAt.Y, ptr.release.Y)
	}
}

func TestScroll_SizeError(t *testing.T) {
	ptr := &dragPointer{}
	g := newGestures(1, fakeScreen{err: errors.New("no display")}, ptr)
	if err := g.scrollDown(context.Background()); err == nil {
		t.Error("scrollDown() with failing screen succeeded")
	}
	if ptr.pressAt != nil {
		t.Error("button pressed despite screen error")
	}
}
