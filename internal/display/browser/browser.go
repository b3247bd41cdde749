// Package browser implements display.Display on a Chrome tab driven over
// the DevTools protocol. Screenshots come from the tab's viewport and
// pointer input is dispatched as synthetic mouse events, so the screen
// and input coordinate spaces are the same.
package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"github.com/nerrad567/sleepgrind/internal/infrastructure/config"
)

// ErrClosed is returned by operations on a closed Browser.
var ErrClosed = errors.New("browser: closed")

// Browser drives one Chrome tab.
//
// Thread Safety: all methods are safe for concurrent use. Input events
// are serialized so the tracked cursor position matches what the page saw.
type Browser struct {
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	width       int
	height      int

	closed atomic.Bool

	mu      sync.Mutex
	pos     image.Point
	pressed bool
}

// Open launches Chrome, sizes the viewport and navigates to cfg.URL.
//
// The browser outlives ctx; call Close to shut it down.
//
// Parameters:
//   - ctx: Bounds startup and the first navigation
//   - cfg: Chrome binary, flags, viewport and start URL
//
// Returns:
//   - *Browser: Ready screen and pointer backed by one tab
//   - error: If Chrome cannot start or the page cannot load
func Open(ctx context.Context, cfg config.BrowserConfig) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.WindowSize(cfg.Width, cfg.Height),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tab, cancelTab := chromedp.NewContext(allocCtx)

	b := &Browser{
		tab:         tab,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		width:       cfg.Width,
		height:      cfg.Height,
	}

	if err := b.start(ctx); err != nil {
		b.shutdown()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	err := b.run(ctx,
		chromedp.EmulateViewport(int64(cfg.Width), int64(cfg.Height)),
		chromedp.Navigate(cfg.URL),
	)
	if err != nil {
		b.shutdown()
		return nil, fmt.Errorf("opening %s: %w", cfg.URL, err)
	}
	return b, nil
}

// start launches the browser process. The first Run on a chromedp context
// allocates the browser with that context's lifetime, so it must be the
// tab context itself. ctx only bounds the wait.
func (b *Browser) start(ctx context.Context) error {
	stop := context.AfterFunc(ctx, b.shutdown)
	defer stop()

	if err := chromedp.Run(b.tab); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Capture returns a PNG screenshot of the viewport, decoded.
func (b *Browser) Capture(ctx context.Context) (image.Image, error) {
	var buf []byte
	if err := b.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decoding screenshot: %w", err)
	}
	return img, nil
}

// Size returns the configured viewport size.
func (b *Browser) Size(context.Context) (int, int, error) {
	return b.width, b.height, nil
}

// MoveTo dispatches a mouse move to p, carrying the button state.
func (b *Browser) MoveTo(ctx context.Context, p image.Point) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ev := input.DispatchMouseEvent(input.MouseMoved, float64(p.X), float64(p.Y))
	if b.pressed {
		ev = ev.WithButton(input.Left).WithButtons(1)
	}
	if err := b.dispatch(ctx, ev); err != nil {
		return err
	}
	b.pos = p
	return nil
}

// Press pushes the left button down at the current position.
func (b *Browser) Press(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ev := input.DispatchMouseEvent(input.MousePressed, float64(b.pos.X), float64(b.pos.Y)).
		WithButton(input.Left).
		WithButtons(1).
		WithClickCount(1)
	if err := b.dispatch(ctx, ev); err != nil {
		return err
	}
	b.pressed = true
	return nil
}

// Release lets the left button up at the current position.
func (b *Browser) Release(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ev := input.DispatchMouseEvent(input.MouseReleased, float64(b.pos.X), float64(b.pos.Y)).
		WithButton(input.Left).
		WithClickCount(1)
	if err := b.dispatch(ctx, ev); err != nil {
		return err
	}
	b.pressed = false
	return nil
}

// Position returns the last position a move was dispatched to. Pages
// cannot report the real cursor, so the tab starts at the origin.
func (b *Browser) Position(context.Context) (image.Point, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos, nil
}

// Close shuts the tab and the browser process down.
func (b *Browser) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.shutdown()
	return nil
}

func (b *Browser) shutdown() {
	b.cancelTab()
	b.cancelAlloc()
}

func (b *Browser) dispatch(ctx context.Context, ev *input.DispatchMouseEventParams) error {
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return ev.Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("dispatching %s: %w", ev.Type, err)
	}
	return nil
}

// run executes actions on the started tab, aborting them when ctx is done.
// Cancelling a context derived from the tab stops the actions without
// closing the tab.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	if b.closed.Load() {
		return ErrClosed
	}
	runCtx, cancel := context.WithCancel(b.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
