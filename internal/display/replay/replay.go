// Package replay implements display.Display offline. Screens come from a
// directory of recorded frames and pointer input is recorded instead of
// injected, which makes scripts testable without a live target.
//
// The current frame advances each time the button is released, so a
// recording taken after every click lines up with the script's steps.
// The last frame is held once the recording runs out.
package replay

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // frame decoding
	_ "image/png"  // frame decoding
	"io/fs"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nerrad567/sleepgrind/internal/infrastructure/config"
)

// ErrNoFrames is returned when the frame pattern matches nothing.
var ErrNoFrames = errors.New("replay: no frames")

// Logger defines the logging interface used by the replay backend.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// EventKind names a recorded pointer event.
type EventKind string

// Pointer events.
const (
	EventMove    EventKind = "move"
	EventPress   EventKind = "press"
	EventRelease EventKind = "release"
)

// Event is one recorded pointer call.
type Event struct {
	Kind EventKind   `json:"kind"`
	At   image.Point `json:"at"`
	Time time.Time   `json:"time"`
}

// Recorder is a display.Pointer that records input without delivering it.
// Moves are logged at debug level only when they end a gesture, since a
// single trajectory produces dozens of them.
//
// Thread Safety: all methods are safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	pos       image.Point
	events    []Event
	onRelease func()
	logger    Logger
}

// NewRecorder creates a Recorder. logger may be nil.
func NewRecorder(logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{logger: logger}
}

// MoveTo records a move to p.
func (r *Recorder) MoveTo(_ context.Context, p image.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = p
	r.record(EventMove)
	return nil
}

// Press records a button press at the current position.
func (r *Recorder) Press(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(EventPress)
	r.logger.Debug("pointer press", "x", r.pos.X, "y", r.pos.Y)
	return nil
}

// Release records a button release at the current position.
func (r *Recorder) Release(context.Context) error {
	r.mu.Lock()
	r.record(EventRelease)
	r.logger.Debug("pointer release", "x", r.pos.X, "y", r.pos.Y)
	hook := r.onRelease
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// Position returns the last recorded position.
func (r *Recorder) Position(context.Context) (image.Point, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos, nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Presses returns the positions of recorded presses in order.
func (r *Recorder) Presses() []image.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []image.Point
	for _, e := range r.events {
		if e.Kind == EventPress {
			out = append(out, e.At)
		}
	}
	return out
}

// record appends an event. The caller must hold mu.
func (r *Recorder) record(kind EventKind) {
	r.events = append(r.events, Event{Kind: kind, At: r.pos, Time: time.Now()})
}

// Replay serves recorded frames and records pointer input.
//
// Thread Safety: all methods are safe for concurrent use.
type Replay struct {
	*Recorder

	fsys   fs.FS
	frames []string

	mu      sync.Mutex
	current int
	cache   map[int]image.Image
}

// Open indexes the frames under cfg.FramesDir matching cfg.Pattern.
func Open(cfg config.ReplayDisplayConfig, logger Logger) (*Replay, error) {
	return New(os.DirFS(cfg.FramesDir), cfg.Pattern, logger)
}

// New indexes the frames in fsys matching pattern. Frames are served in
// lexical path order.
//
// Parameters:
//   - fsys: Filesystem holding the frames
//   - pattern: doublestar glob selecting frame files
//   - logger: Receives one debug line per served frame; may be nil
//
// Returns:
//   - *Replay: Screen and pointer serving the frames in order
//   - error: ErrNoFrames if nothing matches, or a glob error
func New(fsys fs.FS, pattern string, logger Logger) (*Replay, error) {
	if pattern == "" {
		pattern = "**/*.png"
	}
	frames, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("listing frames %q: %w", pattern, err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w matching %q", ErrNoFrames, pattern)
	}
	slices.Sort(frames)

	r := &Replay{
		Recorder: NewRecorder(logger),
		fsys:     fsys,
		frames:   frames,
		cache:    make(map[int]image.Image),
	}
	r.Recorder.onRelease = r.advance
	return r, nil
}

// Frames returns the indexed frame paths in serving order.
func (r *Replay) Frames() []string {
	return slices.Clone(r.frames)
}

// Current returns the index of the frame Capture will serve.
func (r *Replay) Current() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Capture returns the current frame.
func (r *Replay) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame(r.current)
}

// Size returns the size of the first frame.
func (r *Replay) Size(context.Context) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, err := r.frame(0)
	if err != nil {
		return 0, 0, err
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

// Close does nothing; frames are read on demand.
func (r *Replay) Close() error {
	return nil
}

func (r *Replay) advance() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current < len(r.frames)-1 {
		r.current++
		r.Recorder.logger.Debug("replay frame advanced", "frame", r.frames[r.current])
	}
}

// frame decodes frame i, caching the result. The caller must hold mu.
func (r *Replay) frame(i int) (image.Image, error) {
	if img, ok := r.cache[i]; ok {
		return img, nil
	}
	f, err := r.fsys.Open(r.frames[i])
	if err != nil {
		return nil, fmt.Errorf("opening frame %s: %w", r.frames[i], err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding frame %s: %w", r.frames[i], err)
	}
	r.cache[i] = img
	return img, nil
}
