package vision

import (
	"context"
	"fmt"
	"image"
	"sync"
)

// DefaultConfidence is the score a template must strictly exceed to match.
const DefaultConfidence = 0.8

// Logger defines the logging interface used by the Finder.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// TemplateSource supplies decoded templates by identifier.
type TemplateSource interface {
	Load(id string) (image.Image, error)
}

// Match describes where a template was found on a snapshot.
type Match struct {
	// Index is the position of the matched identifier in the list passed to Find.
	Index int

	// Image is the matched identifier.
	Image string

	// At is the top-left corner of the match in snapshot coordinates.
	At image.Point

	// Width and Height are the template dimensions.
	Width  int
	Height int

	// Score is the peak correlation coefficient.
	Score float64
}

// Rect returns the matched region in snapshot coordinates.
func (m Match) Rect() image.Rectangle {
	return image.Rect(m.At.X, m.At.Y, m.At.X+m.Width, m.At.Y+m.Height)
}

// Finder locates the first of an ordered list of templates that appears
// on a snapshot.
//
// Thread Safety: Find is safe for concurrent use.
type Finder struct {
	source     TemplateSource
	confidence float64
	workers    int
	logger     Logger

	mu       sync.Mutex
	prepared map[string]*preparedTemplate
}

// NewFinder creates a Finder. confidence outside (0, 1] selects
// DefaultConfidence; workers <= 0 uses one goroutine per CPU.
func NewFinder(source TemplateSource, confidence float64, workers int) *Finder {
	if confidence <= 0 || confidence > 1 {
		confidence = DefaultConfidence
	}
	return &Finder{
		source:     source,
		confidence: confidence,
		workers:    workers,
		logger:     noopLogger{},
		prepared:   make(map[string]*preparedTemplate),
	}
}

// SetLogger sets the logger for the finder.
func (f *Finder) SetLogger(logger Logger) {
	if logger != nil {
		f.logger = logger
	}
}

// Confidence returns the acceptance threshold.
func (f *Finder) Confidence() float64 {
	return f.confidence
}

// Find tries templates in order and returns the first whose best score
// strictly exceeds the confidence threshold. Later templates are not
// evaluated once one matches. ok is false when none matches.
//
// A template that cannot be loaded is an error; so is cancellation of ctx.
//
// Parameters:
//   - ctx: Cancels the search between rows
//   - snapshot: Captured screen; its bounds origin is added to the match
//   - templates: Image ids in priority order
//
// Returns:
//   - Match: The first accepted template and where it was found
//   - bool: false when no template scored above the threshold
//   - error: A template load failure or ctx.Err()
func (f *Finder) Find(ctx context.Context, snapshot image.Image, templates []string) (Match, bool, error) {
	if len(templates) == 0 {
		return Match{}, false, nil
	}

	sc := newScene(snapshot)
	origin := snapshot.Bounds().Min

	for i, id := range templates {
		t, err := f.template(id)
		if err != nil {
			return Match{}, false, err
		}

		best, fits, err := sc.bestMatch(ctx, t, f.workers)
		if err != nil {
			return Match{}, false, fmt.Errorf("matching %q: %w", id, err)
		}
		if !fits {
			f.logger.Debug("template larger than snapshot", "template", id)
			continue
		}

		f.logger.Debug("template scored", "template", id, "score", best.score, "x", best.at.X, "y", best.at.Y)

		if best.score > f.confidence {
			return Match{
				Index:  i,
				Image:  id,
				At:     best.at.Add(origin),
				Width:  t.w,
				Height: t.h,
				Score:  best.score,
			}, true, nil
		}
	}
	return Match{}, false, nil
}

// template returns the prepared form of id, loading it on first use.
func (f *Finder) template(id string) (*preparedTemplate, error) {
	f.mu.Lock()
	t, ok := f.prepared[id]
	f.mu.Unlock()
	if ok {
		return t, nil
	}

	img, err := f.source.Load(id)
	if err != nil {
		return nil, err
	}
	t = prepareTemplate(img)

	f.mu.Lock()
	f.prepared[id] = t
	f.mu.Unlock()
	return t, nil
}
