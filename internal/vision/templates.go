package vision

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // template formats
	_ "image/png"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nerrad567/sleepgrind/internal/script"
)

// TemplateStore resolves template identifiers to image files and caches
// the decoded images.
//
// An identifier resolves to "<identifier><ext>" relative to the store
// root. When that file does not exist, a bare name is looked up in every
// subfolder; it resolves if exactly one file has that base name.
//
// TemplateStore is safe for concurrent use.
type TemplateStore struct {
	fsys fs.FS
	ext  string

	indexOnce sync.Once
	index     map[string][]string
	indexErr  error

	mu    sync.RWMutex
	cache map[string]image.Image
}

// NewTemplateStore creates a store over fsys using the given file
// extension (for example ".jpg").
func NewTemplateStore(fsys fs.FS, ext string) *TemplateStore {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &TemplateStore{
		fsys:  fsys,
		ext:   ext,
		cache: make(map[string]image.Image),
	}
}

// OpenTemplateStore creates a store rooted at the directory dir.
func OpenTemplateStore(dir, ext string) *TemplateStore {
	return NewTemplateStore(os.DirFS(dir), ext)
}

// Resolve returns the path of the file an identifier refers to.
func (s *TemplateStore) Resolve(id string) (string, error) {
	direct := path.Clean(strings.TrimPrefix(id, "/")) + s.ext
	if !fs.ValidPath(direct) {
		return "", fmt.Errorf("%w: %q is not a valid path", ErrTemplateNotFound, id)
	}
	if _, err := fs.Stat(s.fsys, direct); err == nil {
		return direct, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking template %q: %w", id, err)
	}

	// Identifiers with a folder component are never searched for.
	if strings.Contains(id, "/") {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, direct)
	}

	index, err := s.loadIndex()
	if err != nil {
		return "", err
	}
	switch matches := index[id+s.ext]; len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, direct)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %q matches %s", ErrAmbiguousTemplate, id, strings.Join(matches, ", "))
	}
}

// Load returns the decoded template for id, reading it on first use.
func (s *TemplateStore) Load(id string) (image.Image, error) {
	s.mu.RLock()
	img, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return img, nil
	}

	p, err := s.Resolve(id)
	if err != nil {
		return nil, err
	}

	f, err := s.fsys.Open(p)
	if err != nil {
		return nil, fmt.Errorf("opening template %s: %w", p, err)
	}
	defer f.Close()

	img, _, err = image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTemplateDecode, p, err)
	}

	s.mu.Lock()
	s.cache[id] = img
	s.mu.Unlock()
	return img, nil
}

// Preflight resolves every image referenced by a Click node in g and
// returns all failures joined together.
func (s *TemplateStore) Preflight(g *script.Graph) error {
	var errs []error
	for _, id := range script.ClickImages(g) {
		if _, err := s.Resolve(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// loadIndex globs every template file once and groups them by base name.
func (s *TemplateStore) loadIndex() (map[string][]string, error) {
	s.indexOnce.Do(func() {
		matches, err := doublestar.Glob(s.fsys, "**/*"+s.ext)
		if err != nil {
			s.indexErr = fmt.Errorf("indexing templates: %w", err)
			return
		}
		s.index = make(map[string][]string, len(matches))
		for _, m := range matches {
			base := path.Base(m)
			s.index[base] = append(s.index[base], m)
		}
	})
	return s.index, s.indexErr
}
