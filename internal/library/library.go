package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/metcalfc/picbook/internal/logger"
)

// ErrUnknownBook is returned for an id that is not in the library.
var ErrUnknownBook = errors.New("unknown book")

// Library is an immutable, id-ordered set of books.
type Library struct {
	dir   string
	ids   []string
	books map[string]*Book
}

// Scan loads every book found directly under dir. Hidden entries and the
// shared images directory are skipped, as is anything that is not a book.
// A book that fails to load is logged and left out. When two entries map to
// the same id, the first in directory order wins.
func Scan(dir string, log *logger.Logger) (*Library, error) {
	if log == nil {
		log = logger.Nop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan library: %w", err)
	}

	lib := &Library{dir: dir, books: make(map[string]*Book)}
	for _, e := range entries {
		if skipEntry(e.Name()) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		imp := importerFor(p, e)
		if imp == nil {
			continue
		}
		b, err := imp.Load(p)
		if errors.Is(err, ErrNotABook) {
			continue
		}
		if err != nil {
			log.Warn("skipping book", "path", p, "layout", imp.Name(), "error", err)
			continue
		}
		if _, dup := lib.books[b.ID]; dup {
			log.Warn("duplicate book id", "id", b.ID, "path", p)
			continue
		}
		lib.books[b.ID] = b
		lib.ids = append(lib.ids, b.ID)
	}
	sort.Strings(lib.ids)

	log.Info("library scanned", "dir", dir, "books", len(lib.ids))
	return lib, nil
}

// Dir returns the directory the library was scanned from.
func (l *Library) Dir() string { return l.dir }

// Len returns the number of books.
func (l *Library) Len() int { return len(l.ids) }

// IDs returns the book ids in order.
func (l *Library) IDs() []string {
	return append([]string(nil), l.ids...)
}

// Books returns the books in id order.
func (l *Library) Books() []*Book {
	out := make([]*Book, len(l.ids))
	for i, id := range l.ids {
		out[i] = l.books[id]
	}
	return out
}

// Book looks up a book by id.
func (l *Library) Book(id string) (*Book, error) {
	b, ok := l.books[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBook, id)
	}
	return b, nil
}

// Pages returns the page images of a book. An unknown id yields an empty list.
func (l *Library) Pages(id string) []Asset {
	if b, ok := l.books[id]; ok {
		return b.Pages
	}
	return nil
}

// Audio returns the per-page narration of a book, parallel to Pages.
func (l *Library) Audio(id string) []Asset {
	if b, ok := l.books[id]; ok {
		return b.AudioForPage
	}
	return nil
}

// Meta returns the metadata of a book.
func (l *Library) Meta(id string) (Meta, bool) {
	b, ok := l.books[id]
	if !ok {
		return Meta{}, false
	}
	return b.Meta, true
}
