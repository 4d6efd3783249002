package library

import (
	"errors"
	"io/fs"
	"strings"
)

// ErrNotABook is returned by an importer for an entry that is not a book.
var ErrNotABook = errors.New("not a book")

// Importer loads books of one layout.
type Importer interface {
	Name() string
	Match(path string, d fs.DirEntry) bool
	Load(path string) (*Book, error)
}

var importers []Importer

// Register adds an importer to the registry.
func Register(i Importer) {
	importers = append(importers, i)
}

// importerFor returns the first registered importer matching the entry.
func importerFor(path string, d fs.DirEntry) Importer {
	for _, i := range importers {
		if i.Match(path, d) {
			return i
		}
	}
	return nil
}

// SupportedLayouts returns the names of registered importers.
func SupportedLayouts() []string {
	var out []string
	for _, i := range importers {
		out = append(out, i.Name())
	}
	return out
}

// bookID derives an id from a file or directory name.
func bookID(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
