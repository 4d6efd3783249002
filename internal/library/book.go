// Package library provides the read-only book registry: books scanned from a
// directory tree or imported from EPUB files, each with its page images and the
// narration clip for every page.
package library

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/metcalfc/picbook/internal/audio"
)

// Asset is an opaque reference to a page image or narration clip.
type Asset interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// FileAsset is an asset on disk.
type FileAsset string

func (f FileAsset) Name() string                 { return filepath.Base(string(f)) }
func (f FileAsset) Path() string                 { return string(f) }
func (f FileAsset) Open() (io.ReadCloser, error) { return os.Open(string(f)) }

// MemAsset is an asset held in memory, such as an EPUB entry.
type MemAsset struct {
	name string
	data []byte
}

// NewMemAsset wraps data under name.
func NewMemAsset(name string, data []byte) *MemAsset {
	return &MemAsset{name: name, data: data}
}

func (m *MemAsset) Name() string  { return m.name }
func (m *MemAsset) Bytes() []byte { return m.data }
func (m *MemAsset) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

// Meta is the descriptive part of a book, as stored in book.json.
type Meta struct {
	Title       string `json:"title"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
	AgeRange    string `json:"ageRange,omitempty"`
}

// Book is immutable once loaded. AudioForPage has the same length as Pages;
// a nil slot means the page has no narration.
type Book struct {
	ID string
	Meta
	Cover        Asset
	Pages        []Asset
	AudioForPage []Asset
	// Source is the directory or file the book was loaded from.
	Source string
}

func (b *Book) BookID() string { return b.ID }
func (b *Book) PageCount() int { return len(b.Pages) }

// NarrationFor returns the narration for page i, or nil.
func (b *Book) NarrationFor(i int) audio.Source {
	if i < 0 || i >= len(b.AudioForPage) || b.AudioForPage[i] == nil {
		return nil
	}
	return b.AudioForPage[i]
}

// NarratedPages counts pages with narration.
func (b *Book) NarratedPages() int {
	n := 0
	for _, a := range b.AudioForPage {
		if a != nil {
			n++
		}
	}
	return n
}
