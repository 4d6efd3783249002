package library

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	coverNames = []string{"cover.jpg", "cover.png", "cover.jpeg", "cover.webp"}
	pageExts   = []string{".png", ".jpg", ".jpeg", ".webp"}
	audioExts  = []string{".mp3", ".m4a", ".aac", ".wav", ".flac"}

	pageKeyRegex  = regexp.MustCompile(`(?i)page-(\d+)`)
	audioKeyRegex = regexp.MustCompile(`(?i)audio-(\d+)`)
)

// FolderFormat loads a book from a directory holding book.json, a cover image,
// page-N images and audio-N narration clips.
type FolderFormat struct{}

func init() {
	Register(&FolderFormat{})
}

func (f *FolderFormat) Name() string { return "Folder" }

func (f *FolderFormat) Match(path string, d fs.DirEntry) bool {
	return d.IsDir()
}

func (f *FolderFormat) Load(dir string) (*Book, error) {
	if _, err := os.Stat(filepath.Join(dir, "book.json")); err != nil {
		return nil, ErrNotABook
	}
	cover := pickCover(dir)
	if cover == "" {
		return nil, ErrNotABook
	}

	id := bookID(filepath.Base(dir))
	meta, err := readMeta(filepath.Join(dir, "book.json"))
	if err != nil {
		return nil, fmt.Errorf("book %s: %w", id, err)
	}
	if meta.Title == "" {
		meta.Title = id
	}

	pages, err := listNumbered(dir, "page-", pageExts, pageKeyRegex)
	if err != nil {
		return nil, fmt.Errorf("book %s: %w", id, err)
	}
	clips, err := listNumbered(dir, "audio-", audioExts, audioKeyRegex)
	if err != nil {
		return nil, fmt.Errorf("book %s: %w", id, err)
	}

	b := &Book{
		ID:     id,
		Meta:   meta,
		Cover:  FileAsset(filepath.Join(dir, cover)),
		Source: dir,
	}
	b.Pages, b.AudioForPage = alignNarration(dir, pages, clips)
	return b, nil
}

func pickCover(dir string) string {
	for _, name := range coverNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return name
		}
	}
	return ""
}

func readMeta(path string) (Meta, error) {
	var m Meta
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return m, nil
}

type numbered struct {
	name string
	key  float64
}

// listNumbered returns files named prefix*ext, ordered by their number and
// then by name. Files without a number sort last.
func listNumbered(dir, prefix string, exts []string, keyRegex *regexp.Regexp) ([]numbered, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []numbered
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, prefix) || !hasExt(lower, exts) {
			continue
		}
		key := math.Inf(1)
		if m := keyRegex.FindStringSubmatch(name); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				key = float64(n)
			}
		}
		out = append(out, numbered{name: name, key: key})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].key != out[j].key {
			return out[i].key < out[j].key
		}
		return out[i].name < out[j].name
	})
	return out, nil
}

func hasExt(name string, exts []string) bool {
	ext := filepath.Ext(name)
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// alignNarration pairs each page-N with audio-N so the audio slice runs
// parallel to the pages.
func alignNarration(dir string, pages, clips []numbered) ([]Asset, []Asset) {
	byKey := make(map[float64]string)
	for _, c := range clips {
		if math.IsInf(c.key, 1) {
			continue
		}
		if _, dup := byKey[c.key]; !dup {
			byKey[c.key] = c.name
		}
	}

	pageAssets := make([]Asset, len(pages))
	audioAssets := make([]Asset, len(pages))
	for i, p := range pages {
		pageAssets[i] = FileAsset(filepath.Join(dir, p.name))
		if name, ok := byKey[p.key]; ok {
			audioAssets[i] = FileAsset(filepath.Join(dir, name))
		}
	}
	return pageAssets, audioAssets
}
