package library

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func assetNames(assets []Asset) []string {
	out := make([]string, len(assets))
	for i, a := range assets {
		if a != nil {
			out[i] = a.Name()
		}
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestScanFolderBook(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"moon/book.json":    `{"title":"Goodnight","author":"M. Brown","ageRange":"2-5"}`,
		"moon/cover.png":    "cover",
		"moon/page-10.png":  "p10",
		"moon/page-2.jpg":   "p2",
		"moon/page-1.png":   "p1",
		"moon/audio-1.mp3":  "a1",
		"moon/audio-10.m4a": "a10",
		"moon/audio-7.mp3":  "orphan",
		"moon/notes.txt":    "ignored",
	})

	lib, err := Scan(dir, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	b, err := lib.Book("moon")
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	if got, want := assetNames(b.Pages), []string{"page-1.png", "page-2.jpg", "page-10.png"}; !equalStrings(got, want) {
		t.Errorf("pages = %v, want %v", got, want)
	}
	if got, want := assetNames(b.AudioForPage), []string{"audio-1.mp3", "", "audio-10.m4a"}; !equalStrings(got, want) {
		t.Errorf("audio = %v, want %v", got, want)
	}
	if b.NarrationFor(1) != nil {
		t.Error("NarrationFor(1) should be nil for a silent page")
	}
	if b.NarratedPages() != 2 {
		t.Errorf("NarratedPages = %d, want 2", b.NarratedPages())
	}
	if b.Title != "Goodnight" || b.Author != "M. Brown" || b.AgeRange != "2-5" {
		t.Errorf("meta = %+v", b.Meta)
	}
	if b.Cover.Name() != "cover.png" {
		t.Errorf("cover = %s, want cover.png", b.Cover.Name())
	}

	r, err := b.Pages[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if data, _ := io.ReadAll(r); string(data) != "p1" {
		t.Errorf("page 1 content = %q", data)
	}
}

func TestScanSkipsNonBooks(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"zebra/book.json":   `{}`,
		"zebra/cover.jpg":   "c",
		"apple/book.json":   `{"title":"Apple"}`,
		"apple/cover.webp":  "c",
		"apple/page-1.webp": "p",
		"nocover/book.json": `{"title":"x"}`,
		"nometa/cover.png":  "c",
		".hidden/book.json": `{}`,
		".hidden/cover.png": "c",
		"images/book.json":  `{}`,
		"images/cover.png":  "c",
		"broken/book.json":  `{not json`,
		"broken/cover.png":  "c",
		"stray.txt":         "x",
	})

	lib, err := Scan(dir, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got, want := lib.IDs(), []string{"apple", "zebra"}; !equalStrings(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}

	z, _ := lib.Book("zebra")
	if z.Title != "zebra" {
		t.Errorf("title = %q, want id fallback", z.Title)
	}
	if len(z.Pages) != 0 || len(lib.Pages("zebra")) != 0 {
		t.Error("zebra should have no pages")
	}
	if m, ok := lib.Meta("apple"); !ok || m.Title != "Apple" {
		t.Errorf("Meta(apple) = %+v, %v", m, ok)
	}
}

func TestUnknownBook(t *testing.T) {
	lib, err := Scan(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Book("nope"); !errors.Is(err, ErrUnknownBook) {
		t.Errorf("err = %v, want ErrUnknownBook", err)
	}
	if lib.Pages("nope") != nil || lib.Audio("nope") != nil {
		t.Error("unknown id should have no pages or audio")
	}
	if _, ok := lib.Meta("nope"); ok {
		t.Error("Meta reported an unknown id")
	}
}

func TestScanMissingDir(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Error("expected error for missing directory")
	}
}

const (
	testContainer = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

	testOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>The Hungry Fox</dc:title>
    <dc:creator>A. Writer</dc:creator>
    <dc:description>A fox looks for lunch.</dc:description>
  </metadata>
  <manifest>
    <item id="cover-image" href="images/cover.png" media-type="image/png"/>
    <item id="p1" href="text/p1.xhtml" media-type="application/xhtml+xml"/>
    <item id="p2" href="text/p2.xhtml" media-type="application/xhtml+xml"/>
    <item id="img1" href="images/fox-1.png" media-type="image/png"/>
    <item id="img2" href="images/fox-2.png" media-type="image/png"/>
    <item id="img3" href="images/fox-3.png" media-type="image/png"/>
    <item id="a2" href="audio/audio-2.mp3" media-type="audio/mpeg"/>
    <item id="a9" href="audio/audio-9.mp3" media-type="audio/mpeg"/>
  </manifest>
  <spine>
    <itemref idref="p1"/>
    <itemref idref="p2"/>
  </spine>
</package>`

	testPage1 = `<html xmlns="http://www.w3.org/1999/xhtml"><body>
<img src="../images/fox-1.png"/></body></html>`

	testPage2 = `<html xmlns="http://www.w3.org/1999/xhtml"><body>
<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink">
<image xlink:href="../images/fox-2.png"/></svg>
<img src="../images/fox-3.png"/><img src="../images/fox-1.png"/></body></html>`
)

func writeEPUB(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	entries := []struct{ name, body string }{
		{"mimetype", "application/epub+zip"},
		{"META-INF/container.xml", testContainer},
		{"OEBPS/content.opf", testOPF},
		{"OEBPS/text/p1.xhtml", testPage1},
		{"OEBPS/text/p2.xhtml", testPage2},
		{"OEBPS/images/cover.png", "cover"},
		{"OEBPS/images/fox-1.png", "fox1"},
		{"OEBPS/images/fox-2.png", "fox2"},
		{"OEBPS/images/fox-3.png", "fox3"},
		{"OEBPS/audio/audio-2.mp3", "narration"},
		{"OEBPS/audio/audio-9.mp3", "orphan"},
	}
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, e.body); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestScanImportsEPUB(t *testing.T) {
	dir := t.TempDir()
	writeEPUB(t, filepath.Join(dir, "Hungry-Fox.epub"))

	lib, err := Scan(dir, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	b, err := lib.Book("hungry-fox")
	if err != nil {
		t.Fatalf("Book: %v (ids %v)", err, lib.IDs())
	}

	if got, want := assetNames(b.Pages), []string{"fox-1.png", "fox-2.png", "fox-3.png"}; !equalStrings(got, want) {
		t.Errorf("pages = %v, want %v", got, want)
	}
	if got, want := assetNames(b.AudioForPage), []string{"", "audio-2.mp3", ""}; !equalStrings(got, want) {
		t.Errorf("audio = %v, want %v", got, want)
	}
	if b.Title != "The Hungry Fox" || b.Author != "A. Writer" || b.Description != "A fox looks for lunch." {
		t.Errorf("meta = %+v", b.Meta)
	}
	if b.Cover == nil || b.Cover.Name() != "cover.png" {
		t.Errorf("cover = %v", b.Cover)
	}
	mem, ok := b.AudioForPage[1].(*MemAsset)
	if !ok || string(mem.Bytes()) != "narration" {
		t.Errorf("audio asset = %#v", b.AudioForPage[1])
	}
}

func TestImageRefs(t *testing.T) {
	got := imageRefs([]byte(testPage2))
	want := []string{"../images/fox-2.png", "../images/fox-3.png", "../images/fox-1.png"}
	if !equalStrings(got, want) {
		t.Errorf("imageRefs = %v, want %v", got, want)
	}
}

func TestSupportedLayouts(t *testing.T) {
	got := SupportedLayouts()
	if len(got) != 2 {
		t.Errorf("SupportedLayouts = %v", got)
	}
}

func TestWatchRescansOnChange(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	libs := make(chan *Library, 8)
	errc := make(chan error, 1)
	go func() {
		errc <- Watch(ctx, dir, 20*time.Millisecond, nil, func(l *Library) { libs <- l })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	staging := t.TempDir()
	writeFiles(t, staging, map[string]string{
		"owl/book.json": `{"title":"Owl"}`,
		"owl/cover.png": "c",
	})
	if err := os.Rename(filepath.Join(staging, "owl"), filepath.Join(dir, "owl")); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case l := <-libs:
			if _, err := l.Book("owl"); err == nil {
				cancel()
				if err := <-errc; err != nil {
					t.Errorf("Watch returned %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("watcher never reported the new book")
		}
	}
}
