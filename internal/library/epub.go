package library

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
	"golang.org/x/net/html"
)

// EPUBFormat imports a picture book packaged as an EPUB. Every image in the
// spine becomes a page, in reading order. Manifest items named audio-N narrate
// page N.
type EPUBFormat struct{}

func init() {
	Register(&EPUBFormat{})
}

func (f *EPUBFormat) Name() string { return "EPUB" }

func (f *EPUBFormat) Match(p string, d fs.DirEntry) bool {
	return !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".epub")
}

func (f *EPUBFormat) Load(filename string) (*Book, error) {
	rc, err := epub.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open epub: %w", err)
	}
	defer rc.Close()

	if len(rc.Rootfiles) == 0 {
		return nil, fmt.Errorf("no rootfiles found in epub")
	}
	book := rc.Rootfiles[0]

	items := make(map[string]*epub.Item, len(book.Manifest.Items))
	for i := range book.Manifest.Items {
		item := &book.Manifest.Items[i]
		items[item.HREF] = item
	}

	id := bookID(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	b := &Book{
		ID: id,
		Meta: Meta{
			Title:       strings.TrimSpace(book.Metadata.Title),
			Author:      strings.TrimSpace(book.Metadata.Creator),
			Description: strings.TrimSpace(book.Metadata.Description),
		},
		Source: filename,
	}
	if b.Title == "" {
		b.Title = id
	}

	seen := make(map[string]bool)
	for _, ref := range book.Spine.Itemrefs {
		if ref.Item == nil {
			continue
		}
		var refs []string
		if strings.HasPrefix(ref.Item.MediaType, "image/") {
			refs = []string{ref.Item.HREF}
		} else {
			data, err := readItem(ref.Item)
			if err != nil {
				continue
			}
			for _, src := range imageRefs(data) {
				refs = append(refs, path.Join(path.Dir(ref.Item.HREF), src))
			}
		}
		for _, href := range refs {
			item, ok := items[href]
			if !ok || seen[href] {
				continue
			}
			seen[href] = true
			data, err := readItem(item)
			if err != nil {
				return nil, fmt.Errorf("book %s: page %s: %w", id, href, err)
			}
			b.Pages = append(b.Pages, NewMemAsset(path.Base(href), data))
		}
	}

	b.AudioForPage = make([]Asset, len(b.Pages))
	for i := range book.Manifest.Items {
		item := &book.Manifest.Items[i]
		n, ok := audioPageNumber(item)
		if !ok || n < 1 || n > len(b.Pages) || b.AudioForPage[n-1] != nil {
			continue
		}
		data, err := readItem(item)
		if err != nil {
			return nil, fmt.Errorf("book %s: audio %s: %w", id, item.HREF, err)
		}
		b.AudioForPage[n-1] = NewMemAsset(path.Base(item.HREF), data)
	}

	b.Cover, err = epubCover(book, items)
	if err != nil {
		return nil, fmt.Errorf("book %s: cover: %w", id, err)
	}
	if b.Cover == nil && len(b.Pages) > 0 {
		b.Cover = b.Pages[0]
	}
	return b, nil
}

func readItem(item *epub.Item) ([]byte, error) {
	r, err := item.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func audioPageNumber(item *epub.Item) (int, bool) {
	if !strings.HasPrefix(item.MediaType, "audio/") && !hasExt(strings.ToLower(item.HREF), audioExts) {
		return 0, false
	}
	m := audioKeyRegex.FindStringSubmatch(path.Base(item.HREF))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}

func epubCover(book *epub.Rootfile, items map[string]*epub.Item) (Asset, error) {
	for i := range book.Manifest.Items {
		item := &book.Manifest.Items[i]
		if !strings.HasPrefix(item.MediaType, "image/") {
			continue
		}
		if !strings.Contains(strings.ToLower(item.ID), "cover") &&
			!strings.HasPrefix(strings.ToLower(path.Base(item.HREF)), "cover.") {
			continue
		}
		data, err := readItem(item)
		if err != nil {
			return nil, err
		}
		return NewMemAsset(path.Base(item.HREF), data), nil
	}
	return nil, nil
}

// imageRefs returns the image sources of an XHTML document in document order:
// <img src> and SVG <image href>/<image xlink:href>.
func imageRefs(data []byte) []string {
	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil
	}

	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "img":
				if src := attr(n, "src"); src != "" {
					out = append(out, src)
				}
			case "image":
				if href := attr(n, "href"); href != "" {
					out = append(out, href)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key || strings.HasSuffix(a.Key, ":"+key) {
			return a.Val
		}
	}
	return ""
}
