//go:build gui

package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/metcalfc/picbook/internal/audio"
	"github.com/metcalfc/picbook/internal/library"
	"github.com/metcalfc/picbook/internal/logger"
	"github.com/metcalfc/picbook/internal/narration"
)

const (
	// scrollSettle is how long scrolling must pause before it counts as the
	// end of a drag or fling.
	scrollSettle = 180 * time.Millisecond
	scrollAnim   = 300 * time.Millisecond
)

// stripLayout places every page side by side at the same size.
type stripLayout struct {
	page fyne.Size
}

func (l *stripLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	return fyne.NewSize(l.page.Width*float32(len(objects)), l.page.Height)
}

func (l *stripLayout) Layout(objects []fyne.CanvasObject, _ fyne.Size) {
	for i, o := range objects {
		o.Move(fyne.NewPos(l.page.Width*float32(i), 0))
		o.Resize(l.page)
	}
}

// pager is the paged reading view for one session.
type pager struct {
	book   *library.Book
	ctrl   *narration.Controller
	log    *logger.Logger
	strip  *stripLayout
	pages  *fyne.Container
	scroll *container.Scroll

	status  *widget.Label
	prevBtn *widget.Button
	nextBtn *widget.Button
	playBtn *widget.Button

	// Main-thread state.
	animating bool
	anim      *fyne.Animation

	mu     sync.Mutex
	settle *time.Timer
	lastX  float32
}

func newPager(b *library.Book, log *logger.Logger) *pager {
	p := &pager{
		book:  b,
		log:   log,
		strip: &stripLayout{page: fyne.NewSize(800, 520)},
	}

	images := make([]fyne.CanvasObject, len(b.Pages))
	for i, a := range b.Pages {
		images[i] = pageImage(a, log)
	}
	p.pages = container.New(p.strip, images...)
	p.scroll = container.NewHScroll(p.pages)
	p.scroll.OnScrolled = p.onScrolled

	p.status = widget.NewLabel("")
	p.status.Alignment = fyne.TextAlignCenter
	p.prevBtn = widget.NewButtonWithIcon("", theme.NavigateBackIcon(), func() { p.ctrl.GoPrev() })
	p.nextBtn = widget.NewButtonWithIcon("", theme.NavigateNextIcon(), func() { p.ctrl.GoNext() })
	p.playBtn = widget.NewButtonWithIcon("Read aloud", theme.VolumeUpIcon(), func() { p.ctrl.RequestPlay() })
	return p
}

func pageImage(a library.Asset, log *logger.Logger) fyne.CanvasObject {
	if fa, ok := a.(library.FileAsset); ok {
		img := canvas.NewImageFromFile(fa.Path())
		img.FillMode = canvas.ImageFillContain
		return img
	}
	r, err := a.Open()
	if err != nil {
		log.Warn("cannot open page", "page", a.Name(), "error", err)
		return widget.NewLabel(a.Name())
	}
	defer r.Close()
	img := canvas.NewImageFromReader(r, a.Name())
	img.FillMode = canvas.ImageFillContain
	return img
}

// ScrollTo is called on the controller goroutine.
func (p *pager) ScrollTo(offset float64, animated bool) {
	fyne.Do(func() { p.scrollTo(float32(offset), animated) })
}

// Changed is called on the controller goroutine.
func (p *pager) Changed(s narration.Snapshot) {
	fyne.Do(func() { p.render(s) })
}

func (p *pager) scrollTo(x float32, animated bool) {
	if p.anim != nil {
		p.anim.Stop()
		p.anim = nil
	}
	from := p.scroll.Offset.X
	if !animated || from == x {
		p.animating = true
		p.scroll.ScrollToOffset(fyne.NewPos(x, 0))
		p.animating = false
		return
	}
	p.animating = true
	p.anim = fyne.NewAnimation(scrollAnim, func(f float32) {
		p.scroll.ScrollToOffset(fyne.NewPos(from+(x-from)*f, 0))
		if f >= 1 {
			p.animating = false
		}
	})
	p.anim.Curve = fyne.AnimationEaseInOut
	p.anim.Start()
}

// onScrolled samples user scrolling. Offsets we set ourselves are skipped.
func (p *pager) onScrolled(pos fyne.Position) {
	if p.animating || p.ctrl == nil {
		return
	}
	x := pos.X
	p.ctrl.OnLiveScroll(float64(x))

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastX = x
	if p.settle != nil {
		p.settle.Stop()
	}
	p.settle = time.AfterFunc(scrollSettle, func() {
		p.mu.Lock()
		x := p.lastX
		p.mu.Unlock()
		p.ctrl.OnDragOrMomentumEnd(float64(x))
	})
}

func (p *pager) render(s narration.Snapshot) {
	if s.Empty {
		p.status.SetText("No pages available for this book yet.")
		p.prevBtn.Disable()
		p.nextBtn.Disable()
		p.playBtn.Disable()
		return
	}

	text := fmt.Sprintf("Page %d/%d", s.CurrentIndex+1, s.Pages)
	switch {
	case s.Loading:
		text += "  …"
	case s.IsPlaying:
		text += "  ♪ reading aloud"
	case s.PendingTarget >= 0:
		text += "  turning the page…"
	}
	p.status.SetText(text)

	setEnabled(p.prevBtn, s.CanGoPrev)
	setEnabled(p.nextBtn, s.CanGoNext)
	setEnabled(p.playBtn, s.HasNarration)
}

func setEnabled(b *widget.Button, on bool) {
	if on {
		b.Enable()
	} else {
		b.Disable()
	}
}

func (p *pager) resize(size fyne.Size) {
	if size.Width <= 0 || size.Width == p.strip.page.Width {
		return
	}
	p.strip.page = size
	p.pages.Refresh()
	p.ctrl.Resize(float64(size.Width))
}

func (p *pager) content() fyne.CanvasObject {
	controls := container.NewHBox(p.prevBtn, p.playBtn, p.nextBtn)
	return container.NewBorder(
		p.status,
		container.NewCenter(controls),
		nil, nil,
		p.scroll,
	)
}

func (p *pager) close() {
	p.mu.Lock()
	if p.settle != nil {
		p.settle.Stop()
	}
	p.mu.Unlock()
	if p.ctrl != nil {
		p.ctrl.Close()
	}
}

type gui struct {
	win     fyne.Window
	lib     *library.Library
	backend audio.Backend
	log     *logger.Logger
	delay   time.Duration
	list    *widget.List
	reading *pager
	// browsing is set while the catalog is on screen.
	browsing bool
}

func (g *gui) showCatalog() {
	g.closeBook()
	g.browsing = true
	books := g.lib.Books()
	g.list = widget.NewList(
		func() int { return len(books) },
		func() fyne.CanvasObject {
			return container.NewVBox(widget.NewLabel("Title"), widget.NewLabel("Details"))
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			b := books[id]
			vbox := obj.(*fyne.Container)
			title := vbox.Objects[0].(*widget.Label)
			title.TextStyle.Bold = true
			title.SetText(b.Title)
			details := fmt.Sprintf("%d pages", b.PageCount())
			if b.Author != "" {
				details = b.Author + " · " + details
			}
			if n := b.NarratedPages(); n > 0 {
				details += fmt.Sprintf(" · ♪ %d narrated", n)
			}
			vbox.Objects[1].(*widget.Label).SetText(details)
		},
	)
	g.list.OnSelected = func(id widget.ListItemID) {
		g.showDetail(books[id])
	}

	var body fyne.CanvasObject = g.list
	if len(books) == 0 {
		body = widget.NewLabel(fmt.Sprintf("No books found in %s", g.lib.Dir()))
	}
	g.win.SetContent(container.NewBorder(
		widget.NewLabelWithStyle("Picture books", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		nil, nil, nil, body))
}

func (g *gui) showDetail(b *library.Book) {
	g.browsing = false
	title := widget.NewLabelWithStyle(b.Title, fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	info := widget.NewLabel(fmt.Sprintf("%d pages, %d narrated", b.PageCount(), b.NarratedPages()))
	items := []fyne.CanvasObject{title}
	if b.Author != "" {
		items = append(items, widget.NewLabel("by "+b.Author))
	}
	if b.AgeRange != "" {
		items = append(items, widget.NewLabel("Ages "+b.AgeRange))
	}
	if b.Description != "" {
		desc := widget.NewLabel(b.Description)
		desc.Wrapping = fyne.TextWrapWord
		items = append(items, desc)
	}
	items = append(items, info, container.NewHBox(
		widget.NewButtonWithIcon("Read", theme.DocumentIcon(), func() { g.showReader(b, false) }),
		widget.NewButtonWithIcon("Play", theme.MediaPlayIcon(), func() { g.showReader(b, true) }),
		widget.NewButtonWithIcon("Back", theme.NavigateBackIcon(), g.showCatalog),
	))

	var cover fyne.CanvasObject = widget.NewLabel("")
	if b.Cover != nil {
		img := pageImage(b.Cover, g.log)
		if ci, ok := img.(*canvas.Image); ok {
			ci.SetMinSize(fyne.NewSize(240, 240))
		}
		cover = img
	}
	g.win.SetContent(container.NewBorder(nil, nil, cover, nil, container.NewVBox(items...)))
}

func (g *gui) showReader(b *library.Book, autoplay bool) {
	g.closeBook()
	g.browsing = false
	p := newPager(b, g.log)
	g.win.SetContent(p.content())
	width := g.win.Canvas().Size().Width
	if width <= 0 {
		width = 800
	}
	p.strip.page = fyne.NewSize(width, p.strip.page.Height)
	p.ctrl = narration.New(b, g.backend,
		narration.WithLogger(g.log),
		narration.WithView(p),
		narration.WithDelay(g.delay),
		narration.WithPageWidth(float64(width)),
		narration.WithAutoplay(autoplay))
	g.reading = p
}

func (g *gui) closeBook() {
	if g.reading != nil {
		g.reading.close()
		g.reading = nil
	}
}

func main() {
	e := setup("picbook-gui")
	defer e.log.Sync()

	a := app.New()
	w := a.NewWindow("picbook")
	g := &gui{win: w, lib: e.lib, backend: e.backend, log: e.log, delay: e.cfg.AutoplayDelay.Duration}

	g.showCatalog()
	if id := e.opts.bookID; id != "" {
		if b, err := e.lib.Book(id); err == nil {
			if e.opts.autoplay {
				g.showReader(b, true)
			} else {
				g.showDetail(b)
			}
		} else {
			e.log.Warn("cannot open book", "id", id, "error", err)
		}
	}

	w.Canvas().SetOnTypedKey(func(key *fyne.KeyEvent) {
		p := g.reading
		if p == nil {
			if key.Name == fyne.KeyEscape {
				g.showCatalog()
			}
			return
		}
		switch key.Name {
		case fyne.KeyLeft:
			p.ctrl.GoPrev()
		case fyne.KeyRight:
			p.ctrl.GoNext()
		case fyne.KeySpace:
			p.ctrl.RequestPlay()
		case fyne.KeyEscape:
			g.showCatalog()
		case fyne.KeyF:
			w.SetFullScreen(!w.FullScreen())
		}
	})

	w.Resize(fyne.NewSize(800, 600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Track the reader viewport size; fyne has no resize callback.
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fyne.Do(func() {
					if p := g.reading; p != nil {
						p.resize(p.scroll.Size())
					}
				})
			}
		}
	}()

	go func() {
		err := library.Watch(ctx, e.lib.Dir(), 0, e.log, func(lib *library.Library) {
			fyne.Do(func() {
				g.lib = lib
				if g.browsing {
					g.showCatalog()
				}
			})
		})
		if err != nil {
			e.log.Warn("library watcher stopped", "error", err)
		}
	}()

	w.SetOnClosed(func() {
		cancel()
		g.closeBook()
	})

	w.ShowAndRun()
}
