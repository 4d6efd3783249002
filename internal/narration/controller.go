// Package narration drives a reading session: it serializes view events, audio
// callbacks and timer firings into the session state machine and carries out the
// commands it returns.
package narration

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/metcalfc/picbook/internal/audio"
	"github.com/metcalfc/picbook/internal/logger"
	"github.com/metcalfc/picbook/internal/session"
)

// Book is the part of a book the controller needs.
type Book interface {
	BookID() string
	PageCount() int
	// NarrationFor returns the narration for page i, or nil.
	NarrationFor(i int) audio.Source
}

// View receives scroll commands and change notifications. Both are called from
// the controller goroutine and must not block or call back into the Controller
// synchronously.
type View interface {
	ScrollTo(offset float64, animated bool)
	Changed(Snapshot)
}

// Snapshot is a consistent view of the session for rendering.
type Snapshot struct {
	SessionID       string
	BookID          string
	Pages           int
	CurrentIndex    int
	Empty           bool
	IsPlaying       bool
	Loading         bool
	CanGoPrev       bool
	CanGoNext       bool
	HasNarration    bool
	AutoplayEnabled bool
	// PendingTarget is the page an auto-advance is heading to, or -1.
	PendingTarget int
}

type options struct {
	clock     clock.Clock
	log       *logger.Logger
	view      View
	delay     time.Duration
	pageWidth float64
	autoplay  bool
}

// Option configures a Controller.
type Option func(*options)

// WithClock sets the clock used for the auto-advance delay.
func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option { return func(o *options) { o.log = l } }

// WithView connects the paged view.
func WithView(v View) Option { return func(o *options) { o.view = v } }

// WithDelay overrides the auto-advance delay.
func WithDelay(d time.Duration) Option { return func(o *options) { o.delay = d } }

// WithPageWidth sets the initial page width.
func WithPageWidth(w float64) Option { return func(o *options) { o.pageWidth = w } }

// WithAutoplay enters the session in autoplay mode.
func WithAutoplay(on bool) Option { return func(o *options) { o.autoplay = on } }

type envelope struct {
	ev   session.Event
	clip audio.Clip
	ack  chan struct{}
}

// Controller owns one reading session. All state lives on a single goroutine.
type Controller struct {
	id      string
	book    Book
	backend audio.Backend
	clock   clock.Clock
	log     *logger.Logger
	view    View

	events    chan envelope
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	// Owned by the run goroutine.
	state    session.State
	clips    map[session.Token]audio.Clip
	watchers map[session.Token]chan struct{}
	loading  map[session.Token]context.CancelFunc
	timers   map[session.Token]*clock.Timer

	mu   sync.RWMutex
	snap Snapshot
}

// New mounts a session for book and starts its goroutine. Call Close to unmount.
func New(book Book, backend audio.Backend, opts ...Option) *Controller {
	o := options{
		clock: clock.New(),
		log:   logger.Nop(),
		delay: session.DefaultAutoAdvanceDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}

	pages := book.PageCount()
	narrated := make([]bool, pages)
	for i := range narrated {
		narrated[i] = book.NarrationFor(i) != nil
	}
	st := session.New(pages, narrated, o.pageWidth)
	if o.delay > 0 {
		st.Delay = o.delay
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	c := &Controller{
		id:       id,
		book:     book,
		backend:  backend,
		clock:    o.clock,
		log:      o.log.With("session", id, "book", book.BookID()),
		view:     o.view,
		events:   make(chan envelope),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		state:    st,
		clips:    make(map[session.Token]audio.Clip),
		watchers: make(map[session.Token]chan struct{}),
		loading:  make(map[session.Token]context.CancelFunc),
		timers:   make(map[session.Token]*clock.Timer),
	}
	c.snap = c.snapshot()

	go c.run()
	c.log.Info("session mounted", "pages", pages, "autoplay", o.autoplay)
	c.send(session.Mount{Autoplay: o.autoplay})
	return c
}

// ID returns the session id used in logs.
func (c *Controller) ID() string { return c.id }

// GoPrev moves one page back.
func (c *Controller) GoPrev() { c.send(session.GoPrev{}) }

// GoNext moves one page forward.
func (c *Controller) GoNext() { c.send(session.GoNext{}) }

// OnDragOrMomentumEnd reports the settled scroll offset.
func (c *Controller) OnDragOrMomentumEnd(offset float64) { c.send(session.DragEnd{Offset: offset}) }

// OnLiveScroll reports an offset sampled during scrolling.
func (c *Controller) OnLiveScroll(offset float64) { c.send(session.LiveScroll{Offset: offset}) }

// RequestPlay starts narration of the current page.
func (c *Controller) RequestPlay() { c.send(session.PlayRequested{}) }

// Resize reports a new page width.
func (c *Controller) Resize(width float64) { c.send(session.Resize{PageWidth: width}) }

// Snapshot returns the state after the most recent event.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *Controller) CurrentIndex() int { return c.Snapshot().CurrentIndex }
func (c *Controller) IsPlaying() bool   { return c.Snapshot().IsPlaying }
func (c *Controller) CanGoPrev() bool   { return c.Snapshot().CanGoPrev }
func (c *Controller) CanGoNext() bool   { return c.Snapshot().CanGoNext }
func (c *Controller) Empty() bool       { return c.Snapshot().Empty }

// Close unmounts the session, releasing any clip and timer. It is safe to call
// more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.send(session.Unmount{})
		<-c.done
		c.log.Info("session unmounted")
	})
}

// send delivers ev to the run goroutine and waits until its commands ran.
func (c *Controller) send(ev session.Event) {
	ack := make(chan struct{})
	select {
	case c.events <- envelope{ev: ev, ack: ack}:
	case <-c.done:
		return
	}
	select {
	case <-ack:
	case <-c.done:
	}
}

// post delivers an asynchronous callback result without waiting.
func (c *Controller) post(env envelope) {
	select {
	case c.events <- env:
	case <-c.done:
		if env.clip != nil {
			env.clip.Release()
		}
	}
}

func (c *Controller) run() {
	defer close(c.done)
	for env := range c.events {
		c.apply(env)
		if env.ack != nil {
			close(env.ack)
		}
		if c.state.Closed {
			c.shutdown()
			return
		}
	}
}

func (c *Controller) apply(env envelope) {
	switch e := env.ev.(type) {
	case session.ClipReady:
		delete(c.loading, e.Token)
		if env.clip != nil {
			c.clips[e.Token] = env.clip
		}
	case session.ClipFailed:
		delete(c.loading, e.Token)
		if e.Token == c.state.ActiveClip {
			c.log.Warn("narration clip failed", "page", c.state.PlayingIndex, "error", e.Err)
		} else {
			c.log.Debug("superseded clip failed", "token", e.Token, "error", e.Err)
		}
	case session.ClipFinished:
		if e.Token != c.state.ActiveClip {
			c.log.Debug("stale completion ignored", "token", e.Token)
		}
	case session.TimerFired:
		delete(c.timers, e.Token)
	}

	next, cmds := session.Update(c.state, env.ev)
	c.state = next
	for _, cmd := range cmds {
		c.exec(cmd)
	}
	c.publish()
}

func (c *Controller) exec(cmd session.Command) {
	switch cmd := cmd.(type) {
	case session.CreateClip:
		c.createClip(cmd.Token, cmd.Index)

	case session.StartClip:
		clip, ok := c.clips[cmd.Token]
		if !ok {
			return
		}
		if err := clip.Start(); err != nil {
			c.log.Warn("narration start failed", "page", c.state.PlayingIndex, "error", err)
		}
		stop := make(chan struct{})
		c.watchers[cmd.Token] = stop
		go func(tok session.Token) {
			select {
			case <-clip.Done():
				c.post(envelope{ev: session.ClipFinished{Token: tok}})
			case <-stop:
			}
		}(cmd.Token)

	case session.ReleaseClip:
		c.releaseClip(cmd.Token)

	case session.ScheduleTimer:
		tok := cmd.Token
		c.timers[tok] = c.clock.AfterFunc(cmd.Delay, func() {
			c.post(envelope{ev: session.TimerFired{Token: tok}})
		})

	case session.CancelTimer:
		if t, ok := c.timers[cmd.Token]; ok {
			t.Stop()
			delete(c.timers, cmd.Token)
		}

	case session.ScrollTo:
		if c.view != nil {
			c.view.ScrollTo(cmd.Offset, cmd.Animated)
		}
	}
}

func (c *Controller) createClip(tok session.Token, index int) {
	src := c.book.NarrationFor(index)
	if src == nil {
		go c.post(envelope{ev: session.ClipFailed{Token: tok, Err: audio.ErrUnsupportedFormat}})
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.loading[tok] = cancel
	c.log.Debug("creating narration clip", "page", index, "source", src.Name(), "token", tok)

	go func() {
		defer cancel()
		clip, err := c.backend.CreateClip(ctx, src)
		if err != nil {
			c.post(envelope{ev: session.ClipFailed{Token: tok, Err: err}})
			return
		}
		c.post(envelope{ev: session.ClipReady{Token: tok}, clip: clip})
	}()
}

// releaseClip is idempotent; teardown errors are logged and dropped.
func (c *Controller) releaseClip(tok session.Token) {
	if cancel, ok := c.loading[tok]; ok {
		cancel()
		delete(c.loading, tok)
	}
	if stop, ok := c.watchers[tok]; ok {
		close(stop)
		delete(c.watchers, tok)
	}
	clip, ok := c.clips[tok]
	if !ok {
		return
	}
	delete(c.clips, tok)
	if err := clip.Release(); err != nil {
		c.log.Debug("clip release failed", "token", tok, "error", err)
	}
}

func (c *Controller) shutdown() {
	for tok, t := range c.timers {
		t.Stop()
		delete(c.timers, tok)
	}
	for tok := range c.clips {
		c.releaseClip(tok)
	}
	for tok := range c.watchers {
		c.releaseClip(tok)
	}
	c.cancel()
}

func (c *Controller) publish() {
	snap := c.snapshot()
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	if c.view != nil {
		c.view.Changed(snap)
	}
}

func (c *Controller) snapshot() Snapshot {
	s := c.state
	pending := -1
	if s.Pending != nil && s.Pending.Armed {
		pending = s.Pending.TargetIndex
	}
	return Snapshot{
		SessionID:       c.id,
		BookID:          c.book.BookID(),
		Pages:           s.Pages,
		CurrentIndex:    s.CurrentIndex,
		Empty:           s.Empty(),
		IsPlaying:       s.IsPlaying(),
		Loading:         s.Phase == session.Loading,
		CanGoPrev:       s.CanGoPrev(),
		CanGoNext:       s.CanGoNext(),
		HasNarration:    s.HasNarration(s.CurrentIndex),
		AutoplayEnabled: s.AutoplayEnabled,
		PendingTarget:   pending,
	}
}
