// Package audiotest provides scripted audio backends for tests.
package audiotest

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/metcalfc/picbook/internal/audio"
)

// Source is an in-memory audio.Source.
type Source struct {
	Ref  string
	Data []byte
}

func (s Source) Name() string { return s.Ref }

func (s Source) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.Data)), nil
}

// Backend records every clip it creates. Sources whose name is in Fail are
// rejected with a ClipCreationError. When Gate is set, CreateClip blocks until
// a value is received from it or ctx is done.
type Backend struct {
	Fail map[string]error
	Gate chan struct{}

	mu    sync.Mutex
	clips []*Clip
	calls int
}

// CreateClip implements audio.Backend.
func (b *Backend) CreateClip(ctx context.Context, src audio.Source) (audio.Clip, error) {
	b.mu.Lock()
	b.calls++
	gate := b.Gate
	ferr, fail := b.Fail[src.Name()]
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, audio.NewClipCreationError(src.Name(), ctx.Err())
		}
	}
	if fail {
		return nil, audio.NewClipCreationError(src.Name(), ferr)
	}

	c := &Clip{Ref: src.Name(), done: make(chan struct{})}
	b.mu.Lock()
	b.clips = append(b.clips, c)
	b.mu.Unlock()
	return c, nil
}

// Clips returns the clips created so far, oldest first.
func (b *Backend) Clips() []*Clip {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Clip(nil), b.clips...)
}

// Last returns the most recently created clip, or nil.
func (b *Backend) Last() *Clip {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.clips) == 0 {
		return nil
	}
	return b.clips[len(b.clips)-1]
}

// Calls returns how many times CreateClip was called.
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Clip is a fake clip whose completion is triggered by Finish.
type Clip struct {
	Ref string

	mu       sync.Mutex
	started  int
	released int
	finished bool
	done     chan struct{}
}

func (c *Clip) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released > 0 {
		return audio.ErrReleased
	}
	c.started++
	return nil
}

func (c *Clip) Done() <-chan struct{} {
	return c.done
}

func (c *Clip) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released++
	return nil
}

// Finish simulates the end of playback. Unlike a real clip it signals even
// after release, so tests can deliver late completions. Only the first call
// has an effect.
func (c *Clip) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return
	}
	c.finished = true
	close(c.done)
}

// Started reports whether Start was called.
func (c *Clip) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started > 0
}

// Released reports whether Release was called at least once.
func (c *Clip) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released > 0
}

// ReleaseCount returns how many times Release was called.
func (c *Clip) ReleaseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}
