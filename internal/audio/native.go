package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"go.uber.org/atomic"
)

// Mode is the process-wide output configuration.
type Mode struct {
	SampleRate int
	Buffer     time.Duration
}

// DefaultMode is 44.1 kHz with a 100 ms buffer.
var DefaultMode = Mode{SampleRate: 44100, Buffer: 100 * time.Millisecond}

var (
	modeOnce sync.Once
	modeErr  error
	modeRate beep.SampleRate
)

// InitAudioMode configures the speaker. Only the first call has any effect;
// later calls return the first result.
func InitAudioMode(m Mode) error {
	modeOnce.Do(func() {
		if m.SampleRate <= 0 {
			m.SampleRate = DefaultMode.SampleRate
		}
		if m.Buffer <= 0 {
			m.Buffer = DefaultMode.Buffer
		}
		modeRate = beep.SampleRate(m.SampleRate)
		if err := speaker.Init(modeRate, modeRate.N(m.Buffer)); err != nil {
			modeErr = fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	})
	return modeErr
}

// NativeBackend decodes narration in-process and plays it through the speaker.
type NativeBackend struct{}

// NewNativeBackend initializes the audio mode and returns a backend.
func NewNativeBackend(m Mode) (*NativeBackend, error) {
	if err := InitAudioMode(m); err != nil {
		return nil, err
	}
	return &NativeBackend{}, nil
}

// CreateClip decodes src and prepares it for playback.
func (b *NativeBackend) CreateClip(ctx context.Context, src Source) (Clip, error) {
	d, err := DecoderFor(src.Name())
	if err != nil {
		return nil, NewClipCreationError(src.Name(), err)
	}
	rc, err := src.Open()
	if err != nil {
		return nil, NewClipCreationError(src.Name(), err)
	}
	streamer, format, err := d.Decode(rc)
	if err != nil {
		rc.Close()
		return nil, NewClipCreationError(src.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		streamer.Close()
		return nil, NewClipCreationError(src.Name(), err)
	}

	var s beep.Streamer = streamer
	if format.SampleRate != modeRate {
		s = beep.Resample(4, format.SampleRate, modeRate, streamer)
	}
	return &nativeClip{
		source:   streamer,
		ctrl:     &beep.Ctrl{Streamer: s},
		done:     make(chan struct{}),
		started:  atomic.NewBool(false),
		released: atomic.NewBool(false),
	}, nil
}

type nativeClip struct {
	source   beep.StreamSeekCloser
	ctrl     *beep.Ctrl
	done     chan struct{}
	started  *atomic.Bool
	released *atomic.Bool
}

func (c *nativeClip) Start() error {
	if c.released.Load() {
		return ErrReleased
	}
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}
	speaker.Play(beep.Seq(c.ctrl, beep.Callback(c.finish)))
	return nil
}

// finish runs on the speaker goroutine when the sequence drains. A release
// empties the Ctrl, which also drains the sequence, so it is ignored here.
func (c *nativeClip) finish() {
	if c.released.Load() {
		return
	}
	close(c.done)
}

func (c *nativeClip) Done() <-chan struct{} {
	return c.done
}

func (c *nativeClip) Release() error {
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}
	speaker.Lock()
	c.ctrl.Streamer = nil
	speaker.Unlock()
	return c.source.Close()
}
