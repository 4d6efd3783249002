package session

import "time"

// Event is an input to Update.
type Event interface {
	isEvent()
}

// Mount starts the session. Autoplay enables the narration chain for the whole session.
type Mount struct {
	Autoplay bool
}

// Unmount ends the session. Every later event is ignored.
type Unmount struct{}

// DragEnd reports the settled horizontal offset after a drag or momentum scroll.
type DragEnd struct {
	Offset float64
}

// LiveScroll reports an offset sampled while the view is scrolling.
type LiveScroll struct {
	Offset float64
}

// GoPrev moves one page back.
type GoPrev struct{}

// GoNext moves one page forward.
type GoNext struct{}

// PlayRequested asks for narration of the current page.
type PlayRequested struct{}

// ClipReady reports that the clip requested under Token was created.
type ClipReady struct {
	Token Token
}

// ClipFailed reports that the clip requested under Token could not be created.
type ClipFailed struct {
	Token Token
	Err   error
}

// ClipFinished reports that the clip under Token played to its end.
type ClipFinished struct {
	Token Token
}

// TimerFired reports that the delay timer under Token elapsed.
type TimerFired struct {
	Token Token
}

// Resize reports a new page width.
type Resize struct {
	PageWidth float64
}

func (Mount) isEvent()         {}
func (Unmount) isEvent()       {}
func (DragEnd) isEvent()       {}
func (LiveScroll) isEvent()    {}
func (GoPrev) isEvent()        {}
func (GoNext) isEvent()        {}
func (PlayRequested) isEvent() {}
func (ClipReady) isEvent()     {}
func (ClipFailed) isEvent()    {}
func (ClipFinished) isEvent()  {}
func (TimerFired) isEvent()    {}
func (Resize) isEvent()        {}

// Command is a side effect requested by Update.
type Command interface {
	isCommand()
}

// CreateClip asks the driver to load the narration for page Index and report
// back with ClipReady or ClipFailed carrying Token.
type CreateClip struct {
	Token Token
	Index int
}

// StartClip begins playback of a created clip.
type StartClip struct {
	Token Token
}

// ReleaseClip stops and frees the clip under Token. Releasing an unknown or
// already released token is a no-op.
type ReleaseClip struct {
	Token Token
}

// ScheduleTimer arms the single auto-advance delay timer.
type ScheduleTimer struct {
	Token Token
	Delay time.Duration
}

// CancelTimer disarms the timer under Token.
type CancelTimer struct {
	Token Token
}

// ScrollTo moves the paged view so that page Index is visible.
type ScrollTo struct {
	Index    int
	Offset   float64
	Animated bool
}

func (CreateClip) isCommand()    {}
func (StartClip) isCommand()     {}
func (ReleaseClip) isCommand()   {}
func (ScheduleTimer) isCommand() {}
func (CancelTimer) isCommand()   {}
func (ScrollTo) isCommand()      {}
