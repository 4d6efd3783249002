// Package session provides the reading-session state machine for a paged picture book.
//
// The package is pure: Update takes the current State and one Event and returns the
// next State together with the side effects (Commands) a driver must carry out.
// Nothing here touches audio, timers or the screen.
package session

import "time"

// DefaultAutoAdvanceDelay is how long an auto-advance waits on the target page
// before narration starts.
const DefaultAutoAdvanceDelay = 2000 * time.Millisecond

// Phase is the narration playback phase for the current page.
type Phase int

const (
	Idle Phase = iota
	Loading
	Playing
	Finished
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Finished:
		return "finished"
	}
	return "unknown"
}

// Token names one clip request or one timer within a session. Zero means none.
type Token uint64

// AutoAdvance is a scheduled, cancelable move to the next narrated page.
type AutoAdvance struct {
	TargetIndex int
	Armed       bool
}

// State holds everything a reading session knows about one mounted book.
type State struct {
	// Book shape, fixed for the life of the session.
	Pages    int
	Narrated []bool

	PageWidth float64
	Delay     time.Duration

	CurrentIndex    int
	Phase           Phase
	ActiveClip      Token
	PlayingIndex    int
	Pending         *AutoAdvance
	Timer           Token
	AutoplayEnabled bool
	ScrollInFlight  bool
	Closed          bool

	mounted   bool
	lastToken Token
}

// New creates the initial state for a book with the given number of pages.
// narrated[i] reports whether page i has a narration clip; it is padded or
// truncated to pages.
func New(pages int, narrated []bool, pageWidth float64) State {
	if pages < 0 {
		pages = 0
	}
	n := make([]bool, pages)
	copy(n, narrated)
	return State{
		Pages:     pages,
		Narrated:  n,
		PageWidth: pageWidth,
		Delay:     DefaultAutoAdvanceDelay,
	}
}

// Empty reports whether the book has no pages. An empty session never leaves
// this terminal state.
func (s State) Empty() bool {
	return s.Pages == 0
}

// IsPlaying is true iff a clip is active and has not signaled completion.
func (s State) IsPlaying() bool {
	return s.Phase == Playing && s.ActiveClip != 0
}

// CanGoPrev reports whether a previous page exists.
func (s State) CanGoPrev() bool {
	return !s.Empty() && s.CurrentIndex > 0
}

// CanGoNext reports whether a following page exists.
func (s State) CanGoNext() bool {
	return !s.Empty() && s.CurrentIndex < s.Pages-1
}

// HasNarration reports whether page i has a narration clip.
func (s State) HasNarration(i int) bool {
	return i >= 0 && i < len(s.Narrated) && s.Narrated[i]
}

func (s *State) token() Token {
	s.lastToken++
	return s.lastToken
}
