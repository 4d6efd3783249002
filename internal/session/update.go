package session

import "math"

// Update applies one event and returns the next state and the commands the
// driver must execute, in order.
func Update(s State, ev Event) (State, []Command) {
	if s.Closed {
		return s, nil
	}
	if s.Empty() {
		if _, ok := ev.(Unmount); ok {
			s.Closed = true
		}
		return s, nil
	}

	var cmds []Command
	switch e := ev.(type) {
	case Mount:
		if s.mounted {
			break
		}
		s.mounted = true
		if e.Autoplay {
			s.AutoplayEnabled = true
			cmds = s.play(s.CurrentIndex, cmds)
		}

	case Unmount:
		cmds = s.teardown(cmds)
		s.Pending = nil
		s.ScrollInFlight = false
		s.Closed = true

	case DragEnd:
		if i, ok := IndexForOffset(e.Offset, s.PageWidth, s.Pages); ok {
			cmds = s.setIndex(i, cmds)
		}

	case LiveScroll:
		// Programmatic auto-advance scrolls pass through intermediate pages.
		if s.ScrollInFlight {
			break
		}
		if i, ok := IndexForOffset(e.Offset, s.PageWidth, s.Pages); ok {
			cmds = s.setIndex(i, cmds)
		}

	case GoPrev:
		if s.CanGoPrev() {
			cmds = s.navigate(s.CurrentIndex-1, cmds)
		}

	case GoNext:
		if s.CanGoNext() {
			cmds = s.navigate(s.CurrentIndex+1, cmds)
		}

	case PlayRequested:
		if s.Pending != nil && s.Pending.TargetIndex == s.CurrentIndex && s.HasNarration(s.CurrentIndex) {
			cmds = s.cancelTimer(cmds)
			s.Pending = nil
			s.ScrollInFlight = false
		}
		cmds = s.play(s.CurrentIndex, cmds)

	case ClipReady:
		if e.Token == 0 {
			break
		}
		if e.Token != s.ActiveClip || s.Phase != Loading {
			// Superseded while loading.
			cmds = append(cmds, ReleaseClip{Token: e.Token})
			break
		}
		s.Phase = Playing
		cmds = append(cmds, StartClip{Token: e.Token})

	case ClipFailed:
		if e.Token == 0 || e.Token != s.ActiveClip || s.Phase != Loading {
			break
		}
		s.ActiveClip = 0
		s.Phase = Idle

	case ClipFinished:
		if e.Token == 0 || e.Token != s.ActiveClip || s.Phase != Playing {
			break
		}
		s.Phase = Finished
		cmds = s.finish(cmds)

	case TimerFired:
		if e.Token == 0 || e.Token != s.Timer {
			break
		}
		s.Timer = 0
		p := s.Pending
		if p == nil || !p.Armed || p.TargetIndex != s.CurrentIndex {
			break
		}
		s.Pending = nil
		s.ScrollInFlight = false
		cmds = s.play(s.CurrentIndex, cmds)

	case Resize:
		if e.PageWidth <= 0 || math.IsInf(e.PageWidth, 0) || math.IsNaN(e.PageWidth) || e.PageWidth == s.PageWidth {
			break
		}
		s.PageWidth = e.PageWidth
		cmds = append(cmds, ScrollTo{
			Index:  s.CurrentIndex,
			Offset: OffsetForIndex(s.CurrentIndex, s.PageWidth),
		})
	}
	return s, cmds
}

// finish moves Finished -> Idle and evaluates the autoplay chain.
func (s *State) finish(cmds []Command) []Command {
	cmds = append(cmds, ReleaseClip{Token: s.ActiveClip})
	s.ActiveClip = 0
	s.Phase = Idle

	if !s.AutoplayEnabled {
		return cmds
	}
	target := NextNarratedIndex(s.Narrated, s.PlayingIndex+1)
	if target < 0 {
		s.Pending = nil
		s.ScrollInFlight = false
		return cmds
	}
	s.Pending = &AutoAdvance{TargetIndex: target, Armed: true}
	s.ScrollInFlight = true
	return s.navigate(target, cmds)
}

// play releases any current clip and requests a new one for page i.
// Pages without narration are a no-op.
func (s *State) play(i int, cmds []Command) []Command {
	if !s.HasNarration(i) {
		return cmds
	}
	if s.ActiveClip != 0 {
		cmds = append(cmds, ReleaseClip{Token: s.ActiveClip})
	}
	s.ActiveClip = s.token()
	s.Phase = Loading
	s.PlayingIndex = i
	return append(cmds, CreateClip{Token: s.ActiveClip, Index: i})
}

// navigate scrolls the view to page i and commits the index immediately.
func (s *State) navigate(i int, cmds []Command) []Command {
	i = ClampIndex(i, s.Pages)
	cmds = append(cmds, ScrollTo{
		Index:    i,
		Offset:   OffsetForIndex(i, s.PageWidth),
		Animated: true,
	})
	return s.setIndex(i, cmds)
}

// setIndex is the single place the current page changes. Every change tears
// down the timer and any clip before the pending auto-advance is evaluated.
func (s *State) setIndex(i int, cmds []Command) []Command {
	i = ClampIndex(i, s.Pages)
	if i == s.CurrentIndex {
		return cmds
	}
	s.CurrentIndex = i
	cmds = s.teardown(cmds)

	p := s.Pending
	if p == nil {
		return cmds
	}
	if p.Armed && p.TargetIndex == i && s.HasNarration(i) {
		s.Timer = s.token()
		return append(cmds, ScheduleTimer{Token: s.Timer, Delay: s.Delay})
	}
	s.Pending = nil
	s.ScrollInFlight = false
	return cmds
}

func (s *State) teardown(cmds []Command) []Command {
	cmds = s.cancelTimer(cmds)
	if s.ActiveClip != 0 {
		cmds = append(cmds, ReleaseClip{Token: s.ActiveClip})
		s.ActiveClip = 0
	}
	s.Phase = Idle
	return cmds
}

func (s *State) cancelTimer(cmds []Command) []Command {
	if s.Timer == 0 {
		return cmds
	}
	cmds = append(cmds, CancelTimer{Token: s.Timer})
	s.Timer = 0
	return cmds
}
