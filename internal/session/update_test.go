package session

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

// narratedAt builds a narration mask for pages with audio at the given indices.
func narratedAt(pages int, idx ...int) []bool {
	n := make([]bool, pages)
	for _, i := range idx {
		n[i] = true
	}
	return n
}

// step applies ev and checks the invariants that must hold in every reachable state.
func step(t *testing.T, s State, ev Event) (State, []Command) {
	t.Helper()
	prev := s.CurrentIndex
	next, cmds := Update(s, ev)

	if next.Empty() {
		if next.CurrentIndex != 0 {
			t.Fatalf("%T: empty book with index %d", ev, next.CurrentIndex)
		}
	} else if next.CurrentIndex < 0 || next.CurrentIndex >= next.Pages {
		t.Fatalf("%T: index %d out of range [0,%d)", ev, next.CurrentIndex, next.Pages)
	}
	if next.CurrentIndex != prev {
		for _, c := range cmds {
			if _, ok := c.(CreateClip); ok {
				t.Fatalf("%T: index change created a clip: %v", ev, cmds)
			}
		}
		if next.ActiveClip != 0 || next.IsPlaying() {
			t.Fatalf("%T: clip survived page change (active=%d phase=%s)", ev, next.ActiveClip, next.Phase)
		}
	}
	if next.IsPlaying() != (next.Phase == Playing) {
		t.Fatalf("%T: IsPlaying=%v with phase %s", ev, next.IsPlaying(), next.Phase)
	}
	return next, cmds
}

func expectCmds(t *testing.T, got []Command, want ...Command) {
	t.Helper()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %#v, want %#v", got, want)
	}
}

func TestNewState(t *testing.T) {
	s := New(3, []bool{true}, 320)
	if s.Pages != 3 || len(s.Narrated) != 3 {
		t.Fatalf("New() pages=%d narrated=%d, want 3/3", s.Pages, len(s.Narrated))
	}
	if !s.HasNarration(0) || s.HasNarration(1) || s.HasNarration(5) {
		t.Errorf("HasNarration mask wrong: %v", s.Narrated)
	}
	if s.Phase != Idle || s.IsPlaying() {
		t.Errorf("New() phase = %s, want idle", s.Phase)
	}
	if s.Delay != DefaultAutoAdvanceDelay {
		t.Errorf("Delay = %v, want %v", s.Delay, DefaultAutoAdvanceDelay)
	}
	if s.CanGoPrev() || !s.CanGoNext() {
		t.Errorf("CanGoPrev=%v CanGoNext=%v at first page", s.CanGoPrev(), s.CanGoNext())
	}
}

func TestAutoplayChainSkipsSilentPages(t *testing.T) {
	s := New(5, narratedAt(5, 0, 2, 4), 100)
	var cmds []Command

	s, cmds = step(t, s, Mount{Autoplay: true})
	expectCmds(t, cmds, CreateClip{Token: 1, Index: 0})
	if s.Phase != Loading || !s.AutoplayEnabled {
		t.Fatalf("after mount: phase=%s autoplay=%v", s.Phase, s.AutoplayEnabled)
	}

	s, cmds = step(t, s, ClipReady{Token: 1})
	expectCmds(t, cmds, StartClip{Token: 1})
	if !s.IsPlaying() {
		t.Fatal("expected playing after ClipReady")
	}

	s, cmds = step(t, s, ClipFinished{Token: 1})
	expectCmds(t, cmds,
		ReleaseClip{Token: 1},
		ScrollTo{Index: 2, Offset: 200, Animated: true},
		ScheduleTimer{Token: 2, Delay: 2000 * time.Millisecond},
	)
	if s.CurrentIndex != 2 {
		t.Fatalf("auto-advance landed on %d, want 2", s.CurrentIndex)
	}
	if s.Pending == nil || s.Pending.TargetIndex != 2 || !s.Pending.Armed {
		t.Fatalf("pending = %+v, want armed target 2", s.Pending)
	}

	// Mid-animation samples must not move the index.
	s, cmds = step(t, s, LiveScroll{Offset: 100})
	expectCmds(t, cmds)
	if s.CurrentIndex != 2 {
		t.Fatalf("live scroll during auto-advance moved index to %d", s.CurrentIndex)
	}

	s, cmds = step(t, s, TimerFired{Token: 2})
	expectCmds(t, cmds, CreateClip{Token: 3, Index: 2})
	if s.Pending != nil || s.ScrollInFlight {
		t.Errorf("pending not consumed: %+v inFlight=%v", s.Pending, s.ScrollInFlight)
	}

	s, _ = step(t, s, ClipReady{Token: 3})
	s, cmds = step(t, s, ClipFinished{Token: 3})
	expectCmds(t, cmds,
		ReleaseClip{Token: 3},
		ScrollTo{Index: 4, Offset: 400, Animated: true},
		ScheduleTimer{Token: 4, Delay: 2000 * time.Millisecond},
	)

	s, cmds = step(t, s, TimerFired{Token: 4})
	expectCmds(t, cmds, CreateClip{Token: 5, Index: 4})
	s, _ = step(t, s, ClipReady{Token: 5})

	// Last narrated page: the chain ends.
	s, cmds = step(t, s, ClipFinished{Token: 5})
	expectCmds(t, cmds, ReleaseClip{Token: 5})
	if s.Pending != nil || s.ScrollInFlight || s.Timer != 0 {
		t.Errorf("chain did not terminate: pending=%+v inFlight=%v timer=%d", s.Pending, s.ScrollInFlight, s.Timer)
	}
	if s.CurrentIndex != 4 || s.Phase != Idle {
		t.Errorf("end state index=%d phase=%s, want 4/idle", s.CurrentIndex, s.Phase)
	}
}

func TestUserSwipeCancelsPendingAutoAdvance(t *testing.T) {
	s := New(5, narratedAt(5, 0, 2, 4), 100)
	s, _ = step(t, s, Mount{Autoplay: true})
	s, _ = step(t, s, ClipReady{Token: 1})
	s, _ = step(t, s, ClipFinished{Token: 1})
	if s.Timer == 0 {
		t.Fatal("expected armed timer on page 2")
	}
	timer := s.Timer

	var cmds []Command
	s, cmds = step(t, s, DragEnd{Offset: 410})
	expectCmds(t, cmds, CancelTimer{Token: timer})
	if s.CurrentIndex != 4 {
		t.Fatalf("swipe landed on %d, want 4", s.CurrentIndex)
	}
	if s.Pending != nil {
		t.Errorf("pending survived user swipe: %+v", s.Pending)
	}

	// A timer that already fired on the platform side must not start anything.
	s, cmds = step(t, s, TimerFired{Token: timer})
	expectCmds(t, cmds)
	if s.Phase != Idle {
		t.Errorf("phase = %s after stale timer, want idle", s.Phase)
	}
}

func TestStaleCompletionIgnored(t *testing.T) {
	s := New(3, narratedAt(3, 0, 1), 100)
	s, _ = step(t, s, PlayRequested{})
	s, _ = step(t, s, ClipReady{Token: 1})

	s, _ = step(t, s, GoNext{})
	before := s

	var cmds []Command
	s, cmds = step(t, s, ClipFinished{Token: 1})
	expectCmds(t, cmds)
	if !reflect.DeepEqual(before, s) {
		t.Errorf("stale completion changed state:\n got %+v\nwant %+v", s, before)
	}
}

func TestPageChangeTearsDownAudio(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
	}{
		{"go next", GoNext{}},
		{"drag end", DragEnd{Offset: 100}},
		{"live scroll", LiveScroll{Offset: 140}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(3, narratedAt(3, 0, 1, 2), 100)
			s, _ = step(t, s, PlayRequested{})
			s, _ = step(t, s, ClipReady{Token: 1})

			s, cmds := step(t, s, tt.ev)
			if s.CurrentIndex != 1 {
				t.Fatalf("index = %d, want 1", s.CurrentIndex)
			}
			found := false
			for _, c := range cmds {
				if c == (ReleaseClip{Token: 1}) {
					found = true
				}
			}
			if !found {
				t.Errorf("commands %v do not release clip 1", cmds)
			}
		})
	}
}

func TestPageChangeWhileLoading(t *testing.T) {
	s := New(3, narratedAt(3, 0), 100)
	s, _ = step(t, s, PlayRequested{})
	if s.Phase != Loading {
		t.Fatalf("phase = %s, want loading", s.Phase)
	}

	s, cmds := step(t, s, GoNext{})
	expectCmds(t, cmds,
		ScrollTo{Index: 1, Offset: 100, Animated: true},
		ReleaseClip{Token: 1},
	)

	// The clip arrives after the user left the page.
	s, cmds = step(t, s, ClipReady{Token: 1})
	expectCmds(t, cmds, ReleaseClip{Token: 1})
	if s.IsPlaying() {
		t.Error("superseded clip started playing")
	}
}

func TestPlayWithoutNarrationIsNoop(t *testing.T) {
	s := New(2, narratedAt(2, 1), 100)
	s, cmds := step(t, s, PlayRequested{})
	expectCmds(t, cmds)
	if s.Phase != Idle || s.ActiveClip != 0 {
		t.Errorf("phase=%s active=%d, want idle/none", s.Phase, s.ActiveClip)
	}

	s, cmds = step(t, s, Mount{Autoplay: true})
	expectCmds(t, cmds)
	if !s.AutoplayEnabled {
		t.Error("autoplay should be enabled even if the first page is silent")
	}
}

func TestManualPlayDoesNotEnableAutoplay(t *testing.T) {
	s := New(3, narratedAt(3, 0, 1), 100)
	s, _ = step(t, s, Mount{})
	s, _ = step(t, s, PlayRequested{})
	s, _ = step(t, s, ClipReady{Token: 1})

	s, cmds := step(t, s, ClipFinished{Token: 1})
	expectCmds(t, cmds, ReleaseClip{Token: 1})
	if s.CurrentIndex != 0 || s.Pending != nil {
		t.Errorf("manual play chained: index=%d pending=%+v", s.CurrentIndex, s.Pending)
	}

	// Mount is one-shot; a second one cannot switch autoplay on.
	s, _ = step(t, s, Mount{Autoplay: true})
	if s.AutoplayEnabled {
		t.Error("autoplay enabled after session start")
	}
}

func TestManualPlayRestartsNarration(t *testing.T) {
	s := New(1, narratedAt(1, 0), 100)
	s, _ = step(t, s, PlayRequested{})
	s, _ = step(t, s, ClipReady{Token: 1})

	s, cmds := step(t, s, PlayRequested{})
	expectCmds(t, cmds, ReleaseClip{Token: 1}, CreateClip{Token: 2, Index: 0})
	if s.Phase != Loading || s.ActiveClip != 2 {
		t.Errorf("phase=%s active=%d, want loading/2", s.Phase, s.ActiveClip)
	}
}

func TestManualPlayDuringAutoAdvanceDelay(t *testing.T) {
	s := New(3, narratedAt(3, 0, 1), 100)
	s, _ = step(t, s, Mount{Autoplay: true})
	s, _ = step(t, s, ClipReady{Token: 1})
	s, _ = step(t, s, ClipFinished{Token: 1})
	timer := s.Timer

	s, cmds := step(t, s, PlayRequested{})
	expectCmds(t, cmds, CancelTimer{Token: timer}, CreateClip{Token: 3, Index: 1})
	if s.Pending != nil {
		t.Errorf("pending not consumed by manual play: %+v", s.Pending)
	}

	_, cmds = step(t, s, TimerFired{Token: timer})
	expectCmds(t, cmds)
}

func TestClipFailureKillsChain(t *testing.T) {
	s := New(3, narratedAt(3, 0, 1, 2), 100)
	s, _ = step(t, s, Mount{Autoplay: true})
	s, _ = step(t, s, ClipReady{Token: 1})
	s, _ = step(t, s, ClipFinished{Token: 1})
	s, _ = step(t, s, TimerFired{Token: s.Timer})
	if s.Phase != Loading {
		t.Fatalf("phase = %s, want loading", s.Phase)
	}

	s, cmds := step(t, s, ClipFailed{Token: s.ActiveClip, Err: errors.New("decode")})
	expectCmds(t, cmds)
	if s.Phase != Idle || s.ActiveClip != 0 || s.Pending != nil || s.Timer != 0 {
		t.Errorf("after failure: phase=%s active=%d pending=%+v timer=%d", s.Phase, s.ActiveClip, s.Pending, s.Timer)
	}

	// The reader can still start narration by hand.
	s, cmds = step(t, s, PlayRequested{})
	if len(cmds) != 1 || s.Phase != Loading {
		t.Errorf("manual retry: cmds=%v phase=%s", cmds, s.Phase)
	}
}

func TestNavigationClamps(t *testing.T) {
	s := New(2, nil, 100)
	s, cmds := step(t, s, GoPrev{})
	expectCmds(t, cmds)

	s, _ = step(t, s, GoNext{})
	s, cmds = step(t, s, GoNext{})
	expectCmds(t, cmds)
	if s.CurrentIndex != 1 {
		t.Errorf("index = %d, want 1", s.CurrentIndex)
	}

	s, _ = step(t, s, DragEnd{Offset: 10_000})
	if s.CurrentIndex != 1 {
		t.Errorf("overscroll index = %d, want 1", s.CurrentIndex)
	}
	s, _ = step(t, s, DragEnd{Offset: -80})
	if s.CurrentIndex != 0 {
		t.Errorf("negative overscroll index = %d, want 0", s.CurrentIndex)
	}
}

func TestEmptyBookIsTerminal(t *testing.T) {
	s := New(0, nil, 100)
	events := []Event{Mount{Autoplay: true}, GoNext{}, GoPrev{}, DragEnd{Offset: 300}, PlayRequested{}, ClipReady{Token: 1}}
	for _, ev := range events {
		var cmds []Command
		s, cmds = step(t, s, ev)
		expectCmds(t, cmds)
	}
	if !s.Empty() || s.CanGoNext() || s.CanGoPrev() || s.IsPlaying() {
		t.Errorf("empty book left terminal state: %+v", s)
	}
	s, _ = step(t, s, Unmount{})
	if !s.Closed {
		t.Error("unmount did not close empty session")
	}
}

func TestUnmountReleasesEverything(t *testing.T) {
	s := New(3, narratedAt(3, 0, 1), 100)
	s, _ = step(t, s, Mount{Autoplay: true})
	s, _ = step(t, s, ClipReady{Token: 1})
	s, _ = step(t, s, ClipFinished{Token: 1})
	timer := s.Timer

	s, cmds := step(t, s, Unmount{})
	expectCmds(t, cmds, CancelTimer{Token: timer})
	if !s.Closed || s.Pending != nil {
		t.Errorf("closed=%v pending=%+v", s.Closed, s.Pending)
	}

	_, cmds = step(t, s, PlayRequested{})
	expectCmds(t, cmds)
}

func TestResizeRealignsCurrentPage(t *testing.T) {
	s := New(3, nil, 100)
	s, _ = step(t, s, GoNext{})

	s, cmds := step(t, s, Resize{PageWidth: 250})
	expectCmds(t, cmds, ScrollTo{Index: 1, Offset: 250})
	if s.PageWidth != 250 {
		t.Errorf("PageWidth = %v, want 250", s.PageWidth)
	}

	_, cmds = step(t, s, Resize{PageWidth: 0})
	expectCmds(t, cmds)
}
