package proctor

import (
	"sync"
	"testing"
	"time"

	"github.com/siddharthareddy0/quiz-hosting/internal/model"
)

// fakeClock advances only when told to, so dead-time windows are exact.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type exitRecorder struct {
	kinds []model.ViolationType
}

func (r *exitRecorder) record(kind model.ViolationType) {
	r.kinds = append(r.kinds, kind)
}

func newTestMonitor(clock *fakeClock) (*Monitor, *ViolationLog, *exitRecorder) {
	log := NewViolationLog(clock.Now)
	exits := &exitRecorder{}
	m := NewMonitor(log, clock.Now, exits.record)
	return m, log, exits
}

func TestMonitorIgnoresSignalsBeforeStart(t *testing.T) {
	clock := newFakeClock()
	m, log, exits := newTestMonitor(clock)

	m.FullscreenChange(false)
	m.WindowBlur()
	m.VisibilityChange(false)

	if log.Len() != 0 {
		t.Errorf("violations before start = %d, want 0", log.Len())
	}
	if len(exits.kinds) != 0 {
		t.Errorf("exit signals before start = %d, want 0", len(exits.kinds))
	}
}

func TestMonitorStopsWhileSubmitting(t *testing.T) {
	clock := newFakeClock()
	m, log, _ := newTestMonitor(clock)
	m.Start()
	m.FullscreenChange(true)
	m.SetSubmitting()

	m.FullscreenChange(false)
	m.WindowBlur()

	if log.Len() != 0 {
		t.Errorf("violations while submitting = %d, want 0", log.Len())
	}
}

func TestMonitorFirstFullscreenEntryIsNotCounted(t *testing.T) {
	clock := newFakeClock()
	m, log, exits := newTestMonitor(clock)
	m.Start()

	// No fullscreen was ever entered: an exit-like signal must still open
	// recovery but not count against the candidate.
	m.WindowBlur()
	if log.Len() != 0 {
		t.Errorf("violations before first fullscreen = %d, want 0", log.Len())
	}
	if m.ExitCount() != 0 {
		t.Errorf("exit count = %d, want 0", m.ExitCount())
	}
	if len(exits.kinds) != 1 {
		t.Fatalf("exit signals = %d, want 1 (recovery must still arm)", len(exits.kinds))
	}

	// After the first entry, a loss counts.
	m.FullscreenChange(true)
	m.FullscreenChange(false)
	if log.Len() != 1 {
		t.Errorf("violations after fullscreen loss = %d, want 1", log.Len())
	}
	if m.ExitCount() != 1 {
		t.Errorf("exit count = %d, want 1", m.ExitCount())
	}
}

func TestMonitorDeadTimeSuppressesDuplicates(t *testing.T) {
	clock := newFakeClock()
	m, log, _ := newTestMonitor(clock)
	m.Start()
	m.FullscreenChange(true)

	// Fullscreen loss immediately followed by blur: one counted exit.
	m.FullscreenChange(false)
	clock.Advance(50 * time.Millisecond)
	m.WindowBlur()

	if got := m.ExitCount(); got != 1 {
		t.Errorf("exit count = %d, want 1", got)
	}
	if log.Len() != 1 {
		t.Errorf("violations = %d, want 1", log.Len())
	}

	// Past the dead time the next exit counts again.
	clock.Advance(time.Second)
	m.WindowBlur()
	if got := m.ExitCount(); got != 2 {
		t.Errorf("exit count after dead time = %d, want 2", got)
	}
}

func TestMonitorRecoveryAbsorbsExitsWithoutCounting(t *testing.T) {
	clock := newFakeClock()
	m, log, exits := newTestMonitor(clock)
	m.Start()
	m.FullscreenChange(true)

	m.FullscreenChange(false)
	m.SetRecovering(true)

	clock.Advance(2 * time.Second)
	m.VisibilityChange(false)
	clock.Advance(2 * time.Second)
	m.WindowBlur()

	if got := m.ExitCount(); got != 1 {
		t.Errorf("exit count = %d, want 1 (recovery absorbs)", got)
	}
	if log.Len() != 1 {
		t.Errorf("violations = %d, want 1", log.Len())
	}
	// But each absorbed exit still re-signals so the countdown stays armed.
	if len(exits.kinds) != 3 {
		t.Errorf("exit signals = %d, want 3", len(exits.kinds))
	}
}

func TestMonitorKeyboardClassification(t *testing.T) {
	tests := []struct {
		name string
		e    KeyEvent
		want model.ViolationType
	}{
		{"f12", KeyEvent{Key: "F12"}, model.ViolationDevtoolsShortcut},
		{"ctrl-shift-i", KeyEvent{Key: "i", Ctrl: true, Shift: true}, model.ViolationDevtoolsShortcut},
		{"ctrl-shift-j", KeyEvent{Key: "J", Ctrl: true, Shift: true}, model.ViolationDevtoolsShortcut},
		{"ctrl-shift-c", KeyEvent{Key: "c", Ctrl: true, Shift: true}, model.ViolationDevtoolsShortcut},
		{"ctrl-r", KeyEvent{Key: "r", Ctrl: true}, model.ViolationReloadShortcut},
		{"meta-r", KeyEvent{Key: "R", Meta: true}, model.ViolationReloadShortcut},
		{"f5", KeyEvent{Key: "F5"}, model.ViolationReloadShortcut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			m, log, _ := newTestMonitor(clock)
			m.Start()
			m.FullscreenChange(true)

			m.KeyDown(tt.e)

			entries := log.Snapshot()
			if len(entries) != 1 {
				t.Fatalf("violations = %d, want 1", len(entries))
			}
			if entries[0].Type != tt.want {
				t.Errorf("type = %s, want %s", entries[0].Type, tt.want)
			}
		})
	}
}

func TestMonitorPlainKeysAreIgnored(t *testing.T) {
	clock := newFakeClock()
	m, log, _ := newTestMonitor(clock)
	m.Start()
	m.FullscreenChange(true)

	m.KeyDown(KeyEvent{Key: "a"})
	m.KeyDown(KeyEvent{Key: "i", Ctrl: true}) // no shift
	m.KeyDown(KeyEvent{Key: "r", Shift: true})

	if log.Len() != 0 {
		t.Errorf("violations = %d, want 0", log.Len())
	}
}

func TestMonitorDevtoolsViewportHeuristic(t *testing.T) {
	clock := newFakeClock()
	m, log, _ := newTestMonitor(clock)
	m.Start()
	m.FullscreenChange(true)

	// First observation establishes the baseline.
	base := Viewport{InnerW: 1920, InnerH: 1040, OuterW: 1920, OuterH: 1080}
	m.ObserveViewport(base)
	if log.Len() != 0 {
		t.Fatalf("baseline observation logged a violation")
	}

	// Growth below the threshold: mobile chrome jitter, not dev-tools.
	m.ObserveViewport(Viewport{InnerW: 1920, InnerH: 980, OuterW: 1920, OuterH: 1080})
	if log.Len() != 0 {
		t.Errorf("sub-threshold delta logged a violation")
	}

	// Growth beyond the threshold on the height axis.
	m.ObserveViewport(Viewport{InnerW: 1920, InnerH: 700, OuterW: 1920, OuterH: 1080})
	entries := log.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("violations = %d, want 1", len(entries))
	}
	if entries[0].Type != model.ViolationDevtoolsResize {
		t.Errorf("type = %s, want %s", entries[0].Type, model.ViolationDevtoolsResize)
	}
}

func TestMonitorPageLoadNavigation(t *testing.T) {
	clock := newFakeClock()
	m, log, _ := newTestMonitor(clock)
	m.Start()
	m.FullscreenChange(true)

	m.PageLoad("navigate")
	if log.Len() != 0 {
		t.Errorf("plain navigation logged a violation")
	}

	m.PageLoad(NavReload)
	if log.Len() != 1 {
		t.Fatalf("violations = %d, want 1", log.Len())
	}

	// Only the first reload per page lifetime counts.
	clock.Advance(5 * time.Second)
	m.PageLoad(NavBackForward)
	if log.Len() != 1 {
		t.Errorf("violations = %d, want 1 (navigation already counted)", log.Len())
	}
}

func TestMonitorLastExitTimestamp(t *testing.T) {
	clock := newFakeClock()
	m, _, _ := newTestMonitor(clock)
	m.Start()
	m.FullscreenChange(true)

	if m.LastExitTimestamp() != nil {
		t.Fatalf("last exit before any exit should be nil")
	}

	m.FullscreenChange(false)
	got := m.LastExitTimestamp()
	if got == nil || !got.Equal(clock.Now()) {
		t.Errorf("last exit = %v, want %v", got, clock.Now())
	}
}

func TestMonitorSignalsFromManyGoroutines(t *testing.T) {
	// Signals arrive from event-handler goroutines while the owner polls the
	// counters from its ticker. Run with -race.
	log := NewViolationLog(nil)
	m := NewMonitor(log, nil, nil)
	m.Start()
	m.FullscreenChange(true)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.FullscreenChange(j%2 == 0)
				m.KeyDown(KeyEvent{Key: "F12"})
				m.ObserveViewport(Viewport{InnerW: 800, InnerH: 600, OuterW: 810, OuterH: 610})
				m.ExitCount()
				m.LastExitTimestamp()
			}
		}()
	}
	wg.Wait()

	if m.ExitCount() < 1 {
		t.Errorf("exit count = %d, want at least one counted exit", m.ExitCount())
	}
}
