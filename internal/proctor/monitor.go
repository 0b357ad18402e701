package proctor

import (
	"sync"
	"time"

	"github.com/siddharthareddy0/quiz-hosting/internal/model"
)

const (
	// exitDeadTime suppresses duplicate exit classifications from
	// near-simultaneous signals (e.g. blur right after a fullscreen change).
	exitDeadTime = 900 * time.Millisecond

	// devtoolsDeltaThreshold is the viewport-vs-outer-window delta growth, in
	// pixels, beyond which a dev-tools panel is suspected. This is a
	// heuristic with known false positives; it feeds the same exit policy as
	// the other signals but its type records the lower-confidence origin.
	devtoolsDeltaThreshold = 160
)

// Viewport carries the window geometry sampled on resize and on the periodic
// dev-tools poll.
type Viewport struct {
	InnerW, InnerH int
	OuterW, OuterH int
}

// KeyEvent is a keyboard signal as reported by the runtime.
type KeyEvent struct {
	Key   string
	Ctrl  bool
	Shift bool
	Meta  bool
}

// NavigationType values mirror the runtime's navigation entry types.
const (
	NavReload      = "reload"
	NavBackForward = "back_forward"
)

// Monitor observes environment signals during an active attempt and
// classifies deviations into violations and exit signals. It does not begin
// classifying until Start is called and stops once SetSubmitting is set.
// Signals may arrive from any goroutine; the onExit callback is invoked
// without the internal lock held, so it may call back into the monitor.
type Monitor struct {
	log    *ViolationLog
	now    func() time.Time
	onExit func(kind model.ViolationType)

	mu         sync.Mutex
	started    bool
	submitting bool
	recovering bool

	// The first fullscreen entry is tracked separately: entering fullscreen
	// for the first time never requires recovery, any later loss does.
	hasEnteredFullscreen bool

	lastExitAt        time.Time
	exitCount         int
	lastExitTimestamp *time.Time

	baselineSet   bool
	baselineWDiff int
	baselineHDiff int

	navigationSeen bool
}

// NewMonitor creates a monitor appending to log and signalling exits via
// onExit. The clock may be nil for wall time.
func NewMonitor(log *ViolationLog, now func() time.Time, onExit func(kind model.ViolationType)) *Monitor {
	if now == nil {
		now = time.Now
	}
	return &Monitor{log: log, now: now, onExit: onExit}
}

// Start enables classification. Call once the attempt has an established
// server start time.
func (m *Monitor) Start() {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
}

// SetSubmitting stops all further classification; submission is in flight or
// complete.
func (m *Monitor) SetSubmitting() {
	m.mu.Lock()
	m.submitting = true
	m.mu.Unlock()
}

// SetRecovering informs the monitor whether a recovery window is open.
// While recovering, further exits re-signal recovery but are not re-counted.
func (m *Monitor) SetRecovering(active bool) {
	m.mu.Lock()
	m.recovering = active
	m.mu.Unlock()
}

// ExitCount returns the number of counted environment exits.
func (m *Monitor) ExitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitCount
}

// SetExitCount primes the counter from a resumed server snapshot.
func (m *Monitor) SetExitCount(n int) {
	m.mu.Lock()
	m.exitCount = n
	m.mu.Unlock()
}

// LastExitTimestamp returns when the last counted exit happened, or nil.
func (m *Monitor) LastExitTimestamp() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastExitTimestamp
}

// FullscreenChange reports a fullscreen-change signal.
func (m *Monitor) FullscreenChange(active bool) {
	if active {
		m.mu.Lock()
		m.hasEnteredFullscreen = true
		m.mu.Unlock()
		return
	}
	m.classifyExit(model.ViolationFullscreenExit, map[string]any{"source": "fullscreenchange"})
}

// VisibilityChange reports a visibility-change signal.
func (m *Monitor) VisibilityChange(visible bool) {
	if visible {
		return
	}
	m.classifyExit(model.ViolationVisibilityHidden, map[string]any{"source": "visibilitychange"})
}

// WindowBlur reports a window-blur signal.
func (m *Monitor) WindowBlur() {
	m.classifyExit(model.ViolationWindowBlur, map[string]any{"source": "blur"})
}

// KeyDown classifies dev-tools and reload keyboard chords.
func (m *Monitor) KeyDown(e KeyEvent) {
	switch {
	case e.Key == "F12",
		e.Ctrl && e.Shift && (e.Key == "i" || e.Key == "I"),
		e.Ctrl && e.Shift && (e.Key == "j" || e.Key == "J"),
		e.Ctrl && e.Shift && (e.Key == "c" || e.Key == "C"):
		m.classifyExit(model.ViolationDevtoolsShortcut, map[string]any{"key": e.Key})
	case e.Key == "F5",
		(e.Ctrl || e.Meta) && (e.Key == "r" || e.Key == "R"):
		m.classifyExit(model.ViolationReloadShortcut, map[string]any{"key": e.Key})
	}
}

// ObserveViewport samples window geometry. The first observation after Start
// establishes the baseline inner-vs-outer delta; growth beyond the threshold
// on either axis is classified as a dev-tools heuristic trigger. Called both
// on resize signals and on a fixed poll interval.
func (m *Monitor) ObserveViewport(v Viewport) {
	m.mu.Lock()
	if !m.started || m.submitting {
		m.mu.Unlock()
		return
	}

	wDiff := abs(v.OuterW - v.InnerW)
	hDiff := abs(v.OuterH - v.InnerH)

	if !m.baselineSet {
		m.baselineSet = true
		m.baselineWDiff = wDiff
		m.baselineHDiff = hDiff
		m.mu.Unlock()
		return
	}

	wIncr := wDiff - m.baselineWDiff
	hIncr := hDiff - m.baselineHDiff
	if wIncr <= devtoolsDeltaThreshold && hIncr <= devtoolsDeltaThreshold {
		m.mu.Unlock()
		return
	}
	fire := m.classifyExitLocked(model.ViolationDevtoolsResize, map[string]any{
		"w_diff": wDiff, "h_diff": hDiff,
		"w_incr": wIncr, "h_incr": hIncr,
	})
	m.mu.Unlock()
	if fire {
		m.signal(model.ViolationDevtoolsResize)
	}
}

// PageLoad classifies the navigation type observed on page load. Only the
// first reload or back-forward navigation per page lifetime counts.
func (m *Monitor) PageLoad(navType string) {
	m.mu.Lock()
	if m.navigationSeen {
		m.mu.Unlock()
		return
	}
	if navType != NavReload && navType != NavBackForward {
		m.mu.Unlock()
		return
	}
	m.navigationSeen = true
	fire := m.classifyExitLocked(model.ViolationNavigation, map[string]any{"nav_type": navType})
	m.mu.Unlock()
	if fire {
		m.signal(model.ViolationNavigation)
	}
}

// Offline reports a connectivity-loss signal.
func (m *Monitor) Offline() {
	m.classifyExit(model.ViolationOffline, map[string]any{"source": "offline"})
}

// classifyExit applies the shared exit policy: guard on lifecycle state,
// honor the first-fullscreen edge case, suppress duplicates within the dead
// time, then record and signal.
func (m *Monitor) classifyExit(kind model.ViolationType, meta map[string]any) {
	m.mu.Lock()
	fire := m.classifyExitLocked(kind, meta)
	m.mu.Unlock()
	if fire {
		m.signal(kind)
	}
}

// classifyExitLocked holds the policy itself. Callers hold m.mu; the returned
// flag tells them to invoke signal after unlocking, since onExit re-enters
// the monitor.
func (m *Monitor) classifyExitLocked(kind model.ViolationType, meta map[string]any) bool {
	if !m.started || m.submitting {
		return false
	}

	// Before the first fullscreen entry an exit signals recovery (the
	// candidate must still establish the environment) but is not counted
	// against them.
	if !m.hasEnteredFullscreen {
		return true
	}

	// An open recovery window absorbs further exits: re-signal so the
	// countdown stays armed, without inflating the counter.
	if m.recovering {
		return true
	}

	now := m.now()
	if !m.lastExitAt.IsZero() && now.Sub(m.lastExitAt) < exitDeadTime {
		return false
	}
	m.lastExitAt = now

	ts := now
	m.lastExitTimestamp = &ts
	m.exitCount++
	m.log.Append(kind, meta)
	return true
}

func (m *Monitor) signal(kind model.ViolationType) {
	if m.onExit != nil {
		m.onExit(kind)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
