// Package proctor implements the candidate-side exam integrity core: an
// append-only violation recorder, an environment monitor that classifies
// runtime deviations, and the grace-window recovery state machine. The
// package holds no ambient state; every component is an explicit struct with
// an injected clock so the whole policy is testable without a browser.
package proctor

import (
	"sync"
	"time"

	"github.com/siddharthareddy0/quiz-hosting/internal/model"
)

// ViolationLog is an append-only log of typed proctoring events. Entries are
// immutable once appended; duplicates and out-of-order appends are harmless.
type ViolationLog struct {
	mu      sync.Mutex
	now     func() time.Time
	entries []model.Violation
}

// NewViolationLog creates an empty log stamping entries with the given clock.
func NewViolationLog(now func() time.Time) *ViolationLog {
	if now == nil {
		now = time.Now
	}
	return &ViolationLog{now: now}
}

// Append records a violation of the given type at the current time.
func (l *ViolationLog) Append(t model.ViolationType, meta map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, model.Violation{Type: t, At: l.now(), Meta: meta})
}

// Load replaces the log contents with a server-provided snapshot. Used when
// resuming an attempt after a reload.
func (l *ViolationLog) Load(entries []model.Violation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries[:0], entries...)
}

// Snapshot returns a copy of all recorded violations in append order.
func (l *ViolationLog) Snapshot() []model.Violation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Violation, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded violations.
func (l *ViolationLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
