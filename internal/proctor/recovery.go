package proctor

import "sync"

// State is the recovery state machine's current state.
type State int

const (
	StateNormal State = iota
	StateInRecovery
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateInRecovery:
		return "in_recovery"
	case StateSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// Forced-submission reasons recorded in the AUTO_SUBMIT violation meta.
const (
	ReasonEnvironmentExit = "EXAM_ENVIRONMENT_EXIT"
	ReasonExitLimit       = "EXAM_EXIT_LIMIT"
	ReasonTimeExpired     = "TIME_EXPIRED"
	ReasonUserConfirmed   = "USER_CONFIRMED_SUBMIT"
)

// DefaultGraceSeconds is the bounded window a candidate has to restore the
// exam environment before forced submission.
const DefaultGraceSeconds = 10

// Recovery is the grace-window state machine. The owner drives the countdown
// by calling Tick once per second from a single timer; Begin is idempotent so
// a second concurrent countdown can never start. Submitted is terminal.
// Methods may be called from any goroutine; the envRestored and submit
// callbacks run without the internal lock held, so they may call back in.
type Recovery struct {
	mu    sync.Mutex
	state State
	grace int
	left  int

	// envRestored is the race-safe environment re-check consulted immediately
	// before a countdown-expiry forced submission fires.
	envRestored func() bool

	// submit performs the forced submission. It must be best-effort: failures
	// are swallowed by the implementor and the server's idempotent submit
	// reconciles the true state later.
	submit func(reason string)
}

// NewRecovery creates a state machine with the given grace window in seconds.
func NewRecovery(graceSeconds int, envRestored func() bool, submit func(reason string)) *Recovery {
	if graceSeconds <= 0 {
		graceSeconds = DefaultGraceSeconds
	}
	return &Recovery{
		state:       StateNormal,
		grace:       graceSeconds,
		envRestored: envRestored,
		submit:      submit,
	}
}

// State returns the current state.
func (r *Recovery) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SecondsLeft returns the remaining grace seconds; zero outside recovery.
func (r *Recovery) SecondsLeft() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateInRecovery {
		return 0
	}
	return r.left
}

// Begin opens the grace window. Returns true if a new window was opened;
// false when one is already running or the attempt is submitted.
func (r *Recovery) Begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateNormal {
		return false
	}
	r.state = StateInRecovery
	r.left = r.grace
	return true
}

// Tick advances the countdown by one second. When it reaches zero the
// environment is re-checked: restored in the interim means the window closes
// without a submission, otherwise a forced submission fires exactly once.
// Returns true when this tick closed the window because the environment came
// back, so the owner can clear any recovery flags it carries.
func (r *Recovery) Tick() bool {
	r.mu.Lock()
	if r.state != StateInRecovery {
		r.mu.Unlock()
		return false
	}
	r.left--
	if r.left > 0 {
		r.mu.Unlock()
		return false
	}
	r.left = 0
	r.mu.Unlock()

	if r.envRestored != nil && r.envRestored() {
		r.mu.Lock()
		if r.state == StateInRecovery {
			r.state = StateNormal
		}
		r.mu.Unlock()
		return true
	}

	// Re-check the state before firing: Restore may have won the race while
	// the environment check ran.
	r.mu.Lock()
	if r.state != StateInRecovery {
		r.mu.Unlock()
		return false
	}
	r.state = StateSubmitted
	submit := r.submit
	r.mu.Unlock()
	if submit != nil {
		submit(ReasonEnvironmentExit)
	}
	return false
}

// Restore closes an open grace window after the environment came back.
func (r *Recovery) Restore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateInRecovery {
		return
	}
	r.state = StateNormal
	r.left = 0
}

// ForceSubmit transitions to Submitted and fires the submit callback exactly
// once. Used by the lifetime exit-count ceiling, time-budget exhaustion, and
// explicit candidate submission. Returns false if already submitted.
func (r *Recovery) ForceSubmit(reason string) bool {
	r.mu.Lock()
	if r.state == StateSubmitted {
		r.mu.Unlock()
		return false
	}
	r.state = StateSubmitted
	r.left = 0
	submit := r.submit
	r.mu.Unlock()
	if submit != nil {
		submit(reason)
	}
	return true
}
