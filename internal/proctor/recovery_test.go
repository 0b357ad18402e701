package proctor

import (
	"errors"
	"testing"
)

type submitSpy struct {
	calls   []string
	fail    bool
	failErr error
}

func (s *submitSpy) submit(reason string) {
	s.calls = append(s.calls, reason)
	if s.fail {
		// A failing submission is swallowed here, mirroring the best-effort
		// contract: the state machine must never observe the error.
		_ = s.failErr
	}
}

func TestRecoveryCountdownFiresExactlyOnce(t *testing.T) {
	spy := &submitSpy{}
	restored := false
	r := NewRecovery(10, func() bool { return restored }, spy.submit)

	if !r.Begin() {
		t.Fatal("Begin should open the window")
	}
	if r.State() != StateInRecovery || r.SecondsLeft() != 10 {
		t.Fatalf("state = %v left = %d, want in_recovery 10", r.State(), r.SecondsLeft())
	}

	for i := 0; i < 9; i++ {
		r.Tick()
	}
	if r.State() != StateInRecovery || r.SecondsLeft() != 1 {
		t.Fatalf("after 9 ticks: state = %v left = %d", r.State(), r.SecondsLeft())
	}
	if len(spy.calls) != 0 {
		t.Fatalf("submitted before expiry")
	}

	r.Tick()
	if r.State() != StateSubmitted {
		t.Fatalf("state after expiry = %v, want submitted", r.State())
	}
	if len(spy.calls) != 1 || spy.calls[0] != ReasonEnvironmentExit {
		t.Fatalf("submit calls = %v, want one %s", spy.calls, ReasonEnvironmentExit)
	}

	// Terminal: further ticks and force-submits are no-ops.
	r.Tick()
	if r.ForceSubmit(ReasonTimeExpired) {
		t.Error("ForceSubmit after submitted should report false")
	}
	if len(spy.calls) != 1 {
		t.Errorf("submit fired %d times, want exactly once", len(spy.calls))
	}
}

func TestRecoveryRestoredAtSecondNineCancels(t *testing.T) {
	spy := &submitSpy{}
	restored := false
	r := NewRecovery(10, func() bool { return restored }, spy.submit)

	r.Begin()
	for i := 0; i < 9; i++ {
		r.Tick()
	}
	r.Restore()

	if r.State() != StateNormal {
		t.Fatalf("state after restore = %v, want normal", r.State())
	}
	r.Tick() // countdown is gone; a stray tick must not fire
	if len(spy.calls) != 0 {
		t.Errorf("submit fired after restore")
	}
}

func TestRecoveryRaceSafeCheckBeforeFiring(t *testing.T) {
	// The environment comes back between the last tick being scheduled and
	// fired: the expiry re-check must skip the forced submission.
	spy := &submitSpy{}
	restored := false
	r := NewRecovery(3, func() bool { return restored }, spy.submit)

	r.Begin()
	r.Tick()
	r.Tick()
	restored = true
	r.Tick()

	if len(spy.calls) != 0 {
		t.Fatalf("submit fired despite restored environment")
	}
	if r.State() != StateNormal {
		t.Errorf("state = %v, want normal after interim restore", r.State())
	}
}

func TestRecoveryTickReportsQuietClose(t *testing.T) {
	// When the expiry re-check finds the environment already back, the window
	// closes without a submission, and the owner must hear about it so it can
	// drop its own recovery flags.
	spy := &submitSpy{}
	restored := false
	r := NewRecovery(2, func() bool { return restored }, spy.submit)

	r.Begin()
	if r.Tick() {
		t.Fatal("mid-countdown tick must not report a close")
	}
	restored = true
	if !r.Tick() {
		t.Fatal("expiry with a restored environment must report the close")
	}
	if r.State() != StateNormal {
		t.Fatalf("state = %v, want normal", r.State())
	}
	if len(spy.calls) != 0 {
		t.Fatalf("submit fired on a quiet close: %v", spy.calls)
	}
}

func TestRecoveryBeginIsIdempotent(t *testing.T) {
	r := NewRecovery(10, nil, nil)

	if !r.Begin() {
		t.Fatal("first Begin must open the window")
	}
	r.Tick()
	r.Tick()
	if r.Begin() {
		t.Error("second Begin must not restart the countdown")
	}
	if r.SecondsLeft() != 8 {
		t.Errorf("left = %d, want 8 (countdown not reset)", r.SecondsLeft())
	}
}

func TestRecoveryForceSubmitShortCircuits(t *testing.T) {
	spy := &submitSpy{}
	r := NewRecovery(10, func() bool { return false }, spy.submit)

	r.Begin()
	if !r.ForceSubmit(ReasonExitLimit) {
		t.Fatal("ForceSubmit from recovery should fire")
	}
	if r.State() != StateSubmitted {
		t.Fatalf("state = %v, want submitted", r.State())
	}
	if len(spy.calls) != 1 || spy.calls[0] != ReasonExitLimit {
		t.Fatalf("submit calls = %v", spy.calls)
	}
}

func TestRecoverySubmitFailureIsSwallowed(t *testing.T) {
	spy := &submitSpy{fail: true, failErr: errors.New("network down")}
	r := NewRecovery(2, func() bool { return false }, spy.submit)

	r.Begin()
	r.Tick()
	r.Tick()

	// The machine still lands in Submitted even though the callback's
	// underlying network call failed; the server reconciles later.
	if r.State() != StateSubmitted {
		t.Fatalf("state = %v, want submitted despite submit failure", r.State())
	}
}

func TestRecoveryDefaultGrace(t *testing.T) {
	r := NewRecovery(0, nil, nil)
	r.Begin()
	if r.SecondsLeft() != DefaultGraceSeconds {
		t.Errorf("left = %d, want %d", r.SecondsLeft(), DefaultGraceSeconds)
	}
}
