package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/siddharthareddy0/quiz-hosting/internal/model"
	"github.com/siddharthareddy0/quiz-hosting/internal/proctor"
)

func envelopeJSON(data any) []byte {
	raw, _ := json.Marshal(map[string]any{"data": data})
	return raw
}

func TestClientSessionStatus(t *testing.T) {
	examID := uuid.New()
	remaining := 1200
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/candidate/exams/"+examID.String()+"/session-status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("missing bearer token, got %q", got)
		}
		if got := r.Header.Get("X-Device-Fingerprint"); got != "fp-1" {
			t.Errorf("missing fingerprint, got %q", got)
		}
		w.Write(envelopeJSON(map[string]any{"session": model.SessionStatus{
			ExamID:           examID,
			RemainingSeconds: &remaining,
		}}))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1", "fp-1", examID)
	status, err := c.SessionStatus(context.Background())
	if err != nil {
		t.Fatalf("SessionStatus: %v", err)
	}
	if status.RemainingSeconds == nil || *status.RemainingSeconds != 1200 {
		t.Fatalf("unexpected remaining: %v", status.RemainingSeconds)
	}
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{
			"data": nil,
			"error": map[string]any{
				"code":    "DEVICE_CONFLICT",
				"message": "This exam session is active on another device.",
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1", "fp-other", uuid.New())
	_, err := c.Start(context.Background())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Code != "DEVICE_CONFLICT" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestClientFlushNoContent(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Token string `json:"token"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		gotToken = body.Token
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1", "fp-1", uuid.New())
	if err := c.Flush(context.Background(), &model.ProgressPatch{}); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if gotToken != "tok-1" {
		t.Fatalf("token must travel in the body, got %q", gotToken)
	}
}

func newTestRunner() *Runner {
	return NewRunner(New("http://127.0.0.1:0", "tok", "fp", uuid.New()), zerolog.Nop())
}

func TestRunnerExitOpensRecovery(t *testing.T) {
	r := newTestRunner()
	r.monitor.Start()

	r.FullscreenChange(true)
	r.FullscreenChange(false)

	if r.recovery.State() != proctor.StateInRecovery {
		t.Fatalf("expected recovery open, state %v", r.recovery.State())
	}
	if r.monitor.ExitCount() != 1 {
		t.Fatalf("expected 1 counted exit, got %d", r.monitor.ExitCount())
	}
}

func TestRunnerRestoreClosesRecovery(t *testing.T) {
	r := newTestRunner()
	r.monitor.Start()

	r.FullscreenChange(true)
	r.FullscreenChange(false)
	r.FullscreenChange(true)

	if r.recovery.State() != proctor.StateNormal {
		t.Fatalf("re-entering fullscreen must close recovery, state %v", r.recovery.State())
	}
}

func TestRunnerSnapshotCarriesState(t *testing.T) {
	r := newTestRunner()
	r.monitor.Start()
	r.answers = []model.Answer{{QuestionID: "q1"}, {QuestionID: "q2"}}

	r.SelectAnswer("q2", "b")
	r.GoToQuestion(1)
	r.FullscreenChange(true)
	r.FullscreenChange(false)

	patch := r.snapshot()
	if patch.Answers[1].SelectedOptionID == nil || *patch.Answers[1].SelectedOptionID != "b" {
		t.Fatalf("answer not captured: %+v", patch.Answers[1])
	}
	if patch.CurrentQuestionIndex == nil || *patch.CurrentQuestionIndex != 1 {
		t.Fatal("current index not captured")
	}
	if patch.ExamExitCount == nil || *patch.ExamExitCount != 1 {
		t.Fatal("exit count not captured")
	}
	if patch.IsInRecovery == nil || !*patch.IsInRecovery {
		t.Fatal("recovery flag not captured")
	}
	if len(patch.Violations) == 0 {
		t.Fatal("violations not captured")
	}
}

func TestRunnerSubmitsOverExitLimit(t *testing.T) {
	var submitted int
	var examID = uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/candidate/exams/"+examID.String()+"/submit" {
			submitted++
			w.Write(envelopeJSON(map[string]any{"result": model.SubmitResult{
				Submitted:   true,
				SubmittedAt: time.Now(),
				Score:       0,
				MaxScore:    2,
			}}))
			return
		}
		w.Write(envelopeJSON(map[string]any{}))
	}))
	defer srv.Close()

	r := NewRunner(New(srv.URL, "tok", "fp", examID), zerolog.Nop())
	r.monitor.Start()
	r.monitor.SetExitCount(exitLimit)
	r.FullscreenChange(true)

	// This exit pushes the count past the ceiling and must force submission
	// instead of opening another grace window.
	r.FullscreenChange(false)

	if submitted != 1 {
		t.Fatalf("expected exactly one submission, got %d", submitted)
	}
	if r.recovery.State() != proctor.StateSubmitted {
		t.Fatalf("expected terminal state, got %v", r.recovery.State())
	}
	if r.Result() == nil || !r.Result().Submitted {
		t.Fatal("result not recorded")
	}

	// Further signals must be inert.
	r.FullscreenChange(false)
	if submitted != 1 {
		t.Fatal("signals after submission must not resubmit")
	}
}

func TestRunnerSignalsFromManyGoroutines(t *testing.T) {
	// Event handlers fire from their own goroutines while the ticker loop
	// ticks the countdown and snapshots progress. Run with -race. The long
	// grace window keeps the countdown from expiring mid-test.
	r := newTestRunner()
	r.recovery = proctor.NewRecovery(1000, r.environmentRestored, r.autoSubmit)
	r.monitor.Start()
	r.mu.Lock()
	r.answers = []model.Answer{{QuestionID: "q1"}}
	r.lastSave = time.Now()
	r.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.FullscreenChange(j%2 == 0)
				r.KeyDown(proctor.KeyEvent{Key: "F12"})
				r.ObserveViewport(proctor.Viewport{InnerW: 800, InnerH: 600, OuterW: 810, OuterH: 610})
				r.SelectAnswer("q1", "a")
				r.GoToQuestion(0)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			r.recovery.Tick()
			r.snapshot()
		}
	}()
	wg.Wait()

	patch := r.snapshot()
	if patch.ExamExitCount == nil || *patch.ExamExitCount < 1 {
		t.Errorf("exit count not carried: %+v", patch.ExamExitCount)
	}
}

func TestRunnerExitCountsAfterQuietRecoveryClose(t *testing.T) {
	// The environment comes back right as the countdown reaches zero, after
	// the last restore signal was already processed. The window closes
	// without a submission, and exits after that must count again instead of
	// being absorbed as in-recovery.
	r := newTestRunner()
	now := time.Now()
	r.monitor = proctor.NewMonitor(r.vlog, func() time.Time { return now }, r.handleExit)
	r.monitor.Start()
	r.mu.Lock()
	r.lastSave = time.Now()
	r.mu.Unlock()

	r.FullscreenChange(true)
	r.FullscreenChange(false)
	if r.recovery.State() != proctor.StateInRecovery || r.monitor.ExitCount() != 1 {
		t.Fatalf("setup: state %v exits %d", r.recovery.State(), r.monitor.ExitCount())
	}

	r.setEnvOK(true)
	ctx := context.Background()
	for i := 0; i < proctor.DefaultGraceSeconds; i++ {
		r.tick(ctx)
	}
	if r.recovery.State() != proctor.StateNormal {
		t.Fatalf("expected window closed at expiry, state %v", r.recovery.State())
	}

	now = now.Add(2 * time.Second)
	r.FullscreenChange(false)
	if r.monitor.ExitCount() != 2 {
		t.Fatalf("exit after a quiet close must count, got %d", r.monitor.ExitCount())
	}
	if r.recovery.State() != proctor.StateInRecovery {
		t.Fatalf("exit after a quiet close must reopen recovery, state %v", r.recovery.State())
	}
}

func TestRunnerSaveCadence(t *testing.T) {
	var saves int
	examID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/candidate/exams/"+examID.String()+"/progress" {
			saves++
		}
		w.Write(envelopeJSON(map[string]any{"attempt": model.Attempt{}}))
	}))
	defer srv.Close()

	r := NewRunner(New(srv.URL, "tok", "fp", examID), zerolog.Nop())
	ctx := context.Background()

	// A change younger than the debounce holds the save back.
	r.markChanged()
	r.mu.Lock()
	r.lastSave = time.Now()
	r.mu.Unlock()
	r.tick(ctx)
	if saves != 0 {
		t.Fatalf("saved before the debounce settled, saves = %d", saves)
	}

	// Once the burst settles past the debounce the snapshot goes out.
	r.mu.Lock()
	r.lastChange = time.Now().Add(-saveDebounce)
	r.mu.Unlock()
	r.tick(ctx)
	if saves != 1 {
		t.Fatalf("debounced save did not fire, saves = %d", saves)
	}

	// A steady stream of changes cannot starve persistence: the periodic
	// fallback fires once the last save is old enough.
	r.markChanged()
	r.mu.Lock()
	r.lastSave = time.Now().Add(-periodicSave)
	r.mu.Unlock()
	r.tick(ctx)
	if saves != 2 {
		t.Fatalf("periodic fallback did not fire, saves = %d", saves)
	}

	// And with both timers fresh nothing goes out.
	r.markChanged()
	r.tick(ctx)
	if saves != 2 {
		t.Fatalf("save fired with debounce open and a recent save, saves = %d", saves)
	}
}
