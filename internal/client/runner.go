package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/siddharthareddy0/quiz-hosting/internal/model"
	"github.com/siddharthareddy0/quiz-hosting/internal/proctor"
)

const (
	// exitLimit is the ceiling on counted environment exits. Crossing it
	// forces submission instead of offering another recovery window.
	exitLimit = 5

	// saveDebounce delays a save after a burst of changes so rapid answer
	// flips coalesce into one request.
	saveDebounce = 350 * time.Millisecond

	// periodicSave is the fallback interval: even while changes keep arriving
	// fast enough to hold the debounce open, a snapshot goes out at least
	// this often.
	periodicSave = 6 * time.Second
)

// Runner drives one candidate session end to end: it feeds environment
// signals to the monitor, runs the recovery countdown, debounces progress
// saves, and performs the final submission. Signal methods are safe to call
// from any goroutine; Run owns the clock.
type Runner struct {
	client *Client
	log    zerolog.Logger

	vlog     *proctor.ViolationLog
	monitor  *proctor.Monitor
	recovery *proctor.Recovery

	mu         sync.Mutex
	answers    []model.Answer
	current    int
	timed      bool
	remaining  int
	started    time.Time
	changed    bool
	lastChange time.Time
	lastSave   time.Time
	envOK      bool
	submitted  bool
	result     *model.SubmitResult

	done chan struct{}
}

// NewRunner creates a runner over an SDK client.
func NewRunner(c *Client, log zerolog.Logger) *Runner {
	r := &Runner{
		client: c,
		log:    log.With().Str("component", "runner").Logger(),
		vlog:   proctor.NewViolationLog(nil),
		envOK:  true,
		done:   make(chan struct{}),
	}
	r.monitor = proctor.NewMonitor(r.vlog, nil, r.handleExit)
	r.recovery = proctor.NewRecovery(proctor.DefaultGraceSeconds, r.environmentRestored, r.autoSubmit)
	return r
}

// Result returns the submission result once Run has finished.
func (r *Runner) Result() *model.SubmitResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Run resumes or starts the session and blocks until submission or context
// cancellation. On cancellation it flushes a final snapshot over the beacon
// route before returning.
func (r *Runner) Run(ctx context.Context) error {
	status, err := r.client.SessionStatus(ctx)
	if err != nil {
		return err
	}
	if status.IsSubmitted {
		r.log.Info().Msg("Attempt already submitted, nothing to run")
		r.mu.Lock()
		r.submitted = true
		r.mu.Unlock()
		return nil
	}

	if _, err := r.client.Start(ctx); err != nil {
		return err
	}
	// Re-read after start so the countdown fields are populated.
	status, err = r.client.SessionStatus(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.answers = status.Answers
	r.current = status.CurrentQuestionIndex
	if status.RemainingSeconds != nil {
		r.timed = true
		r.remaining = *status.RemainingSeconds
	}
	r.started = time.Now()
	r.lastSave = r.started
	r.mu.Unlock()

	r.vlog.Load(status.Violations)
	r.monitor.SetExitCount(status.ExamExitCount)
	r.monitor.Start()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.flush()
			return ctx.Err()
		case <-r.done:
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if r.recovery.Tick() {
		// The countdown expired but the environment was already back: the
		// window closed without a submission, so clear the monitor's flag or
		// every later exit would be absorbed as in-recovery.
		r.monitor.SetRecovering(false)
		r.log.Info().Msg("Environment restored at countdown expiry, recovery cancelled")
		r.markChanged()
	}

	r.mu.Lock()
	if r.submitted {
		r.mu.Unlock()
		return
	}
	if r.remaining > 0 {
		r.remaining--
	}
	expired := r.timed && r.remaining <= 0
	dirty := r.changed
	sinceChange := time.Since(r.lastChange)
	sinceSave := time.Since(r.lastSave)
	r.mu.Unlock()

	if expired {
		r.recovery.ForceSubmit(proctor.ReasonTimeExpired)
		return
	}

	// Debounced save once a burst of changes settles, with a periodic
	// fallback so a steady stream of changes still gets persisted.
	if dirty && (sinceChange >= saveDebounce || sinceSave >= periodicSave) {
		r.save(ctx)
	}
}

// SelectAnswer records a choice for a question.
func (r *Runner) SelectAnswer(questionID, optionID string) {
	r.mu.Lock()
	for i := range r.answers {
		if r.answers[i].QuestionID == questionID {
			opt := optionID
			r.answers[i].SelectedOptionID = &opt
			r.answers[i].Visited = true
		}
	}
	r.mu.Unlock()
	r.markChanged()
}

// GoToQuestion records navigation to a question index.
func (r *Runner) GoToQuestion(index int) {
	r.mu.Lock()
	r.current = index
	if index >= 0 && index < len(r.answers) {
		r.answers[index].Visited = true
	}
	r.mu.Unlock()
	r.markChanged()
}

// MarkForReview toggles the review flag on a question.
func (r *Runner) MarkForReview(questionID string, marked bool) {
	r.mu.Lock()
	for i := range r.answers {
		if r.answers[i].QuestionID == questionID {
			r.answers[i].MarkedForReview = marked
		}
	}
	r.mu.Unlock()
	r.markChanged()
}

// FullscreenChange forwards a fullscreen signal. Entering fullscreen also
// counts toward environment restoration.
func (r *Runner) FullscreenChange(active bool) {
	r.setEnvOK(active)
	r.monitor.FullscreenChange(active)
	if active {
		r.tryRestore()
	}
	r.markChanged()
}

// VisibilityChange forwards a visibility signal.
func (r *Runner) VisibilityChange(visible bool) {
	r.setEnvOK(visible)
	r.monitor.VisibilityChange(visible)
	if visible {
		r.tryRestore()
	}
	r.markChanged()
}

// WindowBlur forwards a blur signal.
func (r *Runner) WindowBlur() {
	r.setEnvOK(false)
	r.monitor.WindowBlur()
	r.markChanged()
}

// WindowFocus forwards a focus signal.
func (r *Runner) WindowFocus() {
	r.setEnvOK(true)
	r.tryRestore()
}

// KeyDown forwards a keyboard signal.
func (r *Runner) KeyDown(e proctor.KeyEvent) {
	r.monitor.KeyDown(e)
	r.markChanged()
}

// ObserveViewport forwards a geometry sample.
func (r *Runner) ObserveViewport(v proctor.Viewport) {
	r.monitor.ObserveViewport(v)
	r.markChanged()
}

// PageLoad forwards the navigation entry type seen at load.
func (r *Runner) PageLoad(navType string) {
	r.monitor.PageLoad(navType)
	r.markChanged()
}

// Offline forwards a connectivity-loss signal.
func (r *Runner) Offline() {
	r.monitor.Offline()
	r.markChanged()
}

// Submit performs a candidate-confirmed submission.
func (r *Runner) Submit() {
	r.recovery.ForceSubmit(proctor.ReasonUserConfirmed)
}

func (r *Runner) handleExit(kind model.ViolationType) {
	if r.monitor.ExitCount() > exitLimit {
		r.log.Warn().Str("kind", string(kind)).Msg("Exit limit crossed, forcing submission")
		r.recovery.ForceSubmit(proctor.ReasonExitLimit)
		return
	}
	if r.recovery.Begin() {
		r.monitor.SetRecovering(true)
		r.log.Warn().
			Str("kind", string(kind)).
			Int("exit_count", r.monitor.ExitCount()).
			Msg("Recovery window opened")
	}
	r.markChanged()
}

func (r *Runner) environmentRestored() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.envOK
}

func (r *Runner) setEnvOK(ok bool) {
	r.mu.Lock()
	r.envOK = ok
	r.mu.Unlock()
}

// tryRestore closes the recovery window when the environment is back.
func (r *Runner) tryRestore() {
	if r.recovery.State() != proctor.StateInRecovery {
		return
	}
	if !r.environmentRestored() {
		return
	}
	r.recovery.Restore()
	r.monitor.SetRecovering(false)
	r.log.Info().Msg("Environment restored, recovery cancelled")
	r.markChanged()
}

func (r *Runner) markChanged() {
	r.mu.Lock()
	r.lastChange = time.Now()
	r.changed = true
	r.mu.Unlock()
}

func (r *Runner) snapshot() *model.ProgressPatch {
	r.mu.Lock()
	defer r.mu.Unlock()

	answers := make([]model.Answer, len(r.answers))
	copy(answers, r.answers)
	current := r.current
	exitCount := r.monitor.ExitCount()
	inRecovery := r.recovery.State() == proctor.StateInRecovery

	return &model.ProgressPatch{
		Answers:              answers,
		Violations:           r.vlog.Snapshot(),
		CurrentQuestionIndex: &current,
		ExamExitCount:        &exitCount,
		LastExitTimestamp:    r.monitor.LastExitTimestamp(),
		IsInRecovery:         &inRecovery,
	}
}

func (r *Runner) save(ctx context.Context) {
	patch := r.snapshot()
	if _, err := r.client.SaveProgress(ctx, patch); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			// Submitted out from under us (another tab, forced submit).
			r.log.Info().Msg("Attempt submitted elsewhere, stopping saves")
			r.finish(nil)
			return
		}
		// Transient failure: leave changed set so the next tick retries.
		r.log.Warn().Err(err).Msg("Progress save failed")
		return
	}

	r.mu.Lock()
	r.changed = false
	r.lastSave = time.Now()
	r.mu.Unlock()
}

// flush ships a last snapshot over the beacon path. Used on shutdown where a
// response cannot be awaited.
func (r *Runner) flush() {
	r.mu.Lock()
	submitted := r.submitted
	r.mu.Unlock()
	if submitted {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.client.Flush(ctx, r.snapshot()); err != nil {
		r.log.Debug().Err(err).Msg("Flush failed")
	}
}

// autoSubmit is the recovery machine's submit hook. The session ends even if
// the request fails; the server's reconciliation handles the retry.
func (r *Runner) autoSubmit(reason string) {
	r.vlog.Append(model.ViolationAutoSubmit, map[string]any{"reason": reason})
	r.monitor.SetSubmitting()

	r.mu.Lock()
	taken := int(time.Since(r.started).Seconds())
	answers := make([]model.Answer, len(r.answers))
	copy(answers, r.answers)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := r.client.Submit(ctx, &model.SubmitRequest{
		TimeTakenSeconds: &taken,
		Answers:          answers,
		Violations:       r.vlog.Snapshot(),
	})
	if err != nil {
		r.log.Error().Err(err).Str("reason", reason).Msg("Submission failed, session ends regardless")
	} else {
		r.log.Info().
			Str("reason", reason).
			Float64("score", result.Score).
			Msg("Attempt submitted")
	}
	r.finish(result)
}

func (r *Runner) finish(result *model.SubmitResult) {
	r.mu.Lock()
	if r.submitted {
		r.mu.Unlock()
		return
	}
	r.submitted = true
	r.result = result
	r.mu.Unlock()
	close(r.done)
}
