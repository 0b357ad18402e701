package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/siddharthareddy0/quiz-hosting/internal/config"
	"github.com/siddharthareddy0/quiz-hosting/internal/model"
	"github.com/siddharthareddy0/quiz-hosting/internal/service"
)

// FlushWorker consumes flush_progress_queue and applies queued page-unload
// snapshots to attempts. The flush endpoint enqueues and returns immediately
// because unloading pages cannot wait on a write.
type FlushWorker struct {
	attempts *service.AttemptService
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewFlushWorker creates a new FlushWorker.
func NewFlushWorker(attempts *service.AttemptService, rdb *redis.Client, log zerolog.Logger) *FlushWorker {
	return &FlushWorker{
		attempts: attempts,
		rdb:      rdb,
		log:      log.With().Str("component", "flush_worker").Logger(),
	}
}

// FlushPayload is one queued snapshot. UserID and ExamID are resolved by the
// flush handler before enqueueing.
type FlushPayload struct {
	UserID uuid.UUID            `json:"user_id"`
	ExamID uuid.UUID            `json:"exam_id"`
	Patch  *model.ProgressPatch `json:"patch"`
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *FlushWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *FlushWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.FlushQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	if err := w.apply(ctx, []byte(result[1])); err != nil {
		w.log.Error().Err(err).Msg("Flush apply error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.FlushQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *FlushWorker) apply(ctx context.Context, raw []byte) error {
	var payload FlushPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		// Malformed items are dropped, not requeued.
		w.log.Error().Err(err).Msg("Unmarshal error")
		return nil
	}
	if payload.Patch == nil {
		return nil
	}

	_, err := w.attempts.SaveProgress(ctx, payload.UserID, payload.ExamID, payload.Patch)
	if err != nil {
		// A flush arriving after submission or from a stale device is
		// expected during forced-submit races; the queued snapshot is moot.
		if errors.Is(err, service.ErrAlreadySubmitted) ||
			errors.Is(err, service.ErrDeviceConflict) ||
			errors.Is(err, service.ErrNotFound) {
			w.log.Debug().
				Str("user_id", payload.UserID.String()).
				Str("exam_id", payload.ExamID.String()).
				Msg("Stale flush dropped")
			return nil
		}
		return err
	}
	return nil
}

// drain processes all remaining items in the queue before shutdown.
func (w *FlushWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.FlushQueue).Result()
		if err != nil {
			break
		}

		if err := w.apply(ctx, []byte(result)); err != nil {
			w.log.Error().Err(err).Msg("Drain apply error")
			w.rdb.RPush(ctx, config.WorkerKey.FlushQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
