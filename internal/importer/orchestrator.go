// Package importer drives the bulk-import state machine: sequential batch
// submission against the lead store, per-batch retry with backoff,
// checkpointing after every batch, and pause/resume/cancel at batch
// boundaries.
package importer

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-admin/internal/model"
	"github.com/sells-group/lead-admin/internal/planner"
	"github.com/sells-group/lead-admin/internal/resilience"
	"github.com/sells-group/lead-admin/internal/store"
)

// ProgressSink receives progress callbacks from the orchestrator. OnProgress
// fires after every batch; OnDone fires once when a session completes or is
// cancelled. Implementations must be cheap: they run on the import loop.
type ProgressSink interface {
	OnProgress(p model.Progress)
	OnDone(r model.Result)
}

// NopSink discards all callbacks.
type NopSink struct{}

func (NopSink) OnProgress(model.Progress) {}
func (NopSink) OnDone(model.Result)       {}

// Options configures an orchestrator. Zero values fall back to the
// production defaults (3 retries, 2s/4s/6s backoff, 500ms between batches,
// 1h checkpoint TTL).
type Options struct {
	MaxRetries      int
	Backoff         resilience.BackoffPolicy
	InterBatchDelay time.Duration
	CheckpointTTL   time.Duration
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.Backoff == nil {
		o.Backoff = resilience.LinearBackoff(2*time.Second, 6*time.Second)
	}
	if o.InterBatchDelay < 0 {
		o.InterBatchDelay = 0
	} else if o.InterBatchDelay == 0 {
		o.InterBatchDelay = 500 * time.Millisecond
	}
	if o.CheckpointTTL <= 0 {
		o.CheckpointTTL = time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Orchestrator owns the transient import session state and is the only
// writer of checkpoints. At most one batch is ever in flight; pause and
// cancel take effect only at batch boundaries.
type Orchestrator struct {
	store   store.Store
	sink    ProgressSink
	opts    Options
	limiter *rate.Limiter

	mu              sync.Mutex
	state           model.SessionState
	session         *model.ImportSession
	cancelRequested bool
	lastResult      *model.Result
	batchElapsed    time.Duration
	batchesTimed    int
}

// New builds an orchestrator writing through st and reporting to sink.
// A nil sink is replaced by NopSink.
func New(st store.Store, sink ProgressSink, opts Options) *Orchestrator {
	if sink == nil {
		sink = NopSink{}
	}
	opts = opts.withDefaults()

	var limiter *rate.Limiter
	if opts.InterBatchDelay > 0 {
		// Paces batch submissions: the first Wait passes immediately, every
		// later one is spaced by the inter-batch delay so the store is never
		// saturated.
		limiter = rate.NewLimiter(rate.Every(opts.InterBatchDelay), 1)
	}

	return &Orchestrator{
		store:   st,
		sink:    sink,
		opts:    opts,
		limiter: limiter,
		state:   model.SessionIdle,
	}
}

// Load plans records into batches and installs a fresh session. It fails if
// a session is currently running or paused.
func (o *Orchestrator) Load(records []model.Lead) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == model.SessionRunning {
		return ErrAlreadyRunning
	}
	if o.state == model.SessionPaused {
		return eris.New("importer: paused session in progress, resume or cancel it first")
	}

	o.session = &model.ImportSession{
		Batches: planner.Plan(records),
		Results: model.ImportResults{},
	}
	o.state = model.SessionIdle
	o.cancelRequested = false
	o.lastResult = nil
	o.batchElapsed = 0
	o.batchesTimed = 0
	return nil
}

// Restore installs a checkpointed session so it can be resumed. The session
// comes back paused at its saved cursor with all counters intact.
func (o *Orchestrator) Restore(session model.ImportSession) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == model.SessionRunning {
		return ErrAlreadyRunning
	}

	session.IsRunning = false
	session.IsPaused = true
	o.session = &session
	o.state = model.SessionPaused
	o.cancelRequested = false
	o.lastResult = nil
	o.batchElapsed = 0
	o.batchesTimed = 0
	return nil
}

// Run drives the session from its current cursor until it completes, pauses,
// or is cancelled, and returns the resulting state. It returns
// ErrAlreadyRunning when called while another Run is active. Once the loop
// has started, batch failures never surface as errors here; they funnel into
// the session's error list.
func (o *Orchestrator) Run(ctx context.Context) (model.SessionState, error) {
	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return model.SessionIdle, ErrNoSession
	}
	if o.state == model.SessionRunning {
		o.mu.Unlock()
		return model.SessionRunning, ErrAlreadyRunning
	}
	if o.state == model.SessionCompleted || o.state == model.SessionCancelled {
		st := o.state
		o.mu.Unlock()
		return st, eris.Errorf("importer: session already %s", st)
	}

	o.state = model.SessionRunning
	o.session.IsRunning = true
	o.session.IsPaused = false
	if o.session.StartedAt.IsZero() {
		o.session.StartedAt = o.opts.Now().UTC()
	}
	o.mu.Unlock()

	return o.run(ctx)
}

func (o *Orchestrator) run(ctx context.Context) (model.SessionState, error) {
	log := zap.L().With(zap.String("component", "importer"))

	for {
		o.mu.Lock()
		sess := o.session
		if o.cancelRequested {
			o.mu.Unlock()
			return o.doCancel(ctx)
		}
		if sess.IsPaused {
			o.state = model.SessionPaused
			sess.IsRunning = false
			o.mu.Unlock()
			log.Info("session paused", zap.Int("cursor", sess.CurrentBatchIndex))
			return model.SessionPaused, nil
		}
		if sess.CurrentBatchIndex >= len(sess.Batches) {
			o.mu.Unlock()
			return o.finish(ctx)
		}
		idx := sess.CurrentBatchIndex
		o.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return o.interrupt(err)
		}

		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return o.interrupt(err)
			}
		}

		o.processBatch(ctx, idx)

		// A batch that reached a terminal status advances the cursor and is
		// checkpointed even when the context was cancelled mid-commit, so a
		// resume never replays it. A pending batch means the interrupt landed
		// before the commit; it stays at the cursor for reprocessing.
		o.mu.Lock()
		batchDone := sess.Batches[idx].Status != model.BatchPending
		if batchDone {
			sess.CurrentBatchIndex = idx + 1
		}
		o.mu.Unlock()

		if batchDone {
			cpCtx := ctx
			if ctx.Err() != nil {
				cpCtx = context.Background()
			}
			if err := o.checkpoint(cpCtx); err != nil {
				log.Warn("checkpoint write failed", zap.Error(err))
			}
		}

		if ctx.Err() != nil {
			return o.interrupt(ctx.Err())
		}

		o.sink.OnProgress(o.snapshotProgress())
	}
}

// processBatch submits one batch, retrying per policy. On exhaustion the
// batch is marked error, a single aggregated error entry is recorded, and
// the session moves on; one failed batch never halts the import.
func (o *Orchestrator) processBatch(ctx context.Context, idx int) {
	log := zap.L().With(zap.String("component", "importer"))

	o.mu.Lock()
	batch := &o.session.Batches[idx]
	batch.Status = model.BatchProcessing
	records := batch.Records
	o.mu.Unlock()

	start := o.opts.Now()
	var inserted []model.Lead
	var itemErrs []model.ImportError

	err := resilience.Do(ctx, o.opts.MaxRetries, o.opts.Backoff,
		func(attempt int, lastErr error) {
			o.mu.Lock()
			batch.RetryCount = attempt
			batch.LastError = lastErr.Error()
			o.mu.Unlock()
			log.Warn("retrying batch",
				zap.Int("batch", batch.ID),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
		},
		func(ctx context.Context) error {
			var submitErr error
			inserted, itemErrs, submitErr = o.submitBatch(ctx, records)
			return submitErr
		},
	)
	elapsed := o.opts.Now().Sub(start)

	o.mu.Lock()
	defer o.mu.Unlock()

	sess := o.session
	n := len(records)

	if err != nil && ctx.Err() != nil {
		// Interrupted mid-batch: leave it pending so resume reprocesses it.
		batch.Status = model.BatchPending
		return
	}

	sess.ProcessedCount += n
	o.batchElapsed += elapsed
	o.batchesTimed++

	if err != nil {
		batch.Status = model.BatchError
		batch.LastError = err.Error()
		sess.FailureCount += n
		sess.Results.Errors = append(sess.Results.Errors, model.ImportError{
			BatchID:       batch.ID,
			Message:       err.Error(),
			AffectedCount: n,
		})
		log.Error("batch failed after retries",
			zap.Int("batch", batch.ID),
			zap.Int("records", n),
			zap.Error(err),
		)
		return
	}

	batch.Status = model.BatchSuccess
	sess.SuccessCount += len(inserted)
	sess.Results.Successes = append(sess.Results.Successes, inserted...)
	sess.Results.Errors = append(sess.Results.Errors, itemErrs...)
	log.Info("batch committed",
		zap.Int("batch", batch.ID),
		zap.Int("inserted", len(inserted)),
		zap.Int("duplicates", len(itemErrs)),
	)
}

// Pause requests a pause. The current batch runs to completion or
// exhaustion; the loop honors the flag at the next batch boundary.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return ErrNoSession
	}
	if o.state != model.SessionRunning {
		return ErrNotRunning
	}
	o.session.IsPaused = true
	return nil
}

// Resume clears the pause flag and drives the session again from its
// current cursor.
func (o *Orchestrator) Resume(ctx context.Context) (model.SessionState, error) {
	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return model.SessionIdle, ErrNoSession
	}
	if o.state != model.SessionPaused {
		st := o.state
		o.mu.Unlock()
		return st, ErrNotPaused
	}
	o.mu.Unlock()

	return o.Run(ctx)
}

// Cancel stops the session. Confirmation is the caller's concern. While
// running, cancellation is deferred to the next batch boundary; a paused or
// idle session is cancelled immediately. The checkpoint is discarded but
// durable writes already committed are kept; partial results (including the
// still-pending count) are exposed through the sink and LastResult.
func (o *Orchestrator) Cancel(ctx context.Context) error {
	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return ErrNoSession
	}
	if o.state == model.SessionRunning {
		o.cancelRequested = true
		o.mu.Unlock()
		return nil
	}
	if o.state == model.SessionCompleted || o.state == model.SessionCancelled {
		st := o.state
		o.mu.Unlock()
		return eris.Errorf("importer: session already %s", st)
	}
	o.mu.Unlock()

	_, err := o.doCancel(ctx)
	return err
}

func (o *Orchestrator) doCancel(ctx context.Context) (model.SessionState, error) {
	log := zap.L().With(zap.String("component", "importer"))

	o.mu.Lock()
	sess := o.session
	o.state = model.SessionCancelled
	sess.IsRunning = false
	o.cancelRequested = false
	processed := sess.ProcessedCount
	result := o.buildResultLocked()
	result.PendingCount = sess.PendingCount()
	o.lastResult = &result
	o.mu.Unlock()

	if err := o.store.ClearCheckpoint(ctx); err != nil {
		log.Warn("clear checkpoint failed", zap.Error(err))
	}
	log.Info("session cancelled",
		zap.Int("processed", processed),
		zap.Int("pending", result.PendingCount),
	)

	o.sink.OnDone(result)
	return model.SessionCancelled, nil
}

func (o *Orchestrator) finish(ctx context.Context) (model.SessionState, error) {
	log := zap.L().With(zap.String("component", "importer"))

	o.mu.Lock()
	o.state = model.SessionCompleted
	o.session.IsRunning = false
	result := o.buildResultLocked()
	o.lastResult = &result
	o.mu.Unlock()

	if err := o.store.ClearCheckpoint(ctx); err != nil {
		log.Warn("clear checkpoint failed", zap.Error(err))
	}
	log.Info("session complete",
		zap.Int("successes", len(result.SuccessRecords)),
		zap.Int("errors", len(result.ErrorRecords)),
		zap.Duration("elapsed", result.TotalTime),
	)

	o.sink.OnDone(result)
	return model.SessionCompleted, nil
}

// interrupt handles context cancellation: the session stays checkpointed and
// comes back paused, so a later Resume picks up at the same cursor.
func (o *Orchestrator) interrupt(cause error) (model.SessionState, error) {
	o.mu.Lock()
	o.state = model.SessionPaused
	o.session.IsRunning = false
	o.session.IsPaused = true
	o.mu.Unlock()
	return model.SessionPaused, eris.Wrap(cause, "importer: interrupted")
}

// State returns the current state machine position.
func (o *Orchestrator) State() model.SessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Progress returns a snapshot of the session counters.
func (o *Orchestrator) Progress() model.Progress {
	return o.snapshotProgress()
}

// LastResult returns the final result of a completed or cancelled session,
// or nil while one is still active.
func (o *Orchestrator) LastResult() *model.Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastResult
}

// snapshotProgress takes the mutex itself; unlike buildResultLocked it must
// not be called with the lock held.
func (o *Orchestrator) snapshotProgress() model.Progress {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return model.Progress{}
	}
	sess := o.session
	p := model.Progress{
		CurrentBatch: sess.CurrentBatchIndex,
		TotalBatches: len(sess.Batches),
		Processed:    sess.ProcessedCount,
		Total:        sess.TotalRecords(),
		SuccessCount: sess.SuccessCount,
		FailureCount: sess.FailureCount,
	}

	remaining := len(sess.Batches) - sess.CurrentBatchIndex
	if o.batchesTimed > 0 && remaining > 0 {
		perBatch := o.batchElapsed/time.Duration(o.batchesTimed) + o.opts.InterBatchDelay
		p.ETAMillis = (time.Duration(remaining) * perBatch).Milliseconds()
	}
	return p
}

func (o *Orchestrator) buildResultLocked() model.Result {
	sess := o.session
	return model.Result{
		SuccessRecords: sess.Results.Successes,
		ErrorRecords:   sess.Results.Errors,
		TotalTime:      o.opts.Now().UTC().Sub(sess.StartedAt),
	}
}

func (o *Orchestrator) checkpoint(ctx context.Context) error {
	o.mu.Lock()
	snapshot := *o.session
	o.mu.Unlock()
	return o.store.WriteCheckpoint(ctx, &snapshot)
}
