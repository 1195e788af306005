package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultPollInterval = 2 * time.Second

// Tracker owns the lifecycle of one in-flight upload: it submits the file,
// polls the status endpoint until a terminal state and exposes the current
// Snapshot.
//
// Every StartUpload (and Close) bumps the generation. A polling loop is tagged
// with the generation and task id it was started for and re-checks both under
// the lock before applying a result, so a poll that races a newer upload or
// teardown is discarded.
type Tracker struct {
	backend  Backend
	interval time.Duration
	logger   *zap.Logger
	observer func(Snapshot)

	mu         sync.Mutex
	snap       Snapshot
	generation uint64
	stopPoll   context.CancelFunc
	closed     bool
	seq        uint64

	pollers   sync.WaitGroup
	notifyMu  sync.Mutex
	delivered uint64
}

type Option func(*Tracker)

func WithPollInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.interval = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithObserver registers a callback invoked after every state change.
// Calls are serialized and in state order: a snapshot older than one already
// delivered is dropped. The callback must not block for long.
func WithObserver(fn func(Snapshot)) Option {
	return func(t *Tracker) {
		t.observer = fn
	}
}

func NewTracker(backend Backend, opts ...Option) *Tracker {
	t := &Tracker{
		backend:  backend,
		interval: DefaultPollInterval,
		logger:   zap.NewNop(),
		snap:     Snapshot{Stage: StageIdle},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap.clone()
}

// StartUpload discards any previous task, submits file and, once the backend
// returns a task id, starts polling. On failure the tracker is reset to idle
// with the user-facing message in Snapshot.Error and an *UploadError is
// returned.
func (t *Tracker) StartUpload(ctx context.Context, file *File) (Snapshot, error) {
	if !file.present() {
		return t.Snapshot(), ErrNoFile
	}
	info := file.Inspect()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return Snapshot{}, ErrTrackerClosed
	}
	t.generation++
	gen := t.generation
	t.cancelPollLocked()
	t.snap = Snapshot{
		Stage:    StageUploading,
		Step:     StepUploading,
		Progress: progressUploading,
		File:     &info,
	}
	snap := t.snap.clone()
	seq := t.nextSeqLocked()
	t.mu.Unlock()
	t.notify(snap, seq)

	taskID, err := t.backend.Upload(ctx, file)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return Snapshot{}, ErrTrackerClosed
	}
	if gen != t.generation {
		current := t.snap.clone()
		t.mu.Unlock()
		return current, ErrSuperseded
	}
	if err != nil {
		var uploadErr *UploadError
		if !errors.As(err, &uploadErr) {
			uploadErr = &UploadError{Kind: KindTransport, Message: MessageUploadTransport, Err: err}
		}
		t.snap = Snapshot{
			Stage: StageIdle,
			Error: uploadErr.Message,
			File:  &info,
		}
		snap = t.snap.clone()
		seq = t.nextSeqLocked()
		t.mu.Unlock()
		t.logger.Warn("upload failed",
			zap.String("file", info.Name),
			zap.Int("status_code", uploadErr.StatusCode),
			zap.Error(uploadErr),
		)
		t.notify(snap, seq)
		return snap, uploadErr
	}

	t.snap = Snapshot{
		TaskID:   taskID,
		Stage:    StageProcessing,
		Step:     StepPending,
		Progress: progressAccepted,
		File:     &info,
	}
	snap = t.snap.clone()
	seq = t.nextSeqLocked()
	pollCtx, cancel := context.WithCancel(context.Background())
	t.stopPoll = cancel
	t.pollers.Add(1)
	t.mu.Unlock()

	t.logger.Info("upload accepted", zap.String("file", info.Name), zap.String("task_id", taskID))
	t.notify(snap, seq)
	go t.pollLoop(pollCtx, gen, taskID)
	return snap, nil
}

// PollOnce issues one status query for taskID. Transport and protocol
// failures are absorbed: the previous snapshot is kept and applied is false.
// The result is applied only while taskID is still the current task.
func (t *Tracker) PollOnce(ctx context.Context, taskID string) (snap Snapshot, applied bool) {
	resp, err := t.backend.Status(ctx, taskID)
	if err != nil {
		t.logger.Debug("status poll failed", zap.String("task_id", taskID), zap.Error(err))
		return t.Snapshot(), false
	}

	t.mu.Lock()
	if taskID == "" || t.snap.TaskID != taskID {
		snap = t.snap.clone()
		t.mu.Unlock()
		return snap, false
	}
	if t.applyLocked(resp) {
		t.cancelPollLocked()
	}
	snap = t.snap.clone()
	seq := t.nextSeqLocked()
	t.mu.Unlock()
	t.notify(snap, seq)
	return snap, true
}

// Close stops polling and waits for every polling loop to exit. No state
// change happens after Close returns.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.generation++
	t.cancelPollLocked()
	t.mu.Unlock()
	t.pollers.Wait()
}

// Wait blocks until every polling loop started so far has exited.
func (t *Tracker) Wait() {
	t.pollers.Wait()
}

func (t *Tracker) pollLoop(ctx context.Context, gen uint64, taskID string) {
	defer t.pollers.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		if done := t.pollTagged(ctx, gen, taskID); done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollTagged returns true when the loop must stop: terminal state reached or
// the loop is no longer authoritative for the current task.
func (t *Tracker) pollTagged(ctx context.Context, gen uint64, taskID string) bool {
	resp, err := t.backend.Status(ctx, taskID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		t.logger.Debug("status poll failed", zap.String("task_id", taskID), zap.Error(err))
		return false
	}

	t.mu.Lock()
	if ctx.Err() != nil || gen != t.generation || t.snap.TaskID != taskID {
		t.mu.Unlock()
		t.logger.Debug("discarding stale poll result", zap.String("task_id", taskID))
		return true
	}
	terminal := t.applyLocked(resp)
	snap := t.snap.clone()
	seq := t.nextSeqLocked()
	t.mu.Unlock()

	if terminal {
		t.logger.Info("ingestion finished",
			zap.String("task_id", taskID),
			zap.String("status", resp.Status),
			zap.String("error", snap.Error),
		)
	}
	t.notify(snap, seq)
	return terminal
}

// applyLocked maps a backend status onto the snapshot and reports whether the
// task reached a terminal state. Step and progress are taken verbatim.
func (t *Tracker) applyLocked(resp *StatusResponse) bool {
	t.snap.Step = deref(resp.Step)
	t.snap.Progress = resp.Progress

	switch resp.Status {
	case StatusPending, StatusProcessing:
		t.snap.Stage = StageProcessing
		return false
	case StatusCompleted:
		t.snap.Stage = StageCompleted
		t.snap.TaskID = ""
		return true
	case StatusFailed:
		t.snap.Stage = StageIdle
		t.snap.TaskID = ""
		t.snap.Error = deref(resp.Error)
		if t.snap.Error == "" {
			t.snap.Error = MessageIngestionFailed
		}
		return true
	default:
		return false
	}
}

func (t *Tracker) cancelPollLocked() {
	if t.stopPoll != nil {
		t.stopPoll()
		t.stopPoll = nil
	}
}

// nextSeqLocked numbers the state change just made. Must hold mu.
func (t *Tracker) nextSeqLocked() uint64 {
	t.seq++
	return t.seq
}

func (t *Tracker) notify(snap Snapshot, seq uint64) {
	if t.observer == nil {
		return
	}
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	if seq <= t.delivered {
		return
	}
	t.delivered = seq
	t.observer(snap)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
