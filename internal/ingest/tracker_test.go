package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInterval = 5 * time.Millisecond

type statusReply struct {
	resp *StatusResponse
	err  error
}

// fakeBackend hands out task ids in order and replays scripted status
// replies per task; the last reply repeats once the script runs out.
type fakeBackend struct {
	mu        sync.Mutex
	taskIDs   []string
	uploadErr error
	replies   map[string][]statusReply
	calls     map[string]int
	block     map[string]chan struct{}
	entered   chan string
}

func newFakeBackend(taskIDs ...string) *fakeBackend {
	return &fakeBackend{
		taskIDs: taskIDs,
		replies: map[string][]statusReply{},
		calls:   map[string]int{},
		block:   map[string]chan struct{}{},
		entered: make(chan string, 16),
	}
}

func (f *fakeBackend) script(taskID string, replies ...statusReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[taskID] = replies
}

func (f *fakeBackend) Upload(_ context.Context, _ *File) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	id := f.taskIDs[0]
	f.taskIDs = f.taskIDs[1:]
	return id, nil
}

func (f *fakeBackend) Status(ctx context.Context, taskID string) (*StatusResponse, error) {
	f.mu.Lock()
	n := f.calls[taskID]
	f.calls[taskID] = n + 1
	gate := f.block[taskID]
	script := f.replies[taskID]
	f.mu.Unlock()

	select {
	case f.entered <- taskID:
	default:
	}
	if gate != nil {
		<-gate
	}
	if len(script) == 0 {
		return nil, errors.New("no scripted reply")
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n].resp, script[n].err
}

func (f *fakeBackend) callCount(taskID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[taskID]
}

func status(s string, progress int) statusReply {
	return statusReply{resp: &StatusResponse{Status: s, Progress: progress}}
}

func strPtr(s string) *string { return &s }

func testFile() *File {
	return &File{Name: "doc.txt", Data: []byte("hello world")}
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) observe(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func TestStartUploadWithoutFile(t *testing.T) {
	tracker := NewTracker(newFakeBackend("t1"))
	defer tracker.Close()

	snap, err := tracker.StartUpload(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoFile)
	assert.Equal(t, StageIdle, snap.Stage)

	_, err = tracker.StartUpload(context.Background(), &File{})
	require.ErrorIs(t, err, ErrNoFile)
	assert.Equal(t, StageIdle, tracker.Snapshot().Stage)
}

func TestUploadThenProcessingThenCompleted(t *testing.T) {
	backend := newFakeBackend("t1")
	backend.script("t1", status(StatusPending, 10), status(StatusCompleted, 100))
	rec := &recorder{}
	tracker := NewTracker(backend, WithPollInterval(testInterval), WithObserver(rec.observe))
	defer tracker.Close()

	snap, err := tracker.StartUpload(context.Background(), testFile())
	require.NoError(t, err)
	assert.Equal(t, "t1", snap.TaskID)
	assert.Equal(t, StageProcessing, snap.Stage)

	require.Eventually(t, func() bool {
		return tracker.Snapshot().Stage == StageCompleted
	}, time.Second, time.Millisecond)
	tracker.Wait()

	final := tracker.Snapshot()
	assert.Empty(t, final.TaskID)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, 2, backend.callCount("t1"), "polling must stop at the terminal state")

	stages := []Stage{}
	for _, s := range rec.all() {
		stages = append(stages, s.Stage)
	}
	assert.Equal(t, []Stage{StageUploading, StageProcessing, StageProcessing, StageCompleted}, stages)
	assert.Equal(t, 10, rec.all()[2].Progress)
}

func TestProcessingPollsNeverRegress(t *testing.T) {
	backend := newFakeBackend("t1")
	backend.script("t1",
		status(StatusProcessing, 30),
		status(StatusProcessing, 60),
		status(StatusProcessing, 20),
		status(StatusPending, 15),
		status(StatusProcessing, 85),
	)
	rec := &recorder{}
	tracker := NewTracker(backend, WithPollInterval(testInterval), WithObserver(rec.observe))

	_, err := tracker.StartUpload(context.Background(), testFile())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return backend.callCount("t1") >= 6
	}, time.Second, time.Millisecond)
	tracker.Close()

	var progress []int
	for _, s := range rec.all()[1:] {
		assert.Equal(t, StageProcessing, s.Stage)
		progress = append(progress, s.Progress)
	}
	require.GreaterOrEqual(t, len(progress), 6)
	// Backend progress is applied verbatim, including decreases.
	assert.Equal(t, []int{10, 30, 60, 20, 15, 85}, progress[:6])
}

func TestPollFailureIsAbsorbed(t *testing.T) {
	backend := newFakeBackend("t1")
	backend.script("t1",
		status(StatusProcessing, 40),
		statusReply{err: errors.New("connection reset")},
		statusReply{err: errors.New("connection reset")},
		status(StatusCompleted, 100),
	)
	rec := &recorder{}
	tracker := NewTracker(backend, WithPollInterval(testInterval), WithObserver(rec.observe))
	defer tracker.Close()

	_, err := tracker.StartUpload(context.Background(), testFile())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return tracker.Snapshot().Stage == StageCompleted
	}, time.Second, time.Millisecond)

	for _, s := range rec.all() {
		assert.Empty(t, s.Error)
	}
	assert.Equal(t, 4, backend.callCount("t1"))
}

func TestIngestionFailed(t *testing.T) {
	backend := newFakeBackend("t1")
	backend.script("t1", statusReply{resp: &StatusResponse{
		Status: StatusFailed,
		Step:   strPtr("error"),
		Error:  strPtr("corrupt pdf"),
	}})
	tracker := NewTracker(backend, WithPollInterval(testInterval))
	defer tracker.Close()

	_, err := tracker.StartUpload(context.Background(), testFile())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return tracker.Snapshot().Error != ""
	}, time.Second, time.Millisecond)
	tracker.Wait()

	snap := tracker.Snapshot()
	assert.Equal(t, StageIdle, snap.Stage)
	assert.Equal(t, "corrupt pdf", snap.Error)
	assert.Empty(t, snap.TaskID)
	assert.Equal(t, 1, backend.callCount("t1"))
}

func TestIngestionFailedDefaultMessage(t *testing.T) {
	backend := newFakeBackend("t1")
	backend.script("t1", status(StatusFailed, 0))
	tracker := NewTracker(backend, WithPollInterval(testInterval))
	defer tracker.Close()

	_, err := tracker.StartUpload(context.Background(), testFile())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return tracker.Snapshot().Error == MessageIngestionFailed
	}, time.Second, time.Millisecond)
}

func TestUploadFailureResetsToIdle(t *testing.T) {
	backend := newFakeBackend()
	backend.uploadErr = errors.New("dial tcp: connection refused")
	tracker := NewTracker(backend)
	defer tracker.Close()

	snap, err := tracker.StartUpload(context.Background(), testFile())
	require.ErrorIs(t, err, ErrUploadTransport)
	assert.Equal(t, StageIdle, snap.Stage)
	assert.Equal(t, 0, snap.Progress)
	assert.Empty(t, snap.Step)
	assert.Equal(t, MessageUploadTransport, snap.Error)
}

func TestStalePollNeverOverwritesNewUpload(t *testing.T) {
	backend := newFakeBackend("t1", "t2")
	backend.script("t1", status(StatusCompleted, 100))
	backend.script("t2", status(StatusProcessing, 40))
	gate := make(chan struct{})
	backend.block["t1"] = gate
	tracker := NewTracker(backend, WithPollInterval(testInterval))

	_, err := tracker.StartUpload(context.Background(), testFile())
	require.NoError(t, err)
	waitEntered(t, backend, "t1")

	_, err = tracker.StartUpload(context.Background(), testFile())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return tracker.Snapshot().Progress == 40
	}, time.Second, time.Millisecond)

	// The first task's poll completes only now, after the second upload.
	close(gate)
	tracker.Close()

	snap := tracker.Snapshot()
	assert.Equal(t, "t2", snap.TaskID)
	assert.Equal(t, StageProcessing, snap.Stage)
	assert.Equal(t, 40, snap.Progress)
	assert.Equal(t, 1, backend.callCount("t1"))
}

func TestCloseStopsPolling(t *testing.T) {
	backend := newFakeBackend("t1")
	backend.script("t1", status(StatusProcessing, 20))
	tracker := NewTracker(backend, WithPollInterval(testInterval))

	_, err := tracker.StartUpload(context.Background(), testFile())
	require.NoError(t, err)
	waitEntered(t, backend, "t1")
	tracker.Close()

	calls := backend.callCount("t1")
	time.Sleep(10 * testInterval)
	assert.Equal(t, calls, backend.callCount("t1"))

	_, err = tracker.StartUpload(context.Background(), testFile())
	assert.ErrorIs(t, err, ErrTrackerClosed)
}

func TestPollOnceAppliesOnlyCurrentTask(t *testing.T) {
	backend := newFakeBackend("t1")
	backend.script("t1", status(StatusProcessing, 55))
	backend.script("other", status(StatusCompleted, 100))
	tracker := NewTracker(backend, WithPollInterval(time.Hour))
	defer tracker.Close()

	_, err := tracker.StartUpload(context.Background(), testFile())
	require.NoError(t, err)

	snap, applied := tracker.PollOnce(context.Background(), "other")
	assert.False(t, applied)
	assert.Equal(t, "t1", snap.TaskID)

	snap, applied = tracker.PollOnce(context.Background(), "t1")
	assert.True(t, applied)
	assert.Equal(t, 55, snap.Progress)
}

func waitEntered(t *testing.T, backend *fakeBackend, taskID string) {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case id := <-backend.entered:
			if id == taskID {
				return
			}
		case <-timeout:
			t.Fatalf("status for %s was never requested", taskID)
		}
	}
}

// End-to-end scenarios against the HTTP contract.

func TestScenarioUploadPendingCompleted(t *testing.T) {
	var statusCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/ingest/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "demo-user-1", r.Header.Get(HeaderUserID))
		_, header, err := r.FormFile("file")
		if assert.NoError(t, err) {
			assert.Equal(t, "doc.txt", header.Filename)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "t1"})
	})
	mux.HandleFunc("/api/v1/ingest/status/t1", func(w http.ResponseWriter, r *http.Request) {
		if statusCalls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"status":"pending","step":null,"progress":10,"error":null}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"completed","step":"completed","progress":100,"error":null}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	rec := &recorder{}
	tracker := NewTracker(NewClient(server.URL, "demo-user-1", time.Second),
		WithPollInterval(testInterval), WithObserver(rec.observe))
	defer tracker.Close()

	_, err := tracker.StartUpload(context.Background(), testFile())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return tracker.Snapshot().Stage == StageCompleted
	}, time.Second, time.Millisecond)
	tracker.Wait()

	snaps := rec.all()
	require.Len(t, snaps, 4)
	assert.Equal(t, StageProcessing, snaps[2].Stage)
	assert.Equal(t, 10, snaps[2].Progress)
	assert.Empty(t, tracker.Snapshot().TaskID)
	assert.Equal(t, int32(2), statusCalls.Load())
}

func TestScenarioUploadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"too large"}`))
	}))
	defer server.Close()

	tracker := NewTracker(NewClient(server.URL, "u", time.Second))
	defer tracker.Close()

	snap, err := tracker.StartUpload(context.Background(), testFile())
	require.ErrorIs(t, err, ErrUploadRejected)
	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, http.StatusInternalServerError, uploadErr.StatusCode)
	assert.Equal(t, StageIdle, snap.Stage)
	assert.Equal(t, "too large", snap.Error)
	assert.Equal(t, "too large", tracker.Snapshot().Error)
}

func TestScenarioPollFailed(t *testing.T) {
	var statusCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/ingest/upload", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"task_id":"t9"}`))
	})
	mux.HandleFunc("/api/v1/ingest/status/t9", func(w http.ResponseWriter, r *http.Request) {
		statusCalls.Add(1)
		_, _ = w.Write([]byte(`{"status":"failed","step":"error","progress":0,"error":"corrupt pdf"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tracker := NewTracker(NewClient(server.URL, "u", time.Second), WithPollInterval(testInterval))
	defer tracker.Close()

	_, err := tracker.StartUpload(context.Background(), testFile())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return tracker.Snapshot().Error == "corrupt pdf"
	}, time.Second, time.Millisecond)
	tracker.Wait()

	snap := tracker.Snapshot()
	assert.Equal(t, StageIdle, snap.Stage)
	assert.Empty(t, snap.TaskID)
	assert.Equal(t, int32(1), statusCalls.Load())
}

// gatedUpload holds Upload until release is closed.
type gatedUpload struct {
	*fakeBackend
	started chan struct{}
	release chan struct{}
}

func (g *gatedUpload) Upload(ctx context.Context, f *File) (string, error) {
	close(g.started)
	<-g.release
	return g.fakeBackend.Upload(ctx, f)
}

func TestCloseDuringUploadReportsClosed(t *testing.T) {
	backend := &gatedUpload{
		fakeBackend: newFakeBackend("t1"),
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	backend.script("t1", status(StatusProcessing, 20))
	tracker := NewTracker(backend, WithPollInterval(testInterval))

	errc := make(chan error, 1)
	go func() {
		_, err := tracker.StartUpload(context.Background(), testFile())
		errc <- err
	}()
	<-backend.started
	tracker.Close()
	close(backend.release)

	err := <-errc
	assert.ErrorIs(t, err, ErrTrackerClosed)
	assert.NotErrorIs(t, err, ErrSuperseded)
	assert.Zero(t, backend.callCount("t1"))
}

func TestObserverDropsOutOfOrderSnapshots(t *testing.T) {
	rec := &recorder{}
	tracker := NewTracker(newFakeBackend(), WithObserver(rec.observe))

	uploading := Snapshot{Stage: StageUploading, Step: StepUploading}
	stale := Snapshot{TaskID: "t1", Stage: StageProcessing, Progress: 40}

	tracker.notify(uploading, 2)
	tracker.notify(stale, 1)
	tracker.notify(uploading, 2)

	require.Len(t, rec.all(), 1)
	assert.Equal(t, StageUploading, rec.all()[0].Stage)
}

func TestObserverLastSnapshotMatchesTracker(t *testing.T) {
	backend := newFakeBackend("t1", "t2")
	backend.script("t1", status(StatusProcessing, 30))
	backend.script("t2", status(StatusProcessing, 10), status(StatusCompleted, 100))
	rec := &recorder{}
	tracker := NewTracker(backend, WithPollInterval(testInterval), WithObserver(rec.observe))
	defer tracker.Close()

	_, err := tracker.StartUpload(context.Background(), testFile())
	require.NoError(t, err)
	waitEntered(t, backend, "t1")
	_, err = tracker.StartUpload(context.Background(), testFile())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return tracker.Snapshot().Stage == StageCompleted
	}, time.Second, testInterval)
	tracker.Wait()

	snaps := rec.all()
	require.NotEmpty(t, snaps)
	assert.Equal(t, tracker.Snapshot(), snaps[len(snaps)-1])
}
