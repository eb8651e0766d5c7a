package intake

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyjunin/vodforge/pkg/errors"
	"github.com/heyjunin/vodforge/pkg/jobstore"
	"github.com/heyjunin/vodforge/pkg/logger"
)

// scriptedSource hands out a fixed message list, then blocks like a real
// reader until the context dies. drained closes once the list is empty.
type scriptedSource struct {
	mu      sync.Mutex
	queue   []kafka.Message
	commits []int64
	once    sync.Once
	drained chan struct{}
}

func newScriptedSource(values ...string) *scriptedSource {
	s := &scriptedSource{drained: make(chan struct{})}
	for i, v := range values {
		s.queue = append(s.queue, kafka.Message{Partition: 0, Offset: int64(i), Value: []byte(v)})
	}
	return s
}

func (s *scriptedSource) Fetch(ctx context.Context) (kafka.Message, error) {
	s.mu.Lock()
	if len(s.queue) > 0 {
		msg := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		return msg, nil
	}
	s.mu.Unlock()
	s.once.Do(func() { close(s.drained) })
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (s *scriptedSource) Commit(ctx context.Context, msg kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, msg.Offset)
	return nil
}

func (s *scriptedSource) committed() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.commits...)
}

type failingSource struct{ err error }

func (f failingSource) Fetch(ctx context.Context) (kafka.Message, error) {
	return kafka.Message{}, f.err
}
func (f failingSource) Commit(ctx context.Context, msg kafka.Message) error { return nil }

type scriptedRunner struct {
	mu     sync.Mutex
	status jobstore.Status
	err    error
	runs   []string
}

func (r *scriptedRunner) Run(ctx context.Context, assetID string) (jobstore.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, assetID)
	return r.status, r.err
}

func (r *scriptedRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...)
}

func openTestStore(t *testing.T) *jobstore.Store {
	t.Helper()
	s, err := jobstore.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWorkerCommitsTerminalJobs(t *testing.T) {
	jobs := openTestStore(t)
	src := newScriptedSource(
		`{"asset_id":"a1","input_ref":"file:///in1.mp4"}`,
		`{"asset_id":"a2","input_ref":"file:///in2.mp4"}`,
	)
	runner := &scriptedRunner{status: jobstore.StatusDone}
	w, err := NewWorker(src, jobs, runner, WorkerConfig{Concurrency: 2, StateDir: t.TempDir()}, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	<-src.drained
	cancel()
	require.NoError(t, <-done)

	assert.ElementsMatch(t, []int64{0, 1}, src.committed())
	assert.ElementsMatch(t, []string{"a1", "a2"}, runner.ran())

	job, err := jobs.Get(context.Background(), "a1")
	require.NoError(t, err)
	require.NotNil(t, job, "the worker creates missing job records from the message")
	assert.Equal(t, "file:///in1.mp4", job.InputRef)
}

func TestWorkerLeavesOffsetWhenNoTerminalStatus(t *testing.T) {
	jobs := openTestStore(t)
	src := newScriptedSource(`{"asset_id":"a1","input_ref":"file:///in.mp4"}`)
	runner := &scriptedRunner{
		status: "",
		err:    errors.New(errors.StorageError, "Failed to load the job record", "", errors.ErrJobStoreQuery),
	}
	w, err := NewWorker(src, jobs, runner, WorkerConfig{StateDir: t.TempDir()}, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	<-src.drained
	cancel()
	require.NoError(t, <-done)

	assert.Empty(t, src.committed(), "an undecided job keeps its message for redelivery")
	assert.Equal(t, []string{"a1"}, runner.ran())
}

func TestWorkerDropsPoisonMessages(t *testing.T) {
	jobs := openTestStore(t)
	src := newScriptedSource(`{not json`)
	runner := &scriptedRunner{status: jobstore.StatusDone}
	w, err := NewWorker(src, jobs, runner, WorkerConfig{StateDir: t.TempDir()}, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	<-src.drained
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{0}, src.committed(), "poison messages are acknowledged so the partition moves on")
	assert.Empty(t, runner.ran())
}

func TestWorkerSingleInstancePerStateDir(t *testing.T) {
	jobs := openTestStore(t)
	stateDir := t.TempDir()
	runner := &scriptedRunner{status: jobstore.StatusDone}

	first := newScriptedSource()
	w1, err := NewWorker(first, jobs, runner, WorkerConfig{StateDir: stateDir}, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w1.Run(ctx) }()
	<-first.drained

	w2, err := NewWorker(newScriptedSource(), jobs, runner, WorkerConfig{StateDir: stateDir}, logger.NewNop())
	require.NoError(t, err)
	err = w2.Run(context.Background())
	require.Error(t, err, "the state directory lock admits one daemon")
	assert.True(t, errors.IsType(err, errors.ConfigError))

	cancel()
	require.NoError(t, <-done)
}

func TestWorkerSurfacesBrokerFailure(t *testing.T) {
	jobs := openTestStore(t)
	fetchErr := errors.NewTransient(errors.QueueError, "Failed to fetch an intake message", "broker down", errors.ErrQueueConsume)
	w, err := NewWorker(failingSource{err: fetchErr}, jobs, &scriptedRunner{}, WorkerConfig{StateDir: t.TempDir()}, logger.NewNop())
	require.NoError(t, err)

	err = w.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.QueueError))
}
