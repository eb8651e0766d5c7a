package intake

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/segmentio/kafka-go"

	"github.com/heyjunin/vodforge/pkg/errors"
	"github.com/heyjunin/vodforge/pkg/jobstore"
	"github.com/heyjunin/vodforge/pkg/logger"
)

// Runner executes one job to a terminal state. Satisfied by
// *pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context, assetID string) (jobstore.Status, error)
}

// Source is the message feed a worker drains. Satisfied by *Consumer.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// WorkerConfig tunes the daemon loop.
type WorkerConfig struct {
	// Concurrency bounds how many jobs run at once. Defaults to 1.
	Concurrency int
	// StateDir holds the job record database and the daemon lock file.
	StateDir string
}

// Worker drains the intake topic through a bounded pool of concurrent
// jobs. Messages are acknowledged only after their job reaches a terminal
// state, so anything in flight when the process dies is redelivered.
type Worker struct {
	source Source
	jobs   *jobstore.Store
	runner Runner
	logger logger.Logger
	slots  chan struct{}
	lock   *flock.Flock
}

// NewWorker wires a worker. Source, job store and runner are required.
func NewWorker(source Source, jobs *jobstore.Store, runner Runner, cfg WorkerConfig, log logger.Logger) (*Worker, error) {
	if source == nil || jobs == nil || runner == nil {
		return nil, errors.New(errors.ConfigError, "Worker requires a message source, a job store and a runner", "", errors.ErrConfigInvalid)
	}
	if cfg.StateDir == "" {
		return nil, errors.New(errors.ConfigError, "Worker state directory is required", "", errors.ErrConfigInvalid)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if log == nil {
		log = logger.NewLogger()
	}
	return &Worker{
		source: source,
		jobs:   jobs,
		runner: runner,
		logger: log,
		slots:  make(chan struct{}, cfg.Concurrency),
		lock:   flock.New(filepath.Join(cfg.StateDir, "vodforge.lock")),
	}, nil
}

// Run consumes intake messages until ctx is cancelled, returning nil on a
// clean shutdown. In-flight jobs are waited for either way.
func (w *Worker) Run(ctx context.Context) error {
	locked, err := w.lock.TryLock()
	if err != nil {
		return errors.Wrap(err, errors.ConfigError, "Failed to acquire the worker lock", errors.ErrConfigInvalid)
	}
	if !locked {
		return errors.New(errors.ConfigError, "Another worker already owns the state directory", w.lock.Path(), errors.ErrConfigInvalid)
	}
	defer w.lock.Unlock()

	w.logger.Info("Worker started", "intake", map[string]interface{}{
		"concurrency": cap(w.slots),
		"lock":        w.lock.Path(),
	})

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		msg, err := w.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("Worker stopping", "intake", nil)
				return nil
			}
			return err
		}

		select {
		case w.slots <- struct{}{}:
		case <-ctx.Done():
			// The uncommitted fetch comes back on the next start.
			w.logger.Info("Worker stopping", "intake", nil)
			return nil
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-w.slots }()
			w.handle(ctx, msg)
		}()
	}
}

// handle runs one message to completion and decides its acknowledgment.
func (w *Worker) handle(ctx context.Context, msg kafka.Message) {
	m, err := decodeMessage(msg.Value)
	if err != nil {
		// A poison message would wedge its partition forever; drop it and
		// keep consuming.
		w.logger.Error("Dropping undecodable intake message", "intake", map[string]interface{}{
			"partition": msg.Partition,
			"offset":    msg.Offset,
			"error":     err.Error(),
		})
		w.commit(ctx, msg)
		return
	}

	if _, err := w.jobs.Create(ctx, m.AssetID, m.InputRef); err != nil {
		w.logger.Error("Failed to ensure the job record, leaving the message for redelivery", "intake", map[string]interface{}{
			"asset_id": m.AssetID,
			"error":    err.Error(),
		})
		return
	}

	status, err := w.runner.Run(ctx, m.AssetID)
	if err != nil {
		w.logger.Warn("Job run returned an error", "intake", map[string]interface{}{
			"asset_id": m.AssetID,
			"status":   string(status),
			"error":    err.Error(),
		})
	}
	if status == "" {
		// Nothing terminal was decided; the job record surface failed.
		// Leave the offset so the message comes back.
		return
	}
	w.commit(ctx, msg)
}

func (w *Worker) commit(ctx context.Context, msg kafka.Message) {
	if err := w.source.Commit(ctx, msg); err != nil {
		w.logger.Warn("Failed to commit an intake offset", "intake", map[string]interface{}{
			"partition": msg.Partition,
			"offset":    msg.Offset,
			"error":     err.Error(),
		})
	}
}
