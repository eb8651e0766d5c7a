package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/heyjunin/vodforge/pkg/errors"
	"github.com/heyjunin/vodforge/pkg/hls"
	"github.com/heyjunin/vodforge/pkg/jobstore"
	"github.com/heyjunin/vodforge/pkg/logger"
	"github.com/heyjunin/vodforge/pkg/notify"
	"github.com/heyjunin/vodforge/pkg/progress"
	"github.com/heyjunin/vodforge/pkg/source"
	"github.com/heyjunin/vodforge/pkg/storage"
	"github.com/heyjunin/vodforge/pkg/transcoder"
)

// DefaultJobTimeout bounds one job execution end to end.
const DefaultJobTimeout = 15 * time.Minute

// terminalWriteTimeout bounds the terminal-state write, which runs on its
// own context because the job context is often already dead by then.
const terminalWriteTimeout = 10 * time.Second

// Encoder is the encode surface the orchestrator drives. Satisfied by
// *transcoder.Engine.
type Encoder interface {
	Probe(ctx context.Context, url string) (*transcoder.MediaInfo, error)
	ExtractThumbnail(ctx context.Context, in transcoder.Input) (string, error)
	TranscodeVariant(ctx context.Context, in transcoder.Input, v hls.Variant, onSample func(percent float64)) (*transcoder.VariantResult, error)
}

// Deps bundles the collaborators of an Orchestrator.
type Deps struct {
	Jobs     *jobstore.Store
	Store    storage.Store
	Encoder  Encoder
	Resolver *source.Resolver
	Notifier notify.Notifier
	Logger   logger.Logger
}

// Config tunes one Orchestrator.
type Config struct {
	// JobTimeout is the per-job deadline. Defaults to DefaultJobTimeout.
	JobTimeout time.Duration
	// Backoff is the transient-retry schedule. Defaults to DefaultBackoff.
	Backoff []time.Duration
}

// Orchestrator walks one job through probe, plan, thumbnail and the
// variant ladder, persisting a checkpoint after every step so a crashed or
// requeued job resumes instead of restarting. It is the only component
// that assigns terminal statuses.
type Orchestrator struct {
	jobs     *jobstore.Store
	store    storage.Store
	encoder  Encoder
	resolver *source.Resolver
	notifier notify.Notifier
	logger   logger.Logger
	timeout  time.Duration
	backoff  []time.Duration
}

// New creates an Orchestrator. Jobs, Store and Encoder are required; the
// remaining dependencies fall back to working defaults.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Jobs == nil || deps.Store == nil || deps.Encoder == nil {
		return nil, errors.New(errors.ConfigError, "Job store, object store and encoder are required", "", errors.ErrConfigInvalid)
	}
	if deps.Resolver == nil {
		deps.Resolver = source.NewResolver(nil, 0)
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewLogger()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoff
	}
	return &Orchestrator{
		jobs:     deps.Jobs,
		store:    deps.Store,
		encoder:  deps.Encoder,
		resolver: deps.Resolver,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		timeout:  cfg.JobTimeout,
		backoff:  cfg.Backoff,
	}, nil
}

// Run processes one job until it is done, partial or failed, and returns
// the status it reached along with the failure that stopped it, if any.
// An empty status means nothing terminal was decided, either because the
// job record surface failed or because the caller is shutting down; the
// job keeps its checkpoints and should be redelivered.
func (o *Orchestrator) Run(ctx context.Context, assetID string) (jobstore.Status, error) {
	start := time.Now()
	activeJobs.Inc()
	defer activeJobs.Dec()

	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	job, err := o.jobs.Get(runCtx, assetID)
	if err != nil {
		return "", errors.Wrap(err, errors.StorageError, "Failed to load the job record", errors.ErrJobStoreQuery)
	}
	if job == nil {
		return "", errors.New(errors.StorageError, "No job record exists for the asset", assetID, errors.ErrJobNotFound)
	}
	if job.Status.Terminal() {
		o.logger.Info("Job already terminal, nothing to do", "pipeline", map[string]interface{}{
			"asset_id": assetID,
			"status":   string(job.Status),
		})
		return job.Status, nil
	}

	o.logger.Info("Processing job", "pipeline", map[string]interface{}{
		"asset_id":  assetID,
		"input_ref": job.InputRef,
		"status":    string(job.Status),
	})

	runErr := o.process(runCtx, job)
	if runErr == nil {
		jobDuration.WithLabelValues(string(jobstore.StatusDone)).Observe(time.Since(start).Seconds())
		return jobstore.StatusDone, nil
	}
	if ctx.Err() != nil {
		// The caller is shutting down, not the job overrunning. Leave the
		// checkpoints so a redelivery resumes where this run stopped.
		return "", runErr
	}
	if runCtx.Err() != nil && !errors.IsType(runErr, errors.TimeoutError) {
		runErr = errors.Wrap(runErr, errors.TimeoutError, "Job exceeded its processing deadline", errors.ErrJobTimeout)
	}
	if errors.IsType(runErr, errors.StorageError) {
		// The job record surface failed mid-run. Nothing terminal can be
		// decided without it; leave the checkpoints for a redelivery.
		return "", runErr
	}

	status, err := o.finishFailure(job, runErr)
	if err != nil {
		return "", err
	}
	jobDuration.WithLabelValues(string(status)).Observe(time.Since(start).Seconds())
	return status, runErr
}

// process advances the job as far as it can and returns the classified
// error that stopped it. Terminal bookkeeping stays out of here.
func (o *Orchestrator) process(ctx context.Context, job *jobstore.Job) error {
	if job.Status == jobstore.StatusQueued {
		job.Status = jobstore.StatusRunning
		if err := o.jobs.Update(ctx, job); err != nil {
			return errors.Wrap(err, errors.StorageError, "Failed to mark the job running", errors.ErrJobStoreQuery)
		}
	}

	url, err := o.resolver.Resolve(ctx, job.InputRef)
	if err != nil {
		return err
	}

	if job.Probed == nil {
		info, err := o.encoder.Probe(ctx, url)
		if err != nil {
			return err
		}
		job.Probed = &jobstore.Probe{Width: info.Width, Height: info.Height, Duration: info.DurationSeconds}
	}
	if len(job.Plan) == 0 {
		plan, err := hls.BuildPlan(job.Probed.Width, job.Probed.Height)
		if err != nil {
			return err
		}
		job.Plan = plan
		for _, v := range plan {
			if _, ok := job.VariantState[v.Label]; !ok {
				job.VariantState[v.Label] = jobstore.VariantPending
			}
		}
	}
	if err := o.jobs.Update(ctx, job); err != nil {
		return errors.Wrap(err, errors.StorageError, "Failed to persist the probe and plan", errors.ErrJobStoreQuery)
	}

	in := transcoder.Input{AssetID: job.AssetID, URL: url, DurationSeconds: job.Probed.Duration}
	if job.ThumbnailKey == "" {
		key, err := o.withRetryThumbnail(ctx, job, in)
		if err != nil {
			return err
		}
		job.ThumbnailKey = key
		if err := o.jobs.Update(ctx, job); err != nil {
			return errors.Wrap(err, errors.StorageError, "Failed to persist the thumbnail key", errors.ErrJobStoreQuery)
		}
		o.notifier.ThumbnailReady(ctx, job.AssetID, o.store.PublicURL(key))
		notificationsSent.Inc()
	}

	// Heal the crash window between a variant completing and the master
	// playlist publication that should have followed it.
	if job.MasterKey == "" && job.CompletedVariants() > 0 {
		if err := o.publishMaster(ctx, job); err != nil {
			return err
		}
	}

	tracker := progress.Resume(len(job.Plan), job.CompletedVariants(), job.GlobalProgress)

	for _, v := range job.Plan {
		if job.VariantState[v.Label] == jobstore.VariantDone {
			continue
		}

		job.VariantState[v.Label] = jobstore.VariantInProgress
		if err := o.jobs.Update(ctx, job); err != nil {
			return errors.Wrap(err, errors.StorageError, "Failed to mark the variant in progress", errors.ErrJobStoreQuery)
		}

		if err := o.encodeVariant(ctx, job, v, &tracker); err != nil {
			variantsEncoded.WithLabelValues("error").Inc()
			return err
		}
		variantsEncoded.WithLabelValues("ok").Inc()

		job.VariantState[v.Label] = jobstore.VariantDone
		var dec progress.Decision
		tracker, dec = tracker.VariantDone()
		job.GlobalProgress = tracker.Global
		if err := o.jobs.Update(ctx, job); err != nil {
			return errors.Wrap(err, errors.StorageError, "Failed to mark the variant done", errors.ErrJobStoreQuery)
		}
		// The checkpoint write above carried the fresh percentage, so the
		// persistence throttle restarts from it.
		tracker.LastPersisted = tracker.Global

		if dec.Notify {
			o.notifier.Progress(ctx, job.AssetID, dec.Percent)
			notificationsSent.Inc()
		}

		if err := o.publishMaster(ctx, job); err != nil {
			return err
		}
	}

	return o.finishSuccess(ctx, job)
}

// encodeVariant runs one rendition with transient retries. The input URL
// is resolved per attempt so an expired presigned source heals itself.
func (o *Orchestrator) encodeVariant(ctx context.Context, job *jobstore.Job, v hls.Variant, tracker *progress.Tracker) error {
	return o.withRetry(ctx, job.AssetID, v.Label, func() error {
		url, err := o.resolver.Resolve(ctx, job.InputRef)
		if err != nil {
			return err
		}
		in := transcoder.Input{AssetID: job.AssetID, URL: url, DurationSeconds: job.Probed.Duration}
		_, err = o.encoder.TranscodeVariant(ctx, in, v, func(local float64) {
			o.onSample(ctx, job, tracker, local)
		})
		return err
	})
}

// onSample folds one encoder progress report into the job-wide tracker and
// acts on its decisions. It runs on the progress listener's goroutine, but
// never concurrently with the orchestrator's own tracker access: the
// engine joins the listener before TranscodeVariant returns.
func (o *Orchestrator) onSample(ctx context.Context, job *jobstore.Job, tracker *progress.Tracker, local float64) {
	next, dec := tracker.Sample(local)
	*tracker = next

	if dec.Notify {
		o.notifier.Progress(ctx, job.AssetID, dec.Percent)
		notificationsSent.Inc()
	}
	if dec.Persist {
		if err := o.jobs.UpdateProgress(ctx, job.AssetID, dec.Percent); err != nil {
			o.logger.Warn("Failed to persist progress", "pipeline", map[string]interface{}{
				"asset_id": job.AssetID,
				"error":    err.Error(),
			})
			return
		}
		job.GlobalProgress = dec.Percent
	}
}

// withRetryThumbnail extracts the poster frame with the same transient
// schedule as everything else; only its upload leg is retryable.
func (o *Orchestrator) withRetryThumbnail(ctx context.Context, job *jobstore.Job, in transcoder.Input) (string, error) {
	var key string
	err := o.withRetry(ctx, job.AssetID, "thumbnail", func() error {
		var err error
		key, err = o.encoder.ExtractThumbnail(ctx, in)
		return err
	})
	return key, err
}

// publishMaster uploads the master playlist over the done variants
// (no-cache, so clients re-read it as renditions appear) and, on its first
// publication, flips the job playable and says so. Refreshes after that
// are silent.
func (o *Orchestrator) publishMaster(ctx context.Context, job *jobstore.Job) error {
	if err := o.withRetry(ctx, job.AssetID, "master", func() error {
		return o.uploadMaster(ctx, job, hls.CacheNone)
	}); err != nil {
		return err
	}
	if job.MasterKey != "" {
		return nil
	}

	job.MasterKey = hls.MasterKey(job.AssetID)
	job.Status = jobstore.StatusPlayable
	if err := o.jobs.Update(ctx, job); err != nil {
		return errors.Wrap(err, errors.StorageError, "Failed to mark the job playable", errors.ErrJobStoreQuery)
	}
	o.notifier.Playable(ctx, job.AssetID, o.store.PublicURL(job.MasterKey))
	notificationsSent.Inc()
	o.logger.Info("Job is playable", "pipeline", map[string]interface{}{
		"asset_id": job.AssetID,
		"master":   job.MasterKey,
	})
	return nil
}

// uploadMaster renders and uploads the master playlist for the variants
// delivered so far.
func (o *Orchestrator) uploadMaster(ctx context.Context, job *jobstore.Job, cacheControl string) error {
	body := hls.RenderMaster(job.DoneVariants())
	err := o.store.Upload(ctx, hls.MasterKey(job.AssetID), strings.NewReader(body), storage.UploadOptions{
		ContentType:  hls.PlaylistContentType,
		CacheControl: cacheControl,
	})
	if err != nil {
		return errors.WrapTransient(err, errors.UploadError, "Failed to upload the master playlist", errors.ErrUploadMaster)
	}
	return nil
}

// finishSuccess seals a fully delivered job: the master playlist becomes
// immutable, the record flips to done at 100% and the uploaded original
// is removed.
func (o *Orchestrator) finishSuccess(ctx context.Context, job *jobstore.Job) error {
	if err := o.withRetry(ctx, job.AssetID, "master", func() error {
		return o.uploadMaster(ctx, job, hls.CacheLongLived)
	}); err != nil {
		return err
	}
	if job.MasterKey == "" {
		job.MasterKey = hls.MasterKey(job.AssetID)
	}

	job.Status = jobstore.StatusDone
	job.GlobalProgress = 100
	job.ErrorType = ""
	job.ErrorMessage = ""
	if err := o.jobs.Update(ctx, job); err != nil {
		return errors.Wrap(err, errors.StorageError, "Failed to mark the job done", errors.ErrJobStoreQuery)
	}

	if err := o.deleteOriginal(ctx, job.InputRef); err != nil {
		o.logger.Warn("Failed to delete the original input", "pipeline", map[string]interface{}{
			"asset_id":  job.AssetID,
			"input_ref": job.InputRef,
			"error":     err.Error(),
		})
	}

	o.notifier.Done(ctx, job.AssetID)
	notificationsSent.Inc()
	o.logger.Info("Job done", "pipeline", map[string]interface{}{
		"asset_id": job.AssetID,
	})
	return nil
}

// deleteOriginal removes the uploaded source object once every rendition
// is live. Only object refs in the worker's own bucket are reachable
// through the store; anything else is left alone.
func (o *Orchestrator) deleteOriginal(ctx context.Context, inputRef string) error {
	bucket, key, ok := source.SplitObjectRef(inputRef)
	if !ok {
		return nil
	}
	if b, scoped := o.store.(interface{ Bucket() string }); scoped && b.Bucket() != bucket {
		o.logger.Warn("Original lives outside the output bucket, keeping it", "pipeline", map[string]interface{}{
			"input_ref": inputRef,
		})
		return nil
	}
	return o.store.Delete(ctx, key)
}

// finishFailure is the single place a job is classified terminally. A job
// with at least one delivered rendition degrades to partial and keeps its
// playable artifacts; one with none fails outright.
func (o *Orchestrator) finishFailure(job *jobstore.Job, runErr error) (jobstore.Status, error) {
	// The run context is often already dead here (timeouts in particular),
	// so the terminal write gets its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()

	status := jobstore.StatusFailed
	if job.CompletedVariants() > 0 {
		status = jobstore.StatusPartial
		if job.MasterKey == "" {
			// Whatever completed is still watchable; make sure a master
			// playlist exists for it.
			if err := o.uploadMaster(ctx, job, hls.CacheNone); err == nil {
				job.MasterKey = hls.MasterKey(job.AssetID)
			} else {
				o.logger.Warn("Failed to publish the master playlist for a partial job", "pipeline", map[string]interface{}{
					"asset_id": job.AssetID,
					"error":    err.Error(),
				})
			}
		}
	}

	job.Status = status
	job.ErrorType = string(errors.TypeOf(runErr))
	job.ErrorMessage = runErr.Error()
	if err := o.jobs.Update(ctx, job); err != nil {
		return "", errors.Wrap(err, errors.StorageError, "Failed to persist the terminal state", errors.ErrJobStoreQuery)
	}

	o.notifier.Failed(ctx, job.AssetID, string(status))
	notificationsSent.Inc()
	o.logger.Error("Job ended in failure", "pipeline", map[string]interface{}{
		"asset_id": job.AssetID,
		"status":   string(status),
		"error":    runErr.Error(),
	})
	return status, nil
}
