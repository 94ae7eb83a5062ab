package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"glownest/activity"
	"glownest/models"
	"glownest/storage"
	"glownest/stream"
)

var (
	// ErrJobRunning rejects a start while another job holds the running flag.
	ErrJobRunning = errors.New("a scrape job is already running")
	// ErrInvalidConfig rejects an out-of-range job config.
	ErrInvalidConfig = errors.New("invalid job config")
)

const (
	maxPagesLimit = 50
	// defaultStopGrace is how long a stop waits for the worker to exit on
	// its own before killing it.
	defaultStopGrace = 10 * time.Second
)

// Controller owns the job state machine and the single-active-job
// invariant. Exactly one goroutine (the run loop) mutates job state while
// a worker is alive; Start, Stop and Status only claim, signal and read.
type Controller struct {
	launcher Launcher
	store    storage.Store
	hub      *stream.Hub
	activity *activity.Log

	stopGrace time.Duration

	mu            sync.Mutex
	job           models.Job
	running       bool
	stopRequested bool
	forceKilled   bool
	proc          Process
	done          chan struct{}
}

func NewController(launcher Launcher, store storage.Store, hub *stream.Hub, act *activity.Log) *Controller {
	return &Controller{
		launcher:  launcher,
		store:     store,
		hub:       hub,
		activity:  act,
		stopGrace: defaultStopGrace,
		job:       models.Job{Status: models.JobStatusIdle},
	}
}

func validateConfig(cfg *models.JobConfig) error {
	if cfg.ListingType == "" {
		cfg.ListingType = "sale"
	}
	if cfg.ListingType != "sale" && cfg.ListingType != "rent" {
		return fmt.Errorf("%w: listing_type must be sale or rent, got %q", ErrInvalidConfig, cfg.ListingType)
	}
	if cfg.MaxPages < 1 || cfg.MaxPages > maxPagesLimit {
		return fmt.Errorf("%w: max_pages must be between 1 and %d, got %d", ErrInvalidConfig, maxPagesLimit, cfg.MaxPages)
	}
	if cfg.DelayMS < 0 {
		return fmt.Errorf("%w: delay_ms must not be negative, got %d", ErrInvalidConfig, cfg.DelayMS)
	}
	return nil
}

// Start validates the config, claims the running flag, spawns the worker
// and returns the new job snapshot without waiting for completion.
func (c *Controller) Start(ctx context.Context, cfg models.JobConfig) (models.Job, error) {
	if err := validateConfig(&cfg); err != nil {
		return models.Job{}, err
	}

	now := time.Now().UTC()
	job := models.Job{
		ID:         uuid.NewString(),
		Status:     models.JobStatusRunning,
		StartedAt:  &now,
		Config:     cfg,
		TotalPages: cfg.MaxPages,
		LastUpdate: &now,
	}
	done := make(chan struct{})

	// Claim the flag, the job snapshot and the done channel atomically so a
	// concurrent Stop or Status observes a coherent launch-in-progress state
	// (running, proc still nil) instead of the previous job.
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return models.Job{}, ErrJobRunning
	}
	c.running = true
	c.stopRequested = false
	c.forceKilled = false
	c.job = job
	c.proc = nil
	c.done = done
	c.mu.Unlock()

	startPage := c.resumePage(ctx)

	proc, err := c.launcher.Launch(ctx, cfg, startPage)
	if err != nil {
		err = fmt.Errorf("launch worker: %w", err)
		c.mu.Lock()
		c.running = false
		c.job.Status = models.JobStatusError
		c.job.Message = err.Error()
		c.job.Error = err.Error()
		c.mu.Unlock()
		close(done)
		c.activity.Error(ctx, err.Error())
		c.hub.PublishError(err.Error())
		return models.Job{}, err
	}

	c.mu.Lock()
	c.proc = proc
	c.job.CurrentPage = startPage
	job = c.job
	stopPending := c.stopRequested
	c.mu.Unlock()

	if stopPending {
		// A stop landed while the worker was launching; deliver it now so
		// the waiting Stop call is not left holding an unsignaled worker.
		if sigErr := proc.Signal(); sigErr != nil {
			log.Printf("scraper: signal worker: %v", sigErr)
			proc.Kill()
		}
	}

	c.activity.Info(ctx, fmt.Sprintf("Запущено збір (%s, до %d сторінок, зі сторінки %d)",
		cfg.ListingType, cfg.MaxPages, startPage))

	go c.run(proc, startPage, done)
	return job, nil
}

// resumePage picks the worker's first page from the checkpoint. A run that
// was interrupted or stopped resumes at its last committed page; the page
// is re-scraped, which the idempotent upsert path absorbs.
func (c *Controller) resumePage(ctx context.Context) int {
	cp, err := c.store.GetCheckpoint(ctx)
	if err != nil {
		log.Printf("scraper: checkpoint read failed, starting from page 1: %v", err)
		return 1
	}
	if cp == nil || cp.LastPage < 1 {
		return 1
	}
	if cp.Status == models.CheckpointRunning || cp.Status == models.CheckpointStopped {
		return cp.LastPage
	}
	return 1
}

// Stop asks the running worker to exit, kills it after the grace period,
// and returns once the final checkpoint is committed. Stopping an idle
// controller is a no-op that reports the current snapshot.
func (c *Controller) Stop(ctx context.Context) (models.Job, error) {
	c.mu.Lock()
	if !c.running {
		job := c.job
		c.mu.Unlock()
		return job, nil
	}
	c.stopRequested = true
	proc := c.proc
	done := c.done
	c.mu.Unlock()

	c.activity.Info(ctx, "Отримано запит на зупинку збору")
	// proc is nil while Start is still launching the worker; Start observes
	// stopRequested after the launch and signals the worker itself.
	if proc != nil {
		if err := proc.Signal(); err != nil {
			log.Printf("scraper: signal worker: %v", err)
			proc.Kill()
		}
	}

	select {
	case <-done:
	case <-time.After(c.stopGrace):
		c.mu.Lock()
		c.forceKilled = true
		proc = c.proc
		c.mu.Unlock()
		log.Printf("scraper: worker ignored stop for %s, killing", c.stopGrace)
		if proc != nil {
			proc.Kill()
		}
		select {
		case <-done:
		case <-ctx.Done():
			return c.Status(), ctx.Err()
		}
	case <-ctx.Done():
		return c.Status(), ctx.Err()
	}

	return c.Status(), nil
}

// Status returns a non-blocking snapshot of the current job.
func (c *Controller) Status() models.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job
}

// updateJob is the aggregator's single write path into the job snapshot.
func (c *Controller) updateJob(fn func(*models.Job)) models.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.job)
	now := time.Now().UTC()
	c.job.LastUpdate = &now
	return c.job
}

// run drives one job from worker spawn to final state. It is the only
// goroutine that transitions the job out of running.
func (c *Controller) run(proc Process, startPage int, done chan struct{}) {
	ctx := context.Background()
	agg := newAggregator(c.store, c.hub, c.activity, c.updateJob, startPage)

	consumeErr := agg.consume(ctx, proc.Stdout())
	if consumeErr != nil {
		// Persistence failed beyond retry; the worker's output has nowhere
		// to go, so take it down.
		proc.Signal()
		proc.Kill()
	}
	waitErr := proc.Wait()

	c.mu.Lock()
	stopRequested := c.stopRequested
	forceKilled := c.forceKilled
	c.mu.Unlock()

	var (
		finalStatus      models.JobStatus
		checkpointStatus string
		message          string
	)
	switch {
	case consumeErr != nil:
		finalStatus = models.JobStatusError
		checkpointStatus = models.CheckpointError
		message = consumeErr.Error()
	case forceKilled:
		finalStatus = models.JobStatusError
		checkpointStatus = models.CheckpointError
		message = fmt.Sprintf("worker did not stop within %s and was killed", c.stopGrace)
	case stopRequested:
		finalStatus = models.JobStatusIdle
		checkpointStatus = models.CheckpointStopped
		message = "зупинено користувачем"
	case waitErr == nil:
		finalStatus = models.JobStatusCompleted
		checkpointStatus = models.CheckpointCompleted
		message = "збір завершено"
	default:
		finalStatus = models.JobStatusError
		checkpointStatus = models.CheckpointError
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			message = fmt.Sprintf("worker exited with code %d", exitErr.ExitCode())
		} else {
			message = fmt.Sprintf("worker failed: %v", waitErr)
		}
	}

	job := c.updateJob(func(j *models.Job) {
		j.Status = finalStatus
		j.Message = message
		if finalStatus == models.JobStatusCompleted {
			j.ProgressPercent = 100
		}
		if finalStatus == models.JobStatusError {
			j.Error = message
		}
	})

	// The final checkpoint is flushed before the running flag is released,
	// so a stop acknowledgement always covers a committed checkpoint.
	if err := agg.saveCheckpoint(ctx, job.CurrentPage, checkpointStatus); err != nil {
		log.Printf("scraper: final checkpoint save failed: %v", err)
	}

	// A full run from page 1 has seen every live listing; the rest went
	// off market.
	if finalStatus == models.JobStatusCompleted && startPage == 1 {
		if n, err := c.store.MarkInactiveExcept(ctx, agg.seenOlxIDs, time.Now().UTC()); err != nil {
			log.Printf("scraper: mark inactive: %v", err)
		} else if n > 0 {
			c.activity.Info(ctx, fmt.Sprintf("Знято з публікації: %d оголошень", n))
		}
	}

	switch finalStatus {
	case models.JobStatusCompleted:
		c.activity.Info(ctx, fmt.Sprintf("Збір завершено: %d оголошень", agg.totalProcessed))
		c.hub.PublishProgress(&models.WorkerProgress{
			CurrentPage:     job.CurrentPage,
			TotalPages:      job.TotalPages,
			CurrentItems:    job.CurrentItems,
			TotalItems:      job.TotalItems,
			ProgressPercent: 100,
			Message:         message,
		})
	case models.JobStatusError:
		c.activity.Error(ctx, message)
		c.hub.PublishError(message)
	default:
		c.activity.Info(ctx, fmt.Sprintf("Збір зупинено на сторінці %d", job.CurrentPage))
		c.hub.PublishLog(models.LogLevelInfo, message)
	}

	c.mu.Lock()
	c.running = false
	c.proc = nil
	c.mu.Unlock()
	close(done)
}
