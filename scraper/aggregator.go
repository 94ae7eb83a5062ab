package scraper

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"glownest/activity"
	"glownest/models"
	"glownest/storage"
	"glownest/stream"
)

// forwardThreshold bounds the progress event volume sent to observers:
// a progress line is forwarded only when the percentage moved this much,
// or on a page boundary.
const forwardThreshold = 5

// aggregator turns the worker's raw line stream into normalized job state,
// checkpoints, and broadcast events. It is single-use, one per job run.
type aggregator struct {
	store    storage.Store
	hub      *stream.Hub
	activity *activity.Log
	update   func(fn func(*models.Job)) models.Job

	lastForwarded  int
	lastPageURL    string
	seenOlxIDs     []string
	totalProcessed int
	startPage      int
}

func newAggregator(store storage.Store, hub *stream.Hub, act *activity.Log,
	update func(fn func(*models.Job)) models.Job, startPage int) *aggregator {
	return &aggregator{
		store:         store,
		hub:           hub,
		activity:      act,
		update:        update,
		lastForwarded: -forwardThreshold,
		startPage:     startPage,
	}
}

// consume processes the stream strictly in arrival order until it closes.
// Only a persistence failure that survives its retry aborts the run; bad
// lines are logged and skipped.
func (a *aggregator) consume(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := parseLine(scanner.Text())
		switch line.kind {
		case lineProgress:
			if err := a.onProgress(ctx, line.progress); err != nil {
				return err
			}
		case lineItem:
			if err := a.onItem(ctx, line.property); err != nil {
				return err
			}
		case lineLog:
			a.hub.PublishLog(models.LogLevelInfo, line.text)
		case lineMalformed:
			log.Printf("scraper: skipping malformed worker line: %.200s", line.text)
			a.activity.Warn(ctx, "skipped a malformed worker event line")
		}
	}
	if err := scanner.Err(); err != nil {
		// Stream teardown, normal on kill. The exit code decides the outcome.
		log.Printf("scraper: worker stream closed: %v", err)
	}
	return nil
}

func (a *aggregator) onProgress(ctx context.Context, p *models.WorkerProgress) error {
	if p.PageURL != "" {
		a.lastPageURL = p.PageURL
	}

	a.update(func(j *models.Job) {
		j.CurrentPage = p.CurrentPage
		if p.TotalPages > 0 {
			j.TotalPages = p.TotalPages
		}
		j.CurrentItems = p.CurrentItems
		j.TotalItems = p.TotalItems
		j.ProgressPercent = p.ProgressPercent
		j.EstimatedTimeLeftSec = p.EstimatedTimeLeftSec
		j.Message = p.Message
	})

	if p.PageCompleted || p.ProgressPercent >= 100 ||
		p.ProgressPercent-a.lastForwarded >= forwardThreshold {
		a.hub.PublishProgress(p)
		a.lastForwarded = p.ProgressPercent
	}

	if p.PageCompleted {
		msg := fmt.Sprintf("Сторінка %d: зібрано %d оголошень", p.CurrentPage, p.PageItems)
		a.activity.Info(ctx, msg)
		a.hub.PublishLog(models.LogLevelInfo, msg)

		if err := a.saveCheckpoint(ctx, p.CurrentPage, models.CheckpointRunning); err != nil {
			return fmt.Errorf("checkpoint page %d: %w", p.CurrentPage, err)
		}
	}
	return nil
}

func (a *aggregator) onItem(ctx context.Context, p *models.Property) error {
	outcome, err := a.store.UpsertProperty(ctx, p)
	if err != nil {
		log.Printf("scraper: upsert %s failed, retrying: %v", p.OlxID, err)
		outcome, err = a.store.UpsertProperty(ctx, p)
	}
	if err != nil {
		return fmt.Errorf("persist item %s: %w", p.OlxID, err)
	}

	a.totalProcessed++
	if outcome != storage.OutcomeDuplicateSkipped {
		a.seenOlxIDs = append(a.seenOlxIDs, p.OlxID)
	}
	return nil
}

// saveCheckpoint overwrites the single checkpoint row, retrying once.
func (a *aggregator) saveCheckpoint(ctx context.Context, page int, status string) error {
	cp := &models.Checkpoint{
		LastPage:       page,
		LastURL:        a.lastPageURL,
		TotalProcessed: a.totalProcessed,
		LastRun:        time.Now().UTC(),
		Status:         status,
	}
	if len(a.seenOlxIDs) > 0 {
		cp.LastProcessedID = a.seenOlxIDs[len(a.seenOlxIDs)-1]
	}

	err := a.store.SaveCheckpoint(ctx, cp)
	if err != nil {
		log.Printf("scraper: checkpoint save failed, retrying: %v", err)
		err = a.store.SaveCheckpoint(ctx, cp)
	}
	return err
}
