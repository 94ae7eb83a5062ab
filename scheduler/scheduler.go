// Package scheduler kicks off periodic scrape runs. A run that collides
// with an already-active job is skipped, never queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"glownest/config"
	"glownest/models"
	"glownest/scraper"
)

type Scheduler struct {
	cfg        *config.Config
	controller *scraper.Controller
	cron       *cron.Cron
}

func New(cfg *config.Config, controller *scraper.Controller) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		controller: controller,
		cron:       cron.New(),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Scheduler.Cron == "" {
		log.Println("No schedule configured, scraping runs on demand only")
		return nil
	}

	log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
	_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
		s.runOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	job, err := s.controller.Start(ctx, models.JobConfig{
		ListingType: s.cfg.Scraper.ListingType,
		MaxPages:    s.cfg.Scraper.MaxPages,
		DelayMS:     s.cfg.Scraper.DelayMS,
	})
	if errors.Is(err, scraper.ErrJobRunning) {
		log.Println("Scheduled run skipped: a job is already running")
		return
	}
	if err != nil {
		log.Printf("Scheduled run error: %v", err)
		return
	}
	log.Printf("Scheduled run started: %s", job.ID)
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
