package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/usmnv/gdbot/internal/config"
	"github.com/usmnv/gdbot/internal/database"
)

// Scheduler runs the periodic storage maintenance job.
type Scheduler struct {
	scheduler gocron.Scheduler
	store     database.Store
	cfg       config.SchedulerConfig
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
}

func NewScheduler(store database.Store, cfg config.SchedulerConfig, logger *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		store:     store,
		cfg:       cfg,
		logger:    logger.With("component", "scheduler"),
	}, nil
}

// Start registers the maintenance job and begins ticking. Calling Start on
// a running scheduler is an error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	if s.cfg.MaintenanceEnabled {
		_, err := s.scheduler.NewJob(
			gocron.CronJob(s.cfg.MaintenanceCron, false),
			gocron.NewTask(s.runMaintenance),
			gocron.WithName("storage_maintenance"),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule maintenance job: %w", err)
		}
		s.logger.Info("Maintenance job scheduled", "cron", s.cfg.MaintenanceCron)
	} else {
		s.logger.Info("Maintenance job disabled")
	}

	s.scheduler.Start()
	s.running = true
	return nil
}

func (s *Scheduler) runMaintenance() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	if err := s.store.RunMaintenance(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Storage maintenance failed", "error", err)
		return
	}
	s.logger.InfoContext(ctx, "Storage maintenance completed", "duration", time.Since(start))
}

// Stop shuts the scheduler down, waiting for a running job to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	return nil
}
