package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"zonafiscal/internal/domain/lifecycle"
	"zonafiscal/internal/notify"
	"zonafiscal/internal/platform/config"
	"zonafiscal/internal/platform/slack"
)

const JobDeadlineSweep = "lgpd_deadline_sweep"

// Service runs background work through a single bounded queue and records
// every run in job_runs so operators can audit what happened and when.
type Service struct {
	DB        *pgxpool.Pool
	Cfg       config.Config
	Lifecycle *lifecycle.Service
	Notify    *notify.Dispatcher
	queue     chan job
}

type job struct {
	Type string
	Run  func(context.Context) (any, error)
}

func New(db *pgxpool.Pool, cfg config.Config, lc *lifecycle.Service, dispatcher *notify.Dispatcher) *Service {
	return &Service{
		DB:        db,
		Cfg:       cfg,
		Lifecycle: lc,
		Notify:    dispatcher,
		queue:     make(chan job, 128),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.Cfg.DeadlineSweepInterval > 0 {
		go s.scheduleDeadlineSweep(ctx, s.Cfg.DeadlineSweepInterval)
	}
}

func (s *Service) Enqueue(jobType string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

// RunDeadlineSweep expires stale reactivation requests, synchronously.
// The cron endpoint and the interval scheduler both funnel through here.
func (s *Service) RunDeadlineSweep(ctx context.Context) (any, error) {
	return s.RunNow(ctx, JobDeadlineSweep, s.sweep)
}

func (s *Service) sweep(ctx context.Context) (any, error) {
	expired, err := s.Lifecycle.ExpireStaleRequests(ctx)
	if err == nil && expired > 0 {
		s.Notify.Alert(slack.Payload{
			Type:    "warning",
			Title:   "Prazos de reativação expirados",
			Message: "Solicitações de reativação ultrapassaram a janela de 7 dias",
			Data:    map[string]any{"expired": expired},
		})
	}
	return map[string]any{"expired": expired}, err
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, status)
    VALUES ($1,$2)
    RETURNING id
  `, j.Type, "running").Scan(&runID); err != nil {
		slog.Warn("job run insert failed", "err", err)
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON, runID); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) scheduleDeadlineSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(JobDeadlineSweep, s.sweep)
		}
	}
}
