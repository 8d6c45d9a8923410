package services

import (
	"context"
	"errors"
	"time"

	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/internal/queue"
	"rag-chatbot-backend/internal/session"
	"rag-chatbot-backend/internal/vectorindex"

	"github.com/go-co-op/gocron"
	"github.com/hibiken/asynq"
)

const (
	TagSessionEviction = "session-eviction"
	TagIndexRefresh    = "index-refresh"
	TagIngestScan      = "ingest-scan"

	jobTimeout = 5 * time.Minute
)

// Scheduler runs the periodic maintenance jobs of the API and worker processes.
type Scheduler struct {
	scheduler *gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	s.SingletonModeAll()

	return &Scheduler{
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop waits for running jobs and cancels their context.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

// ScheduleInterval runs job every interval, first right away. The job
// receives a context bounded by jobTimeout and cancelled on Stop.
func (s *Scheduler) ScheduleInterval(tag string, interval time.Duration, job func(ctx context.Context) error) error {
	if interval <= 0 {
		return errors.New("schedule interval must be positive")
	}
	_, err := s.scheduler.Every(interval).Tag(tag).Do(func() {
		ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			logger.Error("Scheduled job failed", "job", tag, "error", err)
			return
		}
		logger.Debug("Scheduled job finished", "job", tag, "duration", time.Since(start))
	})
	return err
}

func (s *Scheduler) RemoveJob(tag string) error {
	return s.scheduler.RemoveByTag(tag)
}

func (s *Scheduler) Jobs() []*gocron.Job {
	return s.scheduler.Jobs()
}

// EvictSessionsJob drops idle sessions from memory.
func EvictSessionsJob(m *session.Manager) func(context.Context) error {
	return func(context.Context) error {
		if n := m.EvictIdle(); n > 0 {
			logger.Info("Evicted idle sessions", "count", n, "remaining", m.Len())
		}
		return nil
	}
}

// RefreshIndexJob reloads the index when another process persisted a newer
// generation.
func RefreshIndexJob(store vectorindex.Store) func(context.Context) error {
	return func(ctx context.Context) error {
		changed, err := store.Refresh(ctx)
		if err != nil {
			return err
		}
		if changed {
			logger.Info("Vector index reloaded", "size", store.Len())
		}
		return nil
	}
}

// Scanner lists the candidate files of a data directory.
type Scanner interface {
	Scan(dir string) ([]string, error)
}

// IngestScanJob enqueues an ingestion task for files in dir that the index
// does not know yet.
func IngestScanJob(scanner Scanner, store vectorindex.Store, client queue.Enqueuer, dir string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, _, err := EnqueueNewFiles(ctx, scanner, store, client, dir)
		if errors.Is(err, queue.ErrIngestPending) {
			logger.Debug("Ingest task already pending", "dir", dir)
			return nil
		}
		return err
	}
}

// EnqueueNewFiles scans dir and queues the unindexed files. With nothing new
// it returns no task and no paths.
func EnqueueNewFiles(ctx context.Context, scanner Scanner, store vectorindex.Store, client queue.Enqueuer, dir string) (*asynq.TaskInfo, []string, error) {
	paths, err := scanner.Scan(dir)
	if err != nil {
		return nil, nil, err
	}

	var fresh []string
	for _, p := range paths {
		if !store.HasSource(p) {
			fresh = append(fresh, p)
		}
	}
	if len(fresh) == 0 {
		return nil, nil, nil
	}

	info, err := queue.EnqueueIngest(ctx, client, fresh)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Queued new files for ingestion", "files", len(fresh), "task_id", info.ID)
	return info, fresh, nil
}
