package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const taskTimeout = 15 * time.Minute

// Scheduler runs feeds on a cron schedule and on demand. A single worker
// drains the queue so two feeds are never processed at the same time.
type Scheduler struct {
	runner    *Runner
	schedule  string
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface
}

func NewScheduler(runner *Runner, schedule string) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		cron: cron.New(
			cron.WithChain(cron.Recover(cron.DefaultLogger)),
		),
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan TaskInterface, 100),
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.enqueueTasks); err != nil {
		return fmt.Errorf("invalid schedule '%s': %w", s.schedule, err)
	}

	s.wg.Add(1)
	go s.worker()

	s.runner.SyncFeeds(s.ctx)
	s.enqueueTasks()

	s.cron.Start()
	slog.Info("Scheduler started", "schedule", s.schedule)

	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
	slog.Info("Scheduler stopped")
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// Trigger enqueues a single feed regardless of the schedule
func (s *Scheduler) Trigger(feedKey string) error {
	feedConfig, err := s.runner.Feed(feedKey)
	if err != nil {
		return err
	}
	return s.EnqueueTask(s.runner.NewTask(feedConfig))
}

func (s *Scheduler) enqueueTasks() {
	keys := s.runner.EnabledKeys()
	if len(keys) == 0 {
		slog.Debug("No enabled feeds found")
		return
	}

	slog.Debug("Enqueueing enabled feeds", "count", len(keys))

	for _, key := range keys {
		if err := s.Trigger(key); err != nil {
			slog.Warn("Failed to enqueue ProcessFeedTask", "feed", key, "error", err)
		}
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(task)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	if err := task.Execute(taskCtx); err != nil {
		slog.Debug("Worker task execution failed", "type", string(task.GetType()), "id", task.GetID(), "feed", task.GetFeedName(), "error", err)
	}
}
