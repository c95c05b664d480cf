package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task is one named periodic job owned by the Scheduler.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Scheduler owns the tick tasks of every dispatcher and sweep. Each
// task runs on its own ticker so intervals stay independent per queue
// type; all of them stop together when the context is cancelled.
type Scheduler struct {
	logger *slog.Logger
	tasks  []Task
	wg     sync.WaitGroup
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

func (s *Scheduler) Add(name string, interval time.Duration, run func(ctx context.Context)) {
	s.tasks = append(s.tasks, Task{Name: name, Interval: interval, Run: run})
}

// AddGroup registers one task that fires all given jobs in parallel on
// every tick, the fan-out "process all queues" shape.
func (s *Scheduler) AddGroup(name string, interval time.Duration, runs ...func(ctx context.Context)) {
	s.Add(name, interval, func(ctx context.Context) {
		g, gCtx := errgroup.WithContext(ctx)
		for _, run := range runs {
			run := run
			g.Go(func() error {
				run(gCtx)
				return nil
			})
		}
		_ = g.Wait()
	})
}

// Start launches every task. Each runs once immediately, then on its
// ticker until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, task := range s.tasks {
		task := task
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.logger.Info("scheduler task started",
				slog.String("task", task.Name),
				slog.Duration("interval", task.Interval))

			task.Run(ctx)

			ticker := time.NewTicker(task.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					task.Run(ctx)
				case <-ctx.Done():
					s.logger.Info("scheduler task stopped", slog.String("task", task.Name))
					return
				}
			}
		}()
	}
}

// Wait blocks until all tasks have stopped after cancellation.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
