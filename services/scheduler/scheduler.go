// Package scheduler runs the periodic jobs: LMS sync and the instructor digest.
package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/kikundi/core"
)

// Job is a named periodic task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler struct {
	cron    *cron.Cron
	logger  core.Logger
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(logger core.Logger) *Scheduler {
	cl := cronLogger{logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		timeout: 10 * time.Minute,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add schedules job with a cron spec ("0 7 * * *", "@every 5m"...).
func (s *Scheduler) Add(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(job) })
	return errors.Wrapf(err, "scheduling %s", job.Name())
}

func (s *Scheduler) run(job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("job failed", err, map[string]interface{}{"job": job.Name()})
		return
	}
	s.logger.Info("job done", map[string]interface{}{"job": job.Name(), "duration": time.Since(start).String()})
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return, or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "stopping scheduler")
	}
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kvFields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, err, kvFields(keysAndValues))
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			fields[k] = kv[i+1]
		}
	}
	return fields
}
