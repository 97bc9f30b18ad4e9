// Package schedulersvc runs the periodic coursework status sweep.
package schedulersvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/coursework"
)

type StatusSweeper interface {
	Sweep(ctx context.Context) (coursework.SweepReport, error)
}

// cronLogger forwards robfig/cron logs to core.Logger.
type cronLogger struct {
	logger core.Logger
}

var _ cron.Logger = (*cronLogger)(nil)

func kvMap(keysAndValues []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		m[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return m
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kvMap(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, err, kvMap(keysAndValues))
}

// Sweeper runs StatusSweeper.Sweep on a cron schedule, one run at a time.
type Sweeper struct {
	cron    *cron.Cron
	sweeper StatusSweeper
	logger  core.Logger
	timeout time.Duration
}

func NewSweeper(sweeper StatusSweeper, logger core.Logger, conf *core.Config) (*Sweeper, error) {
	cl := cronLogger{logger: logger}
	s := &Sweeper{
		cron: cron.New(
			cron.WithLocation(conf.Location()),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		sweeper: sweeper,
		logger:  logger,
		timeout: 4 * time.Minute,
	}
	if _, err := s.cron.AddFunc(conf.Coursework.SweepSchedule, s.Run); err != nil {
		return nil, errors.Wrapf(err, "scheduling status sweep %q", conf.Coursework.SweepSchedule)
	}
	return s, nil
}

// Run performs a single sweep.
func (s *Sweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Error(fmt.Sprintf("status sweep: %v", err), err)
	}
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop stops scheduling new sweeps and waits for the running one, if any, until ctx is done.
func (s *Sweeper) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for the running sweep")
	}
}
