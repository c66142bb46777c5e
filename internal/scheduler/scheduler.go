package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/prism-archive/internal/climate"
)

// Pipeline is what the scheduler drives; *climate.Service implements it.
type Pipeline interface {
	Fetch(ctx context.Context, v climate.Variable, date time.Time) (climate.FetchResult, error)
	Aggregate(ctx context.Context, req climate.AggregateRequest) (climate.DerivedProduct, error)
}

// Options configures a Scheduler.
type Options struct {
	Variables      []climate.Variable
	Interval       time.Duration
	LookbackDays   int
	Concurrency    int
	CumulativeDays int
	Backoff        BackoffConfig
	Logger         *zap.Logger
}

// Scheduler periodically refreshes the trailing days of every variable and
// recomputes the cumulative precipitation product.
type Scheduler struct {
	scheduler *gocron.Scheduler
	pipeline  Pipeline
	opts      Options
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Summary counts the outcomes of one run.
type Summary struct {
	Installed    int
	UpToDate     int
	NotPublished int
	Failed       int
	Product      *climate.DerivedProduct
}

// New creates a new Scheduler.
func New(pipeline Pipeline, opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 1
	}
	if opts.Backoff.InitialInterval <= 0 {
		opts.Backoff.InitialInterval = 2 * time.Second
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		pipeline:  pipeline,
		opts:      opts,
		logger:    opts.Logger,
		now:       time.Now,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// Jobs run with a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.opts.Variables) == 0 {
		s.logger.Info("scheduler: no variables configured; nothing to schedule")
		return nil
	}

	minutes := int(s.opts.Interval.Minutes())
	if minutes <= 0 {
		minutes = 24 * 60
	}

	jobCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	_, err := s.scheduler.Every(minutes).Minutes().SingletonMode().Do(func() {
		s.logger.Info("scheduler: running archive refresh")
		sum, err := s.RunOnce(jobCtx)
		if err != nil {
			s.logger.Warn("scheduler: refresh interrupted", zap.Error(err))
			return
		}
		s.logger.Info("scheduler: completed archive refresh",
			zap.Int("installed", sum.Installed),
			zap.Int("up_to_date", sum.UpToDate),
			zap.Int("not_published", sum.NotPublished),
			zap.Int("failed", sum.Failed))
	})
	if err != nil {
		cancel()
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop cancels running jobs and stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// RunOnce fetches the last LookbackDays days (ending yesterday) of every
// variable and then refreshes the cumulative precipitation product ending
// yesterday. Per-date failures are counted and logged, not returned.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	var (
		mu  sync.Mutex
		sum Summary
	)
	latest := climate.Day(s.now()).AddDate(0, 0, -1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, v := range s.opts.Variables {
		for i := 0; i < s.opts.LookbackDays; i++ {
			v, date := v, latest.AddDate(0, 0, -i)
			if date.Before(climate.ArchiveStart) {
				continue
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, retries, err := withRetry(gctx, s.opts.Backoff, func() (climate.FetchResult, error) {
					return s.pipeline.Fetch(gctx, v, date)
				})
				log := s.logger.With(zap.String("variable", string(v)), zap.String("date", climate.DateToken(date)))

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil && res.Outcome == climate.FetchInstalled:
					sum.Installed++
				case err == nil:
					sum.UpToDate++
				case errors.Is(err, climate.ErrNoCandidate):
					sum.NotPublished++
					log.Debug("not published yet")
				case errors.Is(err, context.Canceled):
					return err
				default:
					sum.Failed++
					log.Warn("fetch failed", zap.Int("retries", retries), zap.Error(err))
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	if s.hasVariable(climate.VariablePrecipitation) {
		p, err := s.pipeline.Aggregate(ctx, climate.AggregateRequest{
			Variable:  climate.VariablePrecipitation,
			Date:      latest,
			Days:      s.opts.CumulativeDays,
			Reduction: climate.Sum,
		})
		switch {
		case err == nil:
			sum.Product = &p
		case errors.Is(err, climate.ErrIncompleteWindow):
			s.logger.Info("cumulative product not ready", zap.Error(err))
		default:
			s.logger.Warn("cumulative product failed", zap.Error(err))
		}
	}
	return sum, nil
}

func (s *Scheduler) hasVariable(v climate.Variable) bool {
	for _, x := range s.opts.Variables {
		if x == v {
			return true
		}
	}
	return false
}
