package engine

import (
	"context"
	"portfolio-backtester/types"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SweepJob is one independent run of a batch.
type SweepJob struct {
	Name   string
	Config types.StrategyConfig
}

// SweepOutcome pairs a job with its result. Err is set when that run failed;
// a failed run does not stop the batch.
type SweepOutcome struct {
	Job    SweepJob
	Result *Result
	Err    error
}

// Sweep runs jobs over the same dataset with at most workers runs in flight.
// Each run gets its own ledger; the price series are only read. Cancelling
// ctx stops jobs that have not started yet and Sweep returns ctx.Err().
func (e *Engine) Sweep(
	ctx context.Context,
	jobs []SweepJob,
	start, end time.Time,
	priceSeries map[string][]types.PriceBar,
	benchmark []types.PriceBar,
	workers int,
) ([]SweepOutcome, error) {
	if workers < 1 {
		workers = 1
	}
	outcomes := make([]SweepOutcome, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, job := range jobs {
		i, job := i, job
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.Run(job.Config, start, end, priceSeries, benchmark)
			outcomes[i] = SweepOutcome{Job: job, Result: res, Err: err}
			if err != nil {
				e.logger.Warn("sweep run failed", zap.String("job", job.Name), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
