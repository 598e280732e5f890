package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"portfolio-backtester/internal/config"
	"portfolio-backtester/internal/engine"
	"portfolio-backtester/internal/infrastructure"
	"portfolio-backtester/internal/repository"
	"portfolio-backtester/strategies"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to backtester.yaml (default ./backtester.yaml if present)")
	runPath := flag.String("run", "run.yaml", "path to the strategy run file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *runPath); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, configPath, runPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := infrastructure.NewLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	rf, err := config.LoadRunFile(runPath)
	if err != nil {
		return err
	}

	source, closeSource, err := openPriceSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	series, err := source.LoadPriceSeries(ctx, rf.Symbols(), rf.StartDate(), rf.EndDate())
	if err != nil {
		return fmt.Errorf("load prices: %w", err)
	}

	var results *repository.ResultStore
	if cfg.Results.SQLitePath != "" {
		if results, err = repository.NewResultStore(ctx, cfg.Results.SQLitePath); err != nil {
			return err
		}
		defer results.Close()
	}

	metrics := infrastructure.NewMetrics()
	eng := engine.NewEngine(strategies.NewRegistry(), cfg.EngineExecution(), cfg.EngineReporting(), logger).
		WithObserver(metrics)

	jobs := rf.Jobs()
	logger.Info("starting batch",
		zap.String("run", rf.Name),
		zap.Int("jobs", len(jobs)),
		zap.String("source", cfg.Data.Source),
	)
	outcomes, sweepErr := eng.Sweep(ctx, jobs, rf.StartDate(), rf.EndDate(), series, series[rf.Benchmark], cfg.Sweep.Workers)

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", o.Job.Name, o.Err)
			continue
		}
		if o.Result == nil {
			continue // not started before cancellation
		}
		fmt.Printf("\n## %s\n", o.Job.Name)
		engine.PrintReport(os.Stdout, *o.Result.Report)

		if cfg.Reporting.OutputDir != "" {
			if err := o.Result.WriteCSVFiles(cfg.Reporting.OutputDir, filePrefix(o.Job.Name)); err != nil {
				return err
			}
		}
		if results != nil {
			id, err := results.SaveRun(ctx, o.Job.Name, o.Job.Config, *o.Result.Report, o.Result.Fills, o.Result.Snapshots)
			if err != nil {
				return fmt.Errorf("save %s: %w", o.Job.Name, err)
			}
			logger.Info("run saved", zap.String("job", o.Job.Name), zap.String("id", id))
		}
	}

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("write metrics textfile", zap.Error(err))
		}
	}

	if sweepErr != nil {
		return sweepErr
	}
	if failed == len(outcomes) && failed > 0 {
		return errors.New("every run failed")
	}
	return nil
}

func openPriceSource(ctx context.Context, cfg config.Config) (repository.PriceSource, func(), error) {
	switch cfg.Data.Source {
	case config.SourceParquet:
		return repository.NewParquetStore(cfg.Data.Dir), func() {}, nil
	default:
		db, err := repository.NewDatabase(ctx, cfg.Data.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect price database: %w", err)
		}
		return db, db.Close, nil
	}
}

var prefixReplacer = strings.NewReplacer("[", "_", "]", "", ",", "_", "=", "-", "/", "_", " ", "_")

func filePrefix(jobName string) string {
	return prefixReplacer.Replace(jobName)
}
