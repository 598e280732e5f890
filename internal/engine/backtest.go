package engine

import (
	"fmt"
	"portfolio-backtester/types"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// backtester is one simulation run. It owns its portfolio and feeds
// exclusively and steps through the calendar one trading day at a time.
type backtester struct {
	strategy  Strategy
	broker    *broker
	portfolio *portfolio
	feeds     []*dataFeed
	calendar  []time.Time

	diagnostics  []Diagnostic
	showProgress bool
	logger       *zap.Logger
}

func newBacktester(
	strat Strategy,
	broker *broker,
	portfolio *portfolio,
	feeds []*dataFeed,
	calendar []time.Time,
	showProgress bool,
	logger *zap.Logger,
) *backtester {
	return &backtester{
		strategy:     strat,
		broker:       broker,
		portfolio:    portfolio,
		feeds:        feeds,
		calendar:     calendar,
		showProgress: showProgress,
		logger:       logger,
	}
}

func (b *backtester) run() error {
	var bar *progressbar.ProgressBar
	if b.showProgress {
		bar = initProgressBar(len(b.calendar))
	}
	for day, curTime := range b.calendar {
		if err := b.step(day, curTime); err != nil {
			return err
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return nil
}

// step simulates one trading day: history, signals, fills, ledger, snapshot.
func (b *backtester) step(day int, curTime time.Time) error {
	visible := make(map[string][]types.PriceBar, len(b.feeds))
	bars := make(map[string]types.PriceBar, len(b.feeds))
	closes := make(map[string]decimal.Decimal, len(b.feeds))
	for _, feed := range b.feeds {
		feed.advance(curTime)
		visible[feed.symbol] = feed.visible()
		bar, ok := feed.current(curTime)
		if !ok {
			return fmt.Errorf("%s has no bar on calendar date %s", feed.symbol, curTime.Format(time.DateOnly))
		}
		bars[feed.symbol] = bar
		closes[feed.symbol] = bar.Close
	}

	history := History{asOf: curTime, bars: visible}
	if err := history.verify(); err != nil {
		return err
	}

	view := b.portfolio.view(curTime, day, closes)
	intents, err := b.generateSignals(curTime, view, history)
	if err != nil {
		return &StrategyError{Date: curTime, Err: err}
	}
	for _, intent := range intents {
		if intent.CreatedAt.After(curTime) {
			return &LookaheadViolation{Symbol: intent.Symbol, Date: curTime, BarDate: intent.CreatedAt}
		}
	}

	fills, diags := b.broker.Execute(curTime, intents, view, bars)
	for _, d := range diags {
		b.logger.Warn("dropped trade intent",
			zap.Time("date", d.Date),
			zap.String("symbol", d.Symbol),
			zap.String("side", string(d.Side)),
			zap.String("kind", string(d.Kind)),
			zap.Error(d.Err),
		)
	}
	b.diagnostics = append(b.diagnostics, diags...)

	for _, fill := range fills {
		if err := b.portfolio.apply(fill); err != nil {
			return fmt.Errorf("apply %s %s fill on %s: %w", fill.Side, fill.Symbol, curTime.Format(time.DateOnly), err)
		}
	}

	snap, err := b.portfolio.markToMarket(curTime, closes)
	if err != nil {
		return err
	}
	b.logger.Debug("day closed",
		zap.Time("date", curTime),
		zap.Int("fills", len(fills)),
		zap.String("cash", snap.Cash.String()),
		zap.String("total_value", snap.TotalValue.String()),
	)
	return nil
}

// generateSignals calls the strategy, turning a panic into an error so a
// broken strategy fails the run instead of the process.
func (b *backtester) generateSignals(curTime time.Time, view types.PortfolioView, history History) (intents []types.TradeIntent, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return b.strategy.GenerateSignals(curTime, view, history)
}

func initProgressBar(maxTicks int) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Backtesting in progress..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
