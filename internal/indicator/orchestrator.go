package indicator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"coincast/internal/cache"
	"coincast/internal/errs"
	"coincast/internal/metrics"
	"coincast/pkg/model"
)

// MinDataPoints is the shortest price series the orchestrator accepts
const MinDataPoints = 20

// ValidHorizons are the supported forecast lengths in days
var ValidHorizons = []int{10, 20, 30}

// IsValidHorizon reports whether days is a supported forecast length
func IsValidHorizon(days int) bool {
	for _, h := range ValidHorizons {
		if h == days {
			return true
		}
	}
	return false
}

// Orchestrator runs every formula concurrently and absorbs single failures
type Orchestrator struct {
	formulas []Formula
	cache    *cache.Cache[model.IndicatorResult]
	log      zerolog.Logger
	sink     metrics.Sink
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithFormulas replaces the default formula set
func WithFormulas(formulas []Formula) Option {
	return func(o *Orchestrator) {
		o.formulas = formulas
	}
}

// WithCache replaces the result cache
func WithCache(c *cache.Cache[model.IndicatorResult]) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.cache = c
		}
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// WithSink sets the metrics sink
func WithSink(s metrics.Sink) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sink = s
		}
	}
}

// NewOrchestrator creates an orchestrator with the ten default formulas
func NewOrchestrator(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		formulas: DefaultFormulas(),
		log:      zerolog.Nop(),
		sink:     metrics.Nop{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cache == nil {
		o.cache = cache.New[model.IndicatorResult]("indicators")
	}
	return o
}

// Formulas returns the configured formulas in dispatch order
func (o *Orchestrator) Formulas() []Formula {
	return o.formulas
}

// Cache exposes the result cache for the debug dump
func (o *Orchestrator) Cache() *cache.Cache[model.IndicatorResult] {
	return o.cache
}

// CalculateAll runs every formula against prices and returns the results
// with a non-empty forecast, in dispatch order.
//
// A failing formula is logged and dropped. Only when every formula fails is
// a ComputationError returned.
func (o *Orchestrator) CalculateAll(ctx context.Context, symbol string, prices []model.PricePoint, days int) ([]model.IndicatorResult, error) {
	if len(prices) < MinDataPoints {
		return nil, errs.Validation("prices", "need at least %d data points, got %d", MinDataPoints, len(prices))
	}
	if !IsValidHorizon(days) {
		return nil, errs.Validation("forecast_days", "must be one of %v, got %d", ValidHorizons, days)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { o.sink.ObserveStage("indicators", time.Since(start)) }()

	results := make([]model.IndicatorResult, len(o.formulas))
	failures := make([]error, len(o.formulas))

	var wg sync.WaitGroup
	for i, f := range o.formulas {
		wg.Add(1)
		go func(i int, f Formula) {
			defer wg.Done()

			key := fmt.Sprintf("%s:%d:%s:%d", symbol, days, f.Kind, len(prices))
			result, err := o.cache.GetOrCompute(key, func() (model.IndicatorResult, error) {
				return run(f, prices, days)
			})
			if err != nil {
				failures[i] = err
				o.sink.Failure("indicator", string(f.Kind))
				o.log.Warn().Err(err).Str("symbol", symbol).Str("indicator", f.Name).Msg("indicator failed")
				results[i] = placeholder(f)
				return
			}
			results[i] = result
		}(i, f)
	}
	wg.Wait()

	valid := make([]model.IndicatorResult, 0, len(results))
	for _, r := range results {
		if len(r.Forecast) > 0 {
			valid = append(valid, r)
		}
	}

	if len(valid) == 0 {
		var collected []error
		for _, err := range failures {
			if err != nil {
				collected = append(collected, err)
			}
		}
		return nil, &errs.ComputationError{
			Stage:    "indicators",
			Message:  "technical analysis failed: no indicator produced a forecast",
			Failures: collected,
		}
	}

	o.log.Debug().
		Str("symbol", symbol).
		Int("succeeded", len(valid)).
		Int("total", len(o.formulas)).
		Dur("elapsed", time.Since(start)).
		Msg("indicators computed")
	return valid, nil
}

// run executes one formula on its own copy of the data. A panic inside a
// formula is converted to an error.
func run(f Formula, prices []model.PricePoint, days int) (result model.IndicatorResult, err error) {
	if len(prices) < f.MinData {
		return result, &errs.InsufficientDataError{Indicator: f.Name, Have: len(prices), Need: f.MinData}
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: formula panicked: %v", f.Name, r)
		}
	}()

	start := time.Now()
	out, err := f.Compute(NewInput(prices), days)
	if err != nil {
		return result, fmt.Errorf("%s: %w", f.Name, err)
	}
	if len(out.Forecast) == 0 {
		return result, fmt.Errorf("%s: empty forecast", f.Name)
	}

	return model.IndicatorResult{
		Name:          f.Name,
		Kind:          f.Kind,
		Forecast:      out.Forecast,
		Accuracy:      f.Accuracy,
		Weight:        f.Weight,
		ExecutionTime: time.Since(start),
		Lines:         out.Lines,
	}, nil
}

func placeholder(f Formula) model.IndicatorResult {
	return model.IndicatorResult{
		Name:     f.Name,
		Kind:     f.Kind,
		Accuracy: 0,
		Weight:   0,
	}
}
