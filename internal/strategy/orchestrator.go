package strategy

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"coincast/internal/cache"
	"coincast/internal/errs"
	"coincast/internal/forecast"
	"coincast/internal/metrics"
	"coincast/internal/numeric"
	"coincast/pkg/model"
)

const (
	// noiseThreshold excludes low-confidence signals from the consensus
	noiseThreshold = 0.1
	// consensusThreshold is the normalized score a direction must exceed
	consensusThreshold = 0.3
	// neutralDamping scales the confidence of a no-consensus signal
	neutralDamping = 0.5
	// reasonThreshold is the confidence above which a strategy's lead reason
	// is quoted
	reasonThreshold = 0.5

	// ConsensusSource names the combined signal
	ConsensusSource = "consensus"
)

// Orchestrator runs every strategy concurrently and combines the survivors
type Orchestrator struct {
	strategies []Strategy
	merger     *forecast.Merger
	cache      *cache.Cache[model.CombinedStrategyResult]
	log        zerolog.Logger
	sink       metrics.Sink
	clock      cache.Clock
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithCache replaces the combined-result cache
func WithCache(c *cache.Cache[model.CombinedStrategyResult]) Option {
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

// WithClock sets the clock stamping consensus signals
func WithClock(c cache.Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// NewOrchestrator creates an orchestrator over the given strategies. A nil
// merger gets a private one.
func NewOrchestrator(strategies []Strategy, merger *forecast.Merger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		strategies: strategies,
		merger:     merger,
		log:        zerolog.Nop(),
		sink:       metrics.Nop{},
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.merger == nil {
		o.merger = forecast.NewMerger()
	}
	if o.cache == nil {
		o.cache = cache.New[model.CombinedStrategyResult]("combined")
	}
	return o
}

// Strategies returns the strategies in execution order
func (o *Orchestrator) Strategies() []Strategy {
	return o.strategies
}

// Cache exposes the combined-result cache for the debug dump
func (o *Orchestrator) Cache() *cache.Cache[model.CombinedStrategyResult] {
	return o.cache
}

type outcome struct {
	result *model.StrategyResult
	err    error
}

// RunAll executes every strategy against the indicator results and combines
// them. A failing strategy is logged and dropped; only when none succeeds is
// a ComputationError returned.
func (o *Orchestrator) RunAll(ctx context.Context, indicators []model.IndicatorResult, cfg Config) (*model.CombinedStrategyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set := model.NewIndicatorSet(indicators)
	key := cfg.signature() + ":" + strconv.FormatUint(setSignature(set), 16)
	if cached, ok := o.cache.Get(key); ok {
		return &cached, nil
	}

	start := time.Now()
	outcomes := make([]outcome, len(o.strategies))

	var wg sync.WaitGroup
	for i, s := range o.strategies {
		wg.Add(1)
		go func(i int, s Strategy) {
			defer wg.Done()
			outcomes[i] = o.execute(ctx, s, set, cfg)
		}(i, s)
	}
	wg.Wait()

	var results []model.StrategyResult
	var failures []error
	var failedNames []string
	for i, out := range outcomes {
		name := o.strategies[i].Name()
		if out.err != nil {
			failures = append(failures, out.err)
			failedNames = append(failedNames, name)
			o.sink.Failure("strategy", name)
			o.log.Warn().Err(out.err).Str("symbol", cfg.Symbol).Str("strategy", name).Msg("strategy failed")
			continue
		}
		results = append(results, *out.result)
	}

	if len(results) == 0 {
		return nil, &errs.ComputationError{
			Stage:    "strategies",
			Message:  "no strategies executed successfully",
			Failures: failures,
		}
	}

	combined := model.CombinedStrategyResult{
		Strategies: results,
		Signal:     CombineSignals(results, o.clock()),
		Forecast:   o.merger.MergeStrategies(cfg.Symbol, results, cfg.ForecastDays),
		Consensus:  BuildConsensus(results),
		Performance: model.PerformanceStats{
			TotalTime:  time.Since(start),
			Executed:   len(o.strategies),
			Succeeded:  len(results),
			Failed:     len(failedNames),
			FailedWith: failedNames,
		},
	}
	o.cache.Put(key, combined)
	o.sink.ObserveStage("strategies", time.Since(start))

	o.log.Debug().
		Str("symbol", cfg.Symbol).
		Str("signal", string(combined.Signal.Recommendation)).
		Float64("confidence", combined.Signal.ConfidenceScore).
		Int("succeeded", len(results)).
		Msg("strategies combined")
	return &combined, nil
}

// execute runs one strategy, converting a panic into an error
func (o *Orchestrator) execute(ctx context.Context, s Strategy, set model.IndicatorSet, cfg Config) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("%s: strategy panicked: %v", s.Name(), r)}
		}
	}()

	if !s.Requires().Satisfied(set) {
		return outcome{err: &errs.StrategyInputError{Strategy: s.Name(), Needed: s.Requires().Needed()}}
	}
	result, err := s.Execute(ctx, set, cfg)
	if err != nil {
		return outcome{err: err}
	}
	return outcome{result: result}
}

// CombineSignals scores the strategies' signals into one recommendation.
//
// Signals at or below the noise threshold are ignored. Each remaining signal
// contributes confidence x weight to its direction; buy and sell are
// normalized by the total including neutral. A direction wins when it beats
// the other and exceeds the consensus threshold. Otherwise the result is
// neutral with a damped confidence.
func CombineSignals(results []model.StrategyResult, now time.Time) model.TradeSignal {
	var buyScore, sellScore, totalWeight float64
	var buys, sells, neutrals int
	var leads []string

	for _, r := range results {
		conf := r.Signal.ConfidenceScore
		if conf <= noiseThreshold {
			continue
		}
		effective := conf * r.Weight
		switch r.Signal.Recommendation {
		case model.Buy:
			buyScore += effective
			buys++
		case model.Sell:
			sellScore += effective
			sells++
		default:
			neutrals++
		}
		totalWeight += effective

		if conf > reasonThreshold && len(r.Signal.Reasons) > 0 {
			leads = append(leads, r.Signal.Reasons[0])
		}
	}

	var buyNorm, sellNorm float64
	if totalWeight > 0 {
		buyNorm = numeric.Sanitize(buyScore/totalWeight, 0)
		sellNorm = numeric.Sanitize(sellScore/totalWeight, 0)
	}

	signal := model.TradeSignal{
		Recommendation: model.Neutral,
		Timestamp:      now,
		Strategy:       ConsensusSource,
	}
	switch {
	case buyNorm > sellNorm && buyNorm > consensusThreshold:
		signal.Recommendation = model.Buy
		signal.ConfidenceScore = buyNorm
	case sellNorm > buyNorm && sellNorm > consensusThreshold:
		signal.Recommendation = model.Sell
		signal.ConfidenceScore = sellNorm
	default:
		signal.ConfidenceScore = max(buyNorm, sellNorm) * neutralDamping
	}
	signal.ConfidenceScore = numeric.Clamp01(signal.ConfidenceScore)

	signal.Reasons = append([]string{fmt.Sprintf("%d buy, %d sell, %d neutral", buys, sells, neutrals)}, leads...)
	return signal
}

// BuildConsensus counts votes and finds the strongest strategy. Ties on
// confidence keep the first result.
func BuildConsensus(results []model.StrategyResult) model.Consensus {
	var c model.Consensus
	if len(results) == 0 {
		return c
	}

	var sum float64
	strongest := 0
	for i, r := range results {
		switch r.Signal.Recommendation {
		case model.Buy:
			c.BuyVotes++
		case model.Sell:
			c.SellVotes++
		default:
			c.NeutralVotes++
		}
		sum += r.Signal.ConfidenceScore
		if r.Signal.ConfidenceScore > results[strongest].Signal.ConfidenceScore {
			strongest = i
		}
	}
	c.AverageConfidence = sum / float64(len(results))
	s := results[strongest]
	c.Strongest = &s
	return c
}
