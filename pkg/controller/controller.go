package controller

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sailthru/relay-mesos/pkg/log"
	"github.com/sailthru/relay-mesos/pkg/metrics"
)

// Source lazily produces one value per pull. Sources may block; the loop
// tolerates that, the scheduler never waits on it.
type Source interface {
	Next() (float64, error)
}

// SourceFunc adapts a plain function to a Source.
type SourceFunc func() (float64, error)

func (f SourceFunc) Next() (float64, error) { return f() }

// Constant returns a source that always yields v.
func Constant(v float64) Source {
	return SourceFunc(func() (float64, error) { return v, nil })
}

// Strategy turns an observed (metric, target) pair into a signed task
// count: positive for warmer tasks, negative for cooler tasks.
type Strategy interface {
	Step(metric, target float64) int
}

// Proportional is the default strategy: the error times a gain, rounded.
type Proportional struct {
	Gain float64
}

func (p Proportional) Step(metric, target float64) int {
	return int(math.Round(p.Gain * (target - metric)))
}

// Callback receives a signed task count from the loop. The warmer callback
// gets positive counts, the cooler callback negative ones; the sign is
// supplied by the strategy either way.
type Callback func(n int)

// Loop is the periodic controller worker. Each tick it pulls one metric
// and one target value, asks the strategy for a signed count, and hands
// the count to the warmer or cooler callback.
type Loop struct {
	metric   Source
	target   Source
	strategy Strategy
	delay    time.Duration
	warmer   Callback
	cooler   Callback

	readyOnce sync.Once
	ready     chan struct{}
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// NewLoop builds a controller loop ticking every delay.
func NewLoop(metric, target Source, strategy Strategy, delay time.Duration, warmer, cooler Callback) *Loop {
	return &Loop{
		metric:   metric,
		target:   target,
		strategy: strategy,
		delay:    delay,
		warmer:   warmer,
		cooler:   cooler,
		ready:    make(chan struct{}),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Ready is closed once the loop is about to take its first tick.
func (l *Loop) Ready() <-chan struct{} { return l.ready }

// Done is closed when the loop has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Start runs the loop in its own goroutine.
func (l *Loop) Start() {
	go l.run()
}

// Stop terminates the loop. Safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *Loop) run() {
	defer close(l.done)
	logger := log.WithComponent("controller")

	ticker := time.NewTicker(l.delay)
	defer ticker.Stop()

	l.readyOnce.Do(func() { close(l.ready) })

	for {
		select {
		case <-ticker.C:
			l.tick(logger)
		case <-l.stopCh:
			return
		}
	}
}

func (l *Loop) tick(logger zerolog.Logger) {
	metrics.ControllerTicks.Inc()

	metric, err := l.metric.Next()
	if err != nil {
		logger.Warn().Err(err).Msg("metric source failed, skipping tick")
		return
	}
	target, err := l.target.Next()
	if err != nil {
		logger.Warn().Err(err).Msg("target source failed, skipping tick")
		return
	}

	n := l.strategy.Step(metric, target)
	logger.Debug().
		Float64("metric", metric).
		Float64("target", target).
		Int("count", n).
		Msg("controller tick")

	switch {
	case n > 0:
		l.warmer(n)
	case n < 0:
		l.cooler(n)
	}
}
