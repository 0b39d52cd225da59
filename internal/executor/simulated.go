package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/loomworks/loom/pkg/api"
)

type (
	// Simulated stands in for step types without a wired executor. Runs take
	// a pseudo-random latency and can be configured to fail, which keeps
	// end-to-end behavior observable without external services
	Simulated struct {
		rand       *rand.Rand
		mu         sync.Mutex
		minLatency time.Duration
		maxLatency time.Duration
		failRate   float64
	}

	// SimulatedConfig tunes the simulator
	SimulatedConfig struct {
		Seed       int64
		MinLatency time.Duration
		MaxLatency time.Duration
		FailRate   float64
	}
)

var ErrSimulatedFailure = errors.New("simulated failure")

var _ Executor = (*Simulated)(nil)

func NewSimulated(cfg SimulatedConfig) *Simulated {
	if cfg.MaxLatency < cfg.MinLatency {
		cfg.MaxLatency = cfg.MinLatency
	}
	return &Simulated{
		rand:       rand.New(rand.NewSource(cfg.Seed)),
		minLatency: cfg.MinLatency,
		maxLatency: cfg.MaxLatency,
		failRate:   cfg.FailRate,
	}
}

func (s *Simulated) Execute(
	ctx context.Context, step *api.Step, inputs api.Args,
) (api.Args, error) {
	latency, fail := s.roll(step)

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if fail {
		return nil, fmt.Errorf("%w: %s", ErrSimulatedFailure, step.ID)
	}

	return api.Args{
		"simulated":  true,
		"step_type":  string(step.Type),
		"input_keys": len(inputs),
		"latency_ms": latency.Milliseconds(),
	}, nil
}

// roll draws latency and failure from the seeded source. Step config can
// force an outcome with simulate_failure or latency_ms
func (s *Simulated) roll(step *api.Step) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latency := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		latency += time.Duration(s.rand.Int63n(int64(span)))
	}
	if ms, ok := step.Config["latency_ms"]; ok {
		if f, ok := toFloat(ms); ok {
			latency = time.Duration(f * float64(time.Millisecond))
		}
	}

	fail := s.failRate > 0 && s.rand.Float64() < s.failRate
	if forced, ok := step.Config["simulate_failure"].(bool); ok {
		fail = forced
	}
	return latency, fail
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
