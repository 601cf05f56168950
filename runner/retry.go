package runner

import (
	"math"
	"time"

	windowagg "github.com/goliatone/go-windowagg"
)

// RetryStrategy gives the delay before retry number attempt, counted from 0.
type RetryStrategy interface {
	SleepDuration(attempt int, err error) time.Duration
}

// RetryDecision is the outcome of consulting a strategy after a failure.
type RetryDecision struct {
	ShouldRetry bool
	Delay       time.Duration
	Metadata    map[string]any
}

// RetryDecider is implemented by strategies that can refuse a retry.
type RetryDecider interface {
	Decide(attempt int, err error) RetryDecision
}

// DecideRetry asks s for a decision. Strategies without Decide always retry
// after their SleepDuration; a nil strategy retries at once.
func DecideRetry(s RetryStrategy, attempt int, err error) RetryDecision {
	if d, ok := s.(RetryDecider); ok {
		return d.Decide(attempt, err)
	}
	if s == nil {
		return RetryDecision{ShouldRetry: true}
	}
	return RetryDecision{ShouldRetry: true, Delay: s.SleepDuration(attempt, err)}
}

// NoDelayStrategy retries immediately.
type NoDelayStrategy struct{}

func (NoDelayStrategy) SleepDuration(int, error) time.Duration {
	return 0
}

// ExponentialBackoffStrategy waits Base * Factor^attempt, capped at Max when
// Max is set.
//
//	WithRetryStrategy(ExponentialBackoffStrategy{Base: 100 * time.Millisecond, Factor: 2, Max: 2 * time.Second})
type ExponentialBackoffStrategy struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

func (e ExponentialBackoffStrategy) SleepDuration(attempt int, _ error) time.Duration {
	attempt = max(attempt, 0)
	factor := e.Factor
	if factor < 1 {
		factor = 1
	}
	delay := time.Duration(float64(e.Base) * math.Pow(factor, float64(attempt)))
	if e.Max > 0 && delay > e.Max {
		return e.Max
	}
	return delay
}

// PermanentCodes wraps Strategy and refuses to retry errors carrying any of
// Codes, such as a missing rule, which fail the same way every time.
type PermanentCodes struct {
	Strategy RetryStrategy
	Codes    []string
}

func (p PermanentCodes) SleepDuration(attempt int, err error) time.Duration {
	if p.Strategy == nil {
		return 0
	}
	return p.Strategy.SleepDuration(attempt, err)
}

func (p PermanentCodes) Decide(attempt int, err error) RetryDecision {
	for _, code := range p.Codes {
		if windowagg.HasCode(err, code) {
			return RetryDecision{Metadata: map[string]any{"permanent_code": code}}
		}
	}
	return DecideRetry(p.Strategy, attempt, err)
}
