package retry

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"membership-app/internal/infra/metrics"
)

type Strategy string

const (
	StrategyFixed       Strategy = "fixed"
	StrategyLinear      Strategy = "linear"
	StrategyExponential Strategy = "exponential"
	StrategyFibonacci   Strategy = "fibonacci"
)

// Config controls retry behaviour for one class of operations.
type Config struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	ExponentialBase  float64
	JitterFactor     float64
	Strategy         Strategy
	BreakerThreshold int
	BreakerWindow    time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		BaseDelay:        time.Second,
		MaxDelay:         60 * time.Second,
		ExponentialBase:  2.0,
		JitterFactor:     0.1,
		Strategy:         StrategyExponential,
		BreakerThreshold: 5,
		BreakerWindow:    5 * time.Minute,
	}
}

// Predefined configurations for the SEPA operations this service runs.

func BatchCreationConfig() Config {
	return Config{
		MaxAttempts:      3,
		BaseDelay:        2 * time.Second,
		MaxDelay:         30 * time.Second,
		ExponentialBase:  2.0,
		JitterFactor:     0.2,
		Strategy:         StrategyExponential,
		BreakerThreshold: 5,
		BreakerWindow:    5 * time.Minute,
	}
}

func XMLGenerationConfig() Config {
	return Config{
		MaxAttempts:      2,
		BaseDelay:        time.Second,
		MaxDelay:         10 * time.Second,
		Strategy:         StrategyFixed,
		BreakerThreshold: 3,
		BreakerWindow:    3 * time.Minute,
	}
}

func DatabaseConfig() Config {
	return Config{
		MaxAttempts:      5,
		BaseDelay:        500 * time.Millisecond,
		MaxDelay:         15 * time.Second,
		ExponentialBase:  1.5,
		JitterFactor:     0.3,
		Strategy:         StrategyExponential,
		BreakerThreshold: 10,
		BreakerWindow:    10 * time.Minute,
	}
}

func FileConfig() Config {
	return Config{
		MaxAttempts:      3,
		BaseDelay:        500 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		JitterFactor:     0.1,
		Strategy:         StrategyLinear,
		BreakerThreshold: 5,
		BreakerWindow:    2 * time.Minute,
	}
}

func NetworkConfig() Config {
	return Config{
		MaxAttempts:      4,
		BaseDelay:        2 * time.Second,
		MaxDelay:         60 * time.Second,
		ExponentialBase:  2.0,
		JitterFactor:     0.25,
		Strategy:         StrategyExponential,
		BreakerThreshold: 5,
		BreakerWindow:    5 * time.Minute,
	}
}

// Attempt records the outcome of a single try.
type Attempt struct {
	Attempt   int           `json:"attempt"`
	Timestamp time.Time     `json:"timestamp"`
	Delay     time.Duration `json:"delay"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Class     FailureClass  `json:"class,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Result is the overall outcome of a retried operation.
type Result struct {
	Success       bool          `json:"success"`
	TotalAttempts int           `json:"total_attempts"`
	TotalDuration time.Duration `json:"total_duration"`
	Attempts      []Attempt     `json:"attempts"`
	FinalErr      error         `json:"-"`
}

// OperationStats aggregates failures for monitoring.
type OperationStats struct {
	TotalFailures int                  `json:"total_failures"`
	TotalAttempts int                  `json:"total_attempts"`
	LastFailure   *time.Time           `json:"last_failure,omitempty"`
	FailureTypes  map[FailureClass]int `json:"failure_types"`
}

// Manager runs operations under retry policies with a circuit breaker per
// operation id. State is in-process only, matching the single-worker model.
type Manager struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	stats    map[string]*OperationStats
}

// Default is the process-wide manager shared by the batch pipeline and the
// admin endpoints.
var Default = NewManager()

func NewManager() *Manager {
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		stats:    make(map[string]*OperationStats),
	}
}

// Do executes op under cfg, retrying retryable failures with backoff.
// The breaker for operationID wraps every attempt.
func (m *Manager) Do(ctx context.Context, operationID string, cfg Config, op func() error) Result {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	breaker := m.breaker(operationID, cfg)
	start := time.Now()
	var attempts []Attempt

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		attemptStart := time.Now()
		metrics.RetryAttempts.Inc()

		var err error
		if cfg.BreakerThreshold > 0 {
			err = breaker.Call(op)
		} else {
			err = op()
		}

		if err == nil {
			attempts = append(attempts, Attempt{
				Attempt:   attempt,
				Timestamp: time.Now(),
				Success:   true,
				Duration:  time.Since(attemptStart),
			})
			if attempt > 1 {
				log.Printf("operation %s succeeded on attempt %d after %s", operationID, attempt, time.Since(start))
			}
			return Result{
				Success:       true,
				TotalAttempts: attempt,
				TotalDuration: time.Since(start),
				Attempts:      attempts,
			}
		}

		class := Classify(err)
		rec := Attempt{
			Attempt:   attempt,
			Timestamp: time.Now(),
			Duration:  time.Since(attemptStart),
			Class:     class,
			Error:     err.Error(),
		}

		if !class.Retryable() || errors.Is(err, ErrCircuitOpen) {
			attempts = append(attempts, rec)
			log.Printf("non-retryable error in operation %s: %v", operationID, err)
			m.recordFailure(operationID, attempts)
			return Result{
				Success:       false,
				TotalAttempts: attempt,
				TotalDuration: time.Since(start),
				Attempts:      attempts,
				FinalErr:      err,
			}
		}

		if attempt < cfg.MaxAttempts {
			delay := backoffDelay(attempt, cfg, class)
			rec.Delay = delay
			attempts = append(attempts, rec)
			log.Printf("operation %s failed on attempt %d, retrying in %s: %v", operationID, attempt, delay, err)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				m.recordFailure(operationID, attempts)
				return Result{
					Success:       false,
					TotalAttempts: attempt,
					TotalDuration: time.Since(start),
					Attempts:      attempts,
					FinalErr:      ctx.Err(),
				}
			}
		} else {
			attempts = append(attempts, rec)
		}
	}

	log.Printf("operation %s failed after %d attempts in %s", operationID, cfg.MaxAttempts, time.Since(start))
	m.recordFailure(operationID, attempts)

	var finalErr error
	if len(attempts) > 0 && attempts[len(attempts)-1].Error != "" {
		finalErr = &exhaustedError{operationID: operationID, lastError: attempts[len(attempts)-1].Error}
	}
	return Result{
		Success:       false,
		TotalAttempts: cfg.MaxAttempts,
		TotalDuration: time.Since(start),
		Attempts:      attempts,
		FinalErr:      finalErr,
	}
}

type exhaustedError struct {
	operationID string
	lastError   string
}

func (e *exhaustedError) Error() string {
	return "operation " + e.operationID + " failed after retries: " + e.lastError
}

func backoffDelay(attempt int, cfg Config, class FailureClass) time.Duration {
	base := float64(cfg.BaseDelay)

	switch cfg.Strategy {
	case StrategyFixed:
	case StrategyLinear:
		base *= float64(attempt)
	case StrategyFibonacci:
		base *= float64(fibonacci(attempt))
	default: // exponential
		expBase := cfg.ExponentialBase
		if expBase <= 0 {
			expBase = 2.0
		}
		base *= math.Pow(expBase, float64(attempt-1))
	}

	// Transient failures recover fast; contention needs more room.
	switch class {
	case ClassTransient:
		base *= 0.5
	case ClassResource:
		base *= 1.5
	}

	if cfg.MaxDelay > 0 && base > float64(cfg.MaxDelay) {
		base = float64(cfg.MaxDelay)
	}

	if cfg.JitterFactor > 0 {
		base += base * cfg.JitterFactor * rand.Float64()
	}

	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

func fibonacci(n int) int {
	if n <= 1 {
		return n
	}
	a, b := 0, 1
	for i := 2; i <= n; i++ {
		a, b = b, a+b
	}
	return b
}

func (m *Manager) breaker(operationID string, cfg Config) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb, ok := m.breakers[operationID]
	if !ok {
		cb = NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerWindow)
		m.breakers[operationID] = cb
	}
	return cb
}

func (m *Manager) recordFailure(operationID string, attempts []Attempt) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stats[operationID]
	if !ok {
		st = &OperationStats{FailureTypes: make(map[FailureClass]int)}
		m.stats[operationID] = st
	}
	st.TotalFailures++
	st.TotalAttempts += len(attempts)
	now := time.Now()
	st.LastFailure = &now

	for _, a := range attempts {
		if !a.Success && a.Class != "" {
			st.FailureTypes[a.Class]++
		}
	}

	m.updateOpenBreakerGauge()
}

func (m *Manager) updateOpenBreakerGauge() {
	open := 0
	for _, cb := range m.breakers {
		if cb.State() == StateOpen {
			open++
		}
	}
	metrics.OpenCircuitBreakers.Set(float64(open))
}

// Stats returns failure statistics, for one operation or all. The returned
// structs are copies: the live ones keep being mutated under the mutex while
// callers marshal or inspect the snapshot.
func (m *Manager) Stats(operationID string) map[string]*OperationStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*OperationStats)
	if operationID != "" {
		if st, ok := m.stats[operationID]; ok {
			out[operationID] = st.clone()
		}
		return out
	}
	for id, st := range m.stats {
		out[id] = st.clone()
	}
	return out
}

func (st *OperationStats) clone() *OperationStats {
	cp := *st
	cp.FailureTypes = make(map[FailureClass]int, len(st.FailureTypes))
	for class, n := range st.FailureTypes {
		cp.FailureTypes[class] = n
	}
	if st.LastFailure != nil {
		last := *st.LastFailure
		cp.LastFailure = &last
	}
	return &cp
}

// BreakerStates reports the state of every known breaker.
func (m *Manager) BreakerStates() map[string]map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]map[string]interface{})
	for id, cb := range m.breakers {
		out[id] = map[string]interface{}{
			"state":         cb.State(),
			"failure_count": cb.FailureCount(),
		}
	}
	return out
}

// ResetBreaker closes the breaker for operationID. Returns false when the
// operation is unknown.
func (m *Manager) ResetBreaker(operationID string) bool {
	m.mu.Lock()
	cb, ok := m.breakers[operationID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	cb.Reset()

	m.mu.Lock()
	m.updateOpenBreakerGauge()
	m.mu.Unlock()
	return true
}
