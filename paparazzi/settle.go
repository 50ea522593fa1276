package paparazzi

import (
	"runtime"
	"time"
)

const (
	DefaultMaxWait = 10 * time.Second
	// DefaultFrameDeltaHint is passed to the engine on every update. The engine is not animating anything,
	// so a large step just gets its loading state machines to the end as fast as possible.
	DefaultFrameDeltaHint = 10.0
)

type SettleResult struct {
	Done       bool          `json:"done"`
	Iterations int           `json:"iterations"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Settler polls an engine until it reports that it is done, or MaxWait has passed.
// It never blocks on the engine: every iteration pumps the network queue, so fetch completions get delivered.
type Settler struct {
	MaxWait        time.Duration
	FrameDeltaHint float64
	// PollInterval is slept between iterations. When 0, the goroutine only yields.
	PollInterval time.Duration

	nowFunc   func() time.Time
	sleepFunc func(time.Duration)
	pump      func()
	update    func(dt float64) bool
}

func NewSettler(pump func(), update func(dt float64) bool, maxWait time.Duration, frameDeltaHint float64, pollInterval time.Duration, nowFunc func() time.Time) *Settler {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	if frameDeltaHint <= 0 {
		frameDeltaHint = DefaultFrameDeltaHint
	}
	if nowFunc == nil {
		nowFunc = time.Now
	}

	return &Settler{
		MaxWait:        maxWait,
		FrameDeltaHint: frameDeltaHint,
		PollInterval:   pollInterval,
		nowFunc:        nowFunc,
		sleepFunc:      time.Sleep,
		pump:           pump,
		update:         update,
	}
}

// Settle runs the loop. A timeout is reported in the result, it is not an error.
func (s *Settler) Settle() SettleResult {
	start := s.nowFunc()

	var result SettleResult
	for {
		result.Iterations++

		s.pump()
		if s.update(s.FrameDeltaHint) {
			result.Done = true
			result.Elapsed = s.nowFunc().Sub(start)
			return result
		}

		result.Elapsed = s.nowFunc().Sub(start)
		if result.Elapsed >= s.MaxWait {
			return result
		}

		if s.PollInterval > 0 {
			s.sleepFunc(s.PollInterval)
		} else {
			runtime.Gosched()
		}
	}
}
