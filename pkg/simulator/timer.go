package simulator

import (
	"errors"
	"sync"
)

// MinInterval (ms) is the simulation timer resolution, LFS updates its clock at most at 100 Hz
const MinInterval = 10

var ErrInvalidInterval = errors.New("interval must be > 0")

const unarmed = -1

type callback struct {
	fn       func()
	interval int64
	last     int64
}

// Timer runs callbacks following the simulation clock instead of the wall clock,
// so they stop while the simulator is paused.
type Timer struct {
	mu        sync.Mutex
	callbacks []*callback
}

// Register fn to be called every interval milliseconds of simulation time.
// Intervals below MinInterval are raised to MinInterval, non positive ones are rejected.
func (t *Timer) Register(fn func(), interval int64) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	if interval < MinInterval {
		interval = MinInterval
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, &callback{fn: fn, interval: interval, last: unarmed})
	return nil
}

// Observe the simulation time (ms) and return the callbacks due. The first observation only arms
// the callbacks; a clock going backwards (restart) arms them again.
func (t *Timer) Observe(simTime int64) []func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	var due []func()
	for _, c := range t.callbacks {
		if simTime < c.last {
			c.last = unarmed
		}
		if c.last == unarmed {
			c.last = simTime
			continue
		}
		if simTime-c.last > c.interval {
			due = append(due, c.fn)
			c.last = simTime
		}
	}
	return due
}

// Run observes simTime and calls the callbacks due.
func (t *Timer) Run(simTime int64) {
	for _, fn := range t.Observe(simTime) {
		fn()
	}
}

func (t *Timer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.callbacks)
}
