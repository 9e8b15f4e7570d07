package tracking

import (
	"sync"
	"time"
)

// Task is a handle to a repeating job registered with a Scheduler.
type Task interface {
	// Cancel stops future runs. It is safe to call more than once and from inside the job.
	Cancel()
}

// Scheduler runs fn every period until the returned Task is cancelled.
type Scheduler interface {
	Every(period time.Duration, fn func()) Task
}

// TickerScheduler runs jobs on a time.Ticker, one goroutine per task.
type TickerScheduler struct{}

// Every starts a goroutine that calls fn on each tick. Runs never overlap.
func (TickerScheduler) Every(period time.Duration, fn func()) Task {
	t := &tickerTask{
		ticker: time.NewTicker(period),
		done:   make(chan struct{}),
	}
	go t.run(fn)
	return t
}

type tickerTask struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *tickerTask) run(fn func()) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			// a tick and a cancel can be ready together; cancel wins
			select {
			case <-t.done:
				return
			default:
			}
			fn()
		}
	}
}

func (t *tickerTask) Cancel() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}

// ManualScheduler fires jobs only when Advance is called. It stands in for wall-clock
// time in tests and in deterministic replays.
type ManualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	owner   *ManualScheduler
	period  time.Duration
	elapsed time.Duration
	fn      func()
}

// NewManualScheduler returns an empty ManualScheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Every registers fn; it runs once for every full period passed to Advance.
func (m *ManualScheduler) Every(period time.Duration, fn func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTask{owner: m, period: period, fn: fn}
	m.tasks = append(m.tasks, t)
	return t
}

// Advance moves the simulated clock forward by d and runs every job that falls due.
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	tasks := make([]*manualTask, len(m.tasks))
	copy(tasks, m.tasks)
	m.mu.Unlock()

	for _, t := range tasks {
		m.mu.Lock()
		t.elapsed += d
		runs := int(t.elapsed / t.period)
		t.elapsed %= t.period
		m.mu.Unlock()

		for i := 0; i < runs; i++ {
			if !m.active(t) {
				break
			}
			t.fn()
		}
	}
}

// Active returns the number of registered, uncancelled tasks.
func (m *ManualScheduler) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func (m *ManualScheduler) active(t *manualTask) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, candidate := range m.tasks {
		if candidate == t {
			return true
		}
	}
	return false
}

func (t *manualTask) Cancel() {
	m := t.owner
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, candidate := range m.tasks {
		if candidate == t {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return
		}
	}
}
