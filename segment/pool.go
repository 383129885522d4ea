package segment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrPoolClosed     = errors.New("session pool is closed")
	ErrAcquireTimeout = errors.New("timeout waiting for available session")
)

const DefaultAcquireTimeout = 30 * time.Second

// Session is one loaded model instance with its own input/output buffers.
// A session must not Run concurrently, which is why sessions are pooled.
type Session interface {
	Input() []float32
	Output() []float32
	Run() error
	Destroy() error
}

type Factory func() (Session, error)

type Pool struct {
	sessions       chan Session
	size           int
	factory        Factory
	acquireTimeout time.Duration

	mu         sync.Mutex
	closed     bool
	lastErrors []error

	metricsMu sync.Mutex
	metrics   Metrics
}

type Metrics struct {
	Size            int           `json:"size"`
	Available       int           `json:"available"`
	InUse           int           `json:"in_use"`
	TotalAcquired   int64         `json:"total_acquired"`
	TotalReleased   int64         `json:"total_released"`
	AcquireFailures int64         `json:"acquire_failures"`
	Discarded       int64         `json:"discarded"`
	WaitTime        time.Duration `json:"wait_time"`
}

func NewPool(factory Factory, size int, acquireTimeout time.Duration) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}

	p := &Pool{
		sessions:       make(chan Session, size),
		size:           size,
		factory:        factory,
		acquireTimeout: acquireTimeout,
	}
	p.metrics.Size = size

	for i := 0; i < size; i++ {
		session, err := factory()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("initialize session %d: %w", i, err)
		}
		p.sessions <- session
	}

	return p, nil
}

func (p *Pool) Acquire(ctx context.Context) (Session, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	start := time.Now()
	defer func() {
		p.metricsMu.Lock()
		p.metrics.WaitTime += time.Since(start)
		p.metricsMu.Unlock()
	}()

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case session, ok := <-p.sessions:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.metricsMu.Lock()
		p.metrics.InUse++
		p.metrics.TotalAcquired++
		p.metricsMu.Unlock()
		return session, nil
	case <-timer.C:
		p.recordFailure()
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		p.recordFailure()
		return nil, ctx.Err()
	}
}

// Release returns a healthy session to the pool.
func (p *Pool) Release(session Session) {
	p.metricsMu.Lock()
	p.metrics.InUse--
	p.metrics.TotalReleased++
	p.metricsMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		_ = session.Destroy()
		return
	}

	select {
	case p.sessions <- session:
	default:
		_ = session.Destroy()
	}
}

// Discard destroys a session that failed; Replenish creates its replacement.
func (p *Pool) Discard(session Session, cause error) {
	_ = session.Destroy()

	p.metricsMu.Lock()
	p.metrics.InUse--
	p.metrics.Discarded++
	p.metricsMu.Unlock()

	p.recordError(cause)
}

// Replenish recreates sessions until the pool is back at its configured
// size. It returns how many sessions were created.
func (p *Pool) Replenish() (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrPoolClosed
	}
	p.mu.Unlock()

	p.metricsMu.Lock()
	missing := p.size - len(p.sessions) - p.metrics.InUse
	p.metricsMu.Unlock()

	created := 0
	var errs []error
	for i := 0; i < missing; i++ {
		session, err := p.factory()
		if err != nil {
			p.recordError(err)
			errs = append(errs, err)
			continue
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = session.Destroy()
			return created, ErrPoolClosed
		}
		select {
		case p.sessions <- session:
			created++
		default:
			_ = session.Destroy()
		}
		p.mu.Unlock()
	}

	return created, errors.Join(errs...)
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.sessions)

	for session := range p.sessions {
		_ = session.Destroy()
	}
}

func (p *Pool) Metrics() Metrics {
	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()
	m := p.metrics
	m.Available = len(p.sessions)
	return m
}

// LastErrors returns up to the ten most recent session errors.
func (p *Pool) LastErrors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.lastErrors...)
}

func (p *Pool) recordFailure() {
	p.metricsMu.Lock()
	p.metrics.AcquireFailures++
	p.metricsMu.Unlock()
}

func (p *Pool) recordError(err error) {
	if err == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > 10 {
		p.lastErrors = p.lastErrors[1:]
	}
}
