// Package manager caches class models by fingerprint and schedules their verification.
//
// All cache state is owned by one goroutine; every operation is a message to it. A
// second goroutine consumes the bounded work queue, so at most one batch is verified
// at a time. Results are written onto a fresh clone of the cached model and are
// discarded when the class changed or disappeared in the meantime.
package manager

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lhaig/boundcheck/internal/model"
	"github.com/lhaig/boundcheck/internal/verify"
)

var (
	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("model manager closed")
	// ErrTimeout is returned by GetVerifiedModel when verification did not finish in time
	ErrTimeout = errors.New("timed out waiting for verification")
)

// Mode decides when classes are verified
type Mode int

const (
	// Automatic schedules every new or changed eligible class
	Automatic Mode = iota
	// Manual only schedules classes on Scan
	Manual
)

// String returns the string representation of the mode
func (m Mode) String() string {
	if m == Manual {
		return "manual"
	}
	return "automatic"
}

// Options configure a Manager
type Options struct {
	Mode         Mode
	QueueSize    int
	BatchSize    int
	PollInterval time.Duration
	Logger       *zap.Logger
}

func (o *Options) defaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 8
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 50 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type entry struct {
	model       *model.ClassModel
	fingerprint Fingerprint
	result      *verify.Result
	queued      bool
	inFlight    bool
	// attempted is set once the backend answered for the current revision, whether
	// or not the model ended up verified
	attempted   bool
}

func (e *entry) pending() bool { return e.queued || e.inFlight }

// Manager is the model cache. Create it with New and release it with Close.
type Manager struct {
	backend Backend
	opts    Options
	logger  *zap.Logger

	entries  map[string]*entry
	requests chan func()
	queue    chan string
	counter  atomic.Uint64

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New starts a manager verifying through backend
func New(backend Backend, opts Options) *Manager {
	opts.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		backend:  backend,
		opts:     opts,
		logger:   opts.Logger,
		entries:  make(map[string]*entry),
		requests: make(chan func()),
		queue:    make(chan string, opts.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	m.wg.Add(2)
	go m.run()
	go m.consume()
	return m
}

// Close stops both goroutines. In-flight verification is cancelled.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		m.wg.Wait()
	})
}

func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case fn := <-m.requests:
			fn()
		case <-m.ctx.Done():
			return
		}
	}
}

// do runs fn on the owning goroutine and waits for it
func (m *Manager) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case m.requests <- func() { fn(); close(done) }:
	case <-m.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-m.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fingerprint returns the fingerprint of source under the current rerun counter
func (m *Manager) Fingerprint(source string) Fingerprint {
	return Fingerprint{Compilation: HashSource(source), Counter: m.counter.Load()}
}

// ForceRerun changes every fingerprint computed from now on, so the next lookup of
// each class replaces and re-verifies it
func (m *Manager) ForceRerun() {
	m.counter.Add(1)
}

// GetClassModel returns the cached model for class when fp is unchanged. Otherwise
// a clone of class replaces the cached model and, in automatic mode, is scheduled.
// Eligible classes that are not verified yet are scheduled again on every lookup in
// automatic mode.
func (m *Manager) GetClassModel(ctx context.Context, class *model.ClassModel, fp Fingerprint) (model.View, error) {
	var view model.View
	err := m.do(ctx, func() {
		e, ok := m.entries[class.Name]
		if ok && e.fingerprint == fp {
			recordLookup(ctx, true)
			// a revision the backend failed on is retried on the next lookup
			if m.opts.Mode == Automatic && !e.pending() && !e.model.IsVerified {
				m.schedule(ctx, class.Name, e)
			}
			view = e.model
			return
		}
		recordLookup(ctx, false)
		if !ok {
			e = &entry{}
			m.entries[class.Name] = e
		}
		e.model = class.Clone()
		e.fingerprint = fp
		e.result = nil
		e.attempted = false
		if m.opts.Mode == Automatic {
			m.schedule(ctx, class.Name, e)
		}
		view = e.model
	})
	return view, err
}

// GetVerifiedModel is GetClassModel followed by waiting until the class was attempted,
// it is found ineligible, or timeout passes. On timeout the latest view is returned
// with ErrTimeout.
func (m *Manager) GetVerifiedModel(ctx context.Context, class *model.ClassModel, fp Fingerprint, timeout time.Duration) (model.View, error) {
	view, err := m.GetClassModel(ctx, class, fp)
	if err != nil {
		return nil, err
	}
	if !view.Eligible() {
		return view, nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		var done bool
		err := m.do(ctx, func() {
			e, ok := m.entries[class.Name]
			if !ok || e.fingerprint != fp {
				done = true
				return
			}
			view = e.model
			done = e.attempted
		})
		if err != nil {
			return view, err
		}
		if done {
			return view, nil
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return view, fmt.Errorf("%w: %s", ErrTimeout, class.Name)
		case <-ctx.Done():
			return view, ctx.Err()
		}
	}
}

// Result returns the last verifier result applied to name, or nil
func (m *Manager) Result(ctx context.Context, name string) (*verify.Result, error) {
	var r *verify.Result
	err := m.do(ctx, func() {
		if e, ok := m.entries[name]; ok {
			r = e.result
		}
	})
	return r, err
}

// Classes returns the cached models sorted by name
func (m *Manager) Classes(ctx context.Context) ([]*model.ClassModel, error) {
	var out []*model.ClassModel
	err := m.do(ctx, func() {
		for _, e := range m.entries {
			out = append(out, e.model)
		}
	})
	slices.SortFunc(out, func(a, b *model.ClassModel) int { return cmp.Compare(a.Name, b.Name) })
	return out, err
}

// RemoveMissingClasses evicts every class not in names. Classes waiting for or under
// verification stay until their result is in.
func (m *Manager) RemoveMissingClasses(ctx context.Context, names []string) (int, error) {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	removed := 0
	err := m.do(ctx, func() {
		for name, e := range m.entries {
			if keep[name] || e.pending() {
				continue
			}
			delete(m.entries, name)
			removed++
			m.logger.Debug("evicted class", zap.String("class", name))
		}
	})
	recordCount(ctx, &evictions, removed)
	return removed, err
}

// Scan schedules every eligible class that is not verified, including classes whose
// last attempt failed. It is the trigger in manual mode and returns how many classes
// were scheduled.
func (m *Manager) Scan(ctx context.Context) (int, error) {
	scheduled := 0
	err := m.do(ctx, func() {
		for name, e := range m.entries {
			if e.pending() || !e.model.IsEligible() || e.model.IsVerified {
				continue
			}
			if m.schedule(ctx, name, e) {
				scheduled++
			}
		}
	})
	return scheduled, err
}

// schedule queues name without blocking the owning goroutine. It runs on that goroutine.
func (m *Manager) schedule(ctx context.Context, name string, e *entry) bool {
	if e.queued || !e.model.IsEligible() {
		return false
	}
	select {
	case m.queue <- name:
		e.queued = true
		e.attempted = false
		return true
	default:
		recordCount(ctx, &queueDrops, 1)
		m.logger.Warn("work queue full, class not scheduled", zap.String("class", name))
		return false
	}
}

// consume verifies queued classes in batches until Close
func (m *Manager) consume() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case name := <-m.queue:
			batch := []string{name}
		fill:
			for len(batch) < m.opts.BatchSize {
				select {
				case n := <-m.queue:
					batch = append(batch, n)
				default:
					break fill
				}
			}
			m.process(batch)
		}
	}
}

func (m *Manager) process(batch []string) {
	ctx := m.ctx
	var jobs []Job
	err := m.do(ctx, func() {
		for _, name := range batch {
			e, ok := m.entries[name]
			if !ok {
				continue
			}
			e.queued = false
			if e.inFlight || !e.model.IsEligible() {
				continue
			}
			if e.model.IsVerified {
				e.attempted = true
				continue
			}
			e.inFlight = true
			jobs = append(jobs, Job{Class: e.model.Clone(), Fingerprint: e.fingerprint})
		}
	})
	if err != nil || len(jobs) == 0 {
		return
	}

	ctx, span := tracer.Start(ctx, "manager.process",
		trace.WithAttributes(attribute.Int("classes", len(jobs))))
	results, verr := m.backend.Verify(ctx, jobs)
	span.End()
	if verr != nil {
		m.logger.Warn("verification backend failed", zap.Int("classes", len(jobs)), zap.Error(verr))
	}

	stale := 0
	_ = m.do(ctx, func() {
		for i, job := range jobs {
			e, ok := m.entries[job.Class.Name]
			if !ok {
				stale++
				continue
			}
			e.inFlight = false
			if e.fingerprint != job.Fingerprint {
				stale++
				if m.opts.Mode == Automatic {
					m.schedule(ctx, job.Class.Name, e)
				}
				continue
			}
			e.attempted = true
			var r *verify.Result
			if i < len(results) {
				r = results[i]
			}
			if r == nil {
				m.logger.Info("class not verified this cycle", zap.String("class", job.Class.Name))
				continue
			}
			updated := e.model.Clone()
			verify.Apply(updated, r)
			e.model = updated
			e.result = r
		}
	})
	recordCount(ctx, &discarded, stale)
}
