package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lhaig/boundcheck/internal/model"
	"github.com/lhaig/boundcheck/internal/verify"
)

// recordingBackend marks every class safe, except names listed in violate. When gate
// is set each batch waits for a value from it.
type recordingBackend struct {
	mu      sync.Mutex
	batches [][]string
	violate map[string]bool
	gate    chan struct{}
	err     error
}

func (b *recordingBackend) Verify(ctx context.Context, jobs []Job) ([]*verify.Result, error) {
	var names []string
	for _, j := range jobs {
		names = append(names, j.Class.Name)
	}
	b.mu.Lock()
	b.batches = append(b.batches, names)
	b.mu.Unlock()

	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b.mu.Lock()
	err := b.err
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	results := make([]*verify.Result, len(jobs))
	for i, j := range jobs {
		r := &verify.Result{ClassName: j.Class.Name, State: verify.Safe}
		if b.violate[j.Class.Name] {
			r.State = verify.ViolationFound
			r.Violations = []model.Violation{{Kind: model.InvariantViolation, Text: "X >= 0"}}
		}
		results[i] = r
	}
	return results, nil
}

func (b *recordingBackend) setErr(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func (b *recordingBackend) verified() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var all []string
	for _, batch := range b.batches {
		all = append(all, batch...)
	}
	return all
}

func newManager(t *testing.T, backend Backend, mode Mode) *Manager {
	t.Helper()
	m := New(backend, Options{Mode: mode, PollInterval: time.Millisecond, Logger: zap.NewNop()})
	t.Cleanup(m.Close)
	return m
}

func fp(source string, counter uint64) Fingerprint {
	return Fingerprint{Compilation: HashSource(source), Counter: counter}
}

func TestFingerprint(t *testing.T) {
	a := fp("class A {}", 0)
	assert.Equal(t, a, fp("class A {}", 0))
	assert.NotEqual(t, a, fp("class A { }", 0))
	assert.NotEqual(t, a, fp("class A {}", 1))
	assert.Regexp(t, `^[0-9a-f]{16}:0$`, a.String())
}

func TestAutomaticModeVerifies(t *testing.T) {
	backend := &recordingBackend{violate: map[string]bool{"Bad": true}}
	m := newManager(t, backend, Automatic)
	ctx := context.Background()

	good, err := m.GetVerifiedModel(ctx, model.NewClassModel("Good"), fp("good", 0), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, good.Verified())
	assert.False(t, good.InvariantViolated())

	bad, err := m.GetVerifiedModel(ctx, model.NewClassModel("Bad"), fp("bad", 0), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, bad.Verified())
	assert.True(t, bad.InvariantViolated())
	assert.Len(t, bad.Violations(), 1)

	r, err := m.Result(ctx, "Bad")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, verify.ViolationFound, r.State)
}

func TestCachedModelIsReused(t *testing.T) {
	backend := &recordingBackend{}
	m := newManager(t, backend, Automatic)
	ctx := context.Background()

	class := model.NewClassModel("A")
	first, err := m.GetVerifiedModel(ctx, class, fp("a", 0), 5*time.Second)
	require.NoError(t, err)

	again, err := m.GetClassModel(ctx, model.NewClassModel("A"), fp("a", 0))
	require.NoError(t, err)
	assert.Same(t, first.(*model.ClassModel), again.(*model.ClassModel))
	assert.Equal(t, []string{"A"}, backend.verified())
	assert.False(t, class.IsVerified, "the caller's model is never written")
}

func TestForceRerun(t *testing.T) {
	backend := &recordingBackend{}
	m := newManager(t, backend, Automatic)
	ctx := context.Background()

	_, err := m.GetVerifiedModel(ctx, model.NewClassModel("A"), m.Fingerprint("a"), 5*time.Second)
	require.NoError(t, err)

	m.ForceRerun()
	view, err := m.GetVerifiedModel(ctx, model.NewClassModel("A"), m.Fingerprint("a"), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, view.Verified())
	assert.Equal(t, []string{"A", "A"}, backend.verified())
}

func TestIneligibleClassIsNotScheduled(t *testing.T) {
	backend := &recordingBackend{}
	m := newManager(t, backend, Automatic)

	class := model.NewClassModel("Legacy")
	class.Unsupported.Reject(model.UnsupportedField, "string S", model.Location{Line: 1, Column: 1}, "")

	view, err := m.GetVerifiedModel(context.Background(), class, fp("legacy", 0), time.Second)
	require.NoError(t, err)
	assert.False(t, view.Eligible())
	assert.False(t, view.Verified())
	assert.Empty(t, backend.verified())
}

func TestManualMode(t *testing.T) {
	backend := &recordingBackend{}
	m := newManager(t, backend, Manual)
	ctx := context.Background()

	_, err := m.GetClassModel(ctx, model.NewClassModel("A"), fp("a", 0))
	require.NoError(t, err)
	_, err = m.GetClassModel(ctx, model.NewClassModel("B"), fp("b", 0))
	require.NoError(t, err)

	_, err = m.GetVerifiedModel(ctx, model.NewClassModel("A"), fp("a", 0), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Empty(t, backend.verified())

	n, err := m.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	view, err := m.GetVerifiedModel(ctx, model.NewClassModel("B"), fp("b", 0), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, view.Verified())

	_, err = m.GetVerifiedModel(ctx, model.NewClassModel("A"), fp("a", 0), 5*time.Second)
	require.NoError(t, err)
	n, err = m.Scan(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "verified classes are not scheduled again")
}

func TestStaleResultIsDiscarded(t *testing.T) {
	backend := &recordingBackend{gate: make(chan struct{})}
	m := newManager(t, backend, Automatic)
	ctx := context.Background()

	_, err := m.GetClassModel(ctx, model.NewClassModel("A"), fp("v1", 0))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(backend.verified()) == 1 }, 5*time.Second, time.Millisecond)

	// the class changes while the first revision is being verified
	_, err = m.GetClassModel(ctx, model.NewClassModel("A"), fp("v2", 0))
	require.NoError(t, err)
	backend.gate <- struct{}{}

	view, err := m.GetClassModel(ctx, model.NewClassModel("A"), fp("v2", 0))
	require.NoError(t, err)
	assert.False(t, view.Verified(), "result of the old revision must not be applied")

	backend.gate <- struct{}{}
	view, err = m.GetVerifiedModel(ctx, model.NewClassModel("A"), fp("v2", 0), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, view.Verified())
	assert.Equal(t, []string{"A", "A"}, backend.verified())
}

func TestRemoveMissingClasses(t *testing.T) {
	backend := &recordingBackend{gate: make(chan struct{})}
	m := newManager(t, backend, Automatic)
	ctx := context.Background()

	_, err := m.GetClassModel(ctx, model.NewClassModel("Busy"), fp("busy", 0))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(backend.verified()) == 1 }, 5*time.Second, time.Millisecond)

	idle := model.NewClassModel("Idle")
	idle.Unsupported.Reject(model.UnsupportedField, "string S", model.Location{Line: 1, Column: 1}, "")
	_, err = m.GetClassModel(ctx, idle, fp("idle", 0))
	require.NoError(t, err)

	removed, err := m.RemoveMissingClasses(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "the class under verification stays")

	classes, err := m.Classes(ctx)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "Busy", classes[0].Name)

	backend.gate <- struct{}{}
}

func TestBackendFailureLeavesClassUnverified(t *testing.T) {
	backend := &recordingBackend{err: errors.New("worker died")}
	m := newManager(t, backend, Automatic)

	view, err := m.GetVerifiedModel(context.Background(), model.NewClassModel("A"), fp("a", 0), 5*time.Second)
	require.NoError(t, err)
	assert.False(t, view.Verified())
}

func TestScanRetriesAfterBackendFailure(t *testing.T) {
	backend := &recordingBackend{err: errors.New("worker died")}
	m := newManager(t, backend, Manual)
	ctx := context.Background()

	_, err := m.GetClassModel(ctx, model.NewClassModel("A"), fp("a", 0))
	require.NoError(t, err)
	n, err := m.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	view, err := m.GetVerifiedModel(ctx, model.NewClassModel("A"), fp("a", 0), 5*time.Second)
	require.NoError(t, err)
	assert.False(t, view.Verified())

	backend.setErr(nil)
	n, err = m.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a failed class is scheduled on the next scan")

	view, err = m.GetVerifiedModel(ctx, model.NewClassModel("A"), fp("a", 0), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, view.Verified())
	assert.Equal(t, []string{"A", "A"}, backend.verified())
}

func TestLookupRetriesAfterBackendFailure(t *testing.T) {
	backend := &recordingBackend{err: errors.New("worker died")}
	m := newManager(t, backend, Automatic)
	ctx := context.Background()

	view, err := m.GetVerifiedModel(ctx, model.NewClassModel("A"), fp("a", 0), 5*time.Second)
	require.NoError(t, err)
	assert.False(t, view.Verified())

	backend.setErr(nil)
	view, err = m.GetVerifiedModel(ctx, model.NewClassModel("A"), fp("a", 0), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, view.Verified())
	assert.Equal(t, []string{"A", "A"}, backend.verified())
}

func TestCallerOwnsItsModel(t *testing.T) {
	backend := &recordingBackend{}
	m := newManager(t, backend, Manual)
	ctx := context.Background()

	class := model.NewClassModel("A")
	_, err := m.GetClassModel(ctx, class, fp("a", 0))
	require.NoError(t, err)
	class.Name = "Renamed"
	class.Unsupported.Reject(model.UnsupportedField, "string S", model.Location{Line: 1, Column: 1}, "")

	classes, err := m.Classes(ctx)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "A", classes[0].Name)
	assert.True(t, classes[0].IsEligible())
}

func TestClosed(t *testing.T) {
	m := New(&recordingBackend{}, Options{})
	m.Close()
	m.Close()

	_, err := m.GetClassModel(context.Background(), model.NewClassModel("A"), fp("a", 0))
	assert.ErrorIs(t, err, ErrClosed)
}

type countingVerifier struct{ n int }

func (c *countingVerifier) Verify(_ context.Context, class *model.ClassModel) *verify.Result {
	c.n++
	return &verify.Result{ClassName: class.Name, State: verify.Safe}
}

func TestInProcessBackend(t *testing.T) {
	v := &countingVerifier{}
	b := NewInProcessBackend(v)

	results, err := b.Verify(context.Background(), []Job{
		{Class: model.NewClassModel("A")},
		{Class: model.NewClassModel("B")},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "B", results[1].ClassName)
	assert.Equal(t, 2, v.n)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Verify(ctx, []Job{{Class: model.NewClassModel("C")}})
	assert.ErrorIs(t, err, context.Canceled)
}
