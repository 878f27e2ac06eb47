package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	mu        sync.Mutex
	resources map[Key]*Resource
}

func (f *fakeLoader) Load(ctx context.Context, key Key) (*Resource, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.resources[key]
	return res, ok, nil
}

type fakeFinalizer struct {
	mu         sync.Mutex
	ensured    []Key
	removed    []Key
	conditions []Condition
}

func (f *fakeFinalizer) EnsureFinalizer(ctx context.Context, key Key, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, key)
	return nil
}

func (f *fakeFinalizer) RemoveFinalizer(ctx context.Context, key Key, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, key)
	return nil
}

func (f *fakeFinalizer) SetCondition(ctx context.Context, key Key, cond Condition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conditions = append(f.conditions, cond)
	return nil
}

type scriptedOp struct {
	result Result
	calls  *int
}

func (s scriptedOp) Name() string { return "scripted" }
func (s scriptedOp) Run(ctx context.Context, disposition Disposition, res *Resource) Result {
	*s.calls++
	return s.result
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestReconciler_ConstructCompletes_EnsuresFinalizer(t *testing.T) {
	key := Key("app1")
	loader := &fakeLoader{resources: map[Key]*Resource{
		key: {Key: key, Labels: map[string]string{"reconcile": "true"}},
	}}
	fin := &fakeFinalizer{}
	calls := 0
	r := NewReconciler("topic-provisioner", "topic.reconciler/finalizer", loader, fin,
		[]Operation{scriptedOp{result: CompleteResult(), calls: &calls}}, nil, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	r.Enqueue(key)

	waitFor(t, func() bool { return len(fin.ensured) == 1 })
	cancel()

	assert.Equal(t, 1, calls)
	require.Len(t, fin.ensured, 1)
	assert.Equal(t, key, fin.ensured[0])
}

func TestReconciler_DeconstructCompletes_RemovesFinalizer(t *testing.T) {
	key := Key("app1")
	loader := &fakeLoader{resources: map[Key]*Resource{
		key: {Key: key, Labels: map[string]string{"reconcile": "true"}, Deleting: true},
	}}
	fin := &fakeFinalizer{}
	calls := 0
	r := NewReconciler("device-cleanup", "cleanup.reconciler/finalizer", loader, fin,
		[]Operation{scriptedOp{result: CompleteResult(), calls: &calls}}, nil, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	r.Enqueue(key)

	waitFor(t, func() bool { return len(fin.removed) == 1 })
	cancel()
}

func TestReconciler_IgnoreDisposition_NeverRunsOperations(t *testing.T) {
	key := Key("app1")
	loader := &fakeLoader{resources: map[Key]*Resource{
		key: {Key: key, Labels: map[string]string{}},
	}}
	fin := &fakeFinalizer{}
	calls := 0
	r := NewReconciler("noop", "noop/finalizer", loader, fin,
		[]Operation{scriptedOp{result: CompleteResult(), calls: &calls}}, nil, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	r.Enqueue(key)
	time.Sleep(50 * time.Millisecond)
	cancel()

	assert.Equal(t, 0, calls)
	assert.Empty(t, fin.ensured)
}

func TestReconciler_PermanentErrorSetsReconciledFalseAndNotifies(t *testing.T) {
	key := Key("app1")
	loader := &fakeLoader{resources: map[Key]*Resource{
		key: {Key: key, Labels: map[string]string{"reconcile": "true"}},
	}}
	fin := &fakeFinalizer{}
	calls := 0
	notifier := &recordingNotifier{}
	r := NewReconciler("topic-provisioner", "topic.reconciler/finalizer", loader, fin,
		[]Operation{scriptedOp{result: PermanentError(errors.New("boom")), calls: &calls}}, notifier, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	r.Enqueue(key)

	waitFor(t, func() bool { return len(notifier.notified) == 1 })
	cancel()

	require.Len(t, fin.conditions, 1)
	assert.False(t, fin.conditions[0].Status)
	assert.Empty(t, fin.ensured)
}

type recordingNotifier struct {
	mu       sync.Mutex
	notified []Key
}

func (n *recordingNotifier) Notify(ctx context.Context, operator string, key Key, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, key)
}
