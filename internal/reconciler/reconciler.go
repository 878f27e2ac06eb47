// Package reconciler implements C9: a generic controller loop over a
// persistent work-queue. Per spec: observe → load → evaluate
// Construct/Deconstruct/Ignore → run ordered ProgressOperations →
// Continue/Retry(delay)/Complete → finalizer add/remove, with a
// monotonic Reconciled status condition.
package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"k8s.io/client-go/util/workqueue"
)

// Key identifies the resource a reconciliation run processes: an
// application name, or "app/device" for a device-scoped operator.
type Key string

// Disposition is the outcome of evaluating a loaded resource against
// the operator's own label flag and deletion state (§4.9 step 3).
type Disposition int

const (
	Ignore Disposition = iota
	Construct
	Deconstruct
)

// Resource is the minimal view of an Application or Device a
// ProgressOperation needs: its labels (to decide disposition), whether
// it carries the operator's finalizer already, and its status
// conditions.
type Resource struct {
	Key        Key
	Labels     map[string]string
	Deleting   bool
	Finalizers []string
	Conditions []Condition
}

// Condition is one named entry in a resource's status Conditions list.
type Condition struct {
	Type               string
	Status             bool
	Reason             string
	Message            string
	LastTransitionTime time.Time
}

// ReconciledCondition is the condition name every operator chain
// updates monotonically on completion or permanent failure (§4.9).
const ReconciledCondition = "Reconciled"

// Result is what a ProgressOperation returns for one step of the chain.
type Result struct {
	kind  resultKind
	delay time.Duration
	err   error
}

type resultKind int

const (
	resultContinue resultKind = iota
	resultRetry
	resultComplete
)

// ContinueResult proceeds to the next operation in the chain.
func ContinueResult() Result { return Result{kind: resultContinue} }

// RetryResult requeues the key after delay (0 uses the queue's default
// backoff).
func RetryResult(delay time.Duration) Result { return Result{kind: resultRetry, delay: delay} }

// CompleteResult ends the chain successfully; finalizer add/remove is
// applied by the Reconciler afterward.
func CompleteResult() Result { return Result{kind: resultComplete} }

// PermanentError wraps err as a non-retryable failure: the chain stops
// and Reconciled is set False without requeueing.
func PermanentError(err error) Result { return Result{kind: resultComplete, err: err} }

// Loader fetches the current Resource for key, or reports it absent.
type Loader interface {
	Load(ctx context.Context, key Key) (res *Resource, present bool, err error)
}

// Finalizer adds or removes the operator's own finalizer from the
// resource named by key.
type Finalizer interface {
	EnsureFinalizer(ctx context.Context, key Key, name string) error
	RemoveFinalizer(ctx context.Context, key Key, name string) error
	SetCondition(ctx context.Context, key Key, cond Condition) error
}

// Operation is one named step of a ProgressOperation chain.
type Operation interface {
	Name() string
	Run(ctx context.Context, disposition Disposition, res *Resource) Result
}

// Notifier alerts an operator of a permanent chain failure. The
// default NoopNotifier discards every call.
type Notifier interface {
	Notify(ctx context.Context, operator string, key Key, err error)
}

// NoopNotifier is the default Notifier used when no alerting sink is
// configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, string, Key, error) {}

// Reconciler runs a fixed pool of workers pulling keys from a
// rate-limiting work-queue (k8s.io/client-go/util/workqueue), processing
// each key's chain serially — a standalone, Kubernetes-API-free use of
// exactly the "requeue after delay" primitive the generic loop needs.
type Reconciler struct {
	Name         string
	FinalizerTag string
	Loader       Loader
	Finalizer    Finalizer
	Operations   []Operation
	Notifier     Notifier
	Workers      int
	Log          *zap.Logger

	queue workqueue.RateLimitingInterface
}

// NewReconciler builds a Reconciler with its own work-queue.
func NewReconciler(name, finalizerTag string, loader Loader, fin Finalizer, ops []Operation, notifier Notifier, workers int, log *zap.Logger) *Reconciler {
	if workers <= 0 {
		workers = 1
	}
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Reconciler{
		Name:         name,
		FinalizerTag: finalizerTag,
		Loader:       loader,
		Finalizer:    fin,
		Operations:   ops,
		Notifier:     notifier,
		Workers:      workers,
		Log:          log,
		queue:        workqueue.NewRateLimitingQueue(workqueue.DefaultControllerRateLimiter()),
	}
}

// Enqueue schedules key for reconciliation. No package feeds it from the
// registry change outbox; cmd/reconciler enqueues every application on
// a periodic resync.
func (r *Reconciler) Enqueue(key Key) {
	r.queue.Add(key)
}

// EnqueueAfter schedules key after delay, used by operations that
// return RetryResult with an explicit backoff.
func (r *Reconciler) EnqueueAfter(key Key, delay time.Duration) {
	r.queue.AddAfter(key, delay)
}

// Run starts Workers goroutines processing the queue until ctx is
// cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	done := make(chan struct{})
	for i := 0; i < r.Workers; i++ {
		go func() {
			r.worker(ctx)
			done <- struct{}{}
		}()
	}
	<-ctx.Done()
	r.queue.ShutDown()
	for i := 0; i < r.Workers; i++ {
		<-done
	}
}

func (r *Reconciler) worker(ctx context.Context) {
	for {
		item, shutdown := r.queue.Get()
		if shutdown {
			return
		}
		key := item.(Key)
		r.processOnce(ctx, key)
		r.queue.Done(key)
	}
}

func (r *Reconciler) processOnce(ctx context.Context, key Key) {
	res, present, err := r.Loader.Load(ctx, key)
	if err != nil {
		r.queue.AddRateLimited(key)
		return
	}
	if !present {
		// Step 2: resource absent, drop silently — finalizers guard
		// existence for deconstruction.
		r.queue.Forget(key)
		return
	}

	disposition := evaluate(res)
	if disposition == Ignore {
		r.queue.Forget(key)
		return
	}

	for _, op := range r.Operations {
		result := op.Run(ctx, disposition, res)
		switch result.kind {
		case resultContinue:
			continue
		case resultRetry:
			if result.delay > 0 {
				r.queue.AddAfter(key, result.delay)
			} else {
				r.queue.AddRateLimited(key)
			}
			return
		case resultComplete:
			r.finish(ctx, key, disposition, result.err)
			return
		}
	}
	r.finish(ctx, key, disposition, nil)
}

func (r *Reconciler) finish(ctx context.Context, key Key, disposition Disposition, chainErr error) {
	now := time.Now()
	if chainErr != nil {
		_ = r.Finalizer.SetCondition(ctx, key, Condition{
			Type: ReconciledCondition, Status: false, Reason: "PermanentFailure",
			Message: chainErr.Error(), LastTransitionTime: now,
		})
		r.Notifier.Notify(ctx, r.Name, key, chainErr)
		r.queue.Forget(key)
		return
	}

	switch disposition {
	case Construct:
		_ = r.Finalizer.EnsureFinalizer(ctx, key, r.FinalizerTag)
	case Deconstruct:
		_ = r.Finalizer.RemoveFinalizer(ctx, key, r.FinalizerTag)
	}
	_ = r.Finalizer.SetCondition(ctx, key, Condition{
		Type: ReconciledCondition, Status: true, Reason: "Reconciled", LastTransitionTime: now,
	})
	r.queue.Forget(key)
}

// evaluate implements §4.9 step 3: marked-for-operator + not deleting →
// Construct; marked + deleting → Deconstruct; otherwise Ignore.
func evaluate(res *Resource) Disposition {
	marked := res.Labels["reconcile"] == markedValue
	switch {
	case marked && !res.Deleting:
		return Construct
	case marked && res.Deleting:
		return Deconstruct
	default:
		return Ignore
	}
}

const markedValue = "true"
