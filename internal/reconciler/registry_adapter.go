package reconciler

import (
	"context"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/registry"
)

// RegistryStore is the subset of C2 an ApplicationAdapter depends on.
type RegistryStore interface {
	GetApplication(ctx context.Context, name string) (*registry.Application, error)
	AddFinalizer(ctx context.Context, name, finalizer string) error
	RemoveFinalizer(ctx context.Context, name, finalizer string) error
	SetStatusCondition(ctx context.Context, name string, cond registry.Condition) error
	ListDevices(ctx context.Context, app string, opts registry.ListOptions) ([]registry.Device, error)
	DeleteDevice(ctx context.Context, app, name string) error
}

// ApplicationAdapter satisfies Loader and Finalizer against C2's
// application store, translating between registry.Application and the
// generic Resource/Condition the reconcile loop operates on. A Key is
// always a bare application name for this adapter.
type ApplicationAdapter struct {
	store RegistryStore
}

func NewApplicationAdapter(store RegistryStore) *ApplicationAdapter {
	return &ApplicationAdapter{store: store}
}

func (a *ApplicationAdapter) Load(ctx context.Context, key Key) (*Resource, bool, error) {
	app, err := a.store.GetApplication(ctx, string(key))
	if err != nil {
		if apierr.KindOf(err) == apierr.KindNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &Resource{
		Key:        key,
		Labels:     app.Metadata.Labels,
		Deleting:   app.Metadata.DeletionTimestamp != nil,
		Finalizers: app.Metadata.Finalizers,
		Conditions: conditionsFromStatus(app.Status),
	}, true, nil
}

func (a *ApplicationAdapter) EnsureFinalizer(ctx context.Context, key Key, name string) error {
	return a.store.AddFinalizer(ctx, string(key), name)
}

func (a *ApplicationAdapter) RemoveFinalizer(ctx context.Context, key Key, name string) error {
	return a.store.RemoveFinalizer(ctx, string(key), name)
}

func (a *ApplicationAdapter) SetCondition(ctx context.Context, key Key, cond Condition) error {
	return a.store.SetStatusCondition(ctx, string(key), registry.Condition{
		Type:               cond.Type,
		Status:             cond.Status,
		Reason:             cond.Reason,
		Message:            cond.Message,
		LastTransitionTime: cond.LastTransitionTime,
	})
}

func conditionsFromStatus(status map[string]any) []Condition {
	raw, _ := status["conditions"].(map[string]any)
	out := make([]Condition, 0, len(raw))
	for t, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		c := Condition{Type: t}
		if s, ok := m["status"].(bool); ok {
			c.Status = s
		}
		if r, ok := m["reason"].(string); ok {
			c.Reason = r
		}
		if msg, ok := m["message"].(string); ok {
			c.Message = msg
		}
		out = append(out, c)
	}
	return out
}

// deviceNameLister adapts RegistryStore.ListDevices into the
// DeviceLister interface DeviceCleaner depends on.
type deviceNameLister struct {
	store RegistryStore
}

// NewDeviceNameLister builds a DeviceLister over store, for wiring
// DeviceCleaner against the real application store (store also
// satisfies DeviceDeleter directly, since its DeleteDevice signature
// already matches).
func NewDeviceNameLister(store RegistryStore) DeviceLister {
	return deviceNameLister{store: store}
}

func (l deviceNameLister) ListDeviceNames(ctx context.Context, app string) ([]string, error) {
	devices, err := l.store.ListDevices(ctx, app, registry.ListOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = d.Name
	}
	return out, nil
}
