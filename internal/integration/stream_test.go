package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/admin"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/registry"
	"github.com/drogue-iot/drogue-cloud-sub001/pkg/event"
)

type fakeApps struct {
	app *registry.Application
	err error
}

func (f *fakeApps) GetApplication(ctx context.Context, name string) (*registry.Application, error) {
	return f.app, f.err
}

type fakeArchive struct {
	backlog []event.Envelope
}

func (f *fakeArchive) Replay(ctx context.Context, app string) ([]event.Envelope, error) {
	return f.backlog, nil
}

type fakeLiveConsumer struct {
	closed bool
}

func (f *fakeLiveConsumer) Next(ctx context.Context) (event.Envelope, error) {
	return event.Envelope{}, context.Canceled
}
func (f *fakeLiveConsumer) Close() error {
	f.closed = true
	return nil
}

func appWith(owner string, members ...registry.Member) *registry.Application {
	return &registry.Application{Name: "app1", Owner: owner, Members: members}
}

func TestSubscribe_DeniesWithoutReadPermission(t *testing.T) {
	apps := &fakeApps{app: appWith("owner1")}
	svc := NewService(apps, &fakeArchive{}, func(ctx context.Context, app, group string) (LiveConsumer, error) {
		return &fakeLiveConsumer{}, nil
	})

	_, err := svc.Subscribe(context.Background(), admin.Principal{UserID: "stranger"}, "app1", "")

	require.Error(t, err)
	assert.Equal(t, apierr.KindAuthorization, apierr.KindOf(err))
}

func TestSubscribe_ReplaysBacklogThenOpensLiveConsumer(t *testing.T) {
	backlog := []event.Envelope{{App: "app1", Device: "dev1", Channel: "temp"}}
	apps := &fakeApps{app: appWith("owner1")}
	live := &fakeLiveConsumer{}
	svc := NewService(apps, &fakeArchive{backlog: backlog}, func(ctx context.Context, app, group string) (LiveConsumer, error) {
		return live, nil
	})

	sub, err := svc.Subscribe(context.Background(), admin.Principal{UserID: "owner1"}, "app1", "")

	require.NoError(t, err)
	assert.Equal(t, backlog, sub.Backlog)
	require.NoError(t, sub.Close())
	assert.True(t, live.closed)
}

func TestSubscribe_SystemAdminAlwaysAllowed(t *testing.T) {
	apps := &fakeApps{app: appWith("owner1")}
	svc := NewService(apps, &fakeArchive{}, func(ctx context.Context, app, group string) (LiveConsumer, error) {
		return &fakeLiveConsumer{}, nil
	})

	_, err := svc.Subscribe(context.Background(), admin.Principal{SystemAdmin: true}, "app1", "")

	require.NoError(t, err)
}
