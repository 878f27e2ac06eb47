package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/registry"
)

func appWith(owner string, members ...registry.Member) *registry.Application {
	return &registry.Application{Name: "a1", Owner: owner, Members: members}
}

func TestAuthorize_SystemAdminAlwaysAllowed(t *testing.T) {
	a := appWith("someone-else")
	assert.True(t, Authorize(Principal{SystemAdmin: true}, a, PermissionAdmin, false))
}

func TestAuthorize_OwnerAllowedUnlessNotOwnerRequired(t *testing.T) {
	a := appWith("owner1")
	assert.True(t, Authorize(Principal{UserID: "owner1"}, a, PermissionAdmin, false))
	assert.False(t, Authorize(Principal{UserID: "owner1"}, a, PermissionAdmin, true))
}

func TestAuthorize_MemberRoleGrantsHierarchically(t *testing.T) {
	a := appWith("owner1", registry.Member{UserID: "reader1", Role: registry.RoleReader})
	assert.True(t, Authorize(Principal{UserID: "reader1"}, a, PermissionRead, false))
	assert.False(t, Authorize(Principal{UserID: "reader1"}, a, PermissionWrite, false))
}

func TestAuthorize_UnknownUserDenied(t *testing.T) {
	a := appWith("owner1")
	assert.False(t, Authorize(Principal{UserID: "stranger"}, a, PermissionRead, false))
}

type fakeStore struct {
	app             *registry.Application
	transferred     string
	acceptedBy      string
	membersSet      []registry.Member
	setMembersErr   error
}

func (f *fakeStore) GetApplication(ctx context.Context, name string) (*registry.Application, error) {
	return f.app, nil
}
func (f *fakeStore) TransferOwnership(ctx context.Context, app, newUser string) error {
	f.transferred = newUser
	return nil
}
func (f *fakeStore) CancelTransfer(ctx context.Context, app string) error { return nil }
func (f *fakeStore) AcceptOwnership(ctx context.Context, app, acceptingUser string) error {
	f.acceptedBy = acceptingUser
	return nil
}
func (f *fakeStore) GetMembers(ctx context.Context, app string) ([]registry.Member, error) {
	return f.app.Members, nil
}
func (f *fakeStore) SetMembers(ctx context.Context, app string, expectedVersion int64, members []registry.Member, resolver registry.UsernameResolver) error {
	f.membersSet = members
	return f.setMembersErr
}

func TestService_TransferOwnership_DeniedForNonOwner(t *testing.T) {
	store := &fakeStore{app: appWith("owner1")}
	svc := NewService(store, nil)

	err := svc.TransferOwnership(context.Background(), Principal{UserID: "stranger"}, "a1", "newowner")
	require.Error(t, err)
	e, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindAuthorization, e.Kind)
	assert.Empty(t, store.transferred)
}

func TestService_TransferOwnership_AllowedForOwner(t *testing.T) {
	store := &fakeStore{app: appWith("owner1")}
	svc := NewService(store, nil)

	err := svc.TransferOwnership(context.Background(), Principal{UserID: "owner1"}, "a1", "newowner")
	require.NoError(t, err)
	assert.Equal(t, "newowner", store.transferred)
}

func TestService_SetMembers_RequiresAdmin(t *testing.T) {
	store := &fakeStore{app: appWith("owner1", registry.Member{UserID: "manager1", Role: registry.RoleManager})}
	svc := NewService(store, nil)

	err := svc.SetMembers(context.Background(), Principal{UserID: "manager1"}, "a1", 1, nil)
	require.Error(t, err)
	assert.Empty(t, store.membersSet)
}
