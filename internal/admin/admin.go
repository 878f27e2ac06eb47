// Package admin implements C10: the authorization-checked wrapper
// around internal/registry's ownership-transfer and membership
// operations.
package admin

import (
	"context"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/registry"
)

// Permission is the access level a caller needs for an operation,
// per §4 invariant 6: "member roles grant Read (Reader+), Write
// (Manager+), Admin (Admin)".
type Permission int

const (
	PermissionRead Permission = iota
	PermissionWrite
	PermissionAdmin
)

// Principal is the authenticated caller: a user-id (empty for
// anonymous) and whether they hold system-admin rights.
type Principal struct {
	UserID      string
	SystemAdmin bool
}

// Authorize implements §4 invariant 6 exactly: system admin is always
// allowed; the record owner is always allowed except where the
// operation requires a strictly different principal (ownership
// transfer accept); otherwise the caller's member role must meet the
// required permission level.
func Authorize(p Principal, app *registry.Application, required Permission, requireNotOwner bool) bool {
	if p.SystemAdmin {
		return true
	}
	if !requireNotOwner && p.UserID != "" && p.UserID == app.Owner {
		return true
	}
	for _, m := range app.Members {
		if m.UserID != p.UserID {
			continue
		}
		if requireNotOwner && p.UserID == app.Owner {
			continue
		}
		return roleGrants(m.Role, required)
	}
	return false
}

func roleGrants(role registry.Role, required Permission) bool {
	level := map[registry.Role]Permission{
		registry.RoleReader:  PermissionRead,
		registry.RoleManager: PermissionWrite,
		registry.RoleAdmin:   PermissionAdmin,
	}[role]
	return level >= required
}

// Store is the subset of registry.Store the admin service depends on.
type Store interface {
	GetApplication(ctx context.Context, name string) (*registry.Application, error)
	TransferOwnership(ctx context.Context, app, newUser string) error
	CancelTransfer(ctx context.Context, app string) error
	AcceptOwnership(ctx context.Context, app, acceptingUser string) error
	GetMembers(ctx context.Context, app string) ([]registry.Member, error)
	SetMembers(ctx context.Context, app string, expectedVersion int64, members []registry.Member, resolver registry.UsernameResolver) error
}

// Service is the C10 surface exposed to the HTTP admin API.
type Service struct {
	store    Store
	resolver registry.UsernameResolver
}

func NewService(store Store, resolver registry.UsernameResolver) *Service {
	return &Service{store: store, resolver: resolver}
}

// TransferOwnership proposes app's ownership transfer to newUser.
// Only the current owner (or a system admin) may call this.
func (s *Service) TransferOwnership(ctx context.Context, caller Principal, app, newUser string) error {
	a, err := s.store.GetApplication(ctx, app)
	if err != nil {
		return err
	}
	if !caller.SystemAdmin && (caller.UserID == "" || caller.UserID != a.Owner) {
		return apierr.New(apierr.KindAuthorization, "not authorized to transfer ownership")
	}
	return s.store.TransferOwnership(ctx, app, newUser)
}

// CancelTransfer withdraws a pending transfer on app. The proposed
// recipient may cancel, as may any caller Authorize grants Admin.
func (s *Service) CancelTransfer(ctx context.Context, caller Principal, app string) error {
	a, err := s.store.GetApplication(ctx, app)
	if err != nil {
		return err
	}
	recipient := a.TransferTo != nil && caller.UserID != "" && caller.UserID == *a.TransferTo
	if !recipient && !Authorize(caller, a, PermissionAdmin, false) {
		return apierr.New(apierr.KindAuthorization, "not authorized to cancel ownership transfer")
	}
	return s.store.CancelTransfer(ctx, app)
}

// AcceptOwnership completes a transfer proposed to caller. Requires a
// strictly different principal than the current owner (§4.10): the
// current owner cannot "accept" their own application.
func (s *Service) AcceptOwnership(ctx context.Context, caller Principal, app string) error {
	a, err := s.store.GetApplication(ctx, app)
	if err != nil {
		return err
	}
	if caller.UserID == a.Owner {
		return apierr.New(apierr.KindNotFound, "application not found")
	}
	return s.store.AcceptOwnership(ctx, app, caller.UserID)
}

// GetMembers returns app's member list, requiring Read.
func (s *Service) GetMembers(ctx context.Context, caller Principal, app string) ([]registry.Member, error) {
	a, err := s.store.GetApplication(ctx, app)
	if err != nil {
		return nil, err
	}
	if !Authorize(caller, a, PermissionRead, false) {
		return nil, apierr.New(apierr.KindAuthorization, "not authorized to read members")
	}
	return s.store.GetMembers(ctx, app)
}

// SetMembers replaces app's member list, requiring Admin.
func (s *Service) SetMembers(ctx context.Context, caller Principal, app string, expectedVersion int64, members []registry.Member) error {
	a, err := s.store.GetApplication(ctx, app)
	if err != nil {
		return err
	}
	if !Authorize(caller, a, PermissionAdmin, false) {
		return apierr.New(apierr.KindAuthorization, "not authorized to set members")
	}
	return s.store.SetMembers(ctx, app, expectedVersion, members, s.resolver)
}
