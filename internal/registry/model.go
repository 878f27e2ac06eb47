// Package registry implements C2: the authoritative Application/Device
// store, label-selector listing, ownership transfer, finalizer-gated
// deletion and the outbox write that accompanies every mutation.
package registry

import (
	"time"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/identity"
)

// Metadata is the part of an Application or Device record that is
// symmetric between the two, per §3.
type Metadata struct {
	UID               string
	ResourceVersion   int64
	Generation        int64
	CreationTimestamp time.Time
	DeletionTimestamp *time.Time
	Finalizers        []string
	Labels            map[string]string
	Annotations       map[string]string
}

// Role is a member's permission level on an Application.
type Role string

const (
	RoleReader  Role = "reader"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Member maps a user-id to a Role. An empty UserID denotes the
// anonymous principal (§3).
type Member struct {
	UserID string
	Role   Role
}

// Application is the top-level owned resource: a namespace for devices,
// with an owner, members and an optional pending ownership transfer.
type Application struct {
	Name     string
	Owner    string
	Metadata Metadata

	// TransferTo is set while a two-phase ownership transfer is pending;
	// nil once accepted or cancelled.
	TransferTo *string

	Members []Member
	Spec    map[string]any
	Status  map[string]any
}

// Device is scoped by its owning Application name.
type Device struct {
	App      string
	Name     string
	Metadata Metadata

	Credentials []identity.Credential
	Aliases     []string
	GatewayFor  []string

	Spec   map[string]any
	Status map[string]any
}

// ListOptions controls label-selector filtering and paging for list
// operations (§4.2).
type ListOptions struct {
	Selector Selector
	Limit    int
	Offset   int
}
