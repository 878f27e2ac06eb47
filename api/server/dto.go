// Package server implements the registry/admin REST surface (§6), hand-
// written against api/openapi's embedded document rather than generated
// by oapi-codegen — this domain's wire shapes (Application/Device/
// Session/Outbox) have no oapi-codegen .yaml input in this exercise, so
// only the validation middleware pattern is kept from the teacher, not
// the generated-code pipeline.
package server

import (
	"time"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/identity"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/registry"
)

// MetadataDTO mirrors registry.Metadata for wire transfer.
type MetadataDTO struct {
	UID               string            `json:"uid"`
	ResourceVersion   int64             `json:"resourceVersion"`
	Generation        int64             `json:"generation"`
	CreationTimestamp time.Time         `json:"creationTimestamp"`
	DeletionTimestamp *time.Time        `json:"deletionTimestamp,omitempty"`
	Finalizers        []string          `json:"finalizers,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
}

func toMetadataDTO(m registry.Metadata) MetadataDTO {
	return MetadataDTO{
		UID:               m.UID,
		ResourceVersion:   m.ResourceVersion,
		Generation:        m.Generation,
		CreationTimestamp: m.CreationTimestamp,
		DeletionTimestamp: m.DeletionTimestamp,
		Finalizers:        m.Finalizers,
		Labels:            m.Labels,
		Annotations:       m.Annotations,
	}
}

// MemberDTO mirrors registry.Member.
type MemberDTO struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// ApplicationDTO is the wire shape for registry.Application.
type ApplicationDTO struct {
	Name       string         `json:"name"`
	Owner      string         `json:"owner"`
	Metadata   MetadataDTO    `json:"metadata"`
	TransferTo *string        `json:"transferTo,omitempty"`
	Members    []MemberDTO    `json:"members,omitempty"`
	Spec       map[string]any `json:"spec,omitempty"`
	Status     map[string]any `json:"status,omitempty"`
}

func ToApplicationDTO(a *registry.Application) ApplicationDTO {
	members := make([]MemberDTO, len(a.Members))
	for i, m := range a.Members {
		members[i] = MemberDTO{UserID: m.UserID, Role: string(m.Role)}
	}
	return ApplicationDTO{
		Name:       a.Name,
		Owner:      a.Owner,
		Metadata:   toMetadataDTO(a.Metadata),
		TransferTo: a.TransferTo,
		Members:    members,
		Spec:       a.Spec,
		Status:     a.Status,
	}
}

// CreateApplicationRequest is the POST /apps request body.
type CreateApplicationRequest struct {
	Name   string            `json:"name"`
	Owner  string            `json:"owner"`
	Labels map[string]string `json:"labels,omitempty"`
}

// UpdateApplicationRequest is the PUT /apps/{name} request body.
type UpdateApplicationRequest struct {
	ResourceVersion int64          `json:"resourceVersion"`
	Spec            map[string]any `json:"spec"`
}

// DeviceDTO is the wire shape for registry.Device. Credentials are
// intentionally omitted from read responses (§7: "no error type leaks
// implementation details" applies equally to secrets on read).
type DeviceDTO struct {
	App        string         `json:"application"`
	Name       string         `json:"name"`
	Metadata   MetadataDTO    `json:"metadata"`
	Aliases    []string       `json:"aliases,omitempty"`
	GatewayFor []string       `json:"gatewayFor,omitempty"`
	Spec       map[string]any `json:"spec,omitempty"`
	Status     map[string]any `json:"status,omitempty"`
}

func ToDeviceDTO(d *registry.Device) DeviceDTO {
	return DeviceDTO{
		App:        d.App,
		Name:       d.Name,
		Metadata:   toMetadataDTO(d.Metadata),
		Aliases:    d.Aliases,
		GatewayFor: d.GatewayFor,
		Spec:       d.Spec,
		Status:     d.Status,
	}
}

// CredentialDTO is the wire shape for identity.Credential.
type CredentialDTO struct {
	Kind     string `json:"kind"`
	Password string `json:"password,omitempty"`
	Username string `json:"username,omitempty"`
}

func (c CredentialDTO) toCredential() identity.Credential {
	return identity.Credential{
		Kind:     identity.CredentialKind(c.Kind),
		Password: c.Password,
		Username: c.Username,
	}
}

// CreateDeviceRequest is the POST /apps/{name}/devices request body.
type CreateDeviceRequest struct {
	Name        string            `json:"name"`
	Credentials []CredentialDTO   `json:"credentials,omitempty"`
	Aliases     []string          `json:"aliases,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

func (r CreateDeviceRequest) toCredentials() []identity.Credential {
	out := make([]identity.Credential, len(r.Credentials))
	for i, c := range r.Credentials {
		out[i] = c.toCredential()
	}
	return out
}

// TransferOwnershipRequest is the POST .../transfer-ownership body.
type TransferOwnershipRequest struct {
	NewUser string `json:"newUser"`
}

// SetMembersRequest is the PUT .../members body.
type SetMembersRequest struct {
	Members []MemberDTO `json:"members"`
}

func (r SetMembersRequest) toMembers() []registry.Member {
	out := make([]registry.Member, len(r.Members))
	for i, m := range r.Members {
		out[i] = registry.Member{UserID: m.UserID, Role: registry.Role(m.Role)}
	}
	return out
}
