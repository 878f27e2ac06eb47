// Package integration implements C8: authenticated consumer streams
// over WebSocket keyed by application, seeded from the Event Archive
// before switching to live bus reads. No MQTT transport is provided.
//
// Grounded on the Rust actix integration actor's subscribe protocol
// (spec.md §4.8); the WebSocket transport reuses
// github.com/gorilla/websocket, the one dependency dexidp-dex,
// r3e-network-service_layer and wisbric-nightowl all independently
// converge on for this exact concern.
package integration

import (
	"context"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/admin"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/registry"
	"github.com/drogue-iot/drogue-cloud-sub001/pkg/event"
)

// Archive is the subset of C4's Event Archive a Stream replays before
// switching to live delivery.
type Archive interface {
	Replay(ctx context.Context, app string) ([]event.Envelope, error)
}

// LiveConsumer is a live, cancelable read loop against the bus for one
// (app, group); Next blocks until the next event or ctx cancellation.
type LiveConsumer interface {
	Next(ctx context.Context) (event.Envelope, error)
	Close() error
}

// ConsumerFactory opens a live consumer for app, using group if
// non-empty or an anonymous auto-generated one otherwise.
type ConsumerFactory func(ctx context.Context, app, group string) (LiveConsumer, error)

// AppGetter is the subset of C2 used for the Read permission check.
type AppGetter interface {
	GetApplication(ctx context.Context, name string) (*registry.Application, error)
}

// Service builds authenticated subscription streams, applying the same
// Read-permission check C10 applies to admin operations.
type Service struct {
	apps    AppGetter
	archive Archive
	factory ConsumerFactory
}

func NewService(apps AppGetter, archive Archive, factory ConsumerFactory) *Service {
	return &Service{apps: apps, archive: archive, factory: factory}
}

// Subscription is a single client's live view onto one application's
// events: the replayed backlog (consumed once by the caller), and
// further live events returned by Next until Close is called or ctx is
// cancelled.
type Subscription struct {
	Backlog []event.Envelope
	live    LiveConsumer
}

// Next blocks for the next live event after the backlog has been
// drained by the caller.
func (s *Subscription) Next(ctx context.Context) (event.Envelope, error) {
	return s.live.Next(ctx)
}

// Close cancels the underlying live consumer (§4.8: "On WebSocket
// disconnect or subscription error, the underlying consumer is
// cancelled").
func (s *Subscription) Close() error {
	return s.live.Close()
}

// Subscribe authenticates the caller against the application's Read
// permission, replays the archive backlog, then opens a live consumer
// in group (or an anonymous one if empty).
func (s *Service) Subscribe(ctx context.Context, caller admin.Principal, app, group string) (*Subscription, error) {
	a, err := s.apps.GetApplication(ctx, app)
	if err != nil {
		return nil, err
	}
	if !admin.Authorize(caller, a, admin.PermissionRead, false) {
		return nil, permissionDenied()
	}

	backlog, err := s.archive.Replay(ctx, app)
	if err != nil {
		return nil, err
	}

	live, err := s.factory(ctx, app, group)
	if err != nil {
		return nil, err
	}

	return &Subscription{Backlog: backlog, live: live}, nil
}
