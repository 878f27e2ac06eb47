/*
Copyright (C) 2022-2025 Contributors | TIM S.p.A. to CAMARA a Series of LF Projects, LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package event

import (
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

const (
	extInstance    = "instance"
	extSender      = "sender"
	extAsDevice    = "asdevice"
	extPartitionID = "partitionkey"
)

// New builds the canonical CloudEvent described in §4.7: id, type, source,
// subject, time and partitionkey are always set; instance and sender travel
// as extension attributes.
func New(env Envelope) (*cloudevents.Event, error) {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetType(TypeDeviceEvent.String())
	e.SetSource(NewSource(env.App, env.Device).String())
	e.SetSubject(env.Channel)
	e.SetTime(time.Now())
	e.SetExtension(extPartitionID, env.App+"/"+env.Device)
	e.SetExtension(extInstance, env.Instance)
	e.SetExtension(extSender, env.Sender)
	if env.AsDevice != "" {
		e.SetExtension(extAsDevice, env.AsDevice)
	}

	contentType := env.ContentType
	if contentType == "" {
		contentType = cloudevents.ApplicationOctetStream
	}
	if err := e.SetData(contentType, env.Payload); err != nil {
		return nil, err
	}
	return &e, nil
}

// PartitionKey returns the routing/partition key used by every bus
// implementation so that all events for one device land in the same
// ordered stream.
func PartitionKey(app, device string) string {
	return app + "/" + device
}

// ToEnvelope extracts the Envelope fields back out of a received
// CloudEvent, the inverse of New.
func ToEnvelope(e cloudevents.Event) Envelope {
	env := Envelope{
		Channel:     e.Subject(),
		ContentType: e.DataContentType(),
		Payload:     e.Data(),
	}
	if v, ok := e.Extensions()[extInstance].(string); ok {
		env.Instance = v
	}
	if v, ok := e.Extensions()[extSender].(string); ok {
		env.Sender = v
	}
	if v, ok := e.Extensions()[extAsDevice].(string); ok {
		env.AsDevice = v
	}
	return env
}
