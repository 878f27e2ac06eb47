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

// EventType is the CloudEvents "type" attribute. The platform defines a
// single canonical type for every telemetry/command event flowing through
// the bus (§4.7); the channel the event belongs to travels in "subject".
type EventType string

const (
	// TypeDeviceEvent is the canonical type for every event produced by
	// the protocol endpoint core, regardless of originating transport.
	TypeDeviceEvent EventType = "io.drogue.event.v1"
)

func (t EventType) String() string {
	return string(t)
}

// Source identifies the endpoint instance that produced the event, in the
// form "drogue://<app>/<device>".
type Source string

func NewSource(app, device string) Source {
	return Source("drogue://" + app + "/" + device)
}

func (s Source) String() string {
	return string(s)
}
