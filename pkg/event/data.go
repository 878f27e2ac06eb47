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

// Envelope carries the fields every canonical event needs beyond what
// CloudEvents itself models as top-level attributes (§4.7): the
// publishing instance and sender identity, plus the raw payload.
type Envelope struct {
	App      string `json:"app"`
	Device   string `json:"device"`
	Channel  string `json:"channel"`
	Instance string `json:"instance"`
	Sender   string `json:"sender"`
	AsDevice string `json:"asDevice,omitempty"`

	ContentType string `json:"contentType"`
	Payload     []byte `json:"payload"`
}
