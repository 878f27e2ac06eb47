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
	"context"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"

	"github.com/drogue-iot/drogue-cloud-sub001/pkg/logger"
)

// Sender is the external event bus broker: CloudEvents-over-HTTP delivery
// to a single per-application sink URL (§4.4's "external broker").
type Sender interface {
	Send(ctx context.Context, env Envelope) error
}

type sender struct {
	client cloudevents.Client
}

// NewSender creates a Sender targeting the given sink URL.
func NewSender(target string) (Sender, error) {
	if target == "" {
		return nil, fmt.Errorf("missing external broker sink URL")
	}
	c, err := cloudevents.NewClientHTTP(cloudevents.WithTarget(target))
	if err != nil {
		return nil, err
	}
	return &sender{client: c}, nil
}

func (s *sender) Send(ctx context.Context, env Envelope) (err error) {
	log := logger.Get()
	log.With(
		zap.String("app", env.App),
		zap.String("device", env.Device),
		zap.String("channel", env.Channel),
	).Debug("sending cloud event")
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in CloudEvents sender: %v", r)
		}
	}()

	e, err := New(env)
	if err != nil {
		return err
	}
	if res := s.client.Send(ctx, *e); cloudevents.IsUndelivered(res) {
		log.With(zap.Error(res)).Error("send cloud event failed")
		return res
	}
	log.Debug("cloud event sent")
	return nil
}
