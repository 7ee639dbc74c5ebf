/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package trigger

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/sap/portal-integration-runtime/pkg/config"
	"github.com/sap/portal-integration-runtime/pkg/event"
)

// Control message kind. Can be one of 'config_change', 'resync_request'.
type MessageKind string

const (
	// Message kind 'config_change'.
	MessageConfigChange MessageKind = "config_change"
	// Message kind 'resync_request'.
	MessageResyncRequest MessageKind = "resync_request"
)

// Message is one control message from the external bus.
type Message struct {
	Kind MessageKind
}

// MessageSource abstracts the external message bus driving the cooperative
// listener. Implementations are provided by the host (e.g. on top of a
// Kafka consumer group).
type MessageSource interface {
	// Receive blocks for the next control message; it returns the
	// context's error on cancellation.
	Receive(ctx context.Context) (*Message, error)
	// Assigned reports whether this instance currently holds a partition
	// assignment on the bus.
	Assigned() bool
}

// CooperativeListener consumes control messages from an external bus and
// resyncs on each of them. If the bus leaves this instance without a
// partition assignment for longer than the configured timeout, Run returns
// ErrEmptyAssignment so the host can restart the integration.
type CooperativeListener struct {
	orchestrator Orchestrator
	source       MessageSource
	log          logr.Logger

	emptyAssignmentTimeout time.Duration
}

func NewCooperativeListener(cfg config.ListenerConfig, orchestrator Orchestrator, source MessageSource, log logr.Logger) *CooperativeListener {
	timeout := 300 * time.Second
	if cfg.EmptyAssignmentTimeoutSeconds != nil {
		timeout = time.Duration(*cfg.EmptyAssignmentTimeoutSeconds) * time.Second
	}
	return &CooperativeListener{
		orchestrator:           orchestrator,
		source:                 source,
		log:                    log.WithName("cooperative-listener"),
		emptyAssignmentTimeout: timeout,
	}
}

func (l *CooperativeListener) Run(ctx context.Context) error {
	messages := make(chan *Message)
	receiveErr := make(chan error, 1)
	go func() {
		for {
			message, err := l.source.Receive(ctx)
			if err != nil {
				receiveErr <- err
				return
			}
			select {
			case messages <- message:
			case <-ctx.Done():
				return
			}
		}
	}()

	assignmentCheck := time.NewTicker(time.Second)
	defer assignmentCheck.Stop()
	var unassignedSince time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-receiveErr:
			if ctx.Err() != nil {
				return nil
			}
			return err
		case message := <-messages:
			l.log.Info("control message received", "kind", string(message.Kind))
			switch message.Kind {
			case MessageConfigChange, MessageResyncRequest:
				if err := l.orchestrator.TriggerResync(ctx, event.TriggerMachine); err != nil {
					l.log.Error(err, "resync finished with errors")
				}
			default:
				l.log.Info("ignoring unknown control message", "kind", string(message.Kind))
			}
		case <-assignmentCheck.C:
			if l.source.Assigned() {
				unassignedSince = time.Time{}
				continue
			}
			if unassignedSince.IsZero() {
				unassignedSince = time.Now()
			}
			if time.Since(unassignedSince) >= l.emptyAssignmentTimeout {
				return ErrEmptyAssignment
			}
		}
	}
}
