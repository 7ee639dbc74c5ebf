/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package event

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/sap/portal-integration-runtime/pkg/types"
)

// ErrNoActiveEvent is returned by Current when called outside of an event
// context.
var ErrNoActiveEvent = errors.New("no active event")

// Event type. Can be one of 'resync', 'start', 'http_request', 'live_event'.
type Type string

const (
	// Event type 'resync'.
	TypeResync Type = "resync"
	// Event type 'start'.
	TypeStart Type = "start"
	// Event type 'http_request'.
	TypeHTTPRequest Type = "http_request"
	// Event type 'live_event'.
	TypeLiveEvent Type = "live_event"
)

// Trigger type. Can be one of 'manual', 'machine', 'request'.
type TriggerType string

const (
	// Trigger type 'manual'.
	TriggerManual TriggerType = "manual"
	// Trigger type 'machine'.
	TriggerMachine TriggerType = "machine"
	// Trigger type 'request'.
	TriggerRequest TriggerType = "request"
)

type eventContextKeyType struct{}

var eventContextKey = eventContextKeyType{}

// Event is the ambient state scoped to the handling of one trigger.
// Events form a parent/child tree; child events inherit the parent's
// attributes by reference (unless isolated) and observe ancestor aborts
// through the parent link.
type Event struct {
	id         string
	typ        Type
	trigger    TriggerType
	parent     *Event
	abort      *AbortSignal
	attributes *Attributes
	resource   *types.ResourceConfig
	appConfig  *types.PortAppConfig
}

// Options are creation options for Start.
type Options struct {
	// Resource config of the kind currently being processed, if applicable.
	Resource *types.ResourceConfig
	// App config snapshot for this event tree.
	AppConfig *types.PortAppConfig
	// Whether to detach the attribute map from the parent's.
	IsolatedAttributes bool
}

// Start opens a new event context on the given context, nesting inside the
// context's current event if there is one. Each opening assigns a fresh
// event id. The previous event is restored implicitly when callers return
// to the parent context value.
func Start(ctx context.Context, typ Type, trigger TriggerType, options ...Options) (context.Context, *Event) {
	var opts Options
	if len(options) > 0 {
		opts = options[0]
	}

	parent, _ := ctx.Value(eventContextKey).(*Event)
	e := &Event{
		id:      uuid.NewString(),
		typ:     typ,
		trigger: trigger,
		parent:  parent,
		abort:   NewAbortSignal(),
	}
	if parent != nil && !opts.IsolatedAttributes {
		e.attributes = parent.attributes
	} else {
		e.attributes = NewAttributes()
	}
	if opts.Resource != nil {
		e.resource = opts.Resource
	} else if parent != nil {
		e.resource = parent.resource
	}
	if opts.AppConfig != nil {
		e.appConfig = opts.AppConfig
	} else if parent != nil {
		e.appConfig = parent.appConfig
	}

	return context.WithValue(ctx, eventContextKey, e), e
}

// Current returns the event of the given context.
func Current(ctx context.Context) (*Event, error) {
	if e, ok := ctx.Value(eventContextKey).(*Event); ok {
		return e, nil
	}
	return nil, ErrNoActiveEvent
}

// Aborted reports whether the context's current event (or any of its
// ancestors) has been aborted; false outside of an event context.
func Aborted(ctx context.Context) bool {
	e, ok := ctx.Value(eventContextKey).(*Event)
	return ok && e.Aborted()
}

func (e *Event) ID() string {
	return e.id
}

func (e *Event) Type() Type {
	return e.typ
}

func (e *Event) Trigger() TriggerType {
	return e.trigger
}

func (e *Event) Parent() *Event {
	return e.parent
}

func (e *Event) Attributes() *Attributes {
	return e.attributes
}

func (e *Event) Resource() *types.ResourceConfig {
	return e.resource
}

func (e *Event) AppConfig() *types.PortAppConfig {
	return e.appConfig
}

// Abort marks this event and all its descendants as aborted. Ancestors are
// not affected.
func (e *Event) Abort() {
	e.abort.Raise()
}

// Aborted reports whether this event or any of its ancestors was aborted.
func (e *Event) Aborted() bool {
	for current := e; current != nil; current = current.parent {
		if current.abort.Raised() {
			return true
		}
	}
	return false
}

// AbortSignal returns this event's own abort signal (not including
// ancestors); use Aborted for the cooperative poll.
func (e *Event) AbortSignal() *AbortSignal {
	return e.abort
}
