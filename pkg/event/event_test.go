/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package event_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sap/portal-integration-runtime/pkg/event"
)

var _ = Describe("testing: event.go", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("testing: Start()/Current()", func() {
		It("should return an error outside of an event context", func() {
			_, err := event.Current(ctx)
			Expect(err).To(MatchError(event.ErrNoActiveEvent))
		})

		It("should nest child events under the context's current event", func() {
			ctx, parent := event.Start(ctx, event.TypeResync, event.TriggerMachine)
			_, child := event.Start(ctx, event.TypeResync, event.TriggerMachine)
			Expect(child.Parent()).To(BeIdenticalTo(parent))
			Expect(child.ID()).NotTo(Equal(parent.ID()))
		})

		It("should restore the parent event when using the parent context", func() {
			parentCtx, parent := event.Start(ctx, event.TypeResync, event.TriggerMachine)
			_, _ = event.Start(parentCtx, event.TypeLiveEvent, event.TriggerRequest)
			current, err := event.Current(parentCtx)
			Expect(err).NotTo(HaveOccurred())
			Expect(current).To(BeIdenticalTo(parent))
		})
	})

	Context("testing: attribute inheritance", func() {
		It("should share attributes with children by reference", func() {
			ctx, parent := event.Start(ctx, event.TypeResync, event.TriggerMachine)
			_, child := event.Start(ctx, event.TypeResync, event.TriggerMachine)
			parent.Attributes().Set("key", "value")
			value, ok := child.Attributes().Get("key")
			Expect(ok).To(BeTrue())
			Expect(value).To(Equal("value"))
		})

		It("should detach attributes when isolation is requested", func() {
			ctx, parent := event.Start(ctx, event.TypeResync, event.TriggerMachine)
			_, child := event.Start(ctx, event.TypeResync, event.TriggerMachine, event.Options{IsolatedAttributes: true})
			parent.Attributes().Set("key", "value")
			_, ok := child.Attributes().Get("key")
			Expect(ok).To(BeFalse())
		})
	})

	Context("testing: abort semantics", func() {
		It("should mark the event and its descendants, but not its ancestors", func() {
			ctx, parent := event.Start(ctx, event.TypeResync, event.TriggerMachine)
			childCtx, child := event.Start(ctx, event.TypeResync, event.TriggerMachine)
			_, grandchild := event.Start(childCtx, event.TypeResync, event.TriggerMachine)

			child.Abort()
			Expect(child.Aborted()).To(BeTrue())
			Expect(grandchild.Aborted()).To(BeTrue())
			Expect(parent.Aborted()).To(BeFalse())
		})

		It("should report abort through the context helper", func() {
			ctx, current := event.Start(ctx, event.TypeResync, event.TriggerMachine)
			Expect(event.Aborted(ctx)).To(BeFalse())
			current.Abort()
			Expect(event.Aborted(ctx)).To(BeTrue())
		})

		It("should close the abort signal's done channel exactly once", func() {
			_, current := event.Start(ctx, event.TypeResync, event.TriggerMachine)
			current.Abort()
			current.Abort()
			Eventually(current.AbortSignal().Done()).Should(BeClosed())
		})
	})
})
