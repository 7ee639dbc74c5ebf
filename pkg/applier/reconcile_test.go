/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package applier_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	testingutils "github.com/sap/portal-integration-runtime/internal/testing"
	"github.com/sap/portal-integration-runtime/pkg/applier"
	"github.com/sap/portal-integration-runtime/pkg/portal"
	"github.com/sap/portal-integration-runtime/pkg/types"
)

var _ = Describe("testing: reconcile.go", func() {
	var ctx context.Context
	var fake *testingutils.FakePortal
	var client *portal.Client
	var a *applier.Applier
	var config *types.PortAppConfig

	key := func(identifier string) types.EntityKey {
		return types.EntityKey{Blueprint: "Project", Identifier: identifier}
	}

	BeforeEach(func() {
		ctx = context.Background()
		fake = testingutils.NewFakePortal()
		DeferCleanup(fake.Close)
		client = fake.NewClient("test-integration", "test")
		a = applier.NewApplier(client, applier.Options{})
		config = &types.PortAppConfig{}
		for _, identifier := range []string{"p1", "p2", "p3"} {
			fake.Seed(&types.Entity{Identifier: identifier, Blueprint: "Project"}, client.UserAgent())
		}
	})

	Context("testing: Reconcile()", func() {
		It("should delete stale entities, protecting upserted and still-upstream ones", func() {
			result, err := a.Reconcile(ctx, config, "Project", []types.EntityKey{key("p1")}, []types.EntityKey{key("p2")})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Deleted).To(ConsistOf(key("p3")))
			Expect(fake.EntityIdentifiers("Project")).To(ConsistOf("p1", "p2"))
		})

		It("should leave entities of other integrations alone", func() {
			fake.Seed(&types.Entity{Identifier: "foreign", Blueprint: "Project"}, "portal-integration/other/other/0.1.0/exporter")
			result, err := a.Reconcile(ctx, config, "Project", []types.EntityKey{key("p1"), key("p2"), key("p3")}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Deleted).To(BeEmpty())
			Expect(fake.EntityIdentifiers("Project")).To(ContainElement("foreign"))
		})

		It("should skip the delete phase when the deletion ratio exceeds the threshold", func() {
			config.EntityDeletionThreshold = ref(0.5)
			result, err := a.Reconcile(ctx, config, "Project", []types.EntityKey{key("p1")}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Deleted).To(BeEmpty())
			thresholdErr := &types.DeletionThresholdExceededError{}
			Expect(result.Errors).To(HaveLen(1))
			Expect(errors.As(result.Errors[0], &thresholdErr)).To(BeTrue())
			Expect(fake.EntityIdentifiers("Project")).To(ConsistOf("p1", "p2", "p3"))
		})

		It("should delete everything when the threshold is disabled", func() {
			config.EntityDeletionThreshold = nil
			result, err := a.Reconcile(ctx, config, "Project", nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Deleted).To(ConsistOf(key("p1"), key("p2"), key("p3")))
		})

		It("should record a conflict and keep deleting the rest", func() {
			fake.ConflictOnDelete["p2"] = true
			result, err := a.Reconcile(ctx, config, "Project", nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Deleted).To(ConsistOf(key("p1"), key("p3")))
			Expect(result.Failed).To(ConsistOf(key("p2")))
			Expect(result.Errors).To(HaveLen(1))
		})
	})

	Context("testing: Delete()", func() {
		It("should delete the given entities, tolerating ones already gone", func() {
			result := a.Delete(ctx, config, []*types.Entity{
				{Identifier: "p1", Blueprint: "Project"},
				{Identifier: "gone", Blueprint: "Project"},
			})
			Expect(result.Deleted).To(ConsistOf(key("p1"), key("gone")))
			Expect(result.Failed).To(BeEmpty())
			Expect(fake.EntityIdentifiers("Project")).To(ConsistOf("p2", "p3"))
		})
	})
})
