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

var _ = Describe("testing: relations.go", func() {
	var ctx context.Context
	var fake *testingutils.FakePortal
	var client *portal.Client
	var a *applier.Applier
	var config *types.PortAppConfig

	searchByName := func(name string) map[string]any {
		return map[string]any{
			"combinator": "and",
			"rules": []any{
				map[string]any{"property": "name", "operator": "=", "value": name},
			},
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		fake = testingutils.NewFakePortal()
		DeferCleanup(fake.Close)
		client = fake.NewClient("test-integration", "test")
		a = applier.NewApplier(client, applier.Options{})
		config = &types.PortAppConfig{}
		fake.Seed(&types.Entity{Identifier: "t1", Blueprint: "Team", Properties: map[string]any{"name": "Alpha"}}, client.UserAgent())
	})

	Context("testing: resolveRelations()", func() {
		It("should replace a single-match search query with the matched identifier", func() {
			service := &types.Entity{
				Identifier: "s1",
				Blueprint:  "Service",
				Relations:  map[string]any{"team": searchByName("Alpha")},
			}
			result, err := a.Upsert(ctx, config, []*types.Entity{service})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Failed).To(BeEmpty())

			fake.Lock.Lock()
			stored := fake.Entities[types.EntityKey{Blueprint: "Service", Identifier: "s1"}]
			fake.Lock.Unlock()
			Expect(stored.Entity.Relations["team"]).To(Equal("t1"))
			// the caller's entity is not mutated
			Expect(types.IsSearchQuery(service.Relations["team"])).To(BeTrue())
		})

		It("should resolve a zero-match search query to null", func() {
			service := &types.Entity{
				Identifier: "s1",
				Blueprint:  "Service",
				Relations:  map[string]any{"team": searchByName("Nobody")},
			}
			result, err := a.Upsert(ctx, config, []*types.Entity{service})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Failed).To(BeEmpty())

			fake.Lock.Lock()
			stored := fake.Entities[types.EntityKey{Blueprint: "Service", Identifier: "s1"}]
			fake.Lock.Unlock()
			Expect(stored.Entity.Relations["team"]).To(BeNil())
		})

		It("should fail the entity on an ambiguous search query", func() {
			fake.Seed(&types.Entity{Identifier: "t2", Blueprint: "Team", Properties: map[string]any{"name": "Alpha"}}, client.UserAgent())
			service := &types.Entity{
				Identifier: "s1",
				Blueprint:  "Service",
				Relations:  map[string]any{"team": searchByName("Alpha")},
			}
			result, err := a.Upsert(ctx, config, []*types.Entity{service})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Failed).To(ConsistOf(types.EntityKey{Blueprint: "Service", Identifier: "s1"}))
			unresolvedErr := &types.UnresolvedRelationError{}
			Expect(errors.As(result.Errors[0], &unresolvedErr)).To(BeTrue())
			Expect(fake.EntityIdentifiers("Service")).To(BeEmpty())
		})

		It("should resolve search queries inside relation lists", func() {
			service := &types.Entity{
				Identifier: "s1",
				Blueprint:  "Service",
				Relations:  map[string]any{"teams": []any{"literal", searchByName("Alpha")}},
			}
			result, err := a.Upsert(ctx, config, []*types.Entity{service})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Failed).To(BeEmpty())

			fake.Lock.Lock()
			stored := fake.Entities[types.EntityKey{Blueprint: "Service", Identifier: "s1"}]
			fake.Lock.Unlock()
			Expect(stored.Entity.Relations["teams"]).To(Equal([]any{"literal", "t1"}))
		})
	})
})
