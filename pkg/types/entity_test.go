/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package types

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("testing: entity.go", func() {
	Context("testing: IsSearchQuery()", func() {
		It("should recognize a search query object", func() {
			Expect(IsSearchQuery(map[string]any{
				"combinator": "and",
				"rules":      []any{map[string]any{"property": "name", "operator": "=", "value": "x"}},
			})).To(BeTrue())
		})

		It("should reject plain identifiers and other objects", func() {
			Expect(IsSearchQuery("some-identifier")).To(BeFalse())
			Expect(IsSearchQuery(map[string]any{"combinator": "and"})).To(BeFalse())
			Expect(IsSearchQuery(nil)).To(BeFalse())
		})
	})

	Context("testing: RelationTargets()", func() {
		It("should collect literal targets and skip search queries", func() {
			entity := &Entity{
				Identifier: "a",
				Blueprint:  "service",
				Relations: map[string]any{
					"owner":    "team-1",
					"projects": []any{"p1", "p2"},
					"env":      map[string]any{"combinator": "and", "rules": []any{}},
				},
			}
			Expect(entity.RelationTargets()).To(ConsistOf("team-1", "p1", "p2"))
		})
	})

	Context("testing: DeepCopy()", func() {
		It("should produce a structurally equal, independent copy", func() {
			entity := &Entity{
				Identifier: "a",
				Blueprint:  "service",
				Properties: map[string]any{"nested": map[string]any{"k": "v"}},
			}
			copied := entity.DeepCopy()
			Expect(copied).To(Equal(entity))
			copied.Properties["nested"].(map[string]any)["k"] = "changed"
			Expect(entity.Properties["nested"].(map[string]any)["k"]).To(Equal("v"))
		})
	})

	Context("testing: IsParseable()", func() {
		It("should require identifier and blueprint", func() {
			Expect((&Entity{Identifier: "a", Blueprint: "b"}).IsParseable()).To(BeTrue())
			Expect((&Entity{Identifier: "a"}).IsParseable()).To(BeFalse())
			Expect((&Entity{Blueprint: "b"}).IsParseable()).To(BeFalse())
		})
	})
})
