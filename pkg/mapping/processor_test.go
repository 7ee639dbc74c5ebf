/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package mapping_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pkg/errors"

	"github.com/sap/portal-integration-runtime/pkg/expr/jq"
	"github.com/sap/portal-integration-runtime/pkg/mapping"
	"github.com/sap/portal-integration-runtime/pkg/stream"
	"github.com/sap/portal-integration-runtime/pkg/types"
)

var _ = Describe("testing: processor.go", func() {
	var ctx context.Context
	var processor *mapping.Processor

	BeforeEach(func() {
		ctx = context.Background()
		processor = mapping.NewProcessor(jq.NewEvaluator(), mapping.ProcessorOptions{})
	})

	projectResource := func(selector string) types.ResourceConfig {
		return types.ResourceConfig{
			Kind:     "project",
			Selector: types.Selector{Query: selector},
			Port: types.MappingsConfig{
				Entity: types.EntityConfig{
					Mappings: types.EntityMapping{
						Identifier: ".id",
						Blueprint:  `"Project"`,
						Title:      ".name",
					},
				},
			},
		}
	}

	Context("testing: ProcessBatch()", func() {
		It("should map records to entities", func() {
			batch := stream.Batch{
				{"id": "p1", "name": "A"},
				{"id": "p2", "name": "B"},
			}
			result, err := processor.ProcessBatch(ctx, batch, projectResource(""))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Entities).To(HaveLen(2))
			Expect(result.Entities[0].Identifier).To(Equal("p1"))
			Expect(result.Entities[0].Blueprint).To(Equal("Project"))
			Expect(result.Entities[0].Title).To(Equal("A"))
			Expect(result.Entities[1].Identifier).To(Equal("p2"))
			Expect(result.FailedKeys).To(BeEmpty())
			Expect(result.Errors).To(BeEmpty())
		})

		It("should keep submission order despite parallel parsing", func() {
			batch := stream.Batch{}
			for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
				batch = append(batch, map[string]any{"id": id, "name": id})
			}
			result, err := processor.ProcessBatch(ctx, batch, projectResource(""))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Entities).To(HaveLen(8))
			for i, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
				Expect(result.Entities[i].Identifier).To(Equal(id))
			}
		})

		It("should classify failed-selector records with parseable keys for deletion consideration", func() {
			batch := stream.Batch{
				{"id": "p1", "name": "A"},
				{"id": "p2", "name": "B"},
			}
			result, err := processor.ProcessBatch(ctx, batch, projectResource(`.name != "A"`))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Entities).To(HaveLen(1))
			Expect(result.Entities[0].Identifier).To(Equal("p2"))
			Expect(result.Filtered).To(Equal(1))
			Expect(result.FailedKeys).To(ConsistOf(types.EntityKey{Blueprint: "Project", Identifier: "p1"}))
		})

		It("should classify selector runtime errors as misconfigured, not filtered", func() {
			batch := stream.Batch{{"id": "p1", "name": "A"}}
			result, err := processor.ProcessBatch(ctx, batch, projectResource(".name | keys | length > 0"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Entities).To(BeEmpty())
			Expect(result.Filtered).To(BeZero())
			Expect(result.Misconfigured).To(Equal(1))
			Expect(result.Errors).To(HaveLen(1))
		})

		It("should reject broken mapping expressions as a batch-level error", func() {
			resource := projectResource("")
			resource.Port.Entity.Mappings.Identifier = ".id["
			_, err := processor.ProcessBatch(ctx, stream.Batch{{"id": "p1"}}, resource)
			Expect(err).To(HaveOccurred())
			mappingErr := &types.MappingError{}
			Expect(errors.As(err, &mappingErr)).To(BeTrue())
		})
	})

	Context("testing: StaticBlueprint()", func() {
		It("should resolve a constant blueprint expression", func() {
			blueprint, ok := processor.StaticBlueprint(ctx, projectResource(""))
			Expect(ok).To(BeTrue())
			Expect(blueprint).To(Equal("Project"))
		})

		It("should not resolve record-dependent or broken expressions", func() {
			resource := projectResource("")
			resource.Port.Entity.Mappings.Blueprint = ".kind"
			_, ok := processor.StaticBlueprint(ctx, resource)
			Expect(ok).To(BeFalse())

			resource.Port.Entity.Mappings.Blueprint = `.kind[`
			_, ok = processor.StaticBlueprint(ctx, resource)
			Expect(ok).To(BeFalse())
		})
	})

	Context("testing: items_to_parse", func() {
		commentResource := types.ResourceConfig{
			Kind: "issue",
			Port: types.MappingsConfig{
				ItemsToParse: ".comments",
				Entity: types.EntityConfig{
					Mappings: types.EntityMapping{
						Identifier: ".item.id",
						Blueprint:  `"Comment"`,
						Properties: map[string]string{"issue": ".issue"},
					},
				},
			},
		}

		It("should produce one entity per item, with the record still in scope", func() {
			batch := stream.Batch{{
				"issue":    "I1",
				"comments": []any{map[string]any{"id": "c1"}, map[string]any{"id": "c2"}},
			}}
			result, err := processor.ProcessBatch(ctx, batch, commentResource)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Entities).To(HaveLen(2))
			Expect(result.Entities[0].Identifier).To(Equal("c1"))
			Expect(result.Entities[1].Identifier).To(Equal("c2"))
			Expect(result.Entities[0].Properties["issue"]).To(Equal("I1"))
		})

		It("should contribute nothing for an empty items list, without marking failed_selector", func() {
			batch := stream.Batch{{"issue": "I1", "comments": []any{}}}
			result, err := processor.ProcessBatch(ctx, batch, commentResource)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Entities).To(BeEmpty())
			Expect(result.FailedKeys).To(BeEmpty())
			Expect(result.Filtered).To(BeZero())
			Expect(result.Misconfigured).To(BeZero())
		})

		It("should classify a non-list items result as misconfigured", func() {
			batch := stream.Batch{{"issue": "I1", "comments": "not a list"}}
			result, err := processor.ProcessBatch(ctx, batch, commentResource)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Misconfigured).To(Equal(1))
		})
	})

	Context("testing: determinism", func() {
		It("should produce the same entities for the same input", func() {
			batch := stream.Batch{{"id": "p1", "name": "A"}}
			first, err := processor.ProcessBatch(ctx, batch, projectResource(""))
			Expect(err).NotTo(HaveOccurred())
			second, err := processor.ProcessBatch(ctx, batch, projectResource(""))
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Entities).To(Equal(second.Entities))
		})
	})
})
