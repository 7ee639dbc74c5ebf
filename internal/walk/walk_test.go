/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package walk_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/sap/portal-integration-runtime/internal/walk"
)

var _ = Describe("testing: walk.go", func() {
	document := func() any {
		return map[string]any{
			"name": "top",
			"list": []any{"a", map[string]any{"name": "inner"}},
		}
	}

	Context("testing: Walk()", func() {
		It("should visit every node including the root", func() {
			var paths []string
			err := walk.Walk(document(), func(value any, path []string) error {
				paths = append(paths, "/"+strings.Join(path, "/"))
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(paths).To(ConsistOf("/", "/name", "/list", "/list/0", "/list/1", "/list/1/name"))
		})

		It("should aggregate visitor errors with their paths", func() {
			err := walk.Walk(document(), func(value any, path []string) error {
				if value == "inner" {
					return errors.New("boom")
				}
				return nil
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("/list/1/name: boom"))
		})
	})

	Context("testing: Transform()", func() {
		It("should replace matched nodes and leave the input unmutated", func() {
			input := document()
			result, err := walk.Transform(input, func(value any, path []string) (any, bool, error) {
				if len(path) > 0 && path[len(path)-1] == "name" {
					return "redacted", true, nil
				}
				return nil, false, nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(map[string]any{
				"name": "redacted",
				"list": []any{"a", map[string]any{"name": "redacted"}},
			}))
			Expect(input).To(Equal(document()))
		})
	})
})
