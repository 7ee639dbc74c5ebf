/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package version_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sap/portal-integration-runtime/internal/version"
)

var _ = Describe("testing: version.go", func() {
	Context("testing: GetVersion()", func() {
		It("should always yield a non-empty version for the user-agent label", func() {
			Expect(version.GetVersion()).NotTo(BeEmpty())
			Expect(version.GetVersion()).To(Equal(version.GetVersion()))
		})
	})
})
