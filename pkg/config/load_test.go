/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package config_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/sap/portal-integration-runtime/pkg/config"
	"github.com/sap/portal-integration-runtime/pkg/types"
)

var _ = Describe("testing: load.go", func() {
	var spec *config.Spec

	baseEnviron := func() []string {
		return []string{
			"OCEAN__PORTAL__BASE_URL=https://portal.example.com",
			"OCEAN__PORTAL__CLIENT_ID=client",
			"OCEAN__PORTAL__CLIENT_SECRET=secret",
			"OCEAN__EVENT_LISTENER__TYPE=polling",
			"OCEAN__INTEGRATION__IDENTIFIER=my-integration",
			"UNRELATED=ignored",
		}
	}

	BeforeEach(func() {
		spec = &config.Spec{
			Type: "test-integration",
			Configurations: []config.OptionSpec{
				{Name: "appHost", Type: config.OptionTypeURL},
				{Name: "maxResults", Type: config.OptionTypeInteger, Default: float64(100)},
				{Name: "apiToken", Type: config.OptionTypeString, Sensitive: true, Required: true},
			},
		}
	})

	Context("testing: Load()", func() {
		It("should assemble nested keys from double-underscore segments", func() {
			environ := append(baseEnviron(),
				"OCEAN__INTEGRATION__CONFIG__API_TOKEN=xyz",
				"OCEAN__EVENT_LISTENER__POLLING_INTERVAL_SECONDS=30",
				"OCEAN__SERVER__PORT=9000",
			)
			cfg, err := config.Load(spec, environ)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Portal.BaseURL).To(Equal("https://portal.example.com"))
			Expect(cfg.EventListener.Type).To(Equal(config.ListenerTypePolling))
			Expect(cfg.EventListener.PollingIntervalSeconds).To(Equal(ref(30)))
			Expect(cfg.Server.Port).To(Equal(ref(9000)))
			Expect(cfg.Integration.Identifier).To(Equal("my-integration"))
		})

		It("should parse JSON literals and keep plain strings", func() {
			environ := append(baseEnviron(),
				"OCEAN__INTEGRATION__CONFIG__API_TOKEN=xyz",
				"OCEAN__SERVER__CORS_ORIGINS=[\"https://app.example.com\"]",
				"OCEAN__INITIALIZE_PORTAL_RESOURCES=true",
			)
			cfg, err := config.Load(spec, environ)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Server.CORSOrigins).To(Equal([]string{"https://app.example.com"}))
			Expect(cfg.InitializePortalResources).To(BeTrue())
		})

		It("should reject unknown keys", func() {
			environ := append(baseEnviron(),
				"OCEAN__INTEGRATION__CONFIG__API_TOKEN=xyz",
				"OCEAN__NO_SUCH_SECTION__VALUE=1",
			)
			_, err := config.Load(spec, environ)
			configErr := &types.ConfigError{}
			Expect(errors.As(err, &configErr)).To(BeTrue())
		})

		It("should reject a missing required portal setting", func() {
			environ := []string{
				"OCEAN__PORTAL__BASE_URL=https://portal.example.com",
				"OCEAN__EVENT_LISTENER__TYPE=polling",
				"OCEAN__INTEGRATION__IDENTIFIER=my-integration",
				"OCEAN__INTEGRATION__CONFIG__API_TOKEN=xyz",
			}
			_, err := config.Load(spec, environ)
			configErr := &types.ConfigError{}
			Expect(errors.As(err, &configErr)).To(BeTrue())
		})

		It("should reject an invalid listener type", func() {
			environ := append(baseEnviron(), "OCEAN__INTEGRATION__CONFIG__API_TOKEN=xyz")
			environ[3] = "OCEAN__EVENT_LISTENER__TYPE=carrier-pigeon"
			_, err := config.Load(spec, environ)
			configErr := &types.ConfigError{}
			Expect(errors.As(err, &configErr)).To(BeTrue())
		})

		It("should enforce required integration options", func() {
			_, err := config.Load(spec, baseEnviron())
			configErr := &types.ConfigError{}
			Expect(errors.As(err, &configErr)).To(BeTrue())
			Expect(configErr.Key).To(Equal("apiToken"))
		})

		It("should reject unknown integration options", func() {
			environ := append(baseEnviron(),
				"OCEAN__INTEGRATION__CONFIG__API_TOKEN=xyz",
				"OCEAN__INTEGRATION__CONFIG__NO_SUCH_OPTION=1",
			)
			_, err := config.Load(spec, environ)
			configErr := &types.ConfigError{}
			Expect(errors.As(err, &configErr)).To(BeTrue())
			Expect(configErr.Key).To(Equal("noSuchOption"))
		})

		It("should coerce option values to their declared type", func() {
			environ := append(baseEnviron(),
				"OCEAN__INTEGRATION__CONFIG__API_TOKEN=xyz",
				"OCEAN__INTEGRATION__CONFIG__MAX_RESULTS=42",
				"OCEAN__INTEGRATION__CONFIG__APP_HOST=https://hook.example.com",
			)
			cfg, err := config.Load(spec, environ)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Integration.Config["maxResults"]).To(Equal(int64(42)))
			Expect(cfg.Integration.Config["appHost"]).To(Equal("https://hook.example.com"))
		})

		It("should reject values violating their declared type", func() {
			environ := append(baseEnviron(),
				"OCEAN__INTEGRATION__CONFIG__API_TOKEN=xyz",
				"OCEAN__INTEGRATION__CONFIG__APP_HOST=not a url",
			)
			_, err := config.Load(spec, environ)
			configErr := &types.ConfigError{}
			Expect(errors.As(err, &configErr)).To(BeTrue())
			Expect(configErr.Key).To(Equal("appHost"))
		})

		It("should fill defaulted options, letting provided values win", func() {
			environ := append(baseEnviron(), "OCEAN__INTEGRATION__CONFIG__API_TOKEN=xyz")
			cfg, err := config.Load(spec, environ)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Integration.Config["maxResults"]).To(Equal(int64(100)))

			environ = append(environ, "OCEAN__INTEGRATION__CONFIG__MAX_RESULTS=7")
			cfg, err = config.Load(spec, environ)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Integration.Config["maxResults"]).To(Equal(int64(7)))
		})
	})
})

func ref[T any](x T) *T {
	return &x
}
