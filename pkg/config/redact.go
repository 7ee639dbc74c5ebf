/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"strings"

	"github.com/sap/portal-integration-runtime/internal/walk"
)

const redactedValue = "[redacted]"

// keys redacted regardless of the integration specification
var builtinSensitiveKeys = []string{"clientSecret", "token", "password", "secret", "apiKey"}

// Redacted returns a copy of a JSON-like value with the values of
// sensitive keys replaced; suitable for logging. Sensitivity is determined
// by the specification's sensitive options plus a built-in list.
func (s *Spec) Redacted(value any) any {
	sensitive := map[string]bool{}
	for _, key := range builtinSensitiveKeys {
		sensitive[strings.ToLower(key)] = true
	}
	for _, option := range s.Configurations {
		if option.Sensitive {
			sensitive[strings.ToLower(option.Name)] = true
		}
	}

	redacted, err := walk.Transform(value, func(value any, path []string) (any, bool, error) {
		if len(path) > 0 && sensitive[strings.ToLower(path[len(path)-1])] {
			return redactedValue, true, nil
		}
		return nil, false, nil
	})
	if err != nil {
		panic("this cannot happen")
	}
	return redacted
}

// RedactedConfig returns the integration config of a loaded configuration
// in loggable form.
func (s *Spec) RedactedConfig(config *Config) map[string]any {
	redacted, _ := s.Redacted(map[string]any{
		"portal": map[string]any{
			"baseUrl":      config.Portal.BaseURL,
			"clientId":     config.Portal.ClientID,
			"clientSecret": config.Portal.ClientSecret,
		},
		"integration": map[string]any{
			"identifier": config.Integration.Identifier,
			"config":     config.Integration.Config,
		},
	}).(map[string]any)
	return redacted
}
