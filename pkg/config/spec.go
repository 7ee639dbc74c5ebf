/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"os"

	"dario.cat/mergo"
	"github.com/drone/envsubst"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/sap/portal-integration-runtime/pkg/types"
)

// Option type of an integration specification. Can be one of 'string',
// 'integer', 'boolean', 'url', 'object', 'array'.
type OptionType string

const (
	// Option type 'string'.
	OptionTypeString OptionType = "string"
	// Option type 'integer'.
	OptionTypeInteger OptionType = "integer"
	// Option type 'boolean'.
	OptionTypeBoolean OptionType = "boolean"
	// Option type 'url'.
	OptionTypeURL OptionType = "url"
	// Option type 'object'.
	OptionTypeObject OptionType = "object"
	// Option type 'array'.
	OptionTypeArray OptionType = "array"
)

// OptionSpec declares one configuration option of an integration.
type OptionSpec struct {
	Name        string     `json:"name"`
	Type        OptionType `json:"type"`
	Required    bool       `json:"required,omitempty"`
	Sensitive   bool       `json:"sensitive,omitempty"`
	Default     any        `json:"default,omitempty"`
	Description string     `json:"description,omitempty"`
}

// FeatureSpec declares one feature of an integration and the kinds it
// supports.
type FeatureSpec struct {
	Name  string   `json:"name"`
	Kinds []string `json:"kinds,omitempty"`
}

// SaasSpec carries hosted-operation metadata.
type SaasSpec struct {
	LiveEvents LiveEventsSpec `json:"liveEvents"`
}

type LiveEventsSpec struct {
	Enabled bool `json:"enabled"`
}

// Spec is the declarative integration specification document shipped with
// an integration. It drives validation and defaulting of the integration's
// configuration.
type Spec struct {
	Type           string        `json:"type"`
	Features       []FeatureSpec `json:"features,omitempty"`
	Configurations []OptionSpec  `json:"configurations,omitempty"`
	Saas           *SaasSpec     `json:"saas,omitempty"`
}

// LoadSpec reads and parses an integration specification from a YAML file.
func LoadSpec(path string) (*Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.ConfigError{Err: errors.Wrap(err, "error reading integration specification")}
	}
	return ParseSpec(raw)
}

// ParseSpec parses an integration specification from YAML.
func ParseSpec(raw []byte) (*Spec, error) {
	spec := &Spec{}
	if err := yaml.Unmarshal(raw, spec); err != nil {
		return nil, &types.ConfigError{Err: errors.Wrap(err, "error parsing integration specification")}
	}
	if spec.Type == "" {
		return nil, &types.ConfigError{Key: "type", Err: errors.New("must not be empty")}
	}
	return spec, nil
}

// Option returns the named configuration option, or nil.
func (s *Spec) Option(name string) *OptionSpec {
	for i := range s.Configurations {
		if s.Configurations[i].Name == name {
			return &s.Configurations[i]
		}
	}
	return nil
}

// DefaultConfig returns the integration config assembled from the
// specification's defaults. String defaults support ${VAR} substitution
// from the process environment.
func (s *Spec) DefaultConfig() (map[string]any, error) {
	defaults := map[string]any{}
	for _, option := range s.Configurations {
		if option.Default == nil {
			continue
		}
		value := option.Default
		if s, ok := value.(string); ok {
			expanded, err := envsubst.EvalEnv(s)
			if err != nil {
				return nil, &types.ConfigError{Key: option.Name, Err: errors.Wrap(err, "error substituting default value")}
			}
			value = expanded
		}
		defaults[option.Name] = value
	}
	return defaults, nil
}

// mergeWithDefaults fills options missing from the provided integration
// config with the specification's defaults; provided values win.
func (s *Spec) mergeWithDefaults(provided map[string]any) (map[string]any, error) {
	defaults, err := s.DefaultConfig()
	if err != nil {
		return nil, err
	}
	merged := map[string]any{}
	for key, value := range provided {
		merged[key] = value
	}
	if err := mergo.Merge(&merged, defaults); err != nil {
		return nil, &types.ConfigError{Err: errors.Wrap(err, "error merging config defaults")}
	}
	return merged, nil
}
