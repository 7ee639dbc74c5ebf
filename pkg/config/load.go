/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/sap/portal-integration-runtime/pkg/types"
)

// EnvPrefix marks the environment variables the runtime reads; nested keys
// are joined with double underscores (OCEAN__PORTAL__BASE_URL).
const EnvPrefix = "OCEAN__"

var validate = validator.New()

// Load assembles the runtime configuration from the given environment
// (os.Environ() format), validates it against the integration
// specification, and fills defaulted integration options. Unknown keys are
// rejected. All failures are ConfigError values (exit code 3).
func Load(spec *Spec, environ []string) (*Config, error) {
	tree := map[string]any{}
	for _, entry := range environ {
		name, value, found := strings.Cut(entry, "=")
		if !found || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		var path []string
		for _, segment := range strings.Split(strings.TrimPrefix(name, EnvPrefix), "__") {
			path = append(path, strcase.ToLowerCamel(strings.ToLower(segment)))
		}
		if err := insert(tree, path, parseLiteral(value)); err != nil {
			return nil, &types.ConfigError{Key: name, Err: err}
		}
	}

	raw, err := json.Marshal(tree)
	if err != nil {
		return nil, &types.ConfigError{Err: err}
	}
	config := &Config{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	// unknown keys are a misconfiguration, not something to ignore
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(config); err != nil {
		return nil, &types.ConfigError{Err: errors.Wrap(err, "error decoding configuration")}
	}

	if err := validate.Struct(config); err != nil {
		return nil, &types.ConfigError{Err: errors.Wrap(err, "invalid configuration")}
	}

	merged, err := spec.mergeWithDefaults(config.Integration.Config)
	if err != nil {
		return nil, err
	}
	if err := spec.validateIntegrationConfig(merged); err != nil {
		return nil, err
	}
	config.Integration.Config = merged

	return config, nil
}

// validateIntegrationConfig checks the integration options against the
// specification document: unknown options are rejected, required options
// enforced, and values coerced to their declared type.
func (s *Spec) validateIntegrationConfig(config map[string]any) error {
	for name, value := range config {
		option := s.Option(name)
		if option == nil {
			return &types.ConfigError{Key: name, Err: errors.New("unknown configuration option")}
		}
		coerced, err := coerce(option.Type, value)
		if err != nil {
			return &types.ConfigError{Key: name, Err: err}
		}
		config[name] = coerced
	}
	for _, option := range s.Configurations {
		if option.Required {
			if _, ok := config[option.Name]; !ok {
				return &types.ConfigError{Key: option.Name, Err: errors.New("required configuration option missing")}
			}
		}
	}
	return nil
}

func coerce(typ OptionType, value any) (any, error) {
	switch typ {
	case OptionTypeString:
		return cast.ToStringE(value)
	case OptionTypeInteger:
		return cast.ToInt64E(value)
	case OptionTypeBoolean:
		return cast.ToBoolE(value)
	case OptionTypeURL:
		s, err := cast.ToStringE(value)
		if err != nil {
			return nil, err
		}
		if _, err := url.ParseRequestURI(s); err != nil {
			return nil, errors.Wrap(err, "not a valid URL")
		}
		return s, nil
	case OptionTypeObject:
		if _, ok := value.(map[string]any); !ok {
			return nil, errors.Errorf("expected object, got %T", value)
		}
		return value, nil
	case OptionTypeArray:
		if _, ok := value.([]any); !ok {
			return nil, errors.Errorf("expected array, got %T", value)
		}
		return value, nil
	default:
		return nil, errors.Errorf("unknown option type %q", typ)
	}
}

// insert places a value into a nested string map, creating intermediate
// maps; a scalar/map conflict along the path is an error.
func insert(tree map[string]any, path []string, value any) error {
	for i, key := range path {
		if i == len(path)-1 {
			tree[key] = value
			return nil
		}
		child, ok := tree[key]
		if !ok {
			child = map[string]any{}
			tree[key] = child
		}
		childMap, ok := child.(map[string]any)
		if !ok {
			return errors.Errorf("conflicting values at key %s", strings.Join(path[:i+1], "."))
		}
		tree = childMap
	}
	return nil
}

// parseLiteral interprets an environment value as JSON if it parses as
// such (numbers, booleans, objects, arrays), and as a plain string
// otherwise.
func parseLiteral(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return value
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
		if _, isString := parsed.(string); !isString {
			return parsed
		}
	}
	return value
}
