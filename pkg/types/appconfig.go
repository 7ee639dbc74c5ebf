/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package types

// Selector filters raw records before mapping. An empty Query is treated
// as true.
type Selector struct {
	Query string `json:"query,omitempty"`
}

// EntityMapping holds the expressions producing the entity fields from a
// raw record. Each value is an expression over the record (and over .item
// when ItemsToParse is set on the enclosing resource config).
type EntityMapping struct {
	Identifier string            `json:"identifier"`
	Blueprint  string            `json:"blueprint"`
	Title      string            `json:"title,omitempty"`
	Team       string            `json:"team,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
	Relations  map[string]string `json:"relations,omitempty"`
}

// EntityConfig wraps the mapping within a resource config.
type EntityConfig struct {
	Mappings EntityMapping `json:"mappings"`
}

// MappingsConfig is the portal-facing part of a resource config.
type MappingsConfig struct {
	Entity       EntityConfig `json:"entity"`
	ItemsToParse string       `json:"itemsToParse,omitempty"`
}

// ResourceConfig binds one adapter kind to a selector and a mapping.
// The same kind may appear in multiple resource configs; each is evaluated
// independently and contributes entities additively.
type ResourceConfig struct {
	Kind     string         `json:"kind"`
	Selector Selector       `json:"selector"`
	Port     MappingsConfig `json:"port"`
}

// PortAppConfig is the resource mapping plus the global reconciliation
// flags, as fetched from the portal (or defaulted from the integration
// specification).
type PortAppConfig struct {
	Resources                    []ResourceConfig `json:"resources"`
	DeleteDependentEntities      bool             `json:"deleteDependentEntities,omitempty"`
	CreateMissingRelatedEntities bool             `json:"createMissingRelatedEntities,omitempty"`
	EnableMergeEntity            bool             `json:"enableMergeEntity,omitempty"`
	// EntityDeletionThreshold gates the delete phase; nil disables the gate,
	// a numeric value (including 0) enforces it.
	EntityDeletionThreshold *float64 `json:"entityDeletionThreshold,omitempty"`
}

// ResourcesForKind returns the resource configs registered for the given
// kind, in declaration order.
func (c *PortAppConfig) ResourcesForKind(kind string) []ResourceConfig {
	var configs []ResourceConfig
	for _, resource := range c.Resources {
		if resource.Kind == kind {
			configs = append(configs, resource)
		}
	}
	return configs
}

// Kinds returns the distinct kinds of the resource mapping, in declaration
// order.
func (c *PortAppConfig) Kinds() []string {
	var kinds []string
	seen := map[string]bool{}
	for _, resource := range c.Resources {
		if !seen[resource.Kind] {
			seen[resource.Kind] = true
			kinds = append(kinds, resource.Kind)
		}
	}
	return kinds
}
