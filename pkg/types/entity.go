/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package types

import (
	"encoding/json"
)

// Entity is a catalog object of some blueprint, as produced by the mapping
// pipeline and exchanged with the portal.
// Identifier and Blueprint are the only fields required by the runtime;
// everything else is owned by the blueprint's schema on the portal side.
type Entity struct {
	Identifier string         `json:"identifier"`
	Blueprint  string         `json:"blueprint"`
	Title      any            `json:"title,omitempty"`
	Team       any            `json:"team,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Relations  map[string]any `json:"relations,omitempty"`
}

// EntityKey identifies an entity uniquely within the portal catalog.
type EntityKey struct {
	Blueprint  string
	Identifier string
}

func (k EntityKey) String() string {
	return k.Blueprint + "/" + k.Identifier
}

// IsParseable reports whether the entity carries the two required fields.
// Entities failing this check never become upsert targets.
func (e *Entity) IsParseable() bool {
	return e.Identifier != "" && e.Blueprint != ""
}

func (e *Entity) Key() EntityKey {
	return EntityKey{Blueprint: e.Blueprint, Identifier: e.Identifier}
}

// RelationTargets returns the literal identifiers referenced by the entity's
// relations. Search-query relation values are skipped; they are resolved
// against the portal at apply time.
func (e *Entity) RelationTargets() []string {
	var targets []string
	for _, value := range e.Relations {
		switch v := value.(type) {
		case string:
			targets = append(targets, v)
		case []any:
			for _, elem := range v {
				if s, ok := elem.(string); ok {
					targets = append(targets, s)
				}
			}
		}
	}
	return targets
}

// DeepCopy returns a structural copy of the entity (via JSON round trip;
// properties and relations may contain arbitrarily nested values).
func (e *Entity) DeepCopy() *Entity {
	raw, err := json.Marshal(e)
	if err != nil {
		panic("this cannot happen")
	}
	copied := &Entity{}
	if err := json.Unmarshal(raw, copied); err != nil {
		panic("this cannot happen")
	}
	return copied
}

// IsSearchQuery reports whether a relation value is a search-query object
// (an object carrying 'combinator' and 'rules' keys) rather than a literal
// identifier.
func IsSearchQuery(value any) bool {
	obj, ok := value.(map[string]any)
	if !ok {
		return false
	}
	_, hasCombinator := obj["combinator"]
	_, hasRules := obj["rules"]
	return hasCombinator && hasRules
}
