/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package applier

import (
	"github.com/sap/portal-integration-runtime/pkg/types"
)

// orderByRelations orders entities such that relation targets precede the
// entities referencing them. Only relations targeting entities within the
// given set induce edges; self-loops are ignored. Cyclic sub-components
// are returned as errors and excluded from the order; entities merely
// depending on a cyclic component remain in the order (their upsert may
// still fail individually, which the upsert phase reports).
func orderByRelations(entities []*types.Entity) ([]*types.Entity, []*types.CyclicDependencyError) {
	// relation values carry identifiers without a blueprint; when the same
	// identifier exists on several blueprints within the set, every one of
	// them is treated as the dependency target
	index := make(map[string][]int, len(entities))
	for i, entity := range entities {
		index[entity.Identifier] = append(index[entity.Identifier], i)
	}

	// adjacency along "depends on": entity -> its relation targets
	edges := make([][]int, len(entities))
	for i, entity := range entities {
		for _, target := range entity.RelationTargets() {
			for _, j := range index[target] {
				if j != i {
					edges[i] = append(edges[i], j)
				}
			}
		}
	}

	// Tarjan's algorithm; components complete only after everything they
	// reach, so the completion order is exactly targets-before-sources.
	state := &tarjanState{
		edges:   edges,
		visited: make([]int, len(entities)),
		lowlink: make([]int, len(entities)),
		onStack: make([]bool, len(entities)),
	}
	for i := range entities {
		if state.visited[i] == 0 {
			state.visit(i)
		}
	}

	var ordered []*types.Entity
	var cycles []*types.CyclicDependencyError
	for _, component := range state.components {
		if len(component) == 1 {
			ordered = append(ordered, entities[component[0]])
			continue
		}
		keys := make([]types.EntityKey, len(component))
		for i, node := range component {
			keys[i] = entities[node].Key()
		}
		cycles = append(cycles, &types.CyclicDependencyError{Keys: keys})
	}
	return ordered, cycles
}

type tarjanState struct {
	edges      [][]int
	visited    []int
	lowlink    []int
	onStack    []bool
	stack      []int
	counter    int
	components [][]int
}

func (s *tarjanState) visit(root int) {
	// iterative to keep the stack depth independent of the graph shape
	type frame struct {
		node int
		next int
	}
	frames := []frame{{node: root}}
	for len(frames) > 0 {
		f := &frames[len(frames)-1]
		node := f.node
		if f.next == 0 {
			s.counter++
			s.visited[node] = s.counter
			s.lowlink[node] = s.counter
			s.stack = append(s.stack, node)
			s.onStack[node] = true
		}
		advanced := false
		for f.next < len(s.edges[node]) {
			target := s.edges[node][f.next]
			f.next++
			if s.visited[target] == 0 {
				frames = append(frames, frame{node: target})
				advanced = true
				break
			}
			if s.onStack[target] && s.visited[target] < s.lowlink[node] {
				s.lowlink[node] = s.visited[target]
			}
		}
		if advanced {
			continue
		}
		if s.lowlink[node] == s.visited[node] {
			var component []int
			for {
				top := s.stack[len(s.stack)-1]
				s.stack = s.stack[:len(s.stack)-1]
				s.onStack[top] = false
				component = append(component, top)
				if top == node {
					break
				}
			}
			s.components = append(s.components, component)
		}
		frames = frames[:len(frames)-1]
		if len(frames) > 0 {
			parent := frames[len(frames)-1].node
			if s.lowlink[node] < s.lowlink[parent] {
				s.lowlink[parent] = s.lowlink[node]
			}
		}
	}
}
