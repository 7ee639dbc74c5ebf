/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package mapping

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"

	"github.com/sap/portal-integration-runtime/pkg/expr"
	"github.com/sap/portal-integration-runtime/pkg/stream"
	"github.com/sap/portal-integration-runtime/pkg/types"
)

// ProcessorOptions are creation options for a Processor.
type ProcessorOptions struct {
	// Maximum number of records parsed concurrently within a batch.
	// If unspecified, 10 is assumed.
	Parallelism *int
}

// Processor transforms raw records into entities by applying a resource
// config's selector and mapping expressions. Evaluation of one record is
// deterministic and independent of its siblings; batches are parsed in
// parallel but results keep submission order.
type Processor struct {
	evaluator   expr.Evaluator
	parallelism int
}

func NewProcessor(evaluator expr.Evaluator, options ProcessorOptions) *Processor {
	if options.Parallelism == nil {
		options.Parallelism = ref(10)
	}
	return &Processor{
		evaluator:   evaluator,
		parallelism: *options.Parallelism,
	}
}

// ProcessBatch maps one batch of raw records. Only expression compilation
// failures are returned as an error (they indicate a broken resource
// config); per-record evaluation failures are collected in the result.
func (p *Processor) ProcessBatch(ctx context.Context, batch stream.Batch, resource types.ResourceConfig) (*Result, error) {
	compiled, err := p.compileResource(resource)
	if err != nil {
		return nil, err
	}

	results := make([]*recordResult, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i, record := range batch {
		g.Go(func() error {
			results[i] = p.processRecord(gctx, compiled, record)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{}
	for _, r := range results {
		result.merge(r)
	}
	return result, nil
}

// StaticBlueprint resolves the blueprint a resource config's mapping
// produces when the expression does not depend on the record (the common
// case of a quoted constant). Record-dependent or broken blueprint
// expressions yield false.
func (p *Processor) StaticBlueprint(ctx context.Context, resource types.ResourceConfig) (string, bool) {
	expression := resource.Port.Entity.Mappings.Blueprint
	if expression == "" {
		return "", false
	}
	compiled, err := p.evaluator.Compile(expression)
	if err != nil {
		return "", false
	}
	value, err := compiled.Eval(ctx, map[string]any{})
	if err != nil {
		return "", false
	}
	blueprint, ok := value.(string)
	if !ok || blueprint == "" {
		return "", false
	}
	return blueprint, true
}

type compiledResource struct {
	kind         string
	itemsToParse expr.CompiledExpr
	selector     expr.CompiledExpr
	identifier   expr.CompiledExpr
	blueprint    expr.CompiledExpr
	title        expr.CompiledExpr
	team         expr.CompiledExpr
	properties   map[string]expr.CompiledExpr
	relations    map[string]expr.CompiledExpr
}

func (p *Processor) compileResource(resource types.ResourceConfig) (*compiledResource, error) {
	compiled := &compiledResource{
		kind:       resource.Kind,
		properties: make(map[string]expr.CompiledExpr),
		relations:  make(map[string]expr.CompiledExpr),
	}
	mappings := resource.Port.Entity.Mappings

	compileField := func(field string, expression string) (expr.CompiledExpr, error) {
		if expression == "" {
			return nil, nil
		}
		c, err := p.evaluator.Compile(expression)
		if err != nil {
			return nil, &types.MappingError{Kind: resource.Kind, Field: field, Expr: expression, Err: err}
		}
		return c, nil
	}

	var err error
	if compiled.itemsToParse, err = compileField("itemsToParse", resource.Port.ItemsToParse); err != nil {
		return nil, err
	}
	if compiled.selector, err = compileField("selector", resource.Selector.Query); err != nil {
		return nil, err
	}
	if compiled.identifier, err = compileField("identifier", mappings.Identifier); err != nil {
		return nil, err
	}
	if compiled.blueprint, err = compileField("blueprint", mappings.Blueprint); err != nil {
		return nil, err
	}
	if compiled.title, err = compileField("title", mappings.Title); err != nil {
		return nil, err
	}
	if compiled.team, err = compileField("team", mappings.Team); err != nil {
		return nil, err
	}
	for name, expression := range mappings.Properties {
		if compiled.properties[name], err = compileField("properties."+name, expression); err != nil {
			return nil, err
		}
	}
	for name, expression := range mappings.Relations {
		if compiled.relations[name], err = compileField("relations."+name, expression); err != nil {
			return nil, err
		}
	}
	return compiled, nil
}

func (p *Processor) processRecord(ctx context.Context, compiled *compiledResource, record map[string]any) *recordResult {
	result := &recordResult{}

	inputs := []map[string]any{record}
	if compiled.itemsToParse != nil {
		value, err := compiled.itemsToParse.Eval(ctx, record)
		if err != nil {
			result.misconfigured++
			result.errors = append(result.errors, &types.MappingError{Kind: compiled.kind, Field: "itemsToParse", Expr: compiled.itemsToParse.Source(), Err: err})
			return result
		}
		items, ok := value.([]any)
		if !ok {
			result.misconfigured++
			result.errors = append(result.errors, &types.MappingError{Kind: compiled.kind, Field: "itemsToParse", Expr: compiled.itemsToParse.Source(),
				Err: fmt.Errorf("expression returned %T, expected a list", value)})
			return result
		}
		// the mapping runs once per item, with .item bound to the element
		// and the original record still accessible at the root scope
		inputs = make([]map[string]any, len(items))
		for i, item := range items {
			input := make(map[string]any, len(record)+1)
			for key, value := range record {
				input[key] = value
			}
			input["item"] = item
			inputs[i] = input
		}
	}

	for _, input := range inputs {
		p.processInput(ctx, compiled, input, result)
	}
	return result
}

func (p *Processor) processInput(ctx context.Context, compiled *compiledResource, input map[string]any, result *recordResult) {
	// a missing/empty selector query is treated as true; a runtime error in
	// the selector classifies the record as misconfigured, not as filtered
	passed := true
	if compiled.selector != nil {
		var err error
		passed, err = expr.EvalBool(ctx, compiled.selector, input)
		if err != nil {
			result.misconfigured++
			result.errors = append(result.errors, &types.MappingError{Kind: compiled.kind, Field: "selector", Expr: compiled.selector.Source(), Err: err})
			return
		}
	}

	if !passed {
		// shallow entity for deletion consideration only; records whose
		// identifier or blueprint cannot be evaluated contribute nothing
		identifier, errIdentifier := p.evalString(ctx, compiled, "identifier", compiled.identifier, input)
		blueprint, errBlueprint := p.evalString(ctx, compiled, "blueprint", compiled.blueprint, input)
		result.filtered++
		if errIdentifier == nil && errBlueprint == nil && identifier != "" && blueprint != "" {
			result.failedKeys = append(result.failedKeys, types.EntityKey{Blueprint: blueprint, Identifier: identifier})
		}
		return
	}

	entity := &types.Entity{
		Properties: make(map[string]any),
		Relations:  make(map[string]any),
	}

	var err error
	if entity.Identifier, err = p.evalString(ctx, compiled, "identifier", compiled.identifier, input); err != nil {
		result.misconfigured++
		result.errors = append(result.errors, err)
		return
	}
	if entity.Blueprint, err = p.evalString(ctx, compiled, "blueprint", compiled.blueprint, input); err != nil {
		result.misconfigured++
		result.errors = append(result.errors, err)
		return
	}
	if !entity.IsParseable() {
		result.misconfigured++
		result.errors = append(result.errors, &types.MappingError{Kind: compiled.kind, Field: "identifier", Expr: "",
			Err: errors.New("identifier or blueprint evaluated to null")})
		return
	}

	// optional fields: an evaluation error yields null for that field and
	// is recorded as a diagnostic; false, 0, "" and empty collections are
	// preserved as-is
	evalOptional := func(field string, c expr.CompiledExpr) any {
		if c == nil {
			return nil
		}
		value, err := c.Eval(ctx, input)
		if err != nil {
			result.errors = append(result.errors, &types.MappingError{Kind: compiled.kind, Field: field, Expr: c.Source(), Err: err})
			return nil
		}
		return value
	}

	entity.Title = evalOptional("title", compiled.title)
	entity.Team = evalOptional("team", compiled.team)
	for name, c := range compiled.properties {
		entity.Properties[name] = evalOptional("properties."+name, c)
	}
	for name, c := range compiled.relations {
		entity.Relations[name] = evalOptional("relations."+name, c)
	}

	result.entities = append(result.entities, entity)
}

func (p *Processor) evalString(ctx context.Context, compiled *compiledResource, field string, c expr.CompiledExpr, input map[string]any) (string, error) {
	if c == nil {
		return "", nil
	}
	value, err := c.Eval(ctx, input)
	if err != nil {
		return "", &types.MappingError{Kind: compiled.kind, Field: field, Expr: c.Source(), Err: err}
	}
	if value == nil {
		return "", nil
	}
	s, err := cast.ToStringE(value)
	if err != nil {
		return "", &types.MappingError{Kind: compiled.kind, Field: field, Expr: c.Source(), Err: err}
	}
	return s, nil
}

func ref[T any](x T) *T {
	return &x
}
