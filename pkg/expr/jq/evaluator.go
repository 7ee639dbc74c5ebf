/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package jq

import (
	"context"
	"sync"

	"github.com/itchyny/gojq"
	"github.com/pkg/errors"

	"github.com/sap/portal-integration-runtime/pkg/expr"
)

// Evaluator is the reference expr.Evaluator implementation, backed by gojq.
// Compiled queries are cached; the cache is safe for concurrent use.
type Evaluator struct {
	lock  sync.RWMutex
	cache map[string]*compiledExpr
}

var _ expr.Evaluator = &Evaluator{}

func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]*compiledExpr)}
}

func (e *Evaluator) Compile(expression string) (expr.CompiledExpr, error) {
	e.lock.RLock()
	compiled, ok := e.cache[expression]
	e.lock.RUnlock()
	if ok {
		return compiled, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing expression %q", expression)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, errors.Wrapf(err, "error compiling expression %q", expression)
	}
	compiled = &compiledExpr{source: expression, code: code}

	e.lock.Lock()
	e.cache[expression] = compiled
	e.lock.Unlock()
	return compiled, nil
}

type compiledExpr struct {
	source string
	code   *gojq.Code
}

func (c *compiledExpr) Source() string {
	return c.source
}

// Eval runs the query and returns its first result. An empty result set is
// returned as nil; jq runtime errors are returned as errors.
func (c *compiledExpr) Eval(ctx context.Context, input any) (any, error) {
	iter := c.code.RunWithContext(ctx, normalize(input))
	value, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, ok := value.(error); ok {
		return nil, errors.Wrapf(err, "error evaluating expression %q", c.source)
	}
	return value, nil
}

// normalize converts values that did not come from encoding/json into the
// value domain gojq accepts.
func normalize(input any) any {
	switch v := input.(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float32:
		return float64(v)
	case []map[string]any:
		normalized := make([]any, len(v))
		for i, elem := range v {
			normalized[i] = normalize(elem)
		}
		return normalized
	case []any:
		normalized := make([]any, len(v))
		for i, elem := range v {
			normalized[i] = normalize(elem)
		}
		return normalized
	case map[string]any:
		normalized := make(map[string]any, len(v))
		for key, elem := range v {
			normalized[key] = normalize(elem)
		}
		return normalized
	default:
		return v
	}
}
