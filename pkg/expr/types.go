/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package expr

import "context"

// Evaluator compiles selector and mapping expressions. Implementations must
// be stateless with respect to evaluation: a compiled expression may be
// evaluated concurrently from any task.
type Evaluator interface {
	// Compile the given expression. Compilation errors are configuration
	// errors; they classify the affected resource config as misconfigured.
	Compile(expression string) (CompiledExpr, error)
}

// CompiledExpr is a compiled expression, evaluated against a JSON-like
// input value (nil, bool, float64, int, string, []any, map[string]any).
type CompiledExpr interface {
	// Eval evaluates the expression. A missing value evaluates to nil;
	// false, 0, "" and empty collections are returned as-is.
	Eval(ctx context.Context, input any) (any, error)
	// Source returns the original expression text.
	Source() string
}

// EvalBool evaluates the expression and coerces the result to a boolean
// following the language's truthiness rules (false and null are false,
// everything else is true).
func EvalBool(ctx context.Context, compiled CompiledExpr, input any) (bool, error) {
	value, err := compiled.Eval(ctx, input)
	if err != nil {
		return false, err
	}
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return true, nil
	}
}
