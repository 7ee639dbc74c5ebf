/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package walk

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

type VisitFunc func(value any, path []string) error

// Walk traverses a JSON-like value (nil, scalars, []any, map[string]any)
// depth-first and applies f to every node, including the root. Map entry
// order is not predictable. Walk does not produce errors by itself, it
// just aggregates errors returned by f.
func Walk(value any, f VisitFunc) error {
	errs := walk(value, nil, f)
	if len(errs) > 0 {
		return multierror.Append(nil, errs...)
	}
	return nil
}

func walk(value any, path []string, f VisitFunc) (errs []error) {
	if err := f(value, path); err != nil {
		errs = append(errs, walkError{err: err, path: path})
	}
	switch v := value.(type) {
	case []any:
		for i, elem := range v {
			errs = append(errs, walk(elem, append(path, strconv.Itoa(i)), f)...)
		}
	case map[string]any:
		for key, elem := range v {
			errs = append(errs, walk(elem, append(path, key), f)...)
		}
	}
	return
}

type TransformFunc func(value any, path []string) (any, bool, error)

// Transform rebuilds a JSON-like value top-down, replacing every node for
// which f reports a replacement with the value f produced. Children of a
// replaced node are not traversed. The input value is not mutated.
func Transform(value any, f TransformFunc) (any, error) {
	return transform(value, nil, f)
}

func transform(value any, path []string, f TransformFunc) (any, error) {
	replacement, replaced, err := f(value, path)
	if err != nil {
		return nil, walkError{err: err, path: path}
	}
	if replaced {
		return replacement, nil
	}
	switch v := value.(type) {
	case []any:
		result := make([]any, len(v))
		for i, elem := range v {
			if result[i], err = transform(elem, append(path, strconv.Itoa(i)), f); err != nil {
				return nil, err
			}
		}
		return result, nil
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, elem := range v {
			if result[key], err = transform(elem, append(path, key), f); err != nil {
				return nil, err
			}
		}
		return result, nil
	default:
		return value, nil
	}
}

type walkError struct {
	err  error
	path []string
}

func (e walkError) Error() string {
	return fmt.Sprintf("/%s: %s", strings.Join(e.path, "/"), e.err)
}

func (e walkError) Unwrap() error {
	return e.err
}

func (e walkError) Cause() error {
	return e.err
}
