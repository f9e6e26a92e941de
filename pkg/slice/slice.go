// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package slice holds generic helpers missing from the standard [slices] package.
package slice

// Map transforms every element of input.
//
// The result is never nil, so an empty input encodes as [] rather than null in JSON.
func Map[T any, U any](input []T, transform func(T) U) []U {
	result := make([]U, len(input))
	for i, v := range input {
		result[i] = transform(v)
	}
	return result
}
