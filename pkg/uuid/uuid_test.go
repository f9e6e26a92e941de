// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package uuid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_IsTimeOrderedV7(t *testing.T) {
	first := New()
	second := New()

	assert.True(t, IsV7(first))
	assert.NotEqual(t, first, second)
	assert.LessOrEqual(t, first[:13], second[:13], "the leading timestamp never goes backwards")
}

func TestIsV7(t *testing.T) {
	cases := map[string]bool{
		"019531c2-8f4e-7c1a-9b3d-5e2f6a7b8c9d":          true,
		"6ba7b810-9dad-41d1-80b4-00c04fd430c8":          false,
		"019531c28f4e7c1a9b3d5e2f6a7b8c9d":              false,
		"{019531c2-8f4e-7c1a-9b3d-5e2f6a7b8c9d}":        false,
		"urn:uuid:019531c2-8f4e-7c1a-9b3d-5e2f6a7b8c9d": false,
		"":                                              false,
	}

	for input, want := range cases {
		assert.Equal(t, want, IsV7(input), input)
	}
}
