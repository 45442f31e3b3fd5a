// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package callgrind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinel_Matches(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"main", "main", true},
		{"main", "xmain", false},
		{"*::main", "by_binary::main", true},
		{"?below_main?", "(below_main)", true},
		{"?below_main?", "below_main", false},
		{"__cpu_indicator_init*", "__cpu_indicator_init.part.0", true},
		{"<&*>::write_fmt", "<&T>::write_fmt", true},
		{"<&*>::write_fmt", "<&T>::write_str", false},
		{"0x*", "0x00000000004005d0", true},
		{"a*b*c", "aXbYc", true},
		{"a*b*c", "aXbY", false},
		{"*", "", true},
		{"**x", "abcx", true},
		{"caf?", "café", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.name, func(t *testing.T) {
			s, err := NewSentinel(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Matches(tt.name))
		})
	}
}

func TestSentinel_Empty(t *testing.T) {
	_, err := NewSentinel("")
	assert.Error(t, err)

	var zero Sentinel
	assert.True(t, zero.IsZero())
	assert.False(t, zero.Matches("main"))
}
