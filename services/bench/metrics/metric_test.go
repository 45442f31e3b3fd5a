// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metrics

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetric_SaturatingArithmetic(t *testing.T) {
	t.Run("add saturates", func(t *testing.T) {
		got := Int(math.MaxUint64 - 1).Add(Int(5))
		v, ok := got.Uint64()
		require.True(t, ok)
		assert.Equal(t, uint64(math.MaxUint64), v)
	})

	t.Run("sub saturates at zero", func(t *testing.T) {
		v, _ := Int(3).Sub(Int(10)).Uint64()
		assert.Equal(t, uint64(0), v)
	})

	t.Run("mul saturates", func(t *testing.T) {
		v, _ := Int(math.MaxUint64 / 2).Mul(Int(3)).Uint64()
		assert.Equal(t, uint64(math.MaxUint64), v)
	})

	t.Run("float promotes", func(t *testing.T) {
		got := Int(1).Add(Float(0.5))
		assert.True(t, got.IsFloat())
		assert.Equal(t, 1.5, got.Float64())
	})

	t.Run("div0", func(t *testing.T) {
		assert.Equal(t, Float(0), Int(10).Div0(Int(0)))
		assert.Equal(t, 2.5, Int(5).Div0(Int(2)).Float64())
	})
}

func TestMetric_Compare(t *testing.T) {
	assert.Equal(t, -1, Int(1).Compare(Int(2)))
	assert.Equal(t, 0, Int(2).Compare(Float(2)))
	assert.Equal(t, 1, Float(2.5).Compare(Int(2)))
	assert.True(t, Int(7).Equal(Int(7)))
}

func TestMetric_JSON(t *testing.T) {
	tests := []struct {
		name string
		in   Metric
		want string
	}{
		{"int", Int(42), `42`},
		{"float with fraction", Float(1.25), `1.25`},
		{"whole float keeps fraction", Float(3), `3.0`},
		{"inf", Float(math.Inf(1)), `"inf"`},
		{"negative inf", Float(math.Inf(-1)), `"-inf"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))

			var back Metric
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, tt.in.IsFloat(), back.IsFloat())
			assert.Equal(t, tt.in.String(), back.String())
		})
	}
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("123")
	require.NoError(t, err)
	assert.False(t, m.IsFloat())

	m, err = ParseMetric("1.5")
	require.NoError(t, err)
	assert.True(t, m.IsFloat())

	_, err = ParseMetric("abc")
	assert.Error(t, err)
}
