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
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// Metric is a single cost value: either an unsigned 64-bit count or a
// float ratio.
//
// Integer arithmetic saturates instead of wrapping. Any operation with a
// float operand yields a float.
//
// The zero value is Int(0).
type Metric struct {
	isFloat bool
	i       uint64
	f       float64
}

// Int returns an integer Metric.
func Int(v uint64) Metric {
	return Metric{i: v}
}

// Float returns a float Metric.
func Float(v float64) Metric {
	return Metric{isFloat: true, f: v}
}

// IsFloat reports whether the metric holds a float.
func (m Metric) IsFloat() bool {
	return m.isFloat
}

// Uint64 returns the integer value. The second result is false for floats.
func (m Metric) Uint64() (uint64, bool) {
	if m.isFloat {
		return 0, false
	}
	return m.i, true
}

// Float64 returns the value as float64.
func (m Metric) Float64() float64 {
	if m.isFloat {
		return m.f
	}
	return float64(m.i)
}

// IsZero reports whether the value is 0 or 0.0.
func (m Metric) IsZero() bool {
	if m.isFloat {
		return m.f == 0
	}
	return m.i == 0
}

// Add returns m + o, saturating at math.MaxUint64 for integers.
func (m Metric) Add(o Metric) Metric {
	if !m.isFloat && !o.isFloat {
		sum, carry := bits.Add64(m.i, o.i, 0)
		if carry != 0 {
			return Int(math.MaxUint64)
		}
		return Int(sum)
	}
	return Float(m.Float64() + o.Float64())
}

// Sub returns m - o, saturating at 0 for integers.
func (m Metric) Sub(o Metric) Metric {
	if !m.isFloat && !o.isFloat {
		if o.i > m.i {
			return Int(0)
		}
		return Int(m.i - o.i)
	}
	return Float(m.Float64() - o.Float64())
}

// Mul returns m * o, saturating at math.MaxUint64 for integers.
func (m Metric) Mul(o Metric) Metric {
	if !m.isFloat && !o.isFloat {
		hi, lo := bits.Mul64(m.i, o.i)
		if hi != 0 {
			return Int(math.MaxUint64)
		}
		return Int(lo)
	}
	return Float(m.Float64() * o.Float64())
}

// Div0 returns m / o as a float, or Float(0) when o is zero.
func (m Metric) Div0(o Metric) Metric {
	if o.IsZero() {
		return Float(0)
	}
	return Float(m.Float64() / o.Float64())
}

// Compare returns -1, 0 or +1 comparing m with o numerically.
func (m Metric) Compare(o Metric) int {
	if !m.isFloat && !o.isFloat {
		switch {
		case m.i < o.i:
			return -1
		case m.i > o.i:
			return 1
		default:
			return 0
		}
	}
	a, b := m.Float64(), o.Float64()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Equal reports numeric equality.
func (m Metric) Equal(o Metric) bool {
	return m.Compare(o) == 0
}

// String formats integers in decimal and floats in the shortest
// representation that round-trips.
func (m Metric) String() string {
	if !m.isFloat {
		return strconv.FormatUint(m.i, 10)
	}
	switch {
	case math.IsNaN(m.f):
		return "NaN"
	case math.IsInf(m.f, 1):
		return "inf"
	case math.IsInf(m.f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(m.f, 'f', -1, 64)
}

// ParseMetric parses a decimal integer, falling back to a float.
func ParseMetric(s string) (Metric, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return Int(v), nil
	}
	switch strings.ToLower(s) {
	case "inf", "+inf":
		return Float(math.Inf(1)), nil
	case "-inf":
		return Float(math.Inf(-1)), nil
	case "nan":
		return Float(math.NaN()), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Metric{}, fmt.Errorf("invalid metric value %q", s)
	}
	return Float(f), nil
}

// MarshalJSON encodes integers as JSON integers and finite floats as JSON
// numbers that always carry a fraction or an exponent. Non-finite floats
// become the strings "inf", "-inf" and "NaN".
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.isFloat {
		return []byte(strconv.FormatUint(m.i, 10)), nil
	}
	if math.IsNaN(m.f) || math.IsInf(m.f, 0) {
		return json.Marshal(m.String())
	}
	s := strconv.FormatFloat(m.f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (m *Metric) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := ParseMetric(s)
		if err != nil {
			return err
		}
		*m = v
		return nil
	}
	s := string(data)
	if !strings.ContainsAny(s, ".eE-") {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid metric value %s: %w", s, err)
		}
		*m = Int(v)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid metric value %s: %w", s, err)
	}
	*m = Float(f)
	return nil
}
