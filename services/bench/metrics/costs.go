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
	"io"
)

// Costs is an ordered mapping from a metric kind to its value.
//
// Keys keep their insertion order, which for parsed files is the order of
// the declared events. A key that is absent is "not recorded", which is
// distinct from a recorded zero.
//
// The zero value is an empty, usable Costs.
//
// # Thread Safety
//
// Costs is not safe for concurrent mutation.
type Costs[K Kind] struct {
	kinds  []K
	values map[K]Metric
}

// NewCosts returns Costs holding a zero for every given kind.
func NewCosts[K Kind](kinds ...K) *Costs[K] {
	c := &Costs[K]{}
	for _, k := range kinds {
		if k.IsFloat() {
			c.Set(k, Float(0))
		} else {
			c.Set(k, Int(0))
		}
	}
	return c
}

// Len returns the number of recorded kinds.
func (c *Costs[K]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.kinds)
}

// Kinds returns the recorded kinds in insertion order.
func (c *Costs[K]) Kinds() []K {
	if c == nil {
		return nil
	}
	return append([]K(nil), c.kinds...)
}

// Get returns the value of k and whether it is recorded.
func (c *Costs[K]) Get(k K) (Metric, bool) {
	if c == nil || c.values == nil {
		return Metric{}, false
	}
	v, ok := c.values[k]
	return v, ok
}

// Has reports whether k is recorded.
func (c *Costs[K]) Has(k K) bool {
	_, ok := c.Get(k)
	return ok
}

// Set records v for k, appending k if it was not recorded.
func (c *Costs[K]) Set(k K, v Metric) {
	if c.values == nil {
		c.values = make(map[K]Metric)
	}
	if _, ok := c.values[k]; !ok {
		c.kinds = append(c.kinds, k)
	}
	c.values[k] = v
}

// Remove drops k.
func (c *Costs[K]) Remove(k K) {
	if _, ok := c.values[k]; !ok {
		return
	}
	delete(c.values, k)
	for i, kk := range c.kinds {
		if kk == k {
			c.kinds = append(c.kinds[:i], c.kinds[i+1:]...)
			break
		}
	}
}

// AddTo adds v to the value of k. An unrecorded k starts at zero.
func (c *Costs[K]) AddTo(k K, v Metric) {
	cur, _ := c.Get(k)
	c.Set(k, cur.Add(v))
}

// Add adds every value of other into c. Kinds only present in other are
// appended in other's order.
func (c *Costs[K]) Add(other *Costs[K]) {
	if other == nil {
		return
	}
	for _, k := range other.kinds {
		c.AddTo(k, other.values[k])
	}
}

// AddValues adds values positionally to kinds.
//
// Fewer values than kinds is allowed; the missing trailing values count
// as zero but the kinds are still recorded. More values than kinds is an
// error.
func (c *Costs[K]) AddValues(kinds []K, values []uint64) error {
	if len(values) > len(kinds) {
		return fmt.Errorf("%d cost values for %d declared events", len(values), len(kinds))
	}
	for i, k := range kinds {
		var v uint64
		if i < len(values) {
			v = values[i]
		}
		c.AddTo(k, Int(v))
	}
	return nil
}

// Clone returns a deep copy.
func (c *Costs[K]) Clone() *Costs[K] {
	out := &Costs[K]{}
	if c == nil {
		return out
	}
	for _, k := range c.kinds {
		out.Set(k, c.values[k])
	}
	return out
}

// WithoutDerived returns a copy without any derived kinds.
func (c *Costs[K]) WithoutDerived() *Costs[K] {
	out := &Costs[K]{}
	if c == nil {
		return out
	}
	for _, k := range c.kinds {
		if !k.IsDerived() {
			out.Set(k, c.values[k])
		}
	}
	return out
}

// Equal reports whether both hold the same kinds with equal values.
// Order is ignored.
func (c *Costs[K]) Equal(other *Costs[K]) bool {
	if c.Len() != other.Len() {
		return false
	}
	for _, k := range c.Kinds() {
		ov, ok := other.Get(k)
		if !ok {
			return false
		}
		v, _ := c.Get(k)
		if !v.Equal(ov) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes an object keyed by canonical kind ids in insertion
// order.
func (c *Costs[K]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.Kinds() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k.String())
		if err != nil {
			return nil, err
		}
		val, err := c.values[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes the output of MarshalJSON, preserving key order.
func (c *Costs[K]) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("costs: expected object, got %v", tok)
	}
	*c = Costs[K]{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		k, err := ParseKind[K](name)
		if err != nil {
			return err
		}
		var m Metric
		if err := dec.Decode(&m); err != nil {
			return fmt.Errorf("costs: %s: %w", name, err)
		}
		c.Set(k, m)
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return err
	}
	return nil
}
