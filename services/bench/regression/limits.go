// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package regression

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrConfig indicates an invalid regression limit configuration.
	ErrConfig = errors.New("invalid regression configuration")

	// ErrRegressed indicates that at least one benchmark regressed. It is
	// only produced at the end of a run, never by Check.
	ErrRegressed = errors.New("performance regressed")
)

// ConfigError describes an invalid limit specification.
type ConfigError struct {
	// Key is the offending metric or group key, or the whole item when
	// it could not be split.
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("limit '%s': %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConfig) true for every ConfigError.
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// -----------------------------------------------------------------------------
// Limits
// -----------------------------------------------------------------------------

// Limit is the effective soft and hard limit of one kind.
type Limit[K metrics.Kind] struct {
	Kind K
	// Soft is a signed percentage. Positive limits flag increases,
	// negative limits flag decreases.
	Soft *float64
	// Hard is an absolute upper bound on the new value.
	Hard *metrics.Metric
}

// Limits is an ordered set of per-kind limits. Setting a kind again
// replaces its value but keeps its position.
//
// The zero value is an empty, usable set.
type Limits[K metrics.Kind] struct {
	FailFast bool

	order []K
	soft  map[K]float64
	hard  map[K]metrics.Metric
}

// NewLimits returns an empty set.
func NewLimits[K metrics.Kind]() *Limits[K] {
	return &Limits[K]{}
}

// DefaultLimits returns the built-in limits of K's tool: a 10% soft limit
// on Ir for callgrind and cachegrind, on TotalBytes for DHAT, and none for
// the error tools.
func DefaultLimits[K metrics.Kind]() *Limits[K] {
	l := NewLimits[K]()
	var primary string
	switch metrics.ToolOf[K]() {
	case metrics.ToolCallgrind, metrics.ToolCachegrind:
		primary = "Ir"
	case metrics.ToolDHAT:
		primary = "TotalBytes"
	default:
		return l
	}
	k, err := metrics.ParseKind[K](primary)
	if err != nil {
		panic(err)
	}
	l.SetSoft(k, 10)
	return l
}

func (l *Limits[K]) touch(k K) {
	if l.soft == nil {
		l.soft = make(map[K]float64)
		l.hard = make(map[K]metrics.Metric)
	}
	_, s := l.soft[k]
	_, h := l.hard[k]
	if !s && !h {
		l.order = append(l.order, k)
	}
}

// SetSoft sets the soft limit of k in percent.
func (l *Limits[K]) SetSoft(k K, pct float64) {
	l.touch(k)
	l.soft[k] = pct
}

// SetHard sets the hard limit of k. Integer kinds require an integer
// limit; float kinds accept either.
func (l *Limits[K]) SetHard(k K, v metrics.Metric) error {
	v, err := convertHard(k, v)
	if err != nil {
		return err
	}
	l.touch(k)
	l.hard[k] = v
	return nil
}

func convertHard[K metrics.Kind](k K, v metrics.Metric) (metrics.Metric, error) {
	if k.IsFloat() {
		return metrics.Float(v.Float64()), nil
	}
	if v.IsFloat() {
		return metrics.Metric{}, fmt.Errorf(
			"invalid hard limit for '%s': expected an integer (e.g. '10'). "+
				"Use the '%%' suffix for a soft limit (e.g. '4.0%%')", k)
	}
	return v, nil
}

// Soft returns the soft limit of k.
func (l *Limits[K]) Soft(k K) (float64, bool) {
	v, ok := l.soft[k]
	return v, ok
}

// Hard returns the hard limit of k.
func (l *Limits[K]) Hard(k K) (metrics.Metric, bool) {
	v, ok := l.hard[k]
	return v, ok
}

// Len returns the number of kinds with at least one limit.
func (l *Limits[K]) Len() int {
	if l == nil {
		return 0
	}
	return len(l.order)
}

// All returns the effective limits in first-configured order.
func (l *Limits[K]) All() []Limit[K] {
	if l == nil {
		return nil
	}
	out := make([]Limit[K], 0, len(l.order))
	for _, k := range l.order {
		lim := Limit[K]{Kind: k}
		if v, ok := l.soft[k]; ok {
			lim.Soft = &v
		}
		if v, ok := l.hard[k]; ok {
			lim.Hard = &v
		}
		out = append(out, lim)
	}
	return out
}

// Merge applies other on top of l. Values in other win.
func (l *Limits[K]) Merge(other *Limits[K]) {
	if other == nil {
		return
	}
	for _, lim := range other.All() {
		if lim.Soft != nil {
			l.SetSoft(lim.Kind, *lim.Soft)
		}
		if lim.Hard != nil {
			l.touch(lim.Kind)
			l.hard[lim.Kind] = *lim.Hard
		}
	}
	l.FailFast = l.FailFast || other.FailFast
}

// String renders the limits in the ParseLimits grammar.
func (l *Limits[K]) String() string {
	var items []string
	for _, lim := range l.All() {
		var values []string
		if lim.Soft != nil {
			values = append(values, strconv.FormatFloat(*lim.Soft, 'f', -1, 64)+"%")
		}
		if lim.Hard != nil {
			values = append(values, lim.Hard.String())
		}
		items = append(items, lim.Kind.String()+"="+strings.Join(values, "|"))
	}
	return strings.Join(items, ",")
}

// ParseLimits parses a comma-separated list of key=value items.
//
// Description:
//
//	A key is a metric name or "@group". A value is "N%" for a soft
//	limit or "N" for a hard limit; several values may be joined with
//	'|' ("Ir=5%|10000"). Items are applied left to right, so a later
//	item overrides an earlier one for every member kind it names:
//	"@all=10%,Ir=5%" leaves Ir at 5% and every other kind at 10%.
//
// Outputs:
//   - *Limits[K]: The parsed limits.
//   - error: A *ConfigError for an empty string, a malformed item, an
//     unknown metric or group, or a non-integer hard limit on an integer
//     kind.
func ParseLimits[K metrics.Kind](s string) (*Limits[K], error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &ConfigError{Err: errors.New("no limits found: at least one limit must be present")}
	}

	l := NewLimits[K]()
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, &ConfigError{Key: item, Err: errors.New("invalid format of key=value pair")}
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		kinds, err := metrics.ParseSelection[K](key)
		if err != nil {
			return nil, &ConfigError{Key: key, Err: err}
		}
		for _, raw := range strings.Split(value, "|") {
			raw = strings.TrimSpace(raw)
			if err := l.apply(kinds, raw); err != nil {
				return nil, &ConfigError{Key: key, Err: err}
			}
		}
	}
	return l, nil
}

func (l *Limits[K]) apply(kinds []K, raw string) error {
	if pctStr, ok := strings.CutSuffix(raw, "%"); ok {
		pct, err := strconv.ParseFloat(strings.TrimSpace(pctStr), 64)
		if err != nil || math.IsNaN(pct) || math.IsInf(pct, 0) {
			return fmt.Errorf("invalid soft limit %q", raw)
		}
		for _, k := range kinds {
			l.SetSoft(k, pct)
		}
		return nil
	}

	v, err := metrics.ParseMetric(raw)
	if err != nil {
		return fmt.Errorf("invalid hard limit %q", raw)
	}
	if v.IsFloat() && (math.IsNaN(v.Float64()) || v.Float64() < 0) {
		return fmt.Errorf("invalid hard limit %q", raw)
	}
	for _, k := range kinds {
		if err := l.SetHard(k, v); err != nil {
			return err
		}
	}
	return nil
}
