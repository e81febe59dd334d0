// Package main provides CMA-ES optimization over the IPD simulator's
// learning and payoff parameters.
package main

import (
	"github.com/pthm-cable/ipdcells/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string
	Min     float64
	Max     float64
	Default float64
}

// ParamVector holds the set of all optimizable parameters: the Q-learning
// hyperparameters and five payoff matrix entries (CC, CD, DC, DD, MM). Width,
// height, memory capacity, and store capacity stay fixed per run — they
// govern problem size, not the learning dynamics being searched.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard IPD parameter set.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "alpha", Min: 0.01, Max: 0.9, Default: 0.2},
			{Name: "gamma", Min: 0.0, Max: 0.99, Default: 0.9},
			{Name: "epsilon", Min: 0.0, Max: 0.5, Default: 0.1},
			{Name: "payoff_cc", Min: 0.0, Max: 10.0, Default: 3.0},
			{Name: "payoff_cd", Min: 0.0, Max: 10.0, Default: 0.0},
			{Name: "payoff_dc", Min: 0.0, Max: 10.0, Default: 5.0},
			{Name: "payoff_dd", Min: 0.0, Max: 10.0, Default: 1.0},
			{Name: "payoff_mm", Min: 0.0, Max: 10.0, Default: 0.0},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		val := v[i]
		if val < spec.Min {
			val = spec.Min
		}
		if val > spec.Max {
			val = spec.Max
		}
		clamped[i] = val
	}
	return clamped
}

// ApplyToConfig applies parameter values to a Config struct. Order must
// match Specs order.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)

	cfg.Learning.Alpha = clamped[0]
	cfg.Learning.Gamma = clamped[1]
	cfg.Learning.Epsilon = clamped[2]
	cfg.Grid.Payoff.CooperateCooperate = clamped[3]
	cfg.Grid.Payoff.CooperateDefect = clamped[4]
	cfg.Grid.Payoff.DefectCooperate = clamped[5]
	cfg.Grid.Payoff.DefectDefect = clamped[6]
	cfg.Grid.Payoff.MergeMerge = clamped[7]
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.Learning.Alpha,
		cfg.Learning.Gamma,
		cfg.Learning.Epsilon,
		cfg.Grid.Payoff.CooperateCooperate,
		cfg.Grid.Payoff.CooperateDefect,
		cfg.Grid.Payoff.DefectCooperate,
		cfg.Grid.Payoff.DefectDefect,
		cfg.Grid.Payoff.MergeMerge,
	}
}
