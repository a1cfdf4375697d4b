package bench

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jihwankim/shufflebench/pkg/aggregator"
	"github.com/jihwankim/shufflebench/pkg/engine"
)

// Scenario describes a matrix of experiments to sweep, grounded on the
// teacher's chaos-scenario YAML schema (APIVersion/Kind/Metadata/Spec):
// the same envelope shape, generalized from fault injection targets to
// shuffle experiment parameters.
type Scenario struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   ScenarioMetadata `yaml:"metadata"`
	Spec       ScenarioSpec     `yaml:"spec"`
}

// ScenarioMetadata names and documents a scenario file.
type ScenarioMetadata struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags,omitempty"`
}

// ScenarioSpec is the matrix of experiments a scenario runs: every
// combination of N, K, data size, and aggregator policy listed, against
// every variant in Variants (or every known variant if empty).
type ScenarioSpec struct {
	WorldSizes      []int    `yaml:"world_sizes"`
	AggregatorCount []int    `yaml:"aggregator_counts"`
	DataSizes       []int    `yaml:"data_sizes"`
	Policies        []string `yaml:"policies"`
	Variants        []string `yaml:"variants,omitempty"`
	Repeats         int      `yaml:"repeats"`
	RandomSeed      int64    `yaml:"random_seed,omitempty"`
	SizeProfile     string   `yaml:"size_profile,omitempty"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario file: %w", err)
	}
	v := NewValidator()
	if err := v.Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validator checks a Scenario's structural validity, grounded on the
// teacher's pkg/scenario/validator/validator.go Warnings/Errors
// accumulation shape, generalized from fault-target validation to
// experiment-matrix validation.
type Validator struct {
	Warnings []string
	Errors   []string
}

// NewValidator returns an empty Validator.
func NewValidator() *Validator { return &Validator{} }

// Validate checks s and returns an error summarizing every problem found,
// or nil if s is well-formed.
func (v *Validator) Validate(s *Scenario) error {
	if s.Kind != "" && s.Kind != "ShuffleSweep" {
		v.Warnings = append(v.Warnings, fmt.Sprintf("unexpected kind %q, expected ShuffleSweep", s.Kind))
	}
	if len(s.Spec.WorldSizes) == 0 {
		v.Errors = append(v.Errors, "spec.world_sizes must list at least one world size")
	}
	for _, n := range s.Spec.WorldSizes {
		if n < 1 {
			v.Errors = append(v.Errors, fmt.Sprintf("world size %d must be positive", n))
		}
	}
	for i, k := range s.Spec.AggregatorCount {
		for _, n := range s.Spec.WorldSizes {
			if k > n {
				v.Errors = append(v.Errors, fmt.Sprintf("aggregator_counts[%d]=%d exceeds world size %d", i, k, n))
			}
		}
	}
	for _, p := range s.Spec.Policies {
		switch aggregator.Policy(p) {
		case aggregator.Contiguous, aggregator.Stride, aggregator.ShiftedStride, aggregator.RoundRobinAcrossNode:
		default:
			v.Errors = append(v.Errors, fmt.Sprintf("unknown aggregator policy %q", p))
		}
	}
	for _, name := range s.Spec.Variants {
		known := false
		for _, variant := range engine.AllVariants {
			if string(variant) == name {
				known = true
				break
			}
		}
		if !known && name != "tam" {
			v.Errors = append(v.Errors, fmt.Sprintf("unknown variant %q", name))
		}
	}
	if s.Spec.Repeats < 0 {
		v.Errors = append(v.Errors, "spec.repeats must be >= 0")
	}
	if len(v.Errors) > 0 {
		return fmt.Errorf("scenario validation failed: %v", v.Errors)
	}
	return nil
}

// PickVariant chooses one variant name from the scenario's list (or every
// known variant, if the scenario didn't narrow it) at random, every name
// with the same weight, so no variant is favored and repeated picks do not
// always exercise variants in the same order.
func (s *Sampler) PickVariant(names []string) string {
	if len(names) == 0 {
		names = make([]string, len(engine.AllVariants))
		for i, v := range engine.AllVariants {
			names[i] = string(v)
		}
	}
	weights := make([]float64, len(names))
	choices := make([]int, len(names))
	for i := range names {
		choices[i] = i
		weights[i] = 1.0
	}
	return names[s.weightedChoice(choices, weights)]
}
