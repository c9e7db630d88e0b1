// Package registry loads the static flag and experiment definitions the
// evaluators are constructed with. Definitions live in one YAML document
// with optional per-environment overlay sections; an overlay appends extra
// entries for that environment (development-only flags, for instance) and
// replaces base entries sharing the same key or id.
package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"variantcore/internal/experiment"
	"variantcore/internal/feature"
	"variantcore/internal/validation"
)

// Registry is the validated result of loading a definitions file.
type Registry struct {
	Flags       []feature.Flag
	Experiments []experiment.Experiment
	ETag        string
}

// File mirrors the YAML document layout.
type File struct {
	Flags        []feature.Flag          `yaml:"flags"`
	Experiments  []experiment.Experiment `yaml:"experiments"`
	Environments map[string]Overlay      `yaml:"environments,omitempty"`
}

// Overlay holds environment-specific extra definitions.
type Overlay struct {
	Flags       []feature.Flag          `yaml:"flags,omitempty"`
	Experiments []experiment.Experiment `yaml:"experiments,omitempty"`
}

// Load reads, merges, and validates the definitions file for env.
func Load(path, env string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}
	return Parse(data, env)
}

// Parse merges and validates raw YAML definitions for env.
func Parse(data []byte, env string) (*Registry, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse registry file: %w", err)
	}

	flags := file.Flags
	experiments := file.Experiments
	if overlay, ok := file.Environments[env]; ok {
		flags = mergeFlags(flags, overlay.Flags)
		experiments = mergeExperiments(experiments, overlay.Experiments)
	}

	for _, f := range flags {
		if err := validation.ValidateFlag(f); err != nil {
			return nil, fmt.Errorf("invalid flag definition: %w", err)
		}
	}
	for _, e := range experiments {
		if err := validation.ValidateExperiment(e); err != nil {
			return nil, fmt.Errorf("invalid experiment definition: %w", err)
		}
	}

	return &Registry{
		Flags:       flags,
		Experiments: experiments,
		ETag:        computeETag(flags, experiments),
	}, nil
}

func mergeFlags(base, overlay []feature.Flag) []feature.Flag {
	if len(overlay) == 0 {
		return base
	}
	replaced := make(map[string]int, len(base))
	for i, f := range base {
		replaced[f.Key] = i
	}
	merged := append([]feature.Flag(nil), base...)
	for _, f := range overlay {
		if i, ok := replaced[f.Key]; ok {
			merged[i] = f
			continue
		}
		merged = append(merged, f)
	}
	return merged
}

func mergeExperiments(base, overlay []experiment.Experiment) []experiment.Experiment {
	if len(overlay) == 0 {
		return base
	}
	replaced := make(map[string]int, len(base))
	for i, e := range base {
		replaced[e.ID] = i
	}
	merged := append([]experiment.Experiment(nil), base...)
	for _, e := range overlay {
		if i, ok := replaced[e.ID]; ok {
			merged[i] = e
			continue
		}
		merged = append(merged, e)
	}
	return merged
}

// computeETag hashes the merged definitions so HTTP surfaces can serve
// If-None-Match cheaply.
func computeETag(flags []feature.Flag, experiments []experiment.Experiment) string {
	blob, _ := json.Marshal(struct {
		Flags       []feature.Flag          `json:"flags"`
		Experiments []experiment.Experiment `json:"experiments"`
	}{flags, experiments})
	return fmt.Sprintf(`W/"%x"`, xxhash.Sum64(blob))
}
