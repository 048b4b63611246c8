package config

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed stages.yaml
var stagesYAML []byte

// StageTemplateSet lists default stage names per category.
type StageTemplateSet struct {
	Application []string `yaml:"application"`
	Visa        []string `yaml:"visa"`
}

var (
	stageOnce      sync.Once
	stageTemplates StageTemplateSet
	stageErr       error
)

// StageTemplates returns the embedded default stage lists.
func StageTemplates() (StageTemplateSet, error) {
	stageOnce.Do(func() {
		stageTemplates, stageErr = ParseStageTemplates(stagesYAML)
	})
	return stageTemplates, stageErr
}

// ParseStageTemplates decodes a stage template document. Both categories
// must be present and names must be unique within a category.
func ParseStageTemplates(data []byte) (StageTemplateSet, error) {
	var set StageTemplateSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return set, fmt.Errorf("parse stage templates: %w", err)
	}
	if len(set.Application) == 0 || len(set.Visa) == 0 {
		return set, fmt.Errorf("stage templates need both application and visa stages")
	}
	for cat, names := range map[string][]string{"application": set.Application, "visa": set.Visa} {
		seen := map[string]struct{}{}
		for _, n := range names {
			if _, dup := seen[n]; dup {
				return set, fmt.Errorf("duplicate %s stage %q", cat, n)
			}
			seen[n] = struct{}{}
		}
	}
	return set, nil
}
