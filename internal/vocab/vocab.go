// Package vocab defines the canonical permission vocabulary: the closed set of
// resource and action names a role matrix may reference. The vocabulary is
// loaded once from an embedded file and is immutable at runtime.
package vocab

import (
	_ "embed"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// Resource is a thing permissions apply to (e.g. "memories").
type Resource string

// Action is an operation performed on a resource (e.g. "publish").
type Action string

// Well-known vocabulary members. These mirror vocabulary.yaml; code that
// references a resource or action by name should use these constants.
const (
	ResourceMemories  Resource = "memories"
	ResourceUsers     Resource = "users"
	ResourceSettings  Resource = "settings"
	ResourceAnalytics Resource = "analytics"

	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionPublish Action = "publish"
)

//go:embed vocabulary.yaml
var vocabularyYAML []byte

// Vocabulary is the versioned set of valid resources and actions.
type Vocabulary struct {
	Version   int        `yaml:"version"`
	Resources []Resource `yaml:"resources"`
	Actions   []Action   `yaml:"actions"`
}

var current = mustLoad(vocabularyYAML)

// Load parses and validates a vocabulary document.
func Load(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary: %w", err)
	}

	if v.Version < 1 {
		return nil, fmt.Errorf("vocabulary version must be >= 1, got %d", v.Version)
	}
	if len(v.Resources) == 0 {
		return nil, fmt.Errorf("vocabulary has no resources")
	}
	if len(v.Actions) == 0 {
		return nil, fmt.Errorf("vocabulary has no actions")
	}

	seenResources := make(map[Resource]bool, len(v.Resources))
	for _, r := range v.Resources {
		if r == "" {
			return nil, fmt.Errorf("vocabulary contains an empty resource name")
		}
		if seenResources[r] {
			return nil, fmt.Errorf("duplicate resource %q in vocabulary", r)
		}
		seenResources[r] = true
	}

	seenActions := make(map[Action]bool, len(v.Actions))
	for _, a := range v.Actions {
		if a == "" {
			return nil, fmt.Errorf("vocabulary contains an empty action name")
		}
		if seenActions[a] {
			return nil, fmt.Errorf("duplicate action %q in vocabulary", a)
		}
		seenActions[a] = true
	}

	return &v, nil
}

func mustLoad(data []byte) *Vocabulary {
	v, err := Load(data)
	if err != nil {
		panic(fmt.Sprintf("embedded vocabulary is invalid: %v", err))
	}
	return v
}

// Version returns the vocabulary version number.
func Version() int {
	return current.Version
}

// Resources returns the valid resource names in declaration order.
func Resources() []Resource {
	return slices.Clone(current.Resources)
}

// Actions returns the valid action names in declaration order.
func Actions() []Action {
	return slices.Clone(current.Actions)
}

// ValidResource reports whether r is a member of the vocabulary.
func ValidResource(r Resource) bool {
	return slices.Contains(current.Resources, r)
}

// ValidAction reports whether a is a member of the vocabulary.
func ValidAction(a Action) bool {
	return slices.Contains(current.Actions, a)
}
