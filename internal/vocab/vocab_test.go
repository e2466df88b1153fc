package vocab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedVocabulary(t *testing.T) {
	require.GreaterOrEqual(t, Version(), 1)
	require.ElementsMatch(t,
		[]Resource{ResourceMemories, ResourceUsers, ResourceSettings, ResourceAnalytics},
		Resources())
	require.ElementsMatch(t,
		[]Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionPublish},
		Actions())
}

func TestValidResource(t *testing.T) {
	tests := []struct {
		name     string
		resource Resource
		valid    bool
	}{
		{name: "memories is valid", resource: ResourceMemories, valid: true},
		{name: "settings is valid", resource: ResourceSettings, valid: true},
		{name: "unknown resource is invalid", resource: Resource("widgets"), valid: false},
		{name: "empty resource is invalid", resource: Resource(""), valid: false},
		{name: "case matters", resource: Resource("Memories"), valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.valid, ValidResource(tt.resource))
		})
	}
}

func TestValidAction(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		valid  bool
	}{
		{name: "publish is valid", action: ActionPublish, valid: true},
		{name: "read is valid", action: ActionRead, valid: true},
		{name: "unknown action is invalid", action: Action("approve"), valid: false},
		{name: "empty action is invalid", action: Action(""), valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.valid, ValidAction(tt.action))
		})
	}
}

func TestLoadRejectsMalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not yaml", doc: "{{{"},
		{name: "missing version", doc: "resources: [a]\nactions: [b]\n"},
		{name: "no resources", doc: "version: 1\nresources: []\nactions: [read]\n"},
		{name: "no actions", doc: "version: 1\nresources: [memories]\nactions: []\n"},
		{name: "duplicate resource", doc: "version: 1\nresources: [memories, memories]\nactions: [read]\n"},
		{name: "duplicate action", doc: "version: 1\nresources: [memories]\nactions: [read, read]\n"},
		{name: "empty resource name", doc: "version: 1\nresources: [\"\"]\nactions: [read]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.doc))
			require.Error(t, err)
		})
	}
}

func TestResourcesReturnsCopy(t *testing.T) {
	rs := Resources()
	rs[0] = Resource("mutated")
	require.NotContains(t, Resources(), Resource("mutated"))
}
