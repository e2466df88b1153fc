package roleauthor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/vocab"
)

type fakeGenerator struct {
	completion string
	err        error
	prompt     string
}

func (f *fakeGenerator) GenerateMatrix(ctx context.Context, prompt string) ([]byte, error) {
	f.prompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.completion), nil
}

func TestSynthesizeValidMatrix(t *testing.T) {
	gen := &fakeGenerator{completion: `{
		"memories": ["create", "read", "update"],
		"analytics": ["read"]
	}`}

	matrix, err := NewSynthesizer(gen).Synthesize(context.Background(), "content editor", models.OrgConfig{})
	require.NoError(t, err)
	require.True(t, matrix.Grants(vocab.ResourceMemories, vocab.ActionCreate))
	require.True(t, matrix.Grants(vocab.ResourceAnalytics, vocab.ActionRead))
	require.False(t, matrix.Grants(vocab.ResourceMemories, vocab.ActionDelete))
}

func TestSynthesizeDropsOutOfVocabularyGrants(t *testing.T) {
	gen := &fakeGenerator{completion: `{
		"memories": ["read", "teleport"],
		"spaceships": ["fly"],
		"settings": ["explode"]
	}`}

	matrix, err := NewSynthesizer(gen).Synthesize(context.Background(), "weird role", models.OrgConfig{})
	require.NoError(t, err)

	// Only the valid pair survives; invented resources and actions are gone
	// and a resource left with no actions is omitted entirely.
	require.True(t, matrix.Grants(vocab.ResourceMemories, vocab.ActionRead))
	require.Len(t, matrix, 1)
	require.NotContains(t, matrix, vocab.ResourceSettings)
}

func TestSynthesizeToleratesCodeFences(t *testing.T) {
	gen := &fakeGenerator{completion: "```json\n{\"memories\": [\"read\"]}\n```"}

	matrix, err := NewSynthesizer(gen).Synthesize(context.Background(), "reader", models.OrgConfig{})
	require.NoError(t, err)
	require.True(t, matrix.Grants(vocab.ResourceMemories, vocab.ActionRead))
}

func TestSynthesizeGeneratorFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("upstream is down")}

	matrix, err := NewSynthesizer(gen).Synthesize(context.Background(), "any role", models.OrgConfig{})
	require.Error(t, err)
	require.Nil(t, matrix)
}

func TestSynthesizeUnparsableCompletion(t *testing.T) {
	gen := &fakeGenerator{completion: "sure! here's a role for you:"}

	matrix, err := NewSynthesizer(gen).Synthesize(context.Background(), "any role", models.OrgConfig{})
	require.Error(t, err)
	require.Nil(t, matrix)
}

func TestSynthesizeRejectsEmptyDescription(t *testing.T) {
	gen := &fakeGenerator{completion: `{}`}

	_, err := NewSynthesizer(gen).Synthesize(context.Background(), "   ", models.OrgConfig{})
	require.Error(t, err)
	require.Empty(t, gen.prompt)
}

func TestSynthesizePromptCarriesVocabularyAndGuidance(t *testing.T) {
	gen := &fakeGenerator{completion: `{}`}

	_, err := NewSynthesizer(gen).Synthesize(context.Background(), "archivist",
		models.OrgConfig{AIInstructions: "volunteers never touch settings"})
	require.NoError(t, err)

	for _, r := range vocab.Resources() {
		require.True(t, strings.Contains(gen.prompt, string(r)))
	}
	require.Contains(t, gen.prompt, "volunteers never touch settings")
	require.Contains(t, gen.prompt, "archivist")
}
