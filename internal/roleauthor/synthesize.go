package roleauthor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/vocab"
)

// Synthesizer produces candidate permission matrices from natural-language
// role descriptions. Candidates are advisory only; an administrator reviews
// and submits them through the normal role write path, which re-validates.
type Synthesizer struct {
	generator Generator
}

// NewSynthesizer creates a synthesizer over the given generator.
func NewSynthesizer(generator Generator) *Synthesizer {
	return &Synthesizer{
		generator: generator,
	}
}

// Synthesize asks the generator for a permission matrix matching the
// description. Grants the model invents outside the canonical vocabulary are
// dropped, never passed through. On generator or parse failure the candidate
// is empty and the error explains why.
func (s *Synthesizer) Synthesize(ctx context.Context, description string, orgCfg models.OrgConfig) (models.Matrix, error) {
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("role description is empty")
	}

	completion, err := s.generator.GenerateMatrix(ctx, buildPrompt(description, orgCfg))
	if err != nil {
		return nil, fmt.Errorf("matrix generation failed: %w", err)
	}

	var raw map[string][]string
	if err := json.Unmarshal(extractJSON(completion), &raw); err != nil {
		return nil, fmt.Errorf("generator produced unparsable matrix: %w", err)
	}

	matrix := make(models.Matrix)
	for resource, actions := range raw {
		r := vocab.Resource(resource)
		if !vocab.ValidResource(r) {
			log.Warn().
				Str("resource", resource).
				Msg("Dropping generated grant for unknown resource")
			continue
		}
		for _, action := range actions {
			a := vocab.Action(action)
			if !vocab.ValidAction(a) {
				log.Warn().
					Str("resource", resource).
					Str("action", action).
					Msg("Dropping generated grant for unknown action")
				continue
			}
			if !matrix.Grants(r, a) {
				matrix[r] = append(matrix[r], a)
			}
		}
		if len(matrix[r]) == 0 {
			delete(matrix, r)
		}
	}

	// The matrix was built from validated pairs, so this only guards
	// against future drift between this loop and Validate.
	if err := matrix.Validate(); err != nil {
		return nil, fmt.Errorf("synthesized matrix failed validation: %w", err)
	}

	return matrix, nil
}

// buildPrompt enumerates the canonical vocabulary so the model has no reason
// to invent resources, and folds in the organization's authoring guidance.
func buildPrompt(description string, orgCfg models.OrgConfig) string {
	var b strings.Builder

	b.WriteString("You design permission roles for a content platform.\n")
	b.WriteString("Respond with a single JSON object mapping resources to the list of allowed actions. No prose.\n\n")

	b.WriteString("Valid resources: ")
	for i, r := range vocab.Resources() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(r))
	}
	b.WriteString("\nValid actions: ")
	for i, a := range vocab.Actions() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(a))
	}
	b.WriteString("\nOnly use resources and actions from these lists. Omit a resource entirely rather than granting nothing on it.\n")

	if orgCfg.AIInstructions != "" {
		b.WriteString("\nOrganization guidance: ")
		b.WriteString(orgCfg.AIInstructions)
		b.WriteString("\n")
	}

	b.WriteString("\nRole description: ")
	b.WriteString(description)

	return b.String()
}

// extractJSON tolerates completions wrapped in markdown code fences.
func extractJSON(completion []byte) []byte {
	text := strings.TrimSpace(string(completion))
	if after, ok := strings.CutPrefix(text, "```json"); ok {
		text = after
	} else if after, ok := strings.CutPrefix(text, "```"); ok {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return []byte(strings.TrimSpace(text))
}
