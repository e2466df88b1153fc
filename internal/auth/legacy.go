package auth

import (
	"slices"

	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/vocab"
)

// legacyRoleGrants maps the deprecated global role strings to equivalent
// matrix grants. super_admin is intentionally absent: it is handled as a
// scoping bypass in Check, not as a grant set.
var legacyRoleGrants = map[string]models.Matrix{
	models.LegacyRoleAdmin: {
		vocab.ResourceMemories:  {vocab.ActionCreate, vocab.ActionRead, vocab.ActionUpdate, vocab.ActionDelete, vocab.ActionPublish},
		vocab.ResourceUsers:     {vocab.ActionCreate, vocab.ActionRead, vocab.ActionUpdate, vocab.ActionDelete},
		vocab.ResourceSettings:  {vocab.ActionRead, vocab.ActionUpdate},
		vocab.ResourceAnalytics: {vocab.ActionRead},
	},
	models.LegacyRoleUser: {
		vocab.ResourceMemories: {vocab.ActionCreate, vocab.ActionRead, vocab.ActionUpdate},
	},
}

// legacyGrants consults the compatibility table. Unknown legacy role strings
// grant nothing.
func legacyGrants(legacyRole string, resource vocab.Resource, action vocab.Action) bool {
	matrix, ok := legacyRoleGrants[legacyRole]
	if !ok {
		return false
	}
	return slices.Contains(matrix[resource], action)
}
