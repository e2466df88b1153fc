// Package auth implements the permission engine and credential handling.
//
// The engine is pure: Check never mutates anything and never writes audit
// entries itself. Decisions carry SuperBypass/LegacyFallback flags so the
// operation layer can audit those paths once the guarded operation succeeds.
package auth

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/vocab"
)

// Errors returned when a caller asks about something outside the vocabulary.
// These are programming errors, distinct from a deny: a deny means the role
// doesn't grant it, these mean the grant cannot exist at all.
var (
	ErrUnknownResource = fmt.Errorf("resource is not in the permission vocabulary")
	ErrUnknownAction   = fmt.Errorf("action is not in the permission vocabulary")
)

// Decision is the outcome of a permission check.
type Decision struct {
	Allow  bool
	Reason string

	// SuperBypass is set when the super-principal bypassed per-organization
	// scoping. The caller must write an audit entry for the bypass.
	SuperBypass bool

	// LegacyFallback is set when the decision came from the static
	// legacy-role compatibility table instead of a dynamic role matrix.
	LegacyFallback bool
}

// Check evaluates whether the principal may perform action on resource.
//
// role is the principal's resolved dynamic role, or nil if the principal has
// none (legacy-only account). The default is fail-closed: absence of an
// explicit grant is a denial. Resource and action must be vocabulary members;
// anything else is rejected with ErrUnknownResource/ErrUnknownAction rather
// than silently denied.
func Check(principal *models.Principal, role *models.Role, resource vocab.Resource, action vocab.Action) (Decision, error) {
	if !vocab.ValidResource(resource) {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	if !vocab.ValidAction(action) {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	if principal.IsSuperAdmin() {
		return Decision{
			Allow:       true,
			Reason:      "super-principal bypass",
			SuperBypass: true,
		}, nil
	}

	if role != nil {
		if role.Permissions.Grants(resource, action) {
			return Decision{Allow: true, Reason: "granted by role " + role.Name}, nil
		}
		return Decision{
			Reason: fmt.Sprintf("role %q does not grant %s:%s", role.Name, resource, action),
		}, nil
	}

	// Legacy-only account: consult the static compatibility table. This
	// path bypasses the explicit matrix and is on its way out, so every
	// use is logged.
	log.Warn().
		Str("principal_id", principal.PrincipalID.String()).
		Str("legacy_role", principal.LegacyRole).
		Str("resource", string(resource)).
		Str("action", string(action)).
		Msg("Permission check fell back to deprecated legacy role table")

	if legacyGrants(principal.LegacyRole, resource, action) {
		return Decision{
			Allow:          true,
			Reason:         "granted by legacy role " + principal.LegacyRole,
			LegacyFallback: true,
		}, nil
	}

	return Decision{
		Reason:         fmt.Sprintf("legacy role %q does not grant %s:%s", principal.LegacyRole, resource, action),
		LegacyFallback: true,
	}, nil
}
