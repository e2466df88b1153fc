package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/keepsakehq/keepsake/internal/auth"
	"github.com/keepsakehq/keepsake/internal/models"
)

const principalLocal = "principal"

// requireprincipal authenticates the bearer credential, resolves the
// principal and checks the tenant is active. The credential's org claim must
// match the principal's stored organization; a mismatch means a stale or
// forged token.
func (s *Server) requireprincipal() fiber.Handler {
	return func(c fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer credential")
		}

		claims, err := auth.VerifyCredential(s.cfg.PublicKeyPEM, token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credential")
		}

		principalID, err := uuid.Parse(claims.Subject)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credential subject")
		}

		principal, err := s.svc.Principal(c.Context(), principalID)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "unknown principal")
		}

		if claims.OrgID != principal.OrgID.String() {
			log.Warn().
				Str("principal_id", principal.PrincipalID.String()).
				Str("claim_org", claims.OrgID).
				Msg("Credential org claim does not match principal")
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credential")
		}

		org, err := s.svc.Organization(c.Context(), principal.OrgID)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "unknown organization")
		}
		if !org.IsActive && !principal.IsSuperAdmin() {
			return fiber.NewError(fiber.StatusForbidden, "organization is disabled")
		}

		if claims.IsImpersonation() {
			log.Info().
				Str("principal_id", principal.PrincipalID.String()).
				Str("actor_id", claims.ActorID).
				Str("path", c.Path()).
				Msg("Request under impersonation credential")
		}

		c.Locals(principalLocal, principal)
		return c.Next()
	}
}

// currentPrincipal returns the authenticated principal set by the middleware.
func currentPrincipal(c fiber.Ctx) *models.Principal {
	principal, _ := c.Locals(principalLocal).(*models.Principal)
	return principal
}
