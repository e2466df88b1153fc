package httpapi

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/service"
	"github.com/keepsakehq/keepsake/internal/store"
)

func (s *Server) handleHealth(pinger Pinger) fiber.Handler {
	return func(c fiber.Ctx) error {
		if pinger != nil {
			if err := pinger.Ping(c.Context()); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"status": "unhealthy",
				})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}

func pathID(c fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (s *Server) handleListRoles(c fiber.Ctx) error {
	roles, err := s.svc.ListRoles(c.Context(), currentPrincipal(c))
	if err != nil {
		return err
	}

	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	return c.JSON(out)
}

func (s *Server) handleCreateRole(c fiber.Ctx) error {
	var req roleRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	role, err := s.svc.CreateRole(c.Context(), currentPrincipal(c), req.Name, req.matrix())
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(toRoleResponse(role))
}

func (s *Server) handleUpdateRole(c fiber.Ctx) error {
	roleID, err := pathID(c)
	if err != nil {
		return err
	}

	var req roleRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	role, err := s.svc.UpdateRole(c.Context(), currentPrincipal(c), roleID, req.Name, req.matrix())
	if err != nil {
		return err
	}

	return c.JSON(toRoleResponse(role))
}

func (s *Server) handleSuggestRoleMatrix(c fiber.Ctx) error {
	var req suggestRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	matrix, err := s.svc.SuggestRoleMatrix(c.Context(), currentPrincipal(c), req.Description)
	if err != nil {
		return err
	}

	out := make(map[string][]string, len(matrix))
	for resource, actions := range matrix {
		list := make([]string, 0, len(actions))
		for _, action := range actions {
			list = append(list, string(action))
		}
		out[string(resource)] = list
	}
	return c.JSON(fiber.Map{"permissions": out})
}

func (s *Server) handleSubmitMemory(c fiber.Ctx) error {
	var req memoryRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	memory, err := s.svc.SubmitMemory(c.Context(), currentPrincipal(c), req.Title, req.Content)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(toMemoryResponse(memory))
}

func (s *Server) handleListMemories(c fiber.Ctx) error {
	filter := store.MemoryFilter{}

	if status := c.Query("status"); status != "" {
		st := models.MemoryStatus(status)
		if !models.ValidMemoryStatus(st) {
			return fiber.NewError(fiber.StatusBadRequest, "invalid status filter")
		}
		filter.Status = &st
	}

	if author := c.Query("author"); author != "" {
		authorID, err := uuid.Parse(author)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid author filter")
		}
		filter.AuthorID = &authorID
	}

	filter.Limit = queryLimit(c)

	memories, err := s.svc.ListMemories(c.Context(), currentPrincipal(c), filter)
	if err != nil {
		return err
	}

	return c.JSON(toMemoryResponses(memories))
}

func (s *Server) handleGetMemory(c fiber.Ctx) error {
	memoryID, err := pathID(c)
	if err != nil {
		return err
	}

	memory, err := s.svc.GetMemory(c.Context(), currentPrincipal(c), memoryID)
	if err != nil {
		return err
	}

	return c.JSON(toMemoryResponse(memory))
}

func (s *Server) handleUpdateMemory(c fiber.Ctx) error {
	memoryID, err := pathID(c)
	if err != nil {
		return err
	}

	var req memoryUpdateRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	memory, err := s.svc.UpdateMemory(c.Context(), currentPrincipal(c), memoryID, req.Title, req.Content, req.Version)
	if err != nil {
		return err
	}

	return c.JSON(toMemoryResponse(memory))
}

func (s *Server) handleTransitionMemory(c fiber.Ctx) error {
	memoryID, err := pathID(c)
	if err != nil {
		return err
	}

	var req transitionRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	memory, err := s.svc.TransitionMemoryStatus(c.Context(), currentPrincipal(c), memoryID,
		models.MemoryStatus(req.Status), req.Version)
	if err != nil {
		return err
	}

	return c.JSON(toMemoryResponse(memory))
}

func (s *Server) handleListPublicMemories(c fiber.Ctx) error {
	slug := c.Query("org")
	if slug == "" {
		return fiber.NewError(fiber.StatusBadRequest, "org query parameter is required")
	}

	memories, err := s.svc.ListPublicMemories(c.Context(), slug, queryLimit(c))
	if err != nil {
		return err
	}

	return c.JSON(toMemoryResponses(memories))
}

func (s *Server) handleListAuditLog(c fiber.Ctx) error {
	query := service.AuditQuery{
		Action: c.Query("action"),
		Limit:  queryLimit(c),
	}

	if actor := c.Query("actor"); actor != "" {
		actorID, err := uuid.Parse(actor)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid actor filter")
		}
		query.ActorID = &actorID
	}

	// Honored only for the super-principal; the operation layer pins
	// everyone else to their own organization.
	if org := c.Query("org"); org != "" {
		orgID, err := uuid.Parse(org)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid org filter")
		}
		query.OrgID = &orgID
	}

	entries, err := s.svc.ListAuditLog(c.Context(), currentPrincipal(c), query)
	if err != nil {
		return err
	}

	return c.JSON(toAuditResponses(entries))
}

func (s *Server) handleImpersonate(c fiber.Ctx) error {
	var req impersonateRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	orgID, err := uuid.Parse(req.OrgID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid org id")
	}

	grant, err := s.svc.Impersonate(c.Context(), currentPrincipal(c), orgID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"credential":        grant.Credential,
		"targetPrincipalId": grant.Target.PrincipalID.String(),
		"targetName":        grant.Target.Name,
	})
}

func (s *Server) handleRegisterOrganization(c fiber.Ctx) error {
	var req orgRegistrationRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	org, err := s.svc.RegisterOrganization(c.Context(), currentPrincipal(c), service.OrgRegistration{
		Name:         req.Name,
		Slug:         req.Slug,
		LogoURL:      req.LogoURL,
		PrimaryColor: req.PrimaryColor,
		Config:       req.Config,
		MaxMembers:   req.MaxMembers,
		MaxMemories:  req.MaxMemories,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(toOrgResponse(org))
}

func (s *Server) handleSetOrganizationActive(c fiber.Ctx) error {
	orgID, err := pathID(c)
	if err != nil {
		return err
	}

	var req orgActiveRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	if err := s.svc.SetOrganizationActive(c.Context(), currentPrincipal(c), orgID, *req.Active); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleDeleteOrganization(c fiber.Ctx) error {
	orgID, err := pathID(c)
	if err != nil {
		return err
	}

	if err := s.svc.DeleteOrganization(c.Context(), currentPrincipal(c), orgID); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func queryLimit(c fiber.Ctx) int {
	raw := c.Query("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
