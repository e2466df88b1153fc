package httpapi

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/vocab"
)

var validate = validator.New()

// bindBody parses and validates a JSON request body.
func bindBody(c fiber.Ctx, out any) error {
	if err := c.Bind().Body(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

type roleRequest struct {
	Name        string              `json:"name" validate:"required,max=128"`
	Permissions map[string][]string `json:"permissions" validate:"required"`
}

func (r *roleRequest) matrix() models.Matrix {
	matrix := make(models.Matrix, len(r.Permissions))
	for resource, actions := range r.Permissions {
		list := make([]vocab.Action, 0, len(actions))
		for _, action := range actions {
			list = append(list, vocab.Action(action))
		}
		matrix[vocab.Resource(resource)] = list
	}
	return matrix
}

type suggestRequest struct {
	Description string `json:"description" validate:"required,max=2048"`
}

type memoryRequest struct {
	Title   string `json:"title" validate:"required,max=256"`
	Content string `json:"content" validate:"required,max=65536"`
}

type memoryUpdateRequest struct {
	Title   string `json:"title" validate:"required,max=256"`
	Content string `json:"content" validate:"required,max=65536"`
	Version int64  `json:"version" validate:"required,min=1"`
}

type transitionRequest struct {
	Status  string `json:"status" validate:"required"`
	Version int64  `json:"version" validate:"required,min=1"`
}

type impersonateRequest struct {
	OrgID string `json:"orgId" validate:"required,uuid"`
}

type orgRegistrationRequest struct {
	Name         string          `json:"name" validate:"required,max=256"`
	Slug         string          `json:"slug" validate:"required,max=64"`
	LogoURL      string          `json:"logoUrl" validate:"omitempty,url"`
	PrimaryColor string          `json:"primaryColor" validate:"omitempty,hexcolor"`
	Config       json.RawMessage `json:"config" validate:"omitempty"`
	MaxMembers   int             `json:"maxMembers" validate:"omitempty,min=0"`
	MaxMemories  int             `json:"maxMemories" validate:"omitempty,min=0"`
}

type orgActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type roleResponse struct {
	RoleID      string              `json:"roleId"`
	OrgID       *string             `json:"orgId,omitempty"`
	Name        string              `json:"name"`
	Permissions map[string][]string `json:"permissions"`
	IsSystem    bool                `json:"isSystem"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

func toRoleResponse(role *models.Role) roleResponse {
	permissions := make(map[string][]string, len(role.Permissions))
	for resource, actions := range role.Permissions {
		list := make([]string, 0, len(actions))
		for _, action := range actions {
			list = append(list, string(action))
		}
		permissions[string(resource)] = list
	}

	resp := roleResponse{
		RoleID:      role.RoleID.String(),
		Name:        role.Name,
		Permissions: permissions,
		IsSystem:    role.IsSystem,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
	if role.OrgID != nil {
		orgID := role.OrgID.String()
		resp.OrgID = &orgID
	}
	return resp
}

type memoryResponse struct {
	MemoryID  string    `json:"memoryId"`
	OrgID     string    `json:"orgId"`
	AuthorID  string    `json:"authorId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Status    string    `json:"status"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toMemoryResponse(m *models.Memory) memoryResponse {
	return memoryResponse{
		MemoryID:  m.MemoryID.String(),
		OrgID:     m.OrgID.String(),
		AuthorID:  m.AuthorID.String(),
		Title:     m.Title,
		Content:   m.Content,
		Status:    string(m.Status),
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toMemoryResponses(memories []*models.Memory) []memoryResponse {
	out := make([]memoryResponse, 0, len(memories))
	for _, m := range memories {
		out = append(out, toMemoryResponse(m))
	}
	return out
}

type auditEntryResponse struct {
	EntryID   string            `json:"entryId"`
	OrgID     *string           `json:"orgId,omitempty"`
	ActorID   string            `json:"actorId"`
	Action    string            `json:"action"`
	Details   map[string]string `json:"details,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

func toAuditResponses(entries []*models.AuditLogEntry) []auditEntryResponse {
	out := make([]auditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		resp := auditEntryResponse{
			EntryID:   entry.EntryID.String(),
			ActorID:   entry.ActorID.String(),
			Action:    entry.Action,
			Details:   entry.Details,
			CreatedAt: entry.CreatedAt,
		}
		if entry.OrgID != nil {
			orgID := entry.OrgID.String()
			resp.OrgID = &orgID
		}
		out = append(out, resp)
	}
	return out
}

type orgResponse struct {
	OrgID        string    `json:"orgId"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	LogoURL      string    `json:"logoUrl,omitempty"`
	PrimaryColor string    `json:"primaryColor,omitempty"`
	MaxMembers   int       `json:"maxMembers"`
	MaxMemories  int       `json:"maxMemories"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toOrgResponse(org *models.Organization) orgResponse {
	return orgResponse{
		OrgID:        org.OrgID.String(),
		Name:         org.Name,
		Slug:         org.Slug,
		LogoURL:      org.LogoURL,
		PrimaryColor: org.PrimaryColor,
		MaxMembers:   org.MaxMembers,
		MaxMemories:  org.MaxMemories,
		IsActive:     org.IsActive,
		CreatedAt:    org.CreatedAt,
	}
}
