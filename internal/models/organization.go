package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Organization represents a tenant. Most data and permissions are scoped to
// exactly one organization; organizations are soft-disabled rather than
// deleted, except for an explicit cascading delete by a super-principal.
type Organization struct {
	OrgID uuid.UUID // UUIDv7
	Name  string
	Slug  string // URL-safe identifier, unique, used by the public read path

	// Branding
	LogoURL      string
	PrimaryColor string

	// Config is an opaque JSON blob (feature flags, AI instructions,
	// moderation flag). It is stored and transported as raw bytes; use
	// ParsedConfig to read it.
	Config []byte

	// Resource limits
	MaxMembers  int
	MaxMemories int

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrgConfig is the known shape of the organization config blob. Unknown fields
// are ignored so the blob can carry settings this core does not interpret.
type OrgConfig struct {
	ModerationEnabled bool            `json:"moderationEnabled"`
	AIInstructions    string          `json:"aiInstructions"`
	FeatureFlags      map[string]bool `json:"featureFlags"`
}

// ParsedConfig decodes the config blob. A missing or unparsable blob degrades
// to the zero config rather than failing the request; parse failures are
// logged so a corrupt blob is visible operationally.
func (o *Organization) ParsedConfig() OrgConfig {
	var cfg OrgConfig
	if len(o.Config) == 0 {
		return cfg
	}
	if err := json.Unmarshal(o.Config, &cfg); err != nil {
		log.Warn().
			Err(err).
			Str("org_id", o.OrgID.String()).
			Msg("Organization config blob is unparsable, treating as empty")
		return OrgConfig{}
	}
	return cfg
}
