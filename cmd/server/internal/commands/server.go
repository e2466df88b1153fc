package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keepsakehq/keepsake/internal/httpapi"
	"github.com/keepsakehq/keepsake/internal/logger"
	"github.com/keepsakehq/keepsake/internal/roleauthor"
	"github.com/keepsakehq/keepsake/internal/service"
	memorystore "github.com/keepsakehq/keepsake/internal/store/memory"
	postgresstore "github.com/keepsakehq/keepsake/internal/store/postgres"
	"github.com/keepsakehq/keepsake/internal/telemetry"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"KEEPSAKE_LISTEN"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"" env:"KEEPSAKE_CORS_ORIGINS"`

	// Rate limiting
	RateLimitMax int `help:"max requests per minute per client, 0 disables" default:"0" env:"KEEPSAKE_RATE_LIMIT_MAX"`

	// Credential signing configuration
	SigningKeyFile string `help:"path to ES256 private key PEM for minting credentials" env:"KEEPSAKE_SIGNING_KEY_FILE"`
	PublicKeyFile  string `help:"path to ES256 public key PEM for verifying credentials" env:"KEEPSAKE_PUBLIC_KEY_FILE"`

	ImpersonationTTL time.Duration `help:"TTL for impersonation credentials" default:"15m" env:"KEEPSAKE_IMPERSONATION_TTL"`

	// Role matrix generator configuration
	Generator GeneratorFlags `embed:"" prefix:"generator-"`

	// Development and operational modes
	Telemetry bool `help:"enable OTLP metrics export" default:"false" env:"KEEPSAKE_TELEMETRY"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"KEEPSAKE_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

// GeneratorFlags configures the role matrix suggestion backend. Leaving the
// endpoint empty disables suggestions without affecting the rest of the API.
type GeneratorFlags struct {
	Endpoint string `help:"OpenAI-compatible chat completions endpoint" default:"" env:"KEEPSAKE_GENERATOR_ENDPOINT"`
	APIKey   string `help:"API key for the generator endpoint" default:"" env:"KEEPSAKE_GENERATOR_API_KEY"`
	Model    string `help:"model identifier" default:"" env:"KEEPSAKE_GENERATOR_MODEL"`
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	// Setup telemetry if enabled
	if c.Telemetry {
		log.Info().Msg("Telemetry is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "keepsake-server", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	if c.SigningKeyFile == "" || c.PublicKeyFile == "" {
		return errors.New("signing and public key files are required (--signing-key-file and --public-key-file)")
	}
	signingKeyPEM, err := os.ReadFile(c.SigningKeyFile)
	if err != nil {
		return fmt.Errorf("failed to read signing key: %w", err)
	}
	publicKeyPEM, err := os.ReadFile(c.PublicKeyFile)
	if err != nil {
		return fmt.Errorf("failed to read public key: %w", err)
	}

	synth, err := newSynthesizer(c.Generator)
	if err != nil {
		return fmt.Errorf("failed to configure matrix generator: %w", err)
	}

	svcCfg := service.Config{
		SigningKeyPEM:    string(signingKeyPEM),
		ImpersonationTTL: c.ImpersonationTTL,
	}

	// Create stores based on store type
	var (
		svc    *service.Service
		pinger httpapi.Pinger
	)

	switch c.StoreType {
	case "postgres":
		pg, err := postgresstore.New(ctx, &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
		})
		if err != nil {
			return fmt.Errorf("failed to create postgres stores: %w", err)
		}
		defer pg.Close()

		svc = service.New(pg.Organizations, pg.Principals, pg.Roles, pg.Memories, pg.Audit, synth, svcCfg)
		pinger = pg
		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

	default:
		principals := memorystore.NewPrincipalStore()
		roles := memorystore.NewRoleStore()
		audit := memorystore.NewAuditStore()
		memories := memorystore.NewMemoryStore(audit)
		orgs := memorystore.NewOrganizationStore(principals, roles, memories, audit)
		svc = service.New(orgs, principals, roles, memories, audit, synth, svcCfg)
		log.Info().Msg("Using in-memory stores")
	}

	server := httpapi.NewServer(svc, pinger, log, httpapi.Config{
		Listen:       c.Listen,
		PublicKeyPEM: string(publicKeyPEM),
		CORSOrigins:  c.CORSOrigins,
		RateLimitMax: c.RateLimitMax,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen()
	}()

	log.Info().Str("addr", c.Listen).Msg("Starting HTTP server")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// newSynthesizer builds the matrix synthesizer when a generator endpoint is
// configured, otherwise returns nil and role suggestions report unavailable.
func newSynthesizer(flags GeneratorFlags) (*roleauthor.Synthesizer, error) {
	if flags.Endpoint == "" {
		return nil, nil
	}
	generator, err := roleauthor.NewHTTPGenerator(roleauthor.HTTPGeneratorConfig{
		Endpoint: flags.Endpoint,
		APIKey:   flags.APIKey,
		Model:    flags.Model,
	})
	if err != nil {
		return nil, err
	}
	return roleauthor.NewSynthesizer(generator), nil
}
