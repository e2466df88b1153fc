package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/keepsakehq/keepsake"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Permission engine metrics
	AuthzChecksTotal  metric.Int64Counter
	AuthzDeniesTotal  metric.Int64Counter
	SuperBypassTotal  metric.Int64Counter
	LegacyFallbackUse metric.Int64Counter

	// Tenant scoping metrics
	TenantMismatchTotal metric.Int64Counter

	// Moderation metrics
	TransitionsTotal         metric.Int64Counter
	TransitionConflictsTotal metric.Int64Counter

	// Audit metrics
	AuditAppendsTotal metric.Int64Counter

	// Role authoring metrics
	MatrixSynthesisTotal       metric.Int64Counter
	MatrixSynthesisErrorsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.AuthzChecksTotal, _ = meter.Int64Counter(
		"keepsake.authz.checks.total",
		metric.WithDescription("Total number of permission checks evaluated"),
		metric.WithUnit("{check}"),
	)

	m.AuthzDeniesTotal, _ = meter.Int64Counter(
		"keepsake.authz.denies.total",
		metric.WithDescription("Total number of permission checks that denied"),
		metric.WithUnit("{check}"),
	)

	m.SuperBypassTotal, _ = meter.Int64Counter(
		"keepsake.authz.super_bypass.total",
		metric.WithDescription("Total number of super-principal bypass decisions"),
		metric.WithUnit("{check}"),
	)

	m.LegacyFallbackUse, _ = meter.Int64Counter(
		"keepsake.authz.legacy_fallback.total",
		metric.WithDescription("Total number of checks resolved through the deprecated legacy role table"),
		metric.WithUnit("{check}"),
	)

	m.TenantMismatchTotal, _ = meter.Int64Counter(
		"keepsake.tenant.mismatch.total",
		metric.WithDescription("Total number of cross-tenant access attempts surfaced as not-found"),
		metric.WithUnit("{attempt}"),
	)

	m.TransitionsTotal, _ = meter.Int64Counter(
		"keepsake.memories.transitions.total",
		metric.WithDescription("Total number of successful moderation transitions"),
		metric.WithUnit("{transition}"),
	)

	m.TransitionConflictsTotal, _ = meter.Int64Counter(
		"keepsake.memories.transition_conflicts.total",
		metric.WithDescription("Total number of moderation transitions lost to a concurrent decision"),
		metric.WithUnit("{conflict}"),
	)

	m.AuditAppendsTotal, _ = meter.Int64Counter(
		"keepsake.audit.appends.total",
		metric.WithDescription("Total number of audit entries appended"),
		metric.WithUnit("{entry}"),
	)

	m.MatrixSynthesisTotal, _ = meter.Int64Counter(
		"keepsake.roleauthor.synthesis.total",
		metric.WithDescription("Total number of matrix synthesis requests"),
		metric.WithUnit("{request}"),
	)

	m.MatrixSynthesisErrorsTotal, _ = meter.Int64Counter(
		"keepsake.roleauthor.synthesis.errors.total",
		metric.WithDescription("Total number of failed matrix synthesis requests"),
		metric.WithUnit("{error}"),
	)

	return m
}
