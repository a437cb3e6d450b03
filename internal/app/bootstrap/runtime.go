// Package bootstrap wires the application's services from config so the api
// and worker binaries share one composition path.
package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/nexofarma/whatsapp-backend/internal/config"
	"github.com/nexofarma/whatsapp-backend/internal/conversation"
	"github.com/nexofarma/whatsapp-backend/internal/identity"
	"github.com/nexofarma/whatsapp-backend/internal/observability/metrics"
	"github.com/nexofarma/whatsapp-backend/internal/patterns"
	"github.com/nexofarma/whatsapp-backend/internal/plex"
	"github.com/nexofarma/whatsapp-backend/internal/registry"
	"github.com/nexofarma/whatsapp-backend/internal/render"
	"github.com/nexofarma/whatsapp-backend/pkg/logging"
)

// Runtime bundles the wired services plus the handles the binaries need for
// shutdown and HTTP exposure.
type Runtime struct {
	TurnService *conversation.TurnService
	Registry    registry.Repository
	Metrics     *metrics.IdentificationMetrics
	PromReg     *prometheus.Registry

	pool  *pgxpool.Pool
	sqlDB *sql.DB
	redis *redis.Client
}

// Close releases the runtime's connections.
func (r *Runtime) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
	if r.sqlDB != nil {
		_ = r.sqlDB.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
}

// BuildRedisClient returns a configured Redis client.
func BuildRedisClient(cfg *appconfig.Config) (*redis.Client, error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, fmt.Errorf("bootstrap: REDIS_ADDR is required")
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts), nil
}

// BuildRuntime wires the full turn-processing stack. The sender may be nil;
// replies are then only recorded in the transcript (useful for dry runs).
func BuildRuntime(ctx context.Context, cfg *appconfig.Config, sender conversation.MessageSender, logger *logging.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	redisClient, err := BuildRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable at startup", "error", err)
	}

	rt := &Runtime{redis: redisClient}

	// Registry: Postgres when configured, in-memory otherwise.
	var reg registry.Repository
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		rt.pool = pool
		reg = registry.NewPostgresRepository(pool, cfg.RegistrationTTLDays)
	} else {
		logger.Warn("no DATABASE_URL configured; using in-memory registration store")
		reg = registry.NewInMemoryRepository(cfg.RegistrationTTLDays)
	}
	rt.Registry = reg

	var transcript *conversation.TranscriptStore
	if cfg.DatabaseURL != "" {
		sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("bootstrap: open sql db: %w", err)
		}
		rt.sqlDB = sqlDB
		transcript = conversation.NewTranscriptStore(sqlDB)
	}

	var lookup identity.IdentityLookup
	if cfg.PlexBaseURL != "" {
		lookup, err = plex.New(plex.Config{
			BaseURL: cfg.PlexBaseURL,
			APIKey:  cfg.PlexAPIKey,
			Timeout: cfg.PlexTimeout,
		})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("bootstrap: plex client: %w", err)
		}
	} else {
		logger.Warn("no PLEX_BASE_URL configured; identifier lookups will find nothing")
		lookup = emptyLookup{}
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	idMetrics := metrics.NewIdentificationMetrics(promReg)
	rt.PromReg = promReg
	rt.Metrics = idMetrics

	pats := patterns.New(nil)
	matcher := identity.NewNameMatcher(cfg.NameMatchThreshold, cfg.NameNoiseWords)

	orch := identity.NewOrchestrator(identity.OrchestratorParams{
		Welcome:          identity.NewWelcomeHandler(pats, logger),
		Identifier:       identity.NewIdentifierHandler(lookup, matcher, cfg.MaxIdentificationRetries, logger),
		NameVerification: identity.NewNameVerificationHandler(matcher, cfg.MaxNameMismatches, logger),
		OwnOrOther:       identity.NewOwnOrOtherHandler(pats, logger),
		AccountSelection: identity.NewAccountSelectionHandler(pats, matcher, logger),
		Escalation:       identity.NewEscalationHandler(logger),
		Store:            reg,
		Patterns:         pats,
		Logger:           logger,
		Metrics:          idMetrics,
	})

	renderer, err := render.NewTemplateRenderer(nil)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("bootstrap: renderer: %w", err)
	}

	rt.TurnService = conversation.NewTurnService(conversation.TurnServiceParams{
		Contexts:     conversation.NewContextStore(redisClient, cfg.ContextTTL),
		Transcript:   transcript,
		Orchestrator: orch,
		Renderer:     renderer,
		Sender:       sender,
		Metrics:      idMetrics,
		Logger:       logger,
	})
	return rt, nil
}

// BuildSender returns the WhatsApp Cloud API sender, or nil when no access
// token is configured.
func BuildSender(cfg *appconfig.Config, logger *logging.Logger) (conversation.MessageSender, error) {
	if cfg.WhatsAppAccessToken == "" {
		logger.Warn("no WHATSAPP_ACCESS_TOKEN configured; outbound messages disabled")
		return nil, nil
	}
	senderIDs := make(map[string]string, len(cfg.WhatsAppPharmacies))
	for phoneNumberID, pharmacyID := range cfg.WhatsAppPharmacies {
		senderIDs[pharmacyID] = phoneNumberID
	}
	return conversation.NewWhatsAppSender(conversation.WhatsAppSenderConfig{
		BaseURL:     cfg.WhatsAppGraphBaseURL,
		AccessToken: cfg.WhatsAppAccessToken,
		SenderIDs:   senderIDs,
	})
}

type emptyLookup struct{}

func (emptyLookup) Search(ctx context.Context, q identity.LookupQuery) ([]identity.ExternalIdentity, error) {
	return nil, nil
}
