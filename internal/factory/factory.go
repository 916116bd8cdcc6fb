package factory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mcoot/mclink/internal/api"
	"github.com/mcoot/mclink/internal/chat"
	"github.com/mcoot/mclink/internal/dependencies/clock"
	"github.com/mcoot/mclink/internal/dependencies/random"
	"github.com/mcoot/mclink/internal/guildconfig"
	"github.com/mcoot/mclink/internal/metrics"
	"github.com/mcoot/mclink/internal/services/approval"
	"github.com/mcoot/mclink/internal/services/auth"
	"github.com/mcoot/mclink/internal/services/authcode"
	"github.com/mcoot/mclink/internal/services/connection"
	"github.com/mcoot/mclink/internal/services/membership"
	"github.com/mcoot/mclink/internal/services/rolesync"
	"github.com/mcoot/mclink/internal/storage"
	"github.com/mcoot/mclink/internal/storage/memory"
	redisstorage "github.com/mcoot/mclink/internal/storage/redis"
	"github.com/mcoot/mclink/internal/storage/sqlite"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// Configuration
	Guilds *guildconfig.Registry

	// External dependencies
	Clock   clock.Clock
	Random  random.Random
	Chat    chat.Client
	Metrics *metrics.Metrics

	// Services
	AuthService       *auth.Service
	Issuer            *authcode.Issuer
	RoleSync          *rolesync.Engine
	ConnectionHandler *connection.Handler
	Workflow          *approval.Workflow
	Membership        *membership.Service

	closers []io.Closer
}

// Config holds configuration for the application factory
type Config struct {
	// Guilds is the parsed guild configuration (required)
	Guilds *guildconfig.Config
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory" or "redis")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// AuditLogPath moves role sync logs into a sqlite database when set
	AuditLogPath string
	// Chat overrides the chat platform client (optional)
	// If nil, a Discord client is used when DiscordToken is set
	Chat          chat.Client
	DiscordToken  string
	DiscordAPIURL string
	// MembershipTimeout bounds each dispatched membership event
	MembershipTimeout time.Duration
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	if cfg.Guilds == nil {
		return nil, errors.New("guild configuration is required")
	}

	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	// Create storage based on type
	var (
		players storage.Storage
		closers []io.Closer
	)
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		players = memory.New()
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		players = redisStore
		closers = append(closers, redisStore)
	default:
		return nil, errors.New("invalid StorageType: must be 'memory' or 'redis'")
	}

	store := players
	if cfg.AuditLogPath != "" {
		logStore, err := sqlite.Open(cfg.AuditLogPath)
		if err != nil {
			closeAll(closers)
			return nil, fmt.Errorf("opening audit log: %w", err)
		}
		store = storage.Compose(players, logStore)
		closers = append(closers, logStore)
	}

	chatClient := cfg.Chat
	if chatClient == nil {
		if cfg.DiscordToken != "" {
			discord, err := chat.NewDiscordClient(cfg.DiscordAPIURL, cfg.DiscordToken)
			if err != nil {
				closeAll(closers)
				return nil, err
			}
			chatClient = discord
		} else {
			logger.Warn("no chat platform token configured, role sync will see no roles")
			chatClient = chat.NewStaticClient()
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app := newWithDependencies(store, cfg.Guilds, chatClient, clock.New(), random.New(), metrics.New(reg), cfg.MembershipTimeout, logger)
	app.closers = closers
	return app, nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Storage,
	guildCfg *guildconfig.Config,
	chatClient chat.Client,
	clk clock.Clock,
	rnd random.Random,
	m *metrics.Metrics,
	membershipTimeout time.Duration,
	logger *slog.Logger,
) *App {
	guilds := guildconfig.NewRegistry(guildCfg)

	// Create services
	authService := auth.New(guildCfg.APIKeys)
	issuer := authcode.NewIssuer(store, guilds, clk, rnd, m, logger)
	roleSync := rolesync.NewEngine(store, chatClient, guilds, clk, m, logger)
	connectionHandler := connection.NewHandler(store, guilds, roleSync, clk, m, logger)
	workflow := approval.NewWorkflow(store, guilds, roleSync, clk, m, logger)
	membershipService := membership.NewService(store, guilds, clk, m, logger, membershipTimeout)

	return &App{
		Storage:           store,
		Guilds:            guilds,
		Clock:             clk,
		Random:            rnd,
		Chat:              chatClient,
		Metrics:           m,
		AuthService:       authService,
		Issuer:            issuer,
		RoleSync:          roleSync,
		ConnectionHandler: connectionHandler,
		Workflow:          workflow,
		Membership:        membershipService,
	}
}

// Router builds the HTTP API for the app
func (a *App) Router(logger *slog.Logger) http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:            logger,
		Metrics:           a.Metrics,
		AuthService:       a.AuthService,
		ConnectionHandler: a.ConnectionHandler,
		Issuer:            a.Issuer,
		Workflow:          a.Workflow,
		RoleSync:          a.RoleSync,
		Membership:        a.Membership,
	})
}

// Close waits for in-flight membership events and releases storage connections
func (a *App) Close() error {
	a.Membership.Wait()
	return closeAll(a.closers)
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
