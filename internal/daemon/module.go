package daemon

import (
	"context"
	"time"

	"github.com/matheus3301/rentchat/internal/api"
	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/clock"
	"github.com/matheus3301/rentchat/internal/config"
	"github.com/matheus3301/rentchat/internal/engine"
	"github.com/matheus3301/rentchat/internal/lock"
	"github.com/matheus3301/rentchat/internal/logging"
	"github.com/matheus3301/rentchat/internal/loop"
	"github.com/matheus3301/rentchat/internal/metrics"
	"github.com/matheus3301/rentchat/internal/protocol"
	"github.com/matheus3301/rentchat/internal/realtime"
	"github.com/matheus3301/rentchat/internal/rest"
	"github.com/matheus3301/rentchat/internal/sched"
	"github.com/matheus3301/rentchat/internal/session"
	"github.com/matheus3301/rentchat/internal/store"
	intsync "github.com/matheus3301/rentchat/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	Debug       bool
	Quiet       bool // no log copy on stderr

	// Optional overrides for testing.
	Settings *config.Session
	Dialer   realtime.Dialer
	Logger   *zap.Logger
}

// Channels are the two realtime connections. Presence is nil when no
// presence URL is configured.
type Channels struct {
	Messaging *realtime.Manager
	Presence  *realtime.Manager
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideSettings,
			provideBus,
			provideClock,
			provideLoop,
			provideScheduler,
			provideLock,
			provideStore,
			provideCheckpoints,
			provideJournal,
			provideREST,
			provideChannels,
			provideEngine,
			provideSessionService,
			provideChatService,
			provideCollector,
			provideMetricsServer,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(session.LogPath(p.SessionName), p.SessionName, logging.Options{Debug: p.Debug, Quiet: p.Quiet})
}

func provideSettings(p Params) (*config.Session, error) {
	if p.Settings != nil {
		s := *p.Settings
		s.ApplyDefaults()
		return &s, s.Validate()
	}
	return config.LoadSession(session.SettingsPath(p.SessionName))
}

func provideBus(clk clock.Clock) *bus.Bus {
	return bus.New(bus.WithClock(clk.Now), bus.WithDropHook(metrics.ObserveBusDrop))
}

func provideClock() clock.Clock {
	return clock.Real()
}

func provideLoop() *loop.Loop {
	return loop.New()
}

// provideScheduler runs every timer callback on the engine loop.
func provideScheduler(c clock.Clock, l *loop.Loop) *sched.Scheduler {
	return sched.New(c, func(fn func()) { l.Post(fn) })
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so two daemons never migrate the same file.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.JournalPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("journal migrated", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("journal schema up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideCheckpoints(db *store.DB) *intsync.Checkpoints {
	return intsync.NewCheckpoints(db)
}

func provideJournal(db *store.DB, cp *intsync.Checkpoints, b *bus.Bus, logger *zap.Logger) *intsync.Journal {
	return intsync.NewJournal(db, cp, b, logger.Named("journal"))
}

// provideREST returns nil when no REST URL is configured.
func provideREST(s *config.Session) *rest.Client {
	if s.Server.RESTURL == "" {
		return nil
	}
	return rest.NewClient(s.Server.RESTURL, s.Server.Token)
}

func provideChannels(p Params, s *config.Session, c clock.Clock, sc *sched.Scheduler, b *bus.Bus, logger *zap.Logger) Channels {
	var d realtime.Dialer = realtime.WebSocketDialer{
		Token:      s.Server.Token,
		TokenParam: s.Server.TokenParam,
		ReadLimit:  1 << 20,
	}
	if p.Dialer != nil {
		d = p.Dialer
	}

	rt := s.Realtime
	base := realtime.Config{
		HeartbeatInterval:    rt.HeartbeatInterval.Duration,
		HeartbeatTimeout:     rt.HeartbeatTimeout.Duration,
		ReconnectInitial:     rt.ReconnectInitial.Duration,
		ReconnectMax:         rt.ReconnectMax.Duration,
		MaxReconnectAttempts: s.MaxAttempts(),
	}

	msgCfg := base
	msgCfg.Channel = realtime.Messaging
	msgCfg.URL = s.Server.MessagingURL
	ch := Channels{
		Messaging: realtime.NewManager(msgCfg, d, c, sc, b, logger.Named("realtime")),
	}

	if s.Server.PresenceURL != "" {
		presCfg := base
		presCfg.Channel = realtime.Presence
		presCfg.URL = s.Server.PresenceURL
		presCfg.HeartbeatInterval = rt.PresenceHeartbeatInterval.Duration
		presCfg.Heartbeat = func(now time.Time) protocol.Command {
			return protocol.Heartbeat{Timestamp: now.UnixMilli()}
		}
		ch.Presence = realtime.NewManager(presCfg, d, c, sc, b, logger.Named("realtime"))
	}
	return ch
}

func provideEngine(
	s *config.Session,
	ch Channels,
	l *loop.Loop,
	sc *sched.Scheduler,
	c clock.Clock,
	b *bus.Bus,
	client *rest.Client,
	cp *intsync.Checkpoints,
	logger *zap.Logger,
) *engine.Engine {
	deps := engine.Deps{
		Loop:        l,
		Sched:       sc,
		Clock:       c,
		Bus:         b,
		Messaging:   ch.Messaging,
		Checkpoints: cp,
		Logger:      logger.Named("engine"),
	}
	// Typed nils must not reach the interface fields.
	if ch.Presence != nil {
		deps.Presence = ch.Presence
	}
	if client != nil {
		deps.REST = client
	}
	return engine.New(engine.Config{
		UserID:       s.Server.UserID,
		SendTimeout:  s.Outbox.SendTimeout.Duration,
		TypingIdle:   s.Typing.IdleTimeout.Duration,
		TypingExpiry: s.Typing.Expiry.Duration,
	}, deps)
}

func provideSessionService(p Params, s *config.Session, e *engine.Engine, db *store.DB) *api.SessionService {
	return api.NewSessionService(p.SessionName, s.Server.UserID, e, db)
}

func provideChatService(p Params, e *engine.Engine, db *store.DB, b *bus.Bus) *api.ChatService {
	return api.NewChatService(e, db, b, p.SessionName)
}

func provideCollector(b *bus.Bus) *metrics.Collector {
	return metrics.NewCollector(b)
}

func provideMetricsServer(s *config.Session, e *engine.Engine, logger *zap.Logger) *MetricsServer {
	if s.Daemon.MetricsAddr == "" {
		return nil
	}
	return NewMetricsServer(s.Daemon.MetricsAddr, e.Connectivity, logger)
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	ms *MetricsServer,
	lk *lock.Lock,
	db *store.DB,
	e *engine.Engine,
	journal *intsync.Journal,
	collector *metrics.Collector,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The journal and collector subscribe before the first event.
			journal.Start(context.Background())
			collector.Start(context.Background())

			// Connect both channels; failed dials keep retrying in the background.
			e.Start(context.Background())

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if ms != nil {
				go func() {
					if err := ms.Start(); err != nil {
						logger.Error("metrics server error", zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			var err error
			if ms != nil {
				err = multierr.Append(err, ms.Stop(ctx))
			}
			err = multierr.Append(err, e.Stop())
			journal.Stop()
			collector.Stop()
			err = multierr.Append(err, db.Close())
			err = multierr.Append(err, lk.Release())
			if err != nil {
				logger.Warn("shutdown completed with errors", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
