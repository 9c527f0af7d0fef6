package engine

import (
	"context"

	"github.com/ostelo/deskchat/internal/bus"
	"github.com/ostelo/deskchat/internal/cache"
	"github.com/ostelo/deskchat/internal/chat"
	"github.com/ostelo/deskchat/internal/config"
	"github.com/ostelo/deskchat/internal/gateway"
	"github.com/ostelo/deskchat/internal/lock"
	"github.com/ostelo/deskchat/internal/logging"
	"github.com/ostelo/deskchat/internal/push"
	"github.com/ostelo/deskchat/internal/receipts"
	"github.com/ostelo/deskchat/internal/send"
	"github.com/ostelo/deskchat/internal/session"
	"github.com/ostelo/deskchat/internal/status"
	"github.com/ostelo/deskchat/internal/store"
	intsync "github.com/ostelo/deskchat/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session and viewer configuration passed to the
// fx module.
type Params struct {
	SessionName    string
	ConversationID string
	Role           chat.SenderClass
	ViewerRef      string // staff id; ignored for guest sessions
	ViewerName     string
}

// Module returns the fx module for the client engine, composing all
// providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("engine",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideCache,
			provideContext,
			provideGateway,
			provideConsumer,
			provideStore,
			provideReconciler,
			provideController,
			provideTracker,
			provideEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.Load(session.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideCache(p Params, logger *zap.Logger) (*cache.DB, error) {
	dbPath := session.CacheDBPath(p.SessionName)
	db, err := cache.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

// provideContext resolves the viewer identity. Guest sessions use the
// persisted per-session guest identity; staff sessions take theirs from the
// invocation.
func provideContext(p Params, cfg *config.Config) (chat.Context, error) {
	ectx := chat.Context{
		ConversationID: p.ConversationID,
		ViewerRole:     p.Role,
		ViewerRef:      p.ViewerRef,
		ViewerName:     p.ViewerName,
		Credential:     cfg.Credential,
	}
	if p.Role == chat.SenderGuest {
		g, err := session.LoadGuest(p.SessionName)
		if err != nil {
			return chat.Context{}, err
		}
		ectx.ViewerRef = g.Ref
		ectx.ViewerName = g.Name
	}
	return ectx, nil
}

func provideGateway(cfg *config.Config, logger *zap.Logger) *gateway.Client {
	return gateway.NewClient(cfg.GatewayURL, logger)
}

func provideConsumer(cfg *config.Config, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *push.Consumer {
	return push.NewConsumer(cfg.PushURL, b, machine, logger)
}

func provideStore(p Params) *store.Store {
	return store.New(p.ConversationID)
}

func provideReconciler(s *store.Store, ectx chat.Context, b *bus.Bus, logger *zap.Logger) *intsync.Reconciler {
	return intsync.NewReconciler(s, ectx, b, logger)
}

func provideController(s *store.Store, client *gateway.Client, db *cache.DB, b *bus.Bus, ectx chat.Context, logger *zap.Logger) *send.Controller {
	return send.NewController(s, client, db, b, ectx, logger)
}

func provideTracker(s *store.Store, client *gateway.Client, b *bus.Bus, ectx chat.Context, logger *zap.Logger) *receipts.Tracker {
	return receipts.NewTracker(s, client, b, ectx, receipts.DefaultDebounce, logger)
}

func provideEngine(
	ectx chat.Context,
	s *store.Store,
	client *gateway.Client,
	consumer *push.Consumer,
	controller *send.Controller,
	reconciler *intsync.Reconciler,
	tracker *receipts.Tracker,
	b *bus.Bus,
	logger *zap.Logger,
) *Engine {
	return New(ectx, s, client, consumer, controller, reconciler, tracker, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, e *Engine, consumer *push.Consumer, db *cache.DB, lk *lock.Lock, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			_ = machine.Transition(status.Connecting)
			consumer.Start(context.Background())

			// Window load needs the network; do it off the fx start path
			// so a slow gateway does not block startup.
			go func() {
				if err := e.Subscribe(context.Background()); err != nil {
					logger.Error("subscribe failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			e.Unsubscribe()
			consumer.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("engine stopped")
			return nil
		},
	})
}
