// Package app assembles the sync engine and its transports from config.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"collaboraid-sync/config"
	"collaboraid-sync/internal/auth"
	"collaboraid-sync/internal/chatsync"
	"collaboraid-sync/internal/domain"
	"collaboraid-sync/internal/handler"
	"collaboraid-sync/internal/push"
	"collaboraid-sync/internal/push/natspush"
	"collaboraid-sync/internal/push/redispush"
	"collaboraid-sync/internal/push/stomppush"
	collabredis "collaboraid-sync/internal/redis"
	"collaboraid-sync/internal/server"
	"collaboraid-sync/internal/session"
	"collaboraid-sync/internal/transport/httpdto"
	"collaboraid-sync/internal/transport/rest"
	"collaboraid-sync/internal/websocket"
	"collaboraid-sync/pkg/logger"
)

type Options struct {
	// WithPush connects the configured push transport. One-shot commands
	// leave it off and go through REST only.
	WithPush bool
}

type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	Registry  *prometheus.Registry
	Self      domain.Participant
	REST      *rest.Client
	Engine    *chatsync.ConversationSync
	Session   *session.Session
	Refresher *chatsync.Refresher

	push  *push.Supervisor
	redis *goredis.Client
}

func New(ctx context.Context, cfg *config.Config, l *logger.Logger, opts Options) (*App, error) {
	l = logger.OrNop(l)
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	tokens := auth.NewStaticToken(cfg.AuthToken)
	norm := httpdto.Normalizer{Loc: loc}
	restCfg := rest.Config{
		BaseURL:    cfg.APIBaseURL,
		Tokens:     tokens,
		Timeout:    cfg.HTTPTimeout,
		Normalizer: norm,
		Logger:     l,
	}

	self, err := resolveSelf(ctx, cfg, tokens, rest.New(restCfg))
	if err != nil {
		return nil, err
	}
	cfg.UserID = int64(self.ID)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l.Infof("signed in as %s (%s)", self.DisplayName(), self.ID)

	norm.Self = self.ID
	restCfg.Normalizer = norm
	a := &App{
		Config:   cfg,
		Logger:   l,
		Registry: prometheus.NewRegistry(),
		Self:     self,
		REST:     rest.New(restCfg),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.RedisEnabled {
		a.redis = collabredis.NewClient(collabredis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}

	engineOpts := chatsync.Options{
		Self:           self,
		History:        a.REST,
		Sender:         a.REST,
		DedupWindow:    cfg.DedupWindow,
		ExactDedupOnly: cfg.ExactDedupOnly,
		Logger:         l,
		Metrics:        chatsync.NewMetrics(a.Registry),
	}
	if cfg.ReadReceipts {
		engineOpts.ReadMarker = a.REST
	}
	var cooldowns session.CooldownStore = session.NewMemoryStore(nil)
	if cfg.RedisEnabled {
		engineOpts.Participants = collabredis.NewParticipantCache(a.redis, cfg.ParticipantTTL)
		cooldowns = collabredis.NewCooldownStore(a.redis)
	}
	if opts.WithPush && cfg.PushTransport != config.TransportNone {
		a.push = push.NewSupervisor(push.Config{
			Dialer:         a.dialer(tokens),
			ReconnectDelay: cfg.ReconnectDelay,
			Normalizer:     norm,
			Logger:         l,
		})
		engineOpts.Push = a.push
	}

	a.Engine, err = chatsync.New(engineOpts)
	if err != nil {
		return nil, err
	}
	a.Session = session.New(self, a.REST, cooldowns, cfg.AdminCooldown, l)
	a.Refresher = chatsync.NewRefresher(a.Engine, cfg.RefreshInterval, rate.Limit(cfg.RefreshRPS), cfg.RefreshBurst, l)
	return a, nil
}

func (a *App) dialer(tokens auth.TokenSource) push.Dialer {
	switch a.Config.PushTransport {
	case config.TransportNats:
		return &natspush.Dialer{URL: a.Config.NatsURL, Tokens: tokens, Timeout: a.Config.HTTPTimeout}
	case config.TransportRedis:
		return &redispush.Dialer{Client: a.redis}
	default:
		return &stomppush.Dialer{URL: a.Config.WSURL, Tokens: tokens, HeartBeat: a.Config.HeartBeat}
	}
}

// resolveSelf works out who is signed in: configured id first, then the
// token's claims, then the backend.
func resolveSelf(ctx context.Context, cfg *config.Config, tokens *auth.StaticToken, client *rest.Client) (domain.Participant, error) {
	claims := tokens.Claims()
	self := domain.Participant{ID: domain.UserID(cfg.UserID), Name: cfg.Username, Role: claims.Role}
	if self.ID == 0 {
		self.ID = claims.UserID
	}
	if self.ID != 0 && self.Name != "" {
		return self, nil
	}

	me, err := client.CurrentUser(ctx)
	if err != nil {
		if self.ID != 0 {
			return self, nil
		}
		return domain.Participant{}, fmt.Errorf("resolve current user: %w", err)
	}
	if self.ID == 0 {
		self.ID = me.ID
	}
	if self.ID != me.ID {
		return self, nil
	}
	self, _ = self.Fill(me)
	return self, nil
}

// Start connects push, begins periodic refreshes and loads the initial
// history. Connection and history failures are logged, not fatal.
func (a *App) Start(ctx context.Context) error {
	if state, err := a.Engine.Start(ctx); err != nil {
		a.Logger.Warnf("push channel %s: %v", state, err)
	}
	if err := a.Engine.Refresh(ctx); err != nil {
		a.Logger.Warnf("initial history load: %v", err)
	}
	a.Refresher.Start(ctx)
	return nil
}

// Serve runs the local bridge until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	hub := websocket.NewHub()
	go hub.Run(ctx)
	bridge := websocket.NewSyncBridge(hub, a.Logger)
	defer a.Engine.Subscribe(bridge.Handle)()

	srv := server.New(a.Config, a.Logger)
	srv.SetupRoutes(&server.Handlers{
		Conversations: handler.NewConversationHandler(a.Engine),
		Status:        handler.NewStatusHandler(a.Engine, a.Refresher),
		Account:       handler.NewAccountHandler(a.REST, a.Session),
		WebSocket:     websocket.NewHandler(hub, a.Logger),
		Metrics:       a.Registry,
	})
	return srv.Start(ctx)
}

func (a *App) Close() error {
	a.Refresher.Stop()
	var errs []error
	if err := a.Engine.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Logger.Sync(); err != nil {
		a.Logger.Debugf("sync logger: %v", err)
	}
	return errors.Join(errs...)
}
