package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	config "ChatWire/global/config"
	"ChatWire/logger"
	mid "ChatWire/middleware"
	mwsec "ChatWire/middleware/security"
	chatapi "ChatWire/module/chat"
	"ChatWire/module/user"
	"ChatWire/service/chat"
	"ChatWire/service/relay"
	"ChatWire/service/storage"
	mgo "ChatWire/service/storage/mongo"
	rds "ChatWire/service/storage/redis"
	"ChatWire/tools/safe"
	sec "ChatWire/tools/security"

	"github.com/gin-gonic/gin"
)

func main() {
	config.ConfigAll()
	conf := config.Global

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- durable stores ----
	bootCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	mongoCli, err := mgo.NewClient(bootCtx, &mgo.Config{
		URI:         conf.MongoURI,
		Database:    conf.MongoDatabase,
		MaxPoolSize: conf.MongoPool,
		MaxRetry:    conf.MongoRetry,
	})
	cancel()
	if err != nil {
		logger.Errorf("[boot] mongo: %v", err)
		return
	}
	defer func() { _ = mongoCli.Close(context.Background()) }()

	users := mgo.NewUserStore(mongoCli)
	channels := mgo.NewChannelStore(mongoCli)
	conversations := mgo.NewConversationStore(mongoCli)
	messages := mgo.NewMessageStore(mongoCli)
	ensureIndexes(ctx, users, channels, conversations, messages)
	bridge := storage.NewBridge(users, channels, conversations, messages)

	// ---- presence mirror (optional) ----
	var mirror chat.PresenceMirror
	var pm *storage.PresenceMirror
	if err := rds.Init(rds.Config{
		Addr:     conf.RedisAddr,
		Password: conf.RedisPassword,
		DB:       conf.RedisDB,
		PoolSize: 16,
	}); err != nil {
		logger.Warnf("[boot] redis unavailable, presence mirror disabled: %v", err)
	} else {
		pm = storage.NewPresenceMirror(rds.Get(), conf.NodeID, conf.PresenceTTL)
		mirror = pm
		defer func() { _ = rds.Close() }()
	}

	// ---- gateway core ----
	jwtOpts := sec.DefaultOptions(config.GetJwtSecret(), config.GetJwtRefreshSecret())

	var srv *chat.Server
	rel, err := buildRelay(conf, func(env relay.Envelope) {
		if srv != nil {
			srv.DeliverRemote(env)
		}
	})
	if err != nil {
		logger.Errorf("[boot] relay: %v", err)
		return
	}
	defer func() { _ = rel.Close() }()

	srv = chat.NewServer(
		chat.Config{GatewayID: conf.NodeID, TypingTTL: conf.TypingTTL},
		chat.Deps{
			Verifier: chat.VerifierFunc(func(token string) (string, error) {
				return sec.Verify(jwtOpts, token)
			}),
			Users:    bridge,
			Members:  bridge,
			Messages: bridge,
			Mirror:   mirror,
			Relay:    rel,
		})
	defer srv.Close()

	if pm != nil {
		startMirrorRefresh(ctx, pm, srv, conf.PresenceTTL)
	}

	// ---- HTTP + WebSocket ----
	r := gin.New()
	r.Use(gin.Recovery(), mid.Origin())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "gateway": conf.NodeID, "connections": srv.Connections()})
	})
	r.GET("/ws", srv.HandleWS)

	// keep the interface nil when the mirror is absent; a wrapped nil
	// pointer would not compare equal to nil in the handler
	var plook user.PresenceLookup
	if pm != nil {
		plook = pm
	}

	api := r.Group("/api")
	authed := api.Group("", mwsec.Middleware(mwsec.DefaultOptions(jwtOpts)))
	user.NewHandler(users, jwtOpts, plook).Register(api, authed)
	chatapi.NewHandler(bridge).Register(authed)

	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", conf.Port), Handler: r}
	go func() {
		logger.Infof("[boot] gateway=%s listening on %s", conf.NodeID, httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[boot] http: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("[boot] shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutCtx)
}

func buildRelay(conf config.AppConfig, onRemote func(relay.Envelope)) (relay.Relay, error) {
	if conf.NATSServers == "" {
		return relay.Noop{}, nil
	}
	cfg := relay.Config{
		Servers: strings.Split(conf.NATSServers, ","),
		Name:    "chatwire-" + conf.NodeID,
	}
	return relay.NewNATS(cfg, conf.NodeID, onRemote)
}

type indexed interface {
	EnsureIndexes(ctx context.Context) error
}

func ensureIndexes(ctx context.Context, stores ...indexed) {
	ictx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	for _, s := range stores {
		if err := s.EnsureIndexes(ictx); err != nil {
			logger.Warnf("[boot] ensure indexes: %v", err)
		}
	}
}

// startMirrorRefresh keeps the redis presence keys alive for locally
// online users so a crashed gateway's entries age out on their own.
func startMirrorRefresh(ctx context.Context, pm *storage.PresenceMirror, srv *chat.Server, ttl time.Duration) {
	safe.Go(func() {
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
				pm.Refresh(rctx, srv.Presence().Snapshot())
				cancel()
			}
		}
	})
}
