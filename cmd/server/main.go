package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"chatsync/internal/config"
	"chatsync/internal/httpserver"
	"chatsync/internal/logging"
	"chatsync/internal/notify"
	"chatsync/internal/realtime"
	"chatsync/internal/security"
	"chatsync/internal/service"
	"chatsync/internal/ws"
)

var log = logging.Component("main")

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer st.Close()

	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	passwordHasher := security.NewPasswordHasher(0)

	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey), cfg.LegacyEncryptKeys...)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize encryptor")
	}

	var notifier realtime.OfflineNotifier = notify.NewLog()
	if cfg.NATSURL != "" {
		nc, err := notify.Connect(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to nats")
		}
		defer nc.Drain()
		notifier = notify.NewNATS(nc, cfg.NATSSubject)
	}

	hub := ws.NewHub(ws.HubConfig{
		Messages:      st.messages,
		Unread:        st.unread,
		PresenceStore: st.users,
		Notifier:      notifier,
		Render:        service.ContentRenderer(encryptor),
		TypingTimeout: cfg.TypingTimeout,
		QueueSize:     cfg.SendQueueSize,
		RetryDelay:    cfg.StoreRetryDelay,
	})

	convSvc := service.NewConversationService(st.conversations, st.users)
	msgSvc := service.NewMessageService(convSvc, st.messages, hub.Delivery, encryptor)

	router := httpserver.NewRouter(cfg, httpserver.Deps{
		Hub:           hub,
		Tokens:        tokenSvc,
		Auth:          service.NewAuthService(st.users, tokenSvc, passwordHasher),
		Users:         service.NewUserService(st.users, hub.Presence),
		Conversations: convSvc,
		Messages:      msgSvc,
		Sync:          service.NewSyncService(convSvc, msgSvc, st.unread, hub.Presence),
	})

	srv := &http.Server{
		Addr:        cfg.HTTPAddr(),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr()).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// hijacked websocket connections are not tracked by Shutdown
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}
