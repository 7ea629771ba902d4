package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"chatsync/internal/config"
	"chatsync/internal/security"
	"chatsync/internal/service"
	"chatsync/internal/ws"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Hub           *ws.Hub
	Tokens        *security.TokenService
	Auth          *service.AuthService
	Users         *service.UserService
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Sync          *service.SyncService
}

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(cfg *config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	// chi's request logger, written through logrus
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  logrus.StandardLogger(),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": cfg.AppName, "version": "1.0.0"})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api", func(r chi.Router) {
		// the websocket route below holds its connection open, so the
		// request timeout only applies here
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(d.Auth))
			r.Post("/login", handleLogin(d.Auth))
		})

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Tokens, d.Auth))

			r.Get("/auth/me", handleMe())

			r.Route("/users", func(r chi.Router) {
				r.Get("/", handleListUsers(d.Users))
				r.Get("/online", handleListOnlineUsers(d.Users))
				r.Get("/{userID}", handleGetUser(d.Users))
				r.Get("/{userID}/presence", handleGetPresence(d.Users))
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", handleCreateConversation(d.Conversations))
				r.Get("/", handleListConversations(d.Conversations))
				r.Get("/{conversationID}/messages", handleListMessages(d.Messages))
				r.Post("/{conversationID}/messages", handleCreateMessage(d.Messages))
			})

			r.Delete("/messages/{messageID}", handleDeleteMessage(d.Messages))
			r.Get("/sync", handleSync(d.Sync))
		})
	})

	r.Get("/ws", ws.MakeHandler(d.Hub, ws.HandlerConfig{
		Tokens:         d.Tokens,
		Conversations:  d.Conversations,
		Messages:       d.Messages,
		AllowedOrigins: cfg.CORSOrigins,
		PingInterval:   cfg.HeartbeatInterval,
	}))

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
