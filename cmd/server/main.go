package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"community-chat/internal/api"
	"community-chat/internal/auth"
	"community-chat/internal/chat"
	"community-chat/internal/config"
	"community-chat/internal/db"
	"community-chat/internal/middleware"
	"community-chat/internal/repository"
	"community-chat/internal/tasks"
)

// serveWS authenticates the handshake before upgrading. Rejections stay
// plain HTTP so browsers surface them instead of a silent socket close.
func serveWS(server *chat.Server, verifier *auth.Verifier, users repository.UserRepository, handshakeTimeout time.Duration) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:   512,
		WriteBufferSize:  512,
		HandshakeTimeout: handshakeTimeout,
		CheckOrigin:      func(r *http.Request) bool { return true },
	}

	return func(w http.ResponseWriter, r *http.Request) {
		token := middleware.BearerToken(r)
		if token == "" {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		claims, err := verifier.ValidateToken(token)
		if err != nil {
			log.Printf("[WS] Handshake rejected: %v", err)
			http.Error(w, "Session expired or invalid", http.StatusUnauthorized)
			return
		}

		username := claims.Username
		if user, err := users.GetUserByID(r.Context(), claims.UserID); err == nil {
			username = user.Username
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[WS] Upgrade error: %v", err)
			return
		}

		client := chat.NewClient(server, conn, claims.UserID, username)
		server.Connect(client, client.ConnectionID())

		go client.WritePump()
		go client.ReadPump()

		log.Printf("[WS] %s connected", username)
	}
}

func main() {
	cfg := config.Load()

	pool, err := db.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer pool.Close()

	roomRepo := repository.NewRoomRepo(pool)
	messageRepo := repository.NewMessageRepo(pool)
	presenceRepo := repository.NewPresenceRepo(pool)
	userRepo := repository.NewUserRepo(pool)

	verifier := auth.NewVerifier(cfg.AuthKey)
	server := chat.NewServer(roomRepo, messageRepo, presenceRepo)
	handler := api.NewHandler(roomRepo, messageRepo, server)

	reconciler := tasks.NewOccupancyReconciler(server.Rooms, roomRepo, cfg.ReconcileSpec)
	if err := reconciler.Start(); err != nil {
		log.Fatalf("Failed to start occupancy reconciler: %v", err)
	}
	defer reconciler.Stop()

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/ws", serveWS(server, verifier, userRepo, cfg.HandshakeTimeout))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Authenticate(verifier, userRepo))
		r.Get("/rooms", handler.ListPublicRooms)
		r.Post("/rooms", handler.CreateRoom)
		r.Get("/rooms/mine", handler.ListMyRooms)
		r.Get("/rooms/{id}/messages", handler.RoomHistory)
		r.Get("/rooms/{id}/online", handler.RoomOnlineUsers)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		log.Printf("🚀 Chat server starting on :%s...", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutdown signal received. Cleaning up...")

		// Flush occupancy counters so a restart starts from the truth.
		reconciler.Run()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Graceful shutdown complete. Goodnight!")
}
