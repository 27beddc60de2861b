package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"collabhub-go/internal/governance"
	"collabhub-go/internal/handlers"
	"collabhub-go/internal/push"
	"collabhub-go/internal/retention"
	"collabhub-go/internal/store"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	// Redis Configuration
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDBStr := os.Getenv("REDIS_DB")
	redisDB := 0
	if redisDBStr != "" {
		if db, err := strconv.Atoi(redisDBStr); err == nil {
			redisDB = db
		}
	}

	// Initialize Redis store (notification feed + SSE events)
	feedStore := store.NewRedisStore(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// PostgreSQL Configuration
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	// Initialize PostgreSQL store (users, subscriptions, modules, policies)
	pgStore, err := store.NewPostgresStore(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}

	// Run database migrations
	ctx := context.Background()
	if err := pgStore.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	// Push dispatcher; missing VAPID keys leave it disabled rather than fatal
	dispatcher := push.NewDispatcher(pgStore, push.Config{
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		Subscriber:      os.Getenv("PUSH_SUBSCRIBER"),
	})

	// Governance engine + retention sweeper
	engine := governance.NewEngine(pgStore)
	sweeper := retention.NewSweeper(engine, pgStore, os.Getenv("RETENTION_CRON"))
	if err := sweeper.Start(); err != nil {
		log.Fatalf("Failed to start retention sweeper: %v", err)
	}
	defer sweeper.Stop()

	h := handlers.NewHandler(pgStore, feedStore, dispatcher, engine, os.Getenv("APP_URL"))

	// Initialize default admin user
	h.InitAdmin(ctx)

	// Public routes
	http.HandleFunc("/healthz", h.HealthzHandler)
	http.HandleFunc("/api/login", h.LoginHandler)
	http.HandleFunc("/api/logout", h.LogoutHandler)
	http.HandleFunc("/api/push/vapid-key", h.VAPIDKeyHandler)

	// Authenticated routes
	http.HandleFunc("/api/push/subscribe", handlers.AuthMiddleware(h.SubscribeHandler))
	http.HandleFunc("/api/push/test", handlers.AuthMiddleware(h.TestPushHandler))
	http.HandleFunc("/api/notifications", handlers.AuthMiddleware(h.NotificationsHandler))
	http.HandleFunc("/events", handlers.AuthMiddleware(h.EventsHandler))
	http.HandleFunc("/api/governance/check", handlers.AuthMiddleware(h.GovernanceCheckHandler))

	// Module routes; /api/modules/{id}/events authenticates with an HMAC
	// signature instead of a session, so the sub-router checks access itself
	http.HandleFunc("/api/modules", h.ModulesHandler)
	http.HandleFunc("/api/modules/", h.ModuleSubHandler)

	// Admin API routes (protected)
	http.HandleFunc("/api/admin/users", handlers.AuthMiddleware(handlers.AdminMiddleware(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetUsersHandler(w, r)
		case http.MethodPost:
			h.CreateUserHandler(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))
	http.HandleFunc("/api/admin/users/", handlers.AuthMiddleware(handlers.AdminMiddleware(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			h.UpdateUserHandler(w, r)
		case http.MethodDelete:
			h.DeleteUserHandler(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Policy management
	http.HandleFunc("/api/admin/policies", handlers.AuthMiddleware(handlers.AdminMiddleware(h.PoliciesHandler)))
	http.HandleFunc("/api/admin/policies/", handlers.AuthMiddleware(handlers.AdminMiddleware(h.PolicyByIDHandler)))
	http.HandleFunc("/api/admin/audit", handlers.AuthMiddleware(handlers.AdminMiddleware(h.GetAuditLogsHandler)))

	// Metrics
	http.Handle("/metrics", promhttp.Handler())

	// Serve static files (PWA assets, module host shim)
	fs := http.FileServer(http.Dir("web/static"))
	http.Handle("/static/", http.StripPrefix("/static/", fs))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Println("Listening on :" + port)
	if !dispatcher.Enabled() {
		log.Println("Push delivery is disabled (set VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY)")
	}
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}
