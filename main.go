package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	cfg "github.com/example/defigate/internal/config"
)

type App struct {
	cfg      *cfg.Config
	log      *zap.Logger
	DB       DB
	sessions *DBSessionStore
	limiter  *RateLimiter
	audit    *AuditLog
	throttle *ipThrottle
}

// sessionKeys returns the securecookie key pairs from config, generating
// throwaway keys outside production so a bare dev checkout still runs.
func sessionKeys(c *cfg.Config, logger *zap.Logger) [][]byte {
	if c.SessionHashKey != "" {
		keys := [][]byte{[]byte(c.SessionHashKey)}
		if c.SessionBlockKey != "" {
			keys = append(keys, []byte(c.SessionBlockKey))
		} else {
			keys = append(keys, nil)
		}
		return keys
	}
	logger.Warn("SESSION_HASH_KEY not set; using a random key, sessions will not survive restarts")
	return [][]byte{securecookie.GenerateRandomKey(32), nil}
}

func (a *App) routes() *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(SecurityHeaders)
	r.Use(a.Logging)

	// Health check endpoints (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := a.DB.(interface{ ping() bool }); ok {
			if !p.ping() {
				w.WriteHeader(503)
				w.Write([]byte(`{"ready":false}`))
				return
			}
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"ready":true}`))
	}).Methods("GET")

	// Auth endpoints sit behind the per-IP throttle
	auth := r.PathPrefix("/auth").Subrouter()
	auth.Use(a.Throttle)
	auth.HandleFunc("/login", a.requireGuest(a.HandleLogin)).Methods("GET", "POST")
	auth.HandleFunc("/register", a.requireGuest(a.HandleRegister)).Methods("GET", "POST")
	auth.HandleFunc("/logout", a.HandleLogout).Methods("GET")

	r.HandleFunc("/", a.HandleIndex).Methods("GET")
	r.HandleFunc("/profile", a.requireAuth(a.HandleProfile)).Methods("GET", "POST")
	r.HandleFunc("/launch", a.requireAuth(a.HandleLaunch)).Methods("GET")
	r.HandleFunc("/app", a.requireAuth(a.HandleApp)).Methods("GET")

	return r
}

func main() {
	c, err := cfg.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(c)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	var db DB
	switch c.DBAdapter {
	case "sqlite":
		s, err := NewSQLiteDB(c.SQLiteFile)
		if err != nil {
			logger.Fatal("sqlite init", zap.Error(err))
		}
		db = s
	case "postgres":
		logger.Info("applying database migrations")
		if err := ApplyMigrations("./migrations", c.PostgresDSN); err != nil {
			logger.Fatal("migrations", zap.Error(err))
		}
		p, err := NewPostgresDB(c.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres init", zap.Error(err))
		}
		db = p
		logger.Info("connected to PostgreSQL database")
	case "memory":
		logger.Warn("using in-memory database (not recommended for production)")
		db = NewMemoryDB()
	default:
		logger.Fatal("unsupported DB_ADAPTER", zap.String("adapter", c.DBAdapter))
	}

	store := NewDBSessionStore(db, &sessions.Options{
		Path:     "/",
		MaxAge:   c.SessionLifetime,
		HttpOnly: true,
		Secure:   c.SessionSecure,
		SameSite: c.SameSite(),
	}, sessionKeys(c, logger)...)

	app := &App{
		cfg:      c,
		log:      logger,
		DB:       db,
		sessions: store,
		limiter:  NewRateLimiter(db),
		audit:    NewAuditLog(db, logger),
		throttle: newIPThrottle(c.ThrottlePerMinute),
	}

	srv := &http.Server{Handler: app.routes(), Addr: ":" + c.Port, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	go func() {
		logger.Info("starting server", zap.String("port", c.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("shutdown failed", zap.Error(err))
	}
	if closer, ok := app.DB.(interface{ close() error }); ok {
		_ = closer.close()
	}
	logger.Info("server exited properly")
}
