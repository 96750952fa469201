package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"scuola-service/internal/app"
	"scuola-service/internal/auth"
	"scuola-service/internal/config"
	achAssign "scuola-service/internal/http-server/handlers/achievements/assign"
	authLogin "scuola-service/internal/http-server/handlers/auth/login"
	authRegister "scuola-service/internal/http-server/handlers/auth/register"
	bookingCreate "scuola-service/internal/http-server/handlers/bookings/create"
	bookingDelete "scuola-service/internal/http-server/handlers/bookings/delete"
	bookingList "scuola-service/internal/http-server/handlers/bookings/list"
	bookingSetNumber "scuola-service/internal/http-server/handlers/bookings/setnumber"
	notificationGet "scuola-service/internal/http-server/handlers/notifications/get"
	recoverySet "scuola-service/internal/http-server/handlers/recovery/set"
	studentGet "scuola-service/internal/http-server/handlers/students/get"
	"scuola-service/internal/lock"
	"scuola-service/internal/notify"
	svc "scuola-service/internal/service"
	"scuola-service/internal/storage/postgres"
	slogpretty "scuola-service/pkg/handlers/slogpretty"
	"scuola-service/pkg/middleware/mwLogger"
	"scuola-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {

	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting API", slog.String("env", cfg.Env))
	log.Debug("Debug messages are enabled")

	storage, err := postgres.New(cfg.StoragePath)
	if err != nil {
		log.Error("Failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	migrator, err := app.NewMigrator(storage.DB(), "./migrations")
	if err != nil {
		log.Error("Failed to init migrator", sl.Err(err))
		os.Exit(1)
	}

	if err := migrator.Run(context.Background()); err != nil {
		log.Error("Failed to apply migrations", sl.Err(err))
		os.Exit(1)
	}

	locker, err := lock.NewRedisLock(cfg.RedisAddr)
	if err != nil {
		log.Error("Failed to init redis lock", sl.Err(err))
		os.Exit(1)
	}

	notifier := notify.New(log, storage, cfg.Notifications.Retention)

	service := svc.NewService(storage, locker, notifier, svc.Config{
		ClosedDays: cfg.ClosedDays(),
		Slots:      cfg.Booking.Slots,
		Cycle:      cfg.Booking.LessonsPerCycle,
		AdminKey:   cfg.AdminKey,
		JWTSecret:  cfg.Auth.JWTSecret,
		TokenTTL:   cfg.Auth.TokenTTL,
	})

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(mwLogger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)
	router.Use(CORS)

	// Public
	router.Post("/auth/register", authRegister.New(log, service))
	router.Post("/auth/login", authLogin.New(log, service))

	// Authenticated
	router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(log, cfg.Auth.JWTSecret))

		r.Post("/bookings", bookingCreate.New(log, service))
		r.Get("/bookings/future", bookingList.New(log, service, bookingList.ScopeFuture))
		r.Get("/bookings/past", bookingList.New(log, service, bookingList.ScopePast))
		r.Delete("/bookings/{id}", bookingDelete.New(log, service))
		r.Get("/students/{username}", studentGet.New(log, service))
		r.Get("/notifications", notificationGet.New(log, service))

		// Admin only
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin(log))

			r.Get("/bookings", bookingList.New(log, service, bookingList.ScopeAll))
			r.Put("/bookings/{id}/lesson_number", bookingSetNumber.New(log, service))
			r.Put("/bookings/{id}/achievement", achAssign.New(log, service))
			r.Get("/students", studentGet.New(log, service))
			r.Put("/students/{username}/recovery", recoverySet.New(log, service))
		})
	})

	serv := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	serverErrCh := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", slog.String("addr", cfg.Address))
		if err := serv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		} else {
			serverErrCh <- nil
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			log.Error("HTTP server stopped unexpectedly", sl.Err(err))
		} else {
			log.Info("HTTP server stopped gracefully")
		}
	}

	shutdownTimeout := cfg.HTTPServer.ShutdownTimeout

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down HTTP server", slog.String("timeout", shutdownTimeout.String()))

	if err := serv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", sl.Err(err))
	} else {
		log.Info("Server shutdown complete")
	}

	// Let in-flight notification writes land before the pool closes.
	notifier.Wait()

	if storage != nil {
		if err := storage.Close(); err != nil {
			log.Error("Failed to close storage", sl.Err(err))
		} else {
			log.Info("Storage closed")
		}
	} else {
		log.Debug("Storage is nil, nothing to close")
	}

	if locker != nil {
		if err := locker.Close(); err != nil {
			log.Error("Failed to close locker", sl.Err(err))
		} else {
			log.Info("Locker closed")
		}
	}

	log.Info("Shutdown finished, server stopped")

}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
