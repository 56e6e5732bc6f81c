package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/zaqqye/inhouse_attendance/internal/attendance"
	"github.com/zaqqye/inhouse_attendance/internal/biometric"
	"github.com/zaqqye/inhouse_attendance/internal/config"
	"github.com/zaqqye/inhouse_attendance/internal/database"
	"github.com/zaqqye/inhouse_attendance/internal/events"
	"github.com/zaqqye/inhouse_attendance/internal/logging"
	"github.com/zaqqye/inhouse_attendance/internal/metrics"
	"github.com/zaqqye/inhouse_attendance/internal/middleware"
	"github.com/zaqqye/inhouse_attendance/internal/notify"
	"github.com/zaqqye/inhouse_attendance/internal/routes"
	"github.com/zaqqye/inhouse_attendance/internal/store"
	"github.com/zaqqye/inhouse_attendance/internal/ws"
)

func main() {
	// Load .env (non-fatal if missing in production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", logging.ErrAttr(err))
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server exited with error", logging.ErrAttr(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	cipher, err := biometric.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return err
	}

	db, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	if err := database.SeedAdmin(ctx, db, cfg, logger); err != nil {
		return err
	}
	st := store.New(db)

	templates, err := biometric.NewTemplateCache(cfg.TemplateCacheTTL, cfg.TemplateCacheSize)
	if err != nil {
		return err
	}
	defer templates.Close()

	var matcher biometric.Matcher = biometric.ExactMatcher{}
	if cfg.MatcherURL != "" {
		matcher = biometric.NewHTTPMatcher(cfg.MatcherURL)
	} else {
		logger.Warn("No matcher service configured, only byte-identical templates will match")
	}
	comparer := biometric.NewComparer(cipher, matcher, templates, cfg.MatchThreshold)

	metricsSvc := metrics.NewService()
	hub := ws.NewHub(logger)
	sinks := events.Multi{hub, metricsSvc}

	if cfg.AMQPURL != "" {
		bus, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		defer bus.Close()
		sinks = append(sinks, bus)
	}
	var mailer *notify.Mailer
	if cfg.SMTPHost != "" && len(cfg.NotifyEmails) > 0 {
		mailer, err = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUser,
			Password:   cfg.SMTPPass,
			Recipients: cfg.NotifyEmails,
		}, logger)
		if err != nil {
			return err
		}
		sinks = append(sinks, mailer)
	}

	ledger := attendance.NewService(st, sinks, cfg.Location(), cfg.DefaultInHouseID, logger)
	bio := biometric.NewService(st, cipher, comparer, ledger, metricsSvc, logger)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(logger), metricsSvc.Middleware())
	routes.Register(r, routes.Deps{
		DB:             db,
		Store:          st,
		Auth:           middleware.AuthConfig{JWTSecret: cfg.JWTSecret, TokenTTL: cfg.TokenTTL()},
		Attendance:     ledger,
		Biometric:      bio,
		Hub:            hub,
		Metrics:        metricsSvc,
		TerminalSecret: cfg.TerminalTOTPSecret,
		Logger:         logger,
	})

	handler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.ClientURL, ","),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.TerminalOTPHeader, "X-Trace-ID"},
		AllowCredentials: true,
	}).Handler(r)

	httpServer := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 4 * time.Second,
		ReadTimeout:       15 * time.Second,
		MaxHeaderBytes:    256 * 1024,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(ctx)
	})
	if mailer != nil {
		g.Go(func() error {
			return mailer.Run(ctx)
		})
	}
	g.Go(func() error {
		logger.Info("Listening", "address", httpServer.Addr, "timezone", cfg.Timezone)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
