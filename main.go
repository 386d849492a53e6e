package main

import (
	"context"
	"embed"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/gin-gonic/gin"

	"github.com/NetoRibeiro/ovpfh-v2/internal/auth"
	"github.com/NetoRibeiro/ovpfh-v2/internal/catalog"
	"github.com/NetoRibeiro/ovpfh-v2/internal/channels"
	"github.com/NetoRibeiro/ovpfh-v2/internal/config"
	dbpkg "github.com/NetoRibeiro/ovpfh-v2/internal/db"
	"github.com/NetoRibeiro/ovpfh-v2/internal/feed"
	"github.com/NetoRibeiro/ovpfh-v2/internal/logging"
	"github.com/NetoRibeiro/ovpfh-v2/internal/matches"
	"github.com/NetoRibeiro/ovpfh-v2/internal/metrics"
	"github.com/NetoRibeiro/ovpfh-v2/internal/news"
	"github.com/NetoRibeiro/ovpfh-v2/internal/preferences"
	"github.com/NetoRibeiro/ovpfh-v2/internal/server"
)

//go:embed web/*
var webFS embed.FS

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", logging.FieldError, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// Dates without an offset are read on the schedule's calendar.
	loc := cfg.Location()
	time.Local = loc

	sqlDB, err := dbpkg.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	gdb, err := dbpkg.Gorm(sqlDB)
	if err != nil {
		return err
	}
	repo := catalog.NewRepository(gdb)

	if cfg.SeedDir != "" {
		stats, err := catalog.SeedFromDir(ctx, repo, cfg.SeedDir)
		if err != nil {
			return err
		}
		logger.Info("seeded catalog", slog.String("dir", cfg.SeedDir), slog.Int(logging.FieldCount, stats.Total()), slog.Int("skipped", stats.Skipped))
	}

	recorder, metricsHandler, metricsStop, err := metrics.Setup(ctx, metrics.TelemetryConfig{
		Enabled:      cfg.Metrics.Enabled,
		ServiceName:  cfg.Metrics.ServiceName,
		OtlpEndpoint: cfg.Metrics.OtlpEndpoint,
		OtlpInsecure: cfg.Metrics.OtlpInsecure,
	})
	if err != nil {
		return err
	}
	defer func() { _ = metricsStop(context.Background()) }()

	f := feed.New()
	var cache feed.Cache
	if cfg.Feed.CachePath != "" {
		bc, err := feed.OpenBoltCache(cfg.Feed.CachePath)
		if err != nil {
			logger.Warn("snapshot cache disabled", logging.FieldError, err)
		} else {
			defer bc.Close()
			cache = bc
		}
	}
	poller := feed.NewPoller(repo, f, cache, logger, recorder, cfg.Feed.PollInterval)

	var notifier *feed.RedisNotifier
	if cfg.Feed.RedisAddr != "" {
		notifier, err = feed.NewRedisNotifier(cfg.Feed.RedisAddr, cfg.Feed.RedisChannel, logger)
		if err != nil {
			logger.Warn("change notifications disabled", logging.FieldError, err)
		} else {
			defer notifier.Close()
			go notifier.Listen(ctx, poller.Refresh)
		}
	}

	poller.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := poller.Stop(stopCtx); err != nil {
			logger.Warn("feed poller stop", logging.FieldError, err)
		}
	}()

	// HTTP
	r := gin.New()
	r.Use(gin.Recovery(), server.RequestLogger(logger, recorder))
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return err
	}
	server.RegisterHealth(r, poller.Status)
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	mailer := auth.Mailer(auth.LogMailer{Logger: logger})
	if cfg.SMTP.Enabled() {
		mailer = auth.NewSMTPMailer(auth.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}
	authSvc := auth.NewService(auth.NewRepository(sqlDB), auth.Config{
		SessionTTL:     cfg.Auth.SessionTTL,
		TokenTTL:       cfg.Auth.TokenTTL,
		CookieSecure:   cfg.Auth.CookieSecure,
		AutoVerify:     cfg.Auth.AutoVerify,
		MinPasswordLen: cfg.Auth.MinPasswordLen,
		PublicURL:      cfg.Auth.PublicURL,
		AdminEmails:    cfg.Auth.AdminEmails,
	}, mailer, logger)
	auth.RegisterRoutes(r, authSvc)
	auth.RegisterAdminRoutes(r, authSvc)
	admin := authSvc.AdminRequired()

	onChange := func(ctx context.Context) {
		if err := poller.RunOnce(ctx); err != nil {
			logger.WarnContext(ctx, "reload after write", logging.FieldError, err)
		}
		if err := notifier.Notify(ctx); err != nil {
			logger.WarnContext(ctx, "notify change", logging.FieldError, err)
		}
	}
	matches.RegisterRoutes(r, matches.NewHandler(matches.Deps{
		Repo:     repo,
		Feed:     f,
		Resolver: channels.NewResolver(channels.DefaultAliases().Merge(cfg.ChannelAliases)),
		Location: loc,
		Metrics:  recorder,
		Logger:   logger,
		OnChange: onChange,
	}), admin)

	preferences.RegisterRoutes(r,
		preferences.NewHandler(preferences.NewRepository(gdb), f.Snapshot, nil),
		authSvc.AuthRequired(), authSvc.VerifiedRequired())
	news.RegisterRoutes(r, news.NewHandler(repo, news.NewSubscribers(gdb)), admin)

	// Simple frontend
	r.GET("/", func(c *gin.Context) {
		page, err := webFS.ReadFile("web/index.html")
		if err != nil {
			c.String(http.StatusInternalServerError, "missing index")
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
	})

	return server.Run(ctx, server.NewHTTPServer(cfg.Addr, r), logger)
}
