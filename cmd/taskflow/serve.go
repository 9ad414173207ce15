package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/config"
	"taskflow.dev/internal/health"
	"taskflow.dev/internal/httpapi"
	"taskflow.dev/internal/mailer"
	"taskflow.dev/internal/membership"
	"taskflow.dev/internal/notify"
	"taskflow.dev/internal/obs"
	"taskflow.dev/internal/realtime"
	"taskflow.dev/internal/store/pg"
	"taskflow.dev/internal/tasks"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, realtime stream and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return serve(cfg, log)
		},
	}
}

func serve(cfg *config.Config, log *zap.Logger) error {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	db, err := pg.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	accounts := account.NewPGStore(db)
	users, orgs := accounts.Users(), accounts.Organizations()
	taskStore := tasks.NewPGStore(db)

	hub := realtime.NewHub()
	closeRelay, err := startRelay(cfg.NATS, hub, log)
	if err != nil {
		return err
	}
	defer closeRelay()

	outbox, err := newOutbox(cfg.SMTP, log)
	if err != nil {
		return err
	}
	go outbox.Verify(ctx)
	branding := mailer.Branding{AppName: cfg.App.Name, FrontendURL: cfg.App.FrontendURL}

	authSvc, err := auth.NewService(users, orgs,
		auth.WithTokenSecret(cfg.Auth.Secret),
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithTokenTTL(cfg.Auth.TokenTTL),
	)
	if err != nil {
		return err
	}
	engine := notify.NewEngine(notify.NewPGStore(db), users, hub,
		notify.WithMail(outbox, branding),
		notify.WithLogger(log.Named("notify")),
	)
	taskSvc := tasks.NewService(taskStore, users, engine, log.Named("tasks"))
	memberSvc := membership.NewService(users, orgs, membership.NewPGStore(db), authSvc,
		membership.WithMail(outbox, branding),
		membership.WithNotifier(engine),
		membership.WithInviteTTL(cfg.Invite.TTL),
		membership.WithLogger(log.Named("membership")),
	)

	if cfg.Sweep.Interval > 0 {
		sweeper := notify.NewSweeper(taskStore, engine, cfg.Sweep.Interval, cfg.Sweep.Window, log.Named("sweeper"))
		go sweeper.Run(ctx)
	}

	checker := health.NewChecker(db)
	healthSrv := health.NewServer(checker, 0, log.Named("health"))
	go healthSrv.Run(ctx)

	grpcSrv, err := startGRPC(cfg.GRPC.Addr, healthSrv, log)
	if err != nil {
		return err
	}

	api := httpapi.New(httpapi.Options{
		Auth:          authSvc,
		Membership:    memberSvc,
		Tasks:         taskSvc,
		Notifications: notify.NewService(notify.NewPGStore(db)),
		Events:        hub,
		Ready:         checker,
		Log:           log.Named("http"),
		Version:       version,
		CORSOrigins:   cfg.HTTP.CORSOrigins,
		RateBurst:     cfg.HTTP.RateBurst,
		RatePerSecond: cfg.HTTP.RatePerSecond,
	})

	// No WriteTimeout: /api/events holds the response open.
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv.RegisterOnShutdown(api.CloseStreams)

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errCh:
		log.Error("http server failed", zap.Error(err))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	healthSrv.Shutdown()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Warn("http shutdown", zap.Error(serr))
	}
	// Separate budget: the HTTP shutdown may have used all of its own.
	mailCtx, cancelMail := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancelMail()
	if cerr := outbox.Close(mailCtx); cerr != nil {
		log.Warn("mail outbox did not drain", zap.Error(cerr))
	}
	log.Info("stopped")
	return err
}

func newOutbox(cfg config.SMTPConfig, log *zap.Logger) (*mailer.Outbox, error) {
	var sender mailer.Sender = mailer.LogSender{Logger: log.Named("mail")}
	if cfg.Host != "" {
		smtp, err := mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
		})
		if err != nil {
			return nil, err
		}
		sender = smtp
	}
	return mailer.NewOutbox(sender, log.Named("mail"), cfg.Workers, cfg.Queue), nil
}

// startRelay connects the hub to NATS when a URL is configured.
func startRelay(cfg config.NATSConfig, hub *realtime.Hub, log *zap.Logger) (func(), error) {
	if cfg.URL == "" {
		return func() {}, nil
	}
	nc, err := nats.Connect(cfg.URL, nats.Name("taskflow"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	relay, err := realtime.NewRelay(nc, hub, cfg.SubjectPrefix)
	if err != nil {
		nc.Close()
		return nil, err
	}
	if err := relay.Start(); err != nil {
		nc.Close()
		return nil, err
	}
	log.Info("realtime relay connected", zap.String("url", nc.ConnectedUrlRedacted()))
	return func() {
		relay.Close()
		_ = nc.Drain()
	}, nil
}

// startGRPC serves grpc.health.v1 on addr. An empty addr disables it.
func startGRPC(addr string, hs *health.Server, log *zap.Logger) (*grpc.Server, error) {
	if addr == "" {
		return nil, nil
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	g := grpc.NewServer()
	hs.Register(g)
	go func() {
		log.Info("grpc health listening", zap.String("addr", addr))
		if err := g.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("grpc server failed", zap.Error(err))
		}
	}()
	return g, nil
}
