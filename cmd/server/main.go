package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/atriumhq/atrium/internal/api"
	"github.com/atriumhq/atrium/internal/app"
	"github.com/atriumhq/atrium/internal/app/maintenance"
	iauth "github.com/atriumhq/atrium/internal/auth"
	"github.com/atriumhq/atrium/internal/database"
	"github.com/atriumhq/atrium/internal/invite"
	"github.com/atriumhq/atrium/internal/security"
	"github.com/atriumhq/atrium/pkg/logger"
	"github.com/atriumhq/atrium/pkg/mail"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("atrium-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory")

	if err := fs.Parse(args); err != nil {
		return err
	}

	var cfg *app.Config
	var err error
	if configPath != "" {
		cfg, err = app.LoadConfig(configPath)
	} else {
		cfg, err = app.LoadConfig()
	}
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithComponent("bootstrap")

	encryptionKey, err := cfg.Auth.EncryptionKeyBytes()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Database.Connection())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer closeDatabase(db, log)

	seed := invite.NewStaticGate(cfg.Invitations.Parse())
	if err := database.MigrateAndSeed(db, seed.Entries()); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	gate, err := invite.NewDatabaseGate(db)
	if err != nil {
		return fmt.Errorf("initialise invitation gate: %w", err)
	}

	store, err := iauth.NewCredentialStore(db, encryptionKey)
	if err != nil {
		return fmt.Errorf("initialise credential store: %w", err)
	}

	totpEngine := iauth.NewTOTPEngine(iauth.WithIssuer(cfg.Auth.TOTP.Issuer))

	backupSvc, err := iauth.NewBackupCodeService(db)
	if err != nil {
		return fmt.Errorf("initialise backup codes: %w", err)
	}

	sessionSvc, err := iauth.NewSessionService(db, cfg.Auth.SessionServiceConfig())
	if err != nil {
		return fmt.Errorf("initialise session service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.MailerSettings())
	if err != nil {
		return fmt.Errorf("initialise mailer: %w", err)
	}

	auditRec, err := security.NewRecorder(db)
	if err != nil {
		return fmt.Errorf("initialise audit recorder: %w", err)
	}

	flow, err := iauth.NewFlowService(db, store, gate, totpEngine, backupSvc, sessionSvc,
		mailer, auditRec, cfg.Auth.FlowServiceConfig(cfg.Server.BaseURL))
	if err != nil {
		return fmt.Errorf("initialise auth flow: %w", err)
	}

	if cfg.Maintenance.Enabled {
		cleaner := maintenance.NewCleaner(db, sessionSvc, auditRec,
			maintenance.WithSessionSchedule(cfg.Maintenance.SessionSchedule),
			maintenance.WithPendingSchedule(cfg.Maintenance.PendingSchedule),
			maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
			maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		)
		if err := cleaner.Start(); err != nil {
			return fmt.Errorf("start maintenance jobs: %w", err)
		}
		defer func() {
			stopCtx := cleaner.Stop()
			if err := cleaner.RunOnce(stopCtx); err != nil {
				log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
			}
		}()
	}

	router, err := api.NewRouter(api.Options{
		DB:             db,
		Flow:           flow,
		Store:          store,
		Backup:         backupSvc,
		Sessions:       sessionSvc,
		AuthRateLimit:  cfg.Auth.RateLimit.MaxRequests,
		AuthRateWindow: cfg.Auth.RateLimit.Window,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return <-errCh
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("access underlying database handle", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
