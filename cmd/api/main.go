package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ifiasoft/erp-api/internal/auth"
	"github.com/ifiasoft/erp-api/internal/config"
	"github.com/ifiasoft/erp-api/internal/erp"
	"github.com/ifiasoft/erp-api/internal/httpapi"
	"github.com/ifiasoft/erp-api/internal/mailer"
	"github.com/ifiasoft/erp-api/internal/obs"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	} else {
		log.Fatal("DATABASE_URL must be set")
	}

	codec, err := auth.NewCodec(cfg.SecretKey)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	authOpts := []auth.ServiceOption{
		auth.WithAccessTTL(cfg.AccessTTL()),
		auth.WithRefreshTTL(cfg.RefreshTTL()),
		auth.WithBcryptCost(cfg.BcryptCost),
		auth.WithVerificationGate(cfg.RequireVerifiedEmail),
	}
	if cfg.SendVerificationEmail && cfg.MailConfigured() {
		authOpts = append(authOpts,
			auth.WithVerificationMail(true),
			auth.WithMailer(mailer.NewSMTP(cfg)))
	}
	authSvc, err := auth.NewService(auth.NewPGStore(db), codec, authOpts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	erpSvc := erp.NewService(erp.NewPGStore(db))

	api := httpapi.New(authSvc, erpSvc, cfg, httpapi.ReadyProbe{DB: db}, version)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting erp-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
